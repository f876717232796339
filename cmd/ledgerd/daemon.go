package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"xdao.co/authledger/internal/config"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/internal/ratelimit"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/grpcstore"
)

// limiterIdleTTL is how long a quiet peer keeps its token bucket.
const limiterIdleTTL = 10 * time.Minute

type daemon struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	grpc    *grpc.Server
}

func newDaemon(store storage.Store, cfg config.DaemonConfig, log *slog.Logger, m *metrics.Metrics) *daemon {
	interceptors := []grpc.UnaryServerInterceptor{observe(m)}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		lim := ratelimit.New(cfg.RateLimit, burst, limiterIdleTTL)
		interceptors = append(interceptors, lim.UnaryServerInterceptor(time.Now))
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{Store: store})
	return &daemon{log: log, metrics: m, grpc: s}
}

// observe records every RPC, including ones the rate limiter turns away.
func observe(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.ObserveStoreRPC(path.Base(info.FullMethod), status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// serve runs until ctx is done or a listener fails, then stops gracefully.
// metricsLis may be nil.
func (d *daemon) serve(ctx context.Context, lis, metricsLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	var httpSrv *http.Server
	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			d.log.Info("metrics listening", "addr", metricsLis.Addr().String())
			if err := httpSrv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		d.log.Info("ledgerd listening", "addr", lis.Addr().String())
		// A stop that lands before Serve starts is still a clean shutdown.
		if err := d.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		d.log.Info("shutting down")
		d.grpc.GracefulStop()
		if httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
