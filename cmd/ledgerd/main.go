// Command ledgerd serves an identity registry backend over gRPC so several
// authledger clients can share one registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"xdao.co/authledger/internal/config"
	"xdao.co/authledger/internal/logging"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/storage/backends"

	_ "xdao.co/authledger/storage/jsonfile"
	_ "xdao.co/authledger/storage/memory"
	_ "xdao.co/authledger/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, environ map[string]string) int {
	fs := pflag.NewFlagSet("ledgerd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	listen := fs.String("listen", "", "gRPC listen address")
	metricsListen := fs.String("metrics-listen", "", "Prometheus /metrics listen address (\"off\" disables)")
	backend := fs.String("backend", "", "Registry backend name")
	ledgerPath := fs.String("ledger", "", "Registry file for the jsonfile and sqlite backends")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *listBackends {
		for _, b := range backends.List(backends.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*configPath, environ)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if fs.Changed("listen") {
		cfg.Daemon.Listen = *listen
	}
	if fs.Changed("metrics-listen") {
		cfg.Daemon.MetricsListen = *metricsListen
	}
	if fs.Changed("backend") {
		cfg.Backend = *backend
	}
	if fs.Changed("ledger") {
		cfg.Ledger = *ledgerPath
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if err := cfg.Validate(backends.UsageDaemon); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	log, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	store, err := backends.Open(cfg.Backend, backends.UsageDaemon, cfg.BackendSettings())
	if err != nil {
		log.Error("open backend", "backend", cfg.Backend, "err", err)
		return 2
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close backend", "err", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		log.Error("listen", "addr", cfg.Daemon.Listen, "err", err)
		return 1
	}
	var metricsLis net.Listener
	if cfg.Daemon.MetricsListen != "" && cfg.Daemon.MetricsListen != "off" {
		metricsLis, err = net.Listen("tcp", cfg.Daemon.MetricsListen)
		if err != nil {
			_ = lis.Close()
			log.Error("listen", "addr", cfg.Daemon.MetricsListen, "err", err)
			return 1
		}
	}

	d := newDaemon(store, cfg.Daemon, log.With("backend", cfg.Backend), metrics.New())
	if err := d.serve(ctx, lis, metricsLis); err != nil {
		log.Error("serve", "err", err)
		return 1
	}
	return 0
}
