package grpcstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/backends"
)

// DefaultTimeout bounds each RPC when no timeout is configured.
const DefaultTimeout = 5 * time.Second

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "grpc",
		Description: "gRPC client for a registry served by ledgerd",
		Usage:       backends.UsageCLI,
		Keys:        []string{"target", "timeout", "max_msg_bytes"},
		Open: func(s backends.Settings) (storage.Store, error) {
			target := s.String("target", "")
			if target == "" {
				return nil, fmt.Errorf("grpc backend: missing target")
			}
			timeout, err := s.Duration("timeout", DefaultTimeout)
			if err != nil {
				return nil, err
			}
			var maxMsg int
			if v := s.String("max_msg_bytes", ""); v != "" {
				if maxMsg, err = strconv.Atoi(v); err != nil {
					return nil, fmt.Errorf("grpc backend: max_msg_bytes: %w", err)
				}
			}
			return Dial(target, DialOptions{Timeout: timeout, MaxMsgBytes: maxMsg})
		},
	})
}

// Client implements storage.Store over a Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Store = (*Client)(nil)

type DialOptions struct {
	// Timeout applies per RPC; zero means DefaultTimeout.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra options, e.g. a custom dialer.
	DialOptions []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily on
// the first RPC.
func Dial(target string, opts DialOptions) (*Client, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("grpcstore: target is required")
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{cc: cc, client: NewStoreClient(cc), Timeout: timeout}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Insert(ctx context.Context, rec model.IdentityRecord) error {
	rec, err := storage.ValidateRecord(rec)
	if err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err = c.client.Insert(ctx, wrapperspb.Bytes(b))
	return mapRPC(err)
}

func (c *Client) Get(ctx context.Context, publicKey string) (model.IdentityRecord, error) {
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Get(ctx, wrapperspb.String(k))
	if err != nil {
		return model.IdentityRecord{}, mapRPC(err)
	}
	return decodeRecord(reply.GetValue())
}

func (c *Client) List(ctx context.Context) ([]model.IdentityRecord, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.List(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	return decodeRecords(reply.GetValue())
}

func (c *Client) SetStatus(ctx context.Context, publicKey string, st model.Status) error {
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return err
	}
	if !st.Valid() {
		return fmt.Errorf("%w: status %q", storage.ErrInvalidRecord, string(st))
	}
	b, err := json.Marshal(wireStatus{PublicKey: k, Status: st})
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err = c.client.SetStatus(ctx, wrapperspb.Bytes(b))
	return mapRPC(err)
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
