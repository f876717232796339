package ratelimit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestNewRejectsNonPositive(t *testing.T) {
	assert.Nil(t, New(0, 1, 0))
	assert.Nil(t, New(1, 0, 0))

	var l *MapLimiter
	assert.True(t, l.Allow("anyone", time.Now()))
	assert.Equal(t, 0, l.Len())
}

func TestBurstThenRefill(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	// Keys are independent.
	assert.True(t, l.Allow("b", now))
	// One token per second.
	assert.True(t, l.Allow("a", now.Add(time.Second)))
}

func TestBlankKeyIsNotLimited(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("  ", now))
	}
	assert.Equal(t, 0, l.Len())
}

func TestIdleKeysAreEvicted(t *testing.T) {
	l := New(1000, 1000, time.Second)
	start := time.Now()
	l.Allow("old", start)
	later := start.Add(time.Hour)
	for i := 0; i < 600; i++ {
		l.Allow("new", later)
	}
	assert.Equal(t, 1, l.Len())
}

func TestUnaryServerInterceptor(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	ic := l.UnaryServerInterceptor(func() time.Time { return now })

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5555}})
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	out, err := ic(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// Same host, different port shares the bucket.
	ctx2 := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 6666}})
	_, err = ic(ctx2, nil, info, handler)
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
