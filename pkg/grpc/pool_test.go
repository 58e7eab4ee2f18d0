package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), hs
}

func TestPoolReusesConnection(t *testing.T) {
	p := NewPool(WithInterceptor(LoggingInterceptor(zap.NewNop())))

	a, err := p.GetConnection("127.0.0.1:1")
	require.NoError(t, err)
	b, err := p.GetConnection("127.0.0.1:1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, p.Close())
	c, err := p.GetConnection("127.0.0.1:1")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	_ = p.Close()
}

func TestWaitServing(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("ledger", healthpb.HealthCheckResponse_NOT_SERVING)

	p := NewPool()
	defer p.Close()
	conn, err := p.GetConnection(addr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, WaitServing(ctx, conn, "ledger", 10*time.Millisecond))

	go func() {
		time.Sleep(50 * time.Millisecond)
		hs.SetServingStatus("ledger", healthpb.HealthCheckResponse_SERVING)
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	assert.NoError(t, WaitServing(ctx2, conn, "ledger", 10*time.Millisecond))
}
