package grpcctl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServerReportsServingStatus(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()
	resp, err := client.Check(checkCtx, &healthpb.HealthCheckRequest{Service: ComponentBus})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	s.SetServing(ComponentBus, true)
	resp, err = client.Check(checkCtx, &healthpb.HealthCheckRequest{Service: ComponentBus})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	cancel()
	<-done
}

type countingFlusher struct{ calls int }

func (f *countingFlusher) Flush() error {
	f.calls++
	return nil
}

func TestTriggerFlushCallsInstalledFlusher(t *testing.T) {
	s := New(zerolog.Nop())
	f := &countingFlusher{}
	s.SetFlusher(f)
	require.NoError(t, s.TriggerFlush())
	require.Equal(t, 1, f.calls)
}

func TestTriggerFlushWithNoFlusherIsNoOp(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.TriggerFlush())
}
