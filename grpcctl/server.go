// Package grpcctl is the control-plane surface each binary exposes
// alongside its bus connection: one small control service per process,
// built on google.golang.org/grpc's standard health-checking service. The
// only service registered on the gRPC server is health; the manual-flush
// hook (TriggerFlush) is an in-process method and is not exposed as a
// gRPC call.
package grpcctl

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Component names reported through the health service, one per
// independently health-checked sub-status.
const (
	ComponentBus   = "bus"
	ComponentCache = "cache"
	ComponentFile  = "nexus_file"
)

// Flusher is implemented by whatever owns a manual-flush operation (in
// nexus-writer, an adapter that hands the request to the loop driving
// engine.Engine.Flush), so the control surface can trigger one without
// importing those packages directly.
type Flusher interface {
	Flush() error
}

// Server owns the gRPC listener, the standard health service, and an
// optional manual-flush hook (generalizing SourceControl.WriteControl's
// "force a write now" behaviour).
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        zerolog.Logger

	mu      sync.Mutex
	flusher Flusher
}

// New builds a Server with every known component reported as NOT_SERVING
// until SetServing is called, mirroring SourceControl's status being
// empty (Ncol/Nrow of length zero) before Start.
func New(log zerolog.Logger) *Server {
	hs := health.NewServer()
	for _, component := range []string{ComponentBus, ComponentCache, ComponentFile} {
		hs.SetServingStatus(component, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs, log: log}
}

// SetFlusher installs the handler invoked by a manual flush request.
func (s *Server) SetFlusher(f Flusher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flusher = f
}

// SetServing updates one component's reported health.
func (s *Server) SetServing(component string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(component, status)
}

// TriggerFlush calls the installed Flusher, if any — the control-plane
// equivalent of SourceControl.WriteControl's forced write.
func (s *Server) TriggerFlush() error {
	s.mu.Lock()
	f := s.flusher
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Flush()
}

// Serve blocks accepting gRPC connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
