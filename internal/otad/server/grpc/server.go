// Package grpc serves the standard gRPC health service for the daemon.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/autopeer-io/otad/internal/otad/ota"
	grpcmw "github.com/autopeer-io/otad/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/options"
)

// ServiceName is the health service name reporting the update engine.
const ServiceName = "otad.v1.Updater"

type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
}

var _ ota.Observer = (*Server)(nil)

func NewServer(opts *options.GrpcOptions) *Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(grpcmw.UnaryServerTimeout(opts.Timeout)))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s) // Enable grpc_cli support

	return &Server{
		server:  s,
		health:  hs,
		options: opts,
	}
}

func (s *Server) Name() string { return "grpc" }

// OnSessionEvent reports NOT_SERVING once a commit schedules the restart.
func (s *Server) OnSessionEvent(ev ota.SessionEvent) {
	if ev.State == ota.StateCommitted {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Health returns the health service, mainly for tests.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}

	log.Info("Starting gRPC Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}
