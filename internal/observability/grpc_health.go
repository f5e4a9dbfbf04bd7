package observability

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so
// orchestrators that check health over gRPC can watch readiness
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewGRPCHealthServer listens on addr (e.g. ":9090" or "127.0.0.1:0").
// The overall service starts NOT_SERVING until SetServing is called.
func NewGRPCHealthServer(addr string, logger zerolog.Logger) (*GRPCHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc health listen on %s: %w", addr, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealthServer{
		server:   srv,
		health:   hs,
		listener: lis,
		logger:   logger.With().Str("component", "grpc_health").Logger(),
	}, nil
}

// Addr returns the bound listen address
func (s *GRPCHealthServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until Stop is called
func (s *GRPCHealthServer) Serve() error {
	s.logger.Info().Str("addr", s.Addr()).Msg("gRPC health service listening")
	if err := s.server.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// SetServing flips the overall status
func (s *GRPCHealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// SyncWithChecks runs the readiness checks once and mirrors the result
func (s *GRPCHealthServer) SyncWithChecks(ctx context.Context, checks map[string]HealthCheckFunc) bool {
	_, healthy := RunChecks(ctx, checks)
	s.SetServing(healthy)
	return healthy
}

// Stop marks every service NOT_SERVING and drains the server
func (s *GRPCHealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
