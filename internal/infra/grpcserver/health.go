// Package grpcserver exposes the standard gRPC health service for the engine.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall "" entry.
const ServiceName = "activityhub.v1.Engine"

// Readiness reports whether every dependency is reachable.
type Readiness interface {
	Ready(ctx context.Context) error
}

type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	readiness Readiness
	logger    *slog.Logger
}

func New(readiness Readiness, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	s := &Server{grpc: srv, health: hs, readiness: readiness, logger: logger}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Refresh probes readiness once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.readiness != nil {
		if err := s.readiness.Ready(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.WarnContext(ctx, "grpc health not serving", slog.Any("err", err))
		}
	}
	s.set(status)
	return status
}

// Watch refreshes the status every interval until ctx ends, then reports
// NOT_SERVING for the drain period.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
