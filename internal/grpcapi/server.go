// Package grpcapi serves the gRPC health protocol for load balancers and
// service meshes.
package grpcapi

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"livestream-chat/internal/logging"
	"livestream-chat/internal/observability"
)

// ServiceName is the health service name reported for the chat gateway.
const ServiceName = "livestream.chat.Gateway"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Server wraps a grpc.Server with a health service driven by probes.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	probes []Probe
}

// NewServer builds the gRPC server with metrics and tracing hooks.
func NewServer(probes ...Probe) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{grpc: srv, health: hs, probes: probes}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Refresh runs every probe once and updates the serving status.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, probe := range s.probes {
		if err := probe(ctx); err != nil {
			l := logging.Ctx(ctx)
			l.Warn().Err(err).Msg("health probe failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.setStatus(status)
	return status
}

// Watch refreshes the health status every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval/2)
			s.Refresh(probeCtx)
			cancel()
		}
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Shutdown marks the service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
