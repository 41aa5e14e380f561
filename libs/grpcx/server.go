package grpcx

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RequestIDMetadataKey is the canonical key used for request id propagation over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// Server bundles a grpc.Server with the standard health service.
type Server struct {
	GRPC   *grpc.Server
	Health *health.Server
}

func NewServer(opts ...grpc.ServerOption) *Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{GRPC: srv, Health: hs}
}

// SetServing flips the overall status and each named service.
func (s *Server) SetServing(serving bool, services ...string) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus("", status)
	for _, name := range services {
		s.Health.SetServingStatus(name, status)
	}
}

// Serve accepts on lis until ctx is cancelled, then marks the server as
// not serving and stops gracefully.
func (s *Server) Serve(ctx context.Context, logger *slog.Logger, lis net.Listener, services ...string) {
	s.SetServing(true, services...)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := s.GRPC.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.SetServing(false, services...)
		s.GRPC.GracefulStop()
		logger.Info("grpc server stopped")
	}()
}

// CheckHealth asks a remote health service for the status of service.
func CheckHealth(ctx context.Context, conn grpc.ClientConnInterface, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
