package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"room-chat-service/internal/observability"
)

const defaultProbeInterval = 10 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the standard gRPC health service. The status of service
// follows the storage probe.
type Server struct {
	srv      *grpc.Server
	health   *health.Server
	service  string
	pinger   Pinger
	interval time.Duration
}

func New(service string, pinger Pinger, interval time.Duration) *Server {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{srv: s, health: hs, service: service, pinger: pinger, interval: interval}
}

// Serve probes storage until ctx ends and serves on lis until Stop.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.probe(ctx)
			}
		}
	}()
	log.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	return s.srv.Serve(lis)
}

func (s *Server) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.pinger.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("storage probe failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
}

// Stop marks the service as shutting down and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
