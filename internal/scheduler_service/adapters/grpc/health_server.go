package grpc

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the overall health entry; each lane also reports under LaneService(name).
const ServiceName = "outreach.scheduler"

func LaneService(lane string) string { return ServiceName + ".lane." + lane }

// HealthServer exposes grpc.health.v1 with one status per lane. A lane goes NOT_SERVING
// while its provider account fails the systemic check and recovers on the next good run.
type HealthServer struct {
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(lanes []string, logger *slog.Logger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	for _, l := range lanes {
		hs.SetServingStatus(LaneService(l), healthpb.HealthCheckResponse_SERVING)
	}
	return &HealthServer{health: hs, logger: logger.With("component", "grpc_health")}
}

// SetLaneServing records the latest provider state of a lane.
func (s *HealthServer) SetLaneServing(lane string, serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("Lane marked not serving", "lane", lane)
	}
	s.health.SetServingStatus(LaneService(lane), status)
}

// Shutdown flips every entry to NOT_SERVING ahead of GracefulStop.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
}

// Register attaches the health service and reflection to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// Checker returns the underlying health implementation.
func (s *HealthServer) Checker() healthpb.HealthServer {
	return s.health
}
