package grpc

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hs := NewHealthServer([]string{"linkedin", "email"}, logger)
	ctx := context.Background()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Checker().Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("outreach.scheduler.lane.email"))

	hs.SetLaneServing("linkedin", false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(LaneService("linkedin")))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(LaneService("email")))

	hs.SetLaneServing("linkedin", true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(LaneService("linkedin")))

	_, err := hs.Checker().Check(ctx, &healthpb.HealthCheckRequest{Service: LaneService("sms")})
	assert.Error(t, err)

	srv := grpc.NewServer()
	hs.Register(srv)
	_, ok := srv.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]
	assert.True(t, ok)

	hs.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))
}
