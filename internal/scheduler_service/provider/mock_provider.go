package provider

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a simulated transport for development and dry runs.
type MockProvider struct {
	logger       *slog.Logger
	failRate     float64 // chance to simulate failure (0.0 to 1.0)
	minLatencyMs int
	maxLatencyMs int
}

func NewMockProvider(logger *slog.Logger, failRate float64, minLatencyMs, maxLatencyMs int) *MockProvider {
	if maxLatencyMs < minLatencyMs {
		maxLatencyMs = minLatencyMs
	}
	return &MockProvider{
		logger:       logger.With("provider", "mock"),
		failRate:     failRate,
		minLatencyMs: minLatencyMs,
		maxLatencyMs: maxLatencyMs,
	}
}

func (p *MockProvider) GetName() string { return "mock" }

func (p *MockProvider) SendMessage(ctx context.Context, req MessageRequest) (*SendResponse, error) {
	return p.simulate(ctx, "message", req.AttendeeID)
}

func (p *MockProvider) SendInvitation(ctx context.Context, req InvitationRequest) (*SendResponse, error) {
	return p.simulate(ctx, "invitation", req.ProviderID)
}

func (p *MockProvider) SendEmail(ctx context.Context, req EmailRequest) (*SendResponse, error) {
	return p.simulate(ctx, "email", req.To)
}

func (p *MockProvider) GetRelation(context.Context, string, string) (*Relation, error) {
	return &Relation{}, nil
}

func (p *MockProvider) CheckAccount(context.Context, string) error { return nil }

func (p *MockProvider) simulate(ctx context.Context, kind, recipient string) (*SendResponse, error) {
	latency := p.minLatencyMs + rand.Intn(p.maxLatencyMs-p.minLatencyMs+1)
	select {
	case <-time.After(time.Duration(latency) * time.Millisecond):
	case <-ctx.Done():
		return nil, &Error{Kind: KindTransport, Message: ctx.Err().Error()}
	}

	if rand.Float64() < p.failRate {
		p.logger.WarnContext(ctx, "MockProvider simulated failure", "kind", kind, "recipient", recipient)
		return nil, &Error{Kind: KindTransport, StatusCode: 500, Message: fmt.Sprintf("simulated %s failure", kind)}
	}

	resp := &SendResponse{MessageID: uuid.NewString(), ChatID: uuid.NewString()}
	p.logger.InfoContext(ctx, "MockProvider send succeeded (simulated)", "kind", kind, "recipient", recipient, "provider_message_id", resp.MessageID)
	return resp, nil
}
