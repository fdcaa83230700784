package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/offertesting/outreach_services/internal/platform/messagebroker"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

// OutcomePublisher emits recorded outcomes on <prefix>.outcome.<status>.
type OutcomePublisher struct {
	publisher messagebroker.Publisher
	prefix    string
	logger    *slog.Logger
}

func NewOutcomePublisher(publisher messagebroker.Publisher, prefix string, logger *slog.Logger) *OutcomePublisher {
	if prefix == "" {
		prefix = "outreach"
	}
	return &OutcomePublisher{publisher: publisher, prefix: prefix, logger: logger.With("component", "outcome_publisher")}
}

// Subject returns the subject an outcome with the given status is published on.
func (p *OutcomePublisher) Subject(ev domain.OutcomeEvent) string {
	return fmt.Sprintf("%s.outcome.%s", p.prefix, ev.Status)
}

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, ev domain.OutcomeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}
	subject := p.Subject(ev)
	if err := p.publisher.Publish(ctx, subject, payload); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "Outcome event published", "subject", subject, "outreach_id", ev.OutreachID)
	return nil
}
