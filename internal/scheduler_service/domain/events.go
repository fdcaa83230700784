package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

// OutcomeEvent is published after an outcome is recorded. Consumers must treat it as a
// hint: the outreach_records row is the source of truth.
type OutcomeEvent struct {
	OutreachID        uuid.UUID                  `json:"outreach_id"`
	CampaignID        uuid.UUID                  `json:"campaign_id"`
	Channel           core_domain.Channel        `json:"channel"`
	Status            core_domain.OutreachStatus `json:"status"`
	ProviderMessageID string                     `json:"provider_message_id,omitempty"`
	Reason            string                     `json:"reason,omitempty"`
	StatusWritten     bool                       `json:"status_written"`
	OccurredAt        time.Time                  `json:"occurred_at"`
}
