package core_domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditStage names the point in the pipeline an audit row was written at.
type AuditStage string

const (
	StageAboutToSend  AuditStage = "about_to_send"
	StageSent         AuditStage = "sent"
	StageFailed       AuditStage = "failed"
	StageSkipped      AuditStage = "skipped"
	StageDeferred     AuditStage = "deferred"
	StageReleased     AuditStage = "released"
	StageReclaimed    AuditStage = "reclaimed"
	StageRescheduled  AuditStage = "rescheduled"
	StageOperatorSkip AuditStage = "operator_skip"
)

// AuditEntry is immutable once written. StatusUpdateSuccess=false on a sent stage
// marks a message that reached the provider while the record write was lost.
type AuditEntry struct {
	ID                  uuid.UUID      `json:"id"`
	OutreachID          uuid.UUID      `json:"outreach_id"`
	CampaignID          uuid.UUID      `json:"campaign_id"`
	Channel             Channel        `json:"channel"`
	RecipientKeys       []string       `json:"recipient_keys"`
	ProviderMessageID   string         `json:"provider_message_id,omitempty"`
	ProviderChatID      string         `json:"provider_chat_id,omitempty"`
	StatusBefore        OutreachStatus `json:"status_before"`
	StatusAfter         OutreachStatus `json:"status_after"`
	Stage               AuditStage     `json:"stage"`
	StatusUpdateSuccess bool           `json:"status_update_success"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// CampaignAuditEntry records one operator change to a campaign's lifecycle status.
type CampaignAuditEntry struct {
	ID           uuid.UUID      `json:"id"`
	CampaignID   uuid.UUID      `json:"campaign_id"`
	Actor        string         `json:"actor"`
	StatusBefore CampaignStatus `json:"status_before"`
	StatusAfter  CampaignStatus `json:"status_after"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DayStats summarizes one local day for the digest.
type DayStats struct {
	SentToday     int
	PendingToday  int
	LastScheduled *time.Time
}
