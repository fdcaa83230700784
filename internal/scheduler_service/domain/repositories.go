package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

// StatusUpdate is a conditional status write: it applies only while the record is in From.
type StatusUpdate struct {
	ID                uuid.UUID
	From              core_domain.OutreachStatus
	To                core_domain.OutreachStatus
	SentAt            *time.Time
	ProviderMessageID string
	ProviderChatID    string
	Reason            string
	At                time.Time
}

// ClaimScope is what a claim re-checks under the lane lock: the lane's daily cap and its channels.
type ClaimScope struct {
	Lane     string
	Channels []core_domain.Channel
	DayStart time.Time
	DayEnd   time.Time
	DailyCap int
}

// OutreachRepository defines access to outreach_records.
type OutreachRepository interface {
	// NextCandidate returns the oldest due pending record for the given channels whose
	// campaign is in_progress. Returns core_domain.ErrNoCandidate when there is none.
	NextCandidate(ctx context.Context, now time.Time, channels []core_domain.Channel) (*core_domain.Candidate, error)

	// Claim moves the record pending -> sending and stamps claimed_at and recipient keys.
	// It serializes on the lane and on every recipient key, then returns
	// core_domain.ErrDailyCapReached when the lane's cap is used up,
	// core_domain.ErrRecipientInFlight when another record for a shared key is sending or sent,
	// and core_domain.ErrClaimLost when the record is no longer pending.
	Claim(ctx context.Context, id uuid.UUID, keys []string, scope ClaimScope, at time.Time) error

	// TransitionStatus applies upd only if the stored status equals upd.From.
	// Returns core_domain.ErrStatusConflict when zero rows were affected.
	TransitionStatus(ctx context.Context, upd StatusUpdate) error

	// Reschedule sets status=pending and a new scheduled_at if the current status is one of from.
	Reschedule(ctx context.Context, id uuid.UUID, from []core_domain.OutreachStatus, scheduledAt time.Time, reason string, at time.Time) error

	GetByID(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error)

	// ListStuckSending returns records left in sending with claimed_at before the cutoff.
	ListStuckSending(ctx context.Context, claimedBefore time.Time, limit int) ([]core_domain.OutreachRecord, error)

	DayStats(ctx context.Context, dayStart, dayEnd time.Time) (core_domain.DayStats, error)
}

type CampaignRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error)
	// UpdateStatus is conditional on the current status; core_domain.ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to core_domain.CampaignStatus, at time.Time) error
	IncrementSentCount(ctx context.Context, id uuid.UUID, at time.Time) error
}

// HistoryRepository covers every dedup source: sent records, sent audit rows and the history ledger.
type HistoryRepository interface {
	// PriorSends lists sent records and sent audit rows matching any key, excluding excludeID.
	PriorSends(ctx context.Context, keys []string, excludeID uuid.UUID) ([]core_domain.PriorSend, error)
	// History lists ledger entries matching any key, newest first.
	History(ctx context.Context, keys []string) ([]core_domain.OutreachHistoryEntry, error)
	AppendHistory(ctx context.Context, entry core_domain.OutreachHistoryEntry) error
	// CountSent counts ledger entries in [start, end) for the channels.
	CountSent(ctx context.Context, start, end time.Time, channels []core_domain.Channel) (int, error)
	// ConnectSentInCampaign reports whether a connection request to any key was sent by this campaign.
	ConnectSentInCampaign(ctx context.Context, campaignID uuid.UUID, keys []string) (bool, error)
}

type BlockListRepository interface {
	// IsBlocked reports whether any key is block-listed and the stored reason.
	IsBlocked(ctx context.Context, keys []string) (blocked bool, reason string, err error)
}

// ActivityFilter scopes a last-activity lookup. A nil AccountID means any account.
type ActivityFilter struct {
	AccountID *uuid.UUID
	Channels  []core_domain.Channel
}

type ActivityRepository interface {
	Append(ctx context.Context, a core_domain.AccountActivity) error
	// LastSuccess returns the newest successful activity time, or nil when there is none.
	LastSuccess(ctx context.Context, filter ActivityFilter) (*time.Time, error)
}

type AuditRepository interface {
	Append(ctx context.Context, e core_domain.AuditEntry) error
	// ListForOutreach returns the audit rows of one record, oldest first.
	ListForOutreach(ctx context.Context, outreachID uuid.UUID) ([]core_domain.AuditEntry, error)
	// AppendCampaign writes a campaign lifecycle change to campaign_audit.
	AppendCampaign(ctx context.Context, e core_domain.CampaignAuditEntry) error
}
