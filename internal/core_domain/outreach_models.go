package core_domain

import (
	"time"

	"github.com/google/uuid"
)

// OutreachStatus drives the per-record state machine.
type OutreachStatus string

const (
	StatusPending OutreachStatus = "pending"
	StatusSending OutreachStatus = "sending" // transient lock held by one invocation
	StatusSent    OutreachStatus = "sent"
	StatusFailed  OutreachStatus = "failed"  // terminal for automation, operator-recoverable
	StatusSkipped OutreachStatus = "skipped" // rejected before any claim
)

// Channel selects the transport variant.
type Channel string

const (
	ChannelLinkedInDM      Channel = "linkedin_dm"
	ChannelLinkedInConnect Channel = "linkedin_connect"
	ChannelEmail           Channel = "email"
)

// IsLinkedIn reports whether the channel is addressed by a LinkedIn member id.
func (c Channel) IsLinkedIn() bool {
	return c == ChannelLinkedInDM || c == ChannelLinkedInConnect
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelLinkedInDM, ChannelLinkedInConnect, ChannelEmail:
		return true
	}
	return false
}

// OutreachRecord is one intended send.
type OutreachRecord struct {
	ID          uuid.UUID      `json:"id"`
	CampaignID  uuid.UUID      `json:"campaign_id"`
	RecipientID uuid.UUID      `json:"recipient_id"`
	AccountID   uuid.UUID      `json:"account_id"`
	Channel     Channel        `json:"channel"`
	Subject     string         `json:"subject,omitempty"`
	Body        string         `json:"body"`
	Status      OutreachStatus `json:"status"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`    // set iff Status == sent
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"` // stamped by the claim

	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ProviderChatID    string `json:"provider_chat_id,omitempty"`
	Reason            string `json:"reason,omitempty"` // failure or skip reason

	// RecipientKeys are the canonical identity keys stamped at claim time.
	RecipientKeys []string `json:"recipient_keys,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var recordTransitions = map[OutreachStatus][]OutreachStatus{
	StatusPending: {StatusSending, StatusSkipped, StatusPending},
	StatusSending: {StatusSent, StatusFailed, StatusPending},
	StatusFailed:  {StatusPending},
	StatusSkipped: {StatusPending},
}

// CanTransition reports whether from -> to is part of the record lifecycle.
// pending->pending is a reschedule; failed/skipped->pending is an operator reset;
// sending->pending releases a claim that never reached the transport.
func CanTransition(from, to OutreachStatus) bool {
	for _, s := range recordTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Candidate is a due pending record joined with what the pipeline needs to judge and send it.
type Candidate struct {
	Record    OutreachRecord
	Recipient Recipient
	Campaign  Campaign
	Account   SendingAccount
}

// SendingAccount is the LinkedIn seat or mailbox used to dispatch.
type SendingAccount struct {
	ID                uuid.UUID `json:"id"`
	ProviderAccountID string    `json:"provider_account_id"`
	Name              string    `json:"name"`
	Status            string    `json:"status"`
}

// ActivityStatus is the outcome recorded against a sending account.
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
)

// AccountActivity is an append-only row; spacing derives last activity from it.
type AccountActivity struct {
	ID         uuid.UUID      `json:"id"`
	AccountID  uuid.UUID      `json:"account_id"`
	OutreachID uuid.UUID      `json:"outreach_id"`
	Channel    Channel        `json:"channel"`
	Status     ActivityStatus `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// OutreachHistoryEntry is the append-only ledger of successful sends keyed by recipient identity.
type OutreachHistoryEntry struct {
	ID            uuid.UUID     `json:"id"`
	RecipientKeys []string      `json:"recipient_keys"`
	CampaignID    uuid.NullUUID `json:"campaign_id"`
	OutreachID    uuid.NullUUID `json:"outreach_id"`
	AccountID     uuid.NullUUID `json:"account_id"`
	Channel       Channel       `json:"channel"`
	Subject       string        `json:"subject,omitempty"`
	SentAt        time.Time     `json:"sent_at"`
}

// BlockListEntry marks a recipient key that must never be contacted.
type BlockListEntry struct {
	ID           uuid.UUID `json:"id"`
	RecipientKey string    `json:"recipient_key"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// PriorSend is evidence that a recipient was already messaged by some record.
type PriorSend struct {
	OutreachID   uuid.UUID
	CampaignID   uuid.UUID
	CampaignName string
	MatchedKey   string
	SentAt       time.Time
}
