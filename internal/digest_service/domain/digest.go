package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

// NotificationType groups digest entries.
type NotificationType string

const (
	TypeNetworkingSuccess NotificationType = "networking_success"
	TypeNetworkingFailed  NotificationType = "networking_failed"
	TypeMessageSuccess    NotificationType = "message_success"
	TypeMessageFailed     NotificationType = "message_failed"
	// TypeProviderError is the systemic category: no sends are currently possible.
	TypeProviderError NotificationType = "provider_error"
)

// TypeForOutcome maps a recorded outcome to its digest category.
func TypeForOutcome(ch core_domain.Channel, success bool) NotificationType {
	switch {
	case ch.IsLinkedIn() && success:
		return TypeNetworkingSuccess
	case ch.IsLinkedIn():
		return TypeNetworkingFailed
	case success:
		return TypeMessageSuccess
	default:
		return TypeMessageFailed
	}
}

// Entry is one queued notification.
type Entry struct {
	ID         uuid.UUID        `json:"id"`
	Type       NotificationType `json:"type"`
	OutreachID uuid.NullUUID    `json:"outreach_id"`
	CampaignID uuid.NullUUID    `json:"campaign_id"`
	Channel    string           `json:"channel,omitempty"`
	Recipient  string           `json:"recipient,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Repository stores the digest queue and the last-digest marker.
// QueueCursor is the (created_at, id) position of the last entry of a page.
type QueueCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type Repository interface {
	Enqueue(ctx context.Context, e Entry) error
	// ListQueued returns up to limit queued entries after the cursor, oldest first.
	// A nil cursor starts from the head of the queue.
	ListQueued(ctx context.Context, after *QueueCursor, limit int) ([]Entry, error)
	DeleteEntries(ctx context.Context, ids []uuid.UUID) (int64, error)
	// LastDigestAt returns nil when no digest was ever sent.
	LastDigestAt(ctx context.Context) (*time.Time, error)
	// ClaimSlot moves last_digest_at from previous to at; false when another run got there first.
	ClaimSlot(ctx context.Context, previous *time.Time, at time.Time) (bool, error)
	// ReleaseSlot undoes ClaimSlot after a failed delivery.
	ReleaseSlot(ctx context.Context, claimedAt time.Time, previous *time.Time) error
}

// StatsSource supplies today's numbers for the digest body.
type StatsSource interface {
	DayStats(ctx context.Context, dayStart, dayEnd time.Time) (core_domain.DayStats, error)
}

// Notification is a composed digest.
type Notification struct {
	To      []string
	Subject string
	Body    string
}

// Notifier is the external delivery channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) (string, error)
}
