package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/digest_service/domain"
)

// Result values of a digest check.
const (
	ResultNotDue           = "not_due"
	ResultClaimedElsewhere = "claimed_elsewhere"
	ResultEmpty            = "empty"
	ResultSent             = "sent"
	ResultDeliveryFailed   = "delivery_failed"
)

type RunResult struct {
	Result    string    `json:"result"`
	Slot      time.Time `json:"slot,omitempty"`
	Entries   int       `json:"entries"`
	MessageID string    `json:"message_id,omitempty"`
}

// Aggregator queues notification entries and delivers them as one digest per slot.
type Aggregator struct {
	repo       domain.Repository
	stats      domain.StatsSource
	notifier   domain.Notifier
	schedule   Schedule
	recipients []string
	batchSize  int
	now        func() time.Time
	logger     *slog.Logger
}

func NewAggregator(repo domain.Repository, stats domain.StatsSource, notifier domain.Notifier, schedule Schedule, recipients []string, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		repo:       repo,
		stats:      stats,
		notifier:   notifier,
		schedule:   schedule,
		recipients: recipients,
		batchSize:  500,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With("component", "digest_aggregator"),
	}
}

// Enqueue stores one entry for the next digest.
func (a *Aggregator) Enqueue(ctx context.Context, e domain.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now()
	}
	return a.repo.Enqueue(ctx, e)
}

// RunDue sends a digest if a slot is due and not yet covered. The slot is claimed with a
// conditional update so overlapping checks send at most one digest; entries are deleted
// only after delivery and a failed delivery releases the claim.
func (a *Aggregator) RunDue(ctx context.Context) (RunResult, error) {
	now := a.now()
	last, err := a.repo.LastDigestAt(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("load last digest time: %w", err)
	}
	slot, due := a.schedule.DueSlot(now, last)
	if !due {
		digestRunsTotal.WithLabelValues(ResultNotDue).Inc()
		return RunResult{Result: ResultNotDue}, nil
	}

	claimed, err := a.repo.ClaimSlot(ctx, last, slot)
	if err != nil {
		return RunResult{}, fmt.Errorf("claim digest slot: %w", err)
	}
	if !claimed {
		a.logger.InfoContext(ctx, "Digest slot already claimed", "slot", slot)
		digestRunsTotal.WithLabelValues(ResultClaimedElsewhere).Inc()
		return RunResult{Result: ResultClaimedElsewhere, Slot: slot}, nil
	}

	res, err := a.deliver(ctx, slot, now)
	if err != nil {
		if relErr := a.repo.ReleaseSlot(context.WithoutCancel(ctx), slot, last); relErr != nil {
			a.logger.ErrorContext(ctx, "Failed to release digest slot", "slot", slot, "error", relErr)
			err = errors.Join(err, relErr)
		}
		digestRunsTotal.WithLabelValues(ResultDeliveryFailed).Inc()
		return RunResult{Result: ResultDeliveryFailed, Slot: slot, Entries: res.Entries}, err
	}
	digestRunsTotal.WithLabelValues(res.Result).Inc()
	return res, nil
}

// listAllQueued pages through the queue so one digest covers everything queued.
func (a *Aggregator) listAllQueued(ctx context.Context) ([]domain.Entry, error) {
	var all []domain.Entry
	var cursor *domain.QueueCursor
	for {
		page, err := a.repo.ListQueued(ctx, cursor, a.batchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < a.batchSize {
			return all, nil
		}
		last := page[len(page)-1]
		cursor = &domain.QueueCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (a *Aggregator) deliver(ctx context.Context, slot, now time.Time) (RunResult, error) {
	entries, err := a.listAllQueued(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("list queued entries: %w", err)
	}
	if len(entries) == 0 {
		a.logger.InfoContext(ctx, "No digest entries queued", "slot", slot)
		return RunResult{Result: ResultEmpty, Slot: slot}, nil
	}
	if len(a.recipients) == 0 {
		return RunResult{Entries: len(entries)}, errors.New("no digest recipients configured")
	}

	dayStart, dayEnd := a.schedule.DayBounds(now)
	stats, err := a.stats.DayStats(ctx, dayStart, dayEnd)
	if err != nil {
		// Stats are informational; the digest still goes out.
		a.logger.WarnContext(ctx, "Failed to load day stats for digest", "error", err)
	}
	var next *time.Time
	if n, ok := a.schedule.NextSlot(slot); ok {
		next = &n
	}
	subject, body := Compose(entries, stats, slot.In(a.schedule.Location), next)

	messageID, err := a.notifier.Send(ctx, domain.Notification{To: a.recipients, Subject: subject, Body: body})
	if err != nil {
		return RunResult{Entries: len(entries)}, fmt.Errorf("deliver digest: %w", err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	deleted, err := a.repo.DeleteEntries(context.WithoutCancel(ctx), ids)
	if err != nil {
		// The digest is out; the entries will repeat in the next one.
		a.logger.ErrorContext(ctx, "Failed to clear delivered digest entries", "error", err, "entries", len(ids))
	}
	digestEntriesDelivered.Add(float64(len(entries)))
	a.logger.InfoContext(ctx, "Digest delivered", "slot", slot, "entries", len(entries), "deleted", deleted, "message_id", messageID, "subject", subject)
	return RunResult{Result: ResultSent, Slot: slot, Entries: len(entries), MessageID: messageID}, nil
}
