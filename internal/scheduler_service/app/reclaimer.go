package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

const reasonOutcomeUnknown = "stuck in sending: dispatch outcome unknown"

// ReclaimPolicy configures the stuck-sending sweep.
type ReclaimPolicy struct {
	StuckAfter      time.Duration
	RescheduleDelay time.Duration
	BatchSize       int
}

// ReclaimSummary counts how each stuck record was resolved.
type ReclaimSummary struct {
	Examined int `json:"examined"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
}

// Reclaimer resolves records left in sending by a crashed or interrupted invocation.
// The audit trail decides the resolution, so a record whose message may have gone
// out is never handed back to automation.
type Reclaimer struct {
	outreach     domain.OutreachRepository
	audit        domain.AuditRepository
	policy       ReclaimPolicy
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewReclaimer(outreach domain.OutreachRepository, audit domain.AuditRepository, policy ReclaimPolicy, storeTimeout time.Duration, logger *slog.Logger) *Reclaimer {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 50
	}
	return &Reclaimer{
		outreach:     outreach,
		audit:        audit,
		policy:       policy,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "reclaimer"),
	}
}

// Sweep resolves one batch of stuck records. Per-record failures are counted and
// logged; only the listing itself returns an error.
func (r *Reclaimer) Sweep(ctx context.Context) (ReclaimSummary, error) {
	var summary ReclaimSummary
	now := r.now()
	cutoff := now.Add(-r.policy.StuckAfter)

	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	stuck, err := r.outreach.ListStuckSending(opCtx, cutoff, r.policy.BatchSize)
	cancel()
	if err != nil {
		return summary, fmt.Errorf("listing stuck records: %w", err)
	}

	for _, rec := range stuck {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Examined++
		resolution, err := r.resolve(ctx, rec, now)
		if err != nil {
			if errors.Is(err, core_domain.ErrStatusConflict) {
				r.logger.InfoContext(ctx, "Stuck record resolved concurrently", "outreach_id", rec.ID)
				continue
			}
			summary.Errors++
			r.logger.ErrorContext(ctx, "Failed to reclaim record", "outreach_id", rec.ID, "error", err)
			continue
		}
		reclaimedTotal.WithLabelValues(string(resolution)).Inc()
		switch resolution {
		case core_domain.StatusSent:
			summary.Sent++
		case core_domain.StatusFailed:
			summary.Failed++
		case core_domain.StatusPending:
			summary.Pending++
		}
	}

	if summary.Examined > 0 {
		r.logger.InfoContext(ctx, "Reclaim sweep finished", "examined", summary.Examined, "sent", summary.Sent,
			"failed", summary.Failed, "pending", summary.Pending, "errors", summary.Errors)
	}
	return summary, nil
}

func (r *Reclaimer) resolve(ctx context.Context, rec core_domain.OutreachRecord, now time.Time) (core_domain.OutreachStatus, error) {
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	entries, err := r.audit.ListForOutreach(opCtx, rec.ID)
	cancel()
	if err != nil {
		return "", fmt.Errorf("loading audit trail: %w", err)
	}
	sent, failed, attempted := latestAttempt(entries, rec.ClaimedAt)

	upd := domain.StatusUpdate{ID: rec.ID, From: core_domain.StatusSending, At: now}
	switch {
	case sent != nil:
		sentAt := sent.CreatedAt
		upd.To = core_domain.StatusSent
		upd.SentAt = &sentAt
		upd.ProviderMessageID = sent.ProviderMessageID
		upd.ProviderChatID = sent.ProviderChatID
	case failed != nil:
		upd.To = core_domain.StatusFailed
		upd.Reason = failed.ErrorMessage
	case attempted:
		upd.To = core_domain.StatusFailed
		upd.Reason = reasonOutcomeUnknown
	default:
		opCtx, cancel = withTimeout(ctx, r.storeTimeout)
		err = r.outreach.Reschedule(opCtx, rec.ID, []core_domain.OutreachStatus{core_domain.StatusSending},
			now.Add(r.policy.RescheduleDelay), "reclaimed: no dispatch recorded", now)
		cancel()
		if err != nil {
			return "", err
		}
		r.appendAudit(ctx, rec, core_domain.StatusPending, "no dispatch recorded", now)
		return core_domain.StatusPending, nil
	}

	opCtx, cancel = withTimeout(ctx, r.storeTimeout)
	err = r.outreach.TransitionStatus(opCtx, upd)
	cancel()
	if err != nil {
		return "", err
	}
	r.appendAudit(ctx, rec, upd.To, upd.Reason, now)
	return upd.To, nil
}

// latestAttempt inspects the audit rows written since the record's current claim.
func latestAttempt(entries []core_domain.AuditEntry, claimedAt *time.Time) (sent, failed *core_domain.AuditEntry, attempted bool) {
	for i := range entries {
		e := &entries[i]
		if claimedAt != nil && e.CreatedAt.Before(*claimedAt) {
			continue
		}
		switch e.Stage {
		case core_domain.StageSent:
			sent = e
		case core_domain.StageFailed:
			failed = e
		case core_domain.StageAboutToSend:
			attempted = true
		}
	}
	return sent, failed, attempted
}

func (r *Reclaimer) appendAudit(ctx context.Context, rec core_domain.OutreachRecord, after core_domain.OutreachStatus, msg string, now time.Time) {
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	err := r.audit.Append(opCtx, core_domain.AuditEntry{
		ID:                  uuid.New(),
		OutreachID:          rec.ID,
		CampaignID:          rec.CampaignID,
		Channel:             rec.Channel,
		RecipientKeys:       rec.RecipientKeys,
		StatusBefore:        core_domain.StatusSending,
		StatusAfter:         after,
		Stage:               core_domain.StageReclaimed,
		StatusUpdateSuccess: true,
		ErrorMessage:        msg,
		CreatedAt:           now,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to append reclaim audit entry", "outreach_id", rec.ID, "error", err)
	}
}
