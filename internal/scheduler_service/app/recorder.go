package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/offertesting/outreach_services/internal/core_domain"
	digestdomain "github.com/offertesting/outreach_services/internal/digest_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/provider"
)

// DigestEnqueuer accepts notification-worthy outcomes.
type DigestEnqueuer interface {
	Enqueue(ctx context.Context, e digestdomain.Entry) error
}

// OutcomePublisher announces recorded outcomes to other services.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, ev domain.OutcomeEvent) error
}

// RecorderDeps groups the Recorder's collaborators.
type RecorderDeps struct {
	Outreach  domain.OutreachRepository
	Campaigns domain.CampaignRepository
	History   domain.HistoryRepository
	Activity  domain.ActivityRepository
	Audit     domain.AuditRepository
	Digest    DigestEnqueuer
	Events    OutcomePublisher
}

// Recorder persists dispatch outcomes: status, audit trail, history, counters and notifications.
type Recorder struct {
	deps         RecorderDeps
	retry        retry.Strategy
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewRecorder bounds terminal status writes by strategy.
func NewRecorder(deps RecorderDeps, strategy retry.Strategy, storeTimeout time.Duration, logger *slog.Logger) *Recorder {
	if strategy.Attempts < 1 {
		strategy.Attempts = 1
	}
	return &Recorder{
		deps:         deps,
		retry:        strategy,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "outcome_recorder"),
	}
}

// RecordOutcome is what Record managed to persist.
type RecordOutcome struct {
	Status        core_domain.OutreachStatus
	StatusWritten bool
}

// Record writes the terminal transition for a claimed record. It never returns an error:
// every failure is logged and, for the status write, flagged in the audit trail.
func (r *Recorder) Record(ctx context.Context, cand *core_domain.Candidate, identity core_domain.RecipientIdentity, res provider.DispatchResult) RecordOutcome {
	// The provider call already happened; shutdown must not stop us from recording it.
	ctx = context.WithoutCancel(ctx)
	now := r.now()
	rec := cand.Record

	upd := domain.StatusUpdate{ID: rec.ID, From: core_domain.StatusSending, At: now}
	stage := core_domain.StageFailed
	if res.Success {
		upd.To = core_domain.StatusSent
		upd.SentAt = &now
		upd.ProviderMessageID = res.ProviderMessageID
		upd.ProviderChatID = res.ProviderChatID
		stage = core_domain.StageSent
	} else {
		upd.To = core_domain.StatusFailed
		upd.Reason = res.ErrorMessage
	}

	writeErr := r.writeStatusWithRetry(ctx, upd)
	written := writeErr == nil

	auditEntry := core_domain.AuditEntry{
		ID:                  uuid.New(),
		OutreachID:          rec.ID,
		CampaignID:          rec.CampaignID,
		Channel:             rec.Channel,
		RecipientKeys:       identity.Keys,
		ProviderMessageID:   res.ProviderMessageID,
		ProviderChatID:      res.ProviderChatID,
		StatusBefore:        core_domain.StatusSending,
		StatusAfter:         upd.To,
		Stage:               stage,
		StatusUpdateSuccess: written,
		ErrorMessage:        res.ErrorMessage,
		Metadata: map[string]any{
			"account_id":  rec.AccountID.String(),
			"duration_ms": res.Duration.Milliseconds(),
			"systemic":    res.Systemic,
		},
		CreatedAt: now,
	}
	if !written {
		splitBrainTotal.Inc()
		auditEntry.ErrorMessage = joinMessages(res.ErrorMessage, writeErr.Error())
		r.logger.ErrorContext(ctx, "Terminal status write failed; audit entry flags it for reconciliation",
			"outreach_id", rec.ID, "intended_status", upd.To, "provider_message_id", res.ProviderMessageID, "error", writeErr)
	}
	r.appendAudit(ctx, auditEntry)

	activityStatus := core_domain.ActivityFailed
	if res.Success {
		activityStatus = core_domain.ActivitySuccess
		r.appendHistory(ctx, cand, identity, now)
		r.incrementSentCount(ctx, rec.CampaignID, now)
	}
	r.appendActivity(ctx, core_domain.AccountActivity{
		ID:         uuid.New(),
		AccountID:  rec.AccountID,
		OutreachID: rec.ID,
		Channel:    rec.Channel,
		Status:     activityStatus,
		OccurredAt: now,
	})

	r.enqueueDigest(ctx, cand, identity, res, now)
	r.publish(ctx, domain.OutcomeEvent{
		OutreachID:        rec.ID,
		CampaignID:        rec.CampaignID,
		Channel:           rec.Channel,
		Status:            upd.To,
		ProviderMessageID: res.ProviderMessageID,
		Reason:            res.ErrorMessage,
		StatusWritten:     written,
		OccurredAt:        now,
	})

	r.logger.InfoContext(ctx, "Outcome recorded", "outreach_id", rec.ID, "status", upd.To, "status_written", written)
	return RecordOutcome{Status: upd.To, StatusWritten: written}
}

// writeStatusWithRetry retries transient store errors. A status conflict is final:
// the record is no longer in sending, so repeating the write cannot succeed.
func (r *Recorder) writeStatusWithRetry(ctx context.Context, upd domain.StatusUpdate) error {
	var conflict error
	attempt := 0
	err := retry.DoContext(ctx, r.retry, func() error {
		attempt++
		if attempt > 1 {
			statusWriteRetriesTotal.Inc()
		}
		opCtx, cancel := withTimeout(ctx, r.storeTimeout)
		defer cancel()
		err := r.deps.Outreach.TransitionStatus(opCtx, upd)
		if errors.Is(err, core_domain.ErrStatusConflict) {
			conflict = err
			return nil
		}
		if err != nil {
			r.logger.WarnContext(ctx, "Status write failed", "outreach_id", upd.ID, "attempt", attempt, "max_attempts", r.retry.Attempts, "error", err)
		}
		return err
	})
	if conflict != nil {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("status write failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (r *Recorder) appendAudit(ctx context.Context, e core_domain.AuditEntry) {
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.deps.Audit.Append(opCtx, e); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append audit entry", "outreach_id", e.OutreachID, "stage", e.Stage, "error", err)
	}
}

func (r *Recorder) appendHistory(ctx context.Context, cand *core_domain.Candidate, identity core_domain.RecipientIdentity, sentAt time.Time) {
	rec := cand.Record
	entry := core_domain.OutreachHistoryEntry{
		ID:            uuid.New(),
		RecipientKeys: identity.Keys,
		CampaignID:    uuid.NullUUID{UUID: rec.CampaignID, Valid: true},
		OutreachID:    uuid.NullUUID{UUID: rec.ID, Valid: true},
		AccountID:     uuid.NullUUID{UUID: rec.AccountID, Valid: rec.AccountID != uuid.Nil},
		Channel:       rec.Channel,
		Subject:       rec.Subject,
		SentAt:        sentAt,
	}
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.deps.History.AppendHistory(opCtx, entry); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append outreach history", "outreach_id", rec.ID, "error", err)
	}
}

func (r *Recorder) incrementSentCount(ctx context.Context, campaignID uuid.UUID, at time.Time) {
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.deps.Campaigns.IncrementSentCount(opCtx, campaignID, at); err != nil {
		r.logger.ErrorContext(ctx, "Failed to increment campaign sent count", "campaign_id", campaignID, "error", err)
	}
}

func (r *Recorder) appendActivity(ctx context.Context, a core_domain.AccountActivity) {
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.deps.Activity.Append(opCtx, a); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append account activity", "account_id", a.AccountID, "error", err)
	}
}

func (r *Recorder) enqueueDigest(ctx context.Context, cand *core_domain.Candidate, identity core_domain.RecipientIdentity, res provider.DispatchResult, now time.Time) {
	if r.deps.Digest == nil {
		return
	}
	rec := cand.Record
	detail := res.ErrorMessage
	if res.Success {
		detail = fmt.Sprintf("%s via %s", cand.Campaign.Name, rec.Channel)
	}
	entries := []digestdomain.Entry{{
		ID:         uuid.New(),
		Type:       digestdomain.TypeForOutcome(rec.Channel, res.Success),
		OutreachID: uuid.NullUUID{UUID: rec.ID, Valid: true},
		CampaignID: uuid.NullUUID{UUID: rec.CampaignID, Valid: true},
		Channel:    string(rec.Channel),
		Recipient:  recipientLabel(cand.Recipient, identity),
		Detail:     detail,
		CreatedAt:  now,
	}}
	if res.Systemic {
		entries = append(entries, digestdomain.Entry{
			ID:         uuid.New(),
			Type:       digestdomain.TypeProviderError,
			OutreachID: uuid.NullUUID{UUID: rec.ID, Valid: true},
			Channel:    string(rec.Channel),
			Detail:     res.ErrorMessage,
			CreatedAt:  now,
		})
	}
	for _, e := range entries {
		opCtx, cancel := withTimeout(ctx, r.storeTimeout)
		err := r.deps.Digest.Enqueue(opCtx, e)
		cancel()
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to enqueue digest entry", "outreach_id", rec.ID, "type", e.Type, "error", err)
		}
	}
}

func (r *Recorder) publish(ctx context.Context, ev domain.OutcomeEvent) {
	if r.deps.Events == nil {
		return
	}
	opCtx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.deps.Events.PublishOutcome(opCtx, ev); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish outcome event", "outreach_id", ev.OutreachID, "error", err)
	}
}

func recipientLabel(r core_domain.Recipient, id core_domain.RecipientIdentity) string {
	switch {
	case r.Name != "" && id.ProfileURL != "":
		return r.Name + " (" + id.ProfileURL + ")"
	case r.Name != "":
		return r.Name
	case id.ProfileURL != "":
		return id.ProfileURL
	default:
		return id.ProviderID
	}
}

func joinMessages(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += p
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
