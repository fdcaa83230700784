package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

const defaultSkipReason = "Skipped by user"

// OperatorService implements the manual recovery actions exposed by the admin API.
type OperatorService struct {
	outreach  domain.OutreachRepository
	campaigns domain.CampaignRepository
	audit     domain.AuditRepository
	now       func() time.Time
	logger    *slog.Logger
}

func NewOperatorService(outreach domain.OutreachRepository, campaigns domain.CampaignRepository, audit domain.AuditRepository, logger *slog.Logger) *OperatorService {
	return &OperatorService{
		outreach:  outreach,
		campaigns: campaigns,
		audit:     audit,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With("component", "operator_service"),
	}
}

func (s *OperatorService) GetRecord(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error) {
	return s.outreach.GetByID(ctx, id)
}

// RescheduleRecord resets a failed or skipped record to pending at scheduledAt.
func (s *OperatorService) RescheduleRecord(ctx context.Context, id uuid.UUID, scheduledAt time.Time, actor string) (*core_domain.OutreachRecord, error) {
	rec, err := s.outreach.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != core_domain.StatusFailed && rec.Status != core_domain.StatusSkipped {
		return nil, fmt.Errorf("%w: cannot reschedule a %s record", core_domain.ErrInvalidTransition, rec.Status)
	}

	now := s.now()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	from := []core_domain.OutreachStatus{core_domain.StatusFailed, core_domain.StatusSkipped}
	if err := s.outreach.Reschedule(ctx, id, from, scheduledAt, "Rescheduled by "+actorName(actor), now); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, *rec, rec.Status, core_domain.StatusPending, core_domain.StageRescheduled, rec.Reason,
		map[string]any{"actor": actorName(actor), "scheduled_at": scheduledAt.UTC().Format(time.RFC3339)}, now)
	s.logger.InfoContext(ctx, "Record rescheduled by operator", "outreach_id", id, "previous_status", rec.Status, "scheduled_at", scheduledAt, "actor", actor)
	return s.outreach.GetByID(ctx, id)
}

// SkipRecord moves a pending record to skipped without any send.
func (s *OperatorService) SkipRecord(ctx context.Context, id uuid.UUID, reason, actor string) (*core_domain.OutreachRecord, error) {
	rec, err := s.outreach.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != core_domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot skip a %s record", core_domain.ErrInvalidTransition, rec.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultSkipReason
	}

	now := s.now()
	err = s.outreach.TransitionStatus(ctx, domain.StatusUpdate{
		ID:     id,
		From:   core_domain.StatusPending,
		To:     core_domain.StatusSkipped,
		Reason: reason,
		At:     now,
	})
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, *rec, core_domain.StatusPending, core_domain.StatusSkipped, core_domain.StageOperatorSkip, reason,
		map[string]any{"actor": actorName(actor)}, now)
	s.logger.InfoContext(ctx, "Record skipped by operator", "outreach_id", id, "reason", reason, "actor", actor)
	return s.outreach.GetByID(ctx, id)
}

func (s *OperatorService) GetCampaign(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// SetCampaignStatus applies a lifecycle transition. Pausing takes effect at the next
// candidate fetch; a record already claimed finishes its send.
func (s *OperatorService) SetCampaignStatus(ctx context.Context, id uuid.UUID, to core_domain.CampaignStatus, actor string) (*core_domain.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}
	if !core_domain.CanTransitionCampaign(c.Status, to) {
		return nil, fmt.Errorf("%w: campaign %s -> %s", core_domain.ErrInvalidTransition, c.Status, to)
	}
	now := s.now()
	if err := s.campaigns.UpdateStatus(ctx, id, c.Status, to, now); err != nil {
		return nil, err
	}
	err = s.audit.AppendCampaign(ctx, core_domain.CampaignAuditEntry{
		ID:           uuid.New(),
		CampaignID:   id,
		Actor:        actorName(actor),
		StatusBefore: c.Status,
		StatusAfter:  to,
		CreatedAt:    now,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append campaign audit entry", "campaign_id", id, "error", err)
	}
	s.logger.InfoContext(ctx, "Campaign status changed", "campaign_id", id, "from", c.Status, "to", to, "actor", actor)
	return s.campaigns.GetByID(ctx, id)
}

func (s *OperatorService) appendAudit(ctx context.Context, rec core_domain.OutreachRecord, before, after core_domain.OutreachStatus, stage core_domain.AuditStage, msg string, meta map[string]any, now time.Time) {
	err := s.audit.Append(ctx, core_domain.AuditEntry{
		ID:                  uuid.New(),
		OutreachID:          rec.ID,
		CampaignID:          rec.CampaignID,
		Channel:             rec.Channel,
		RecipientKeys:       rec.RecipientKeys,
		StatusBefore:        before,
		StatusAfter:         after,
		Stage:               stage,
		StatusUpdateSuccess: true,
		ErrorMessage:        msg,
		Metadata:            meta,
		CreatedAt:           now,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append operator audit entry", "outreach_id", rec.ID, "stage", stage, "error", err)
	}
}

func actorName(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}
