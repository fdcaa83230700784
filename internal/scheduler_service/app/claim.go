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

// ClaimCoordinator owns the pending -> sending lock and the pre-send audit entry.
type ClaimCoordinator struct {
	outreach     domain.OutreachRepository
	audit        domain.AuditRepository
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewClaimCoordinator(outreach domain.OutreachRepository, audit domain.AuditRepository, storeTimeout time.Duration, logger *slog.Logger) *ClaimCoordinator {
	return &ClaimCoordinator{
		outreach:     outreach,
		audit:        audit,
		storeTimeout: storeTimeout,
		logger:       logger.With("component", "claim_coordinator"),
	}
}

// Claim takes the lock and writes the about_to_send audit entry. It returns
// core_domain.ErrClaimLost when another invocation got the record first, and
// passes through ErrDailyCapReached and ErrRecipientInFlight from the re-checks
// made under the lock. If the
// audit entry cannot be written the claim is released and an error returned:
// no dispatch may happen without a durable trace of the attempt.
func (c *ClaimCoordinator) Claim(ctx context.Context, rec core_domain.OutreachRecord, identity core_domain.RecipientIdentity, scope domain.ClaimScope, now time.Time) error {
	opCtx, cancel := withTimeout(ctx, c.storeTimeout)
	err := c.outreach.Claim(opCtx, rec.ID, identity.Keys, scope, now)
	cancel()
	switch {
	case errors.Is(err, core_domain.ErrClaimLost):
		claimsTotal.WithLabelValues("lost").Inc()
		c.logger.InfoContext(ctx, "Claim lost to a concurrent invocation", "outreach_id", rec.ID)
		return err
	case errors.Is(err, core_domain.ErrDailyCapReached):
		claimsTotal.WithLabelValues("cap").Inc()
		c.logger.InfoContext(ctx, "Daily cap reached at claim time", "outreach_id", rec.ID, "lane", scope.Lane)
		return err
	case errors.Is(err, core_domain.ErrRecipientInFlight):
		claimsTotal.WithLabelValues("in_flight").Inc()
		c.logger.InfoContext(ctx, "Recipient already has a message in flight", "outreach_id", rec.ID)
		return err
	case err != nil:
		claimsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("claiming outreach %s: %w", rec.ID, err)
	}
	claimsTotal.WithLabelValues("won").Inc()

	entry := core_domain.AuditEntry{
		ID:            uuid.New(),
		OutreachID:    rec.ID,
		CampaignID:    rec.CampaignID,
		Channel:       rec.Channel,
		RecipientKeys: identity.Keys,
		StatusBefore:  core_domain.StatusPending,
		StatusAfter:   core_domain.StatusSending,
		Stage:         core_domain.StageAboutToSend,
		// The claim itself is the status write this entry describes.
		StatusUpdateSuccess: true,
		Metadata:            map[string]any{"account_id": rec.AccountID.String(), "provider_id": identity.ProviderID},
		CreatedAt:           now,
	}
	opCtx, cancel = withTimeout(ctx, c.storeTimeout)
	auditErr := c.audit.Append(opCtx, entry)
	cancel()
	if auditErr == nil {
		return nil
	}

	c.logger.ErrorContext(ctx, "Pre-send audit failed; releasing claim", "outreach_id", rec.ID, "error", auditErr)
	if relErr := c.Release(ctx, rec, "pre-send audit failed", now); relErr != nil {
		return fmt.Errorf("pre-send audit for %s: %w (release also failed: %v)", rec.ID, auditErr, relErr)
	}
	return fmt.Errorf("pre-send audit for %s: %w", rec.ID, auditErr)
}

// Release hands a claimed record back to pending without any dispatch having happened.
func (c *ClaimCoordinator) Release(ctx context.Context, rec core_domain.OutreachRecord, reason string, now time.Time) error {
	ctx = context.WithoutCancel(ctx)
	opCtx, cancel := withTimeout(ctx, c.storeTimeout)
	defer cancel()
	err := c.outreach.TransitionStatus(opCtx, domain.StatusUpdate{
		ID:     rec.ID,
		From:   core_domain.StatusSending,
		To:     core_domain.StatusPending,
		Reason: reason,
		At:     now,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to release claim; reclaimer will resolve it", "outreach_id", rec.ID, "error", err)
		return err
	}
	c.logger.WarnContext(ctx, "Claim released", "outreach_id", rec.ID, "reason", reason)
	return nil
}
