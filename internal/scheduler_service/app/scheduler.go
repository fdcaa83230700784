package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	digestdomain "github.com/offertesting/outreach_services/internal/digest_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/provider"
)

// Dispatcher sends a claimed record. Implemented by provider.Dispatcher.
type Dispatcher interface {
	CheckAccount(ctx context.Context, accountID string) error
	Dispatch(ctx context.Context, req provider.DispatchRequest) provider.DispatchResult
}

// Action is what one invocation did.
type Action string

const (
	ActionNoOp     Action = "no_op"
	ActionSkipped  Action = "skipped"
	ActionDeferred Action = "deferred"
	ActionSent     Action = "sent"
	ActionFailed   Action = "failed"
)

// RunResult describes one invocation.
type RunResult struct {
	Lane       string     `json:"lane"`
	Action     Action     `json:"action"`
	Reason     string     `json:"reason,omitempty"`
	OutreachID uuid.UUID  `json:"outreach_id,omitempty"`
	RetryAt    *time.Time `json:"retry_at,omitempty"`
}

// Lane parameterizes one scheduler instance.
type Lane struct {
	Name     string
	Channels []core_domain.Channel
	Gate     Gate
	// ProviderAccountID enables the systemic health check before candidates are fetched.
	ProviderAccountID string
}

// SchedulerDeps groups a LaneScheduler's collaborators.
type SchedulerDeps struct {
	Outreach    domain.OutreachRepository
	History     domain.HistoryRepository
	Activity    domain.ActivityRepository
	Audit       domain.AuditRepository
	Eligibility *EligibilityEngine
	Claims      *ClaimCoordinator
	Dispatcher  Dispatcher
	Recorder    *Recorder
	Digest      DigestEnqueuer
}

// inFlightRetryDelay is how far a record is pushed back when a sibling for the
// same recipient holds the claim. By then the sibling is resolved or reclaimed.
const inFlightRetryDelay = 15 * time.Minute

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LaneScheduler performs at most one send attempt per RunOnce. It keeps no state
// between invocations; overlapping invocations are arbitrated by the claim.
type LaneScheduler struct {
	lane         Lane
	deps         SchedulerDeps
	jitter       *Jitter
	storeTimeout time.Duration
	sleep        Sleeper
	now          func() time.Time
	logger       *slog.Logger
}

func NewLaneScheduler(lane Lane, deps SchedulerDeps, jitter *Jitter, storeTimeout time.Duration, logger *slog.Logger) *LaneScheduler {
	return &LaneScheduler{
		lane:         lane,
		deps:         deps,
		jitter:       jitter,
		storeTimeout: storeTimeout,
		sleep:        sleepContext,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "lane_scheduler", "lane", lane.Name),
	}
}

func (s *LaneScheduler) Name() string { return s.lane.Name }

// RunOnce sleeps a jittered delay and then runs the pipeline once. Errors are
// store or context failures that left the candidate untouched.
func (s *LaneScheduler) RunOnce(ctx context.Context) (RunResult, error) {
	if d := s.jitter.Next(); d > 0 {
		s.logger.DebugContext(ctx, "Jitter delay", "delay", d)
		if err := s.sleep(ctx, d); err != nil {
			return RunResult{Lane: s.lane.Name, Action: ActionNoOp}, fmt.Errorf("jitter interrupted: %w", err)
		}
	}

	start := time.Now()
	res, err := s.run(ctx)
	res.Lane = s.lane.Name
	invocationDurationHist.WithLabelValues(s.lane.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		invocationsTotal.WithLabelValues(s.lane.Name, "error").Inc()
		s.logger.ErrorContext(ctx, "Invocation aborted", "outreach_id", res.OutreachID, "error", err)
		return res, err
	}
	invocationsTotal.WithLabelValues(s.lane.Name, string(res.Action)).Inc()
	if res.Action == ActionNoOp {
		noOpTotal.WithLabelValues(s.lane.Name, res.Reason).Inc()
	}
	s.logger.InfoContext(ctx, "Invocation finished", "action", res.Action, "reason", res.Reason, "outreach_id", res.OutreachID)
	return res, nil
}

func (s *LaneScheduler) run(ctx context.Context) (RunResult, error) {
	now := s.now()
	gate := s.lane.Gate

	// The window needs no store reads; outside it nothing else is looked at.
	if reason := gate.Window.Check(now); reason != ReasonNone {
		return noOp(reason, gate.Window.NextOpen(now)), nil
	}

	state, err := s.gatherGateState(ctx, now)
	if err != nil {
		return RunResult{}, err
	}
	if d := gate.Decide(state); !d.Admit {
		return noOp(d.Reason, d.RetryAt), nil
	}

	if s.lane.ProviderAccountID != "" {
		if res, down := s.checkProvider(ctx, now); down {
			return res, nil
		}
	}

	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	cand, err := s.deps.Outreach.NextCandidate(opCtx, now, s.lane.Channels)
	cancel()
	if errors.Is(err, core_domain.ErrNoCandidate) {
		return noOp(ReasonNoCandidate, time.Time{}), nil
	}
	if err != nil {
		return RunResult{}, fmt.Errorf("fetching candidate: %w", err)
	}
	rec := cand.Record
	log := s.logger.With("outreach_id", rec.ID, "campaign_id", rec.CampaignID, "channel", rec.Channel)

	if gate.Mode == SpacingPull {
		last, err := s.lastActivity(ctx, &rec.AccountID)
		if err != nil {
			return RunResult{OutreachID: rec.ID}, err
		}
		if retryAt, wait := gate.SpacingDelay(now, last); wait {
			reason := fmt.Sprintf("Spacing: account active at %s, retry after %s",
				last.UTC().Format(time.RFC3339), retryAt.UTC().Format(time.RFC3339))
			return s.deferRecord(ctx, rec, nil, reason, retryAt, now)
		}
	}

	opCtx, cancel = withTimeout(ctx, s.storeTimeout)
	verdict, err := s.deps.Eligibility.Evaluate(opCtx, cand, now)
	cancel()
	if err != nil {
		return RunResult{OutreachID: rec.ID}, fmt.Errorf("evaluating eligibility: %w", err)
	}
	switch verdict.Kind {
	case VerdictSkip:
		return s.skipRecord(ctx, rec, verdict, now)
	case VerdictDefer:
		return s.deferRecord(ctx, rec, verdict.Identity.Keys, verdict.Reason, verdict.RetryAt, now)
	}
	identity := verdict.Identity

	connected := false
	if rec.Channel == core_domain.ChannelLinkedInDM && cand.Campaign.Type == core_domain.CampaignColdOutreach {
		opCtx, cancel = withTimeout(ctx, s.storeTimeout)
		connected, err = s.deps.History.ConnectSentInCampaign(opCtx, rec.CampaignID, identity.Keys)
		cancel()
		if err != nil {
			return RunResult{OutreachID: rec.ID}, fmt.Errorf("checking campaign connection: %w", err)
		}
	}

	if err := s.deps.Claims.Claim(ctx, rec, identity, s.claimScope(now), now); err != nil {
		switch {
		case errors.Is(err, core_domain.ErrClaimLost):
			return RunResult{Action: ActionNoOp, Reason: string(ReasonClaimLost), OutreachID: rec.ID}, nil
		case errors.Is(err, core_domain.ErrDailyCapReached):
			_, tomorrow := gate.Window.DayBounds(now)
			res := noOp(ReasonDailyCap, gate.Window.NextOpen(tomorrow))
			res.OutreachID = rec.ID
			return res, nil
		case errors.Is(err, core_domain.ErrRecipientInFlight):
			retryAt := now.Add(inFlightRetryDelay)
			reason := fmt.Sprintf("Recipient in flight: another message to %s is sending or sent", firstKey(identity.Keys))
			return s.deferRecord(ctx, rec, identity.Keys, reason, retryAt, now)
		}
		return RunResult{OutreachID: rec.ID}, err
	}

	log.InfoContext(ctx, "Claimed; dispatching")
	result := s.deps.Dispatcher.Dispatch(ctx, provider.DispatchRequest{
		OutreachID:           rec.ID,
		Channel:              rec.Channel,
		AccountID:            cand.Account.ProviderAccountID,
		Identity:             identity,
		Subject:              rec.Subject,
		Body:                 rec.Body,
		CampaignType:         cand.Campaign.Type,
		ConnectedViaCampaign: connected,
	})

	outcome := s.deps.Recorder.Record(ctx, cand, identity, result)
	action := ActionFailed
	if outcome.Status == core_domain.StatusSent {
		action = ActionSent
	}
	return RunResult{Action: action, Reason: result.ErrorMessage, OutreachID: rec.ID}, nil
}

func (s *LaneScheduler) claimScope(now time.Time) domain.ClaimScope {
	dayStart, dayEnd := s.lane.Gate.Window.DayBounds(now)
	return domain.ClaimScope{
		Lane:     s.lane.Name,
		Channels: s.lane.Channels,
		DayStart: dayStart,
		DayEnd:   dayEnd,
		DailyCap: s.lane.Gate.DailyCap,
	}
}

func (s *LaneScheduler) gatherGateState(ctx context.Context, now time.Time) (GateState, error) {
	state := GateState{Now: now}
	dayStart, dayEnd := s.lane.Gate.Window.DayBounds(now)

	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	sent, err := s.deps.History.CountSent(opCtx, dayStart, dayEnd, s.lane.Channels)
	cancel()
	if err != nil {
		return state, fmt.Errorf("counting today's sends: %w", err)
	}
	state.SentToday = sent

	// Push spacing is judged lane-wide, before any candidate is known: a push
	// lane sends from a single account, so the lane's last success is that account's.
	if s.lane.Gate.Mode == SpacingPush && sent < s.lane.Gate.DailyCap {
		state.LastActivity, err = s.lastActivity(ctx, nil)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (s *LaneScheduler) lastActivity(ctx context.Context, accountID *uuid.UUID) (*time.Time, error) {
	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	last, err := s.deps.Activity.LastSuccess(opCtx, domain.ActivityFilter{AccountID: accountID, Channels: s.lane.Channels})
	if err != nil {
		return nil, fmt.Errorf("loading last account activity: %w", err)
	}
	return last, nil
}

// checkProvider reports down=true only for systemic failures; a flaky health
// endpoint must not stop the lane.
func (s *LaneScheduler) checkProvider(ctx context.Context, now time.Time) (RunResult, bool) {
	err := s.deps.Dispatcher.CheckAccount(ctx, s.lane.ProviderAccountID)
	if err == nil {
		return RunResult{}, false
	}
	if !provider.IsSystemic(err) {
		s.logger.WarnContext(ctx, "Provider account check failed; continuing", "error", err)
		return RunResult{}, false
	}

	s.logger.ErrorContext(ctx, "Provider account unusable; no sends possible", "provider_account_id", s.lane.ProviderAccountID, "error", err)
	if s.deps.Digest != nil {
		opCtx, cancel := withTimeout(ctx, s.storeTimeout)
		enqErr := s.deps.Digest.Enqueue(opCtx, digestdomain.Entry{
			ID:        uuid.New(),
			Type:      digestdomain.TypeProviderError,
			Channel:   s.lane.Name,
			Detail:    fmt.Sprintf("account %s: %v", s.lane.ProviderAccountID, err),
			CreatedAt: now,
		})
		cancel()
		if enqErr != nil {
			s.logger.ErrorContext(ctx, "Failed to enqueue provider error", "error", enqErr)
		}
	}
	return RunResult{Action: ActionNoOp, Reason: string(ReasonProviderDown)}, true
}

func (s *LaneScheduler) skipRecord(ctx context.Context, rec core_domain.OutreachRecord, v Verdict, now time.Time) (RunResult, error) {
	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	err := s.deps.Outreach.TransitionStatus(opCtx, domain.StatusUpdate{
		ID:     rec.ID,
		From:   core_domain.StatusPending,
		To:     core_domain.StatusSkipped,
		Reason: v.Reason,
		At:     now,
	})
	cancel()
	if errors.Is(err, core_domain.ErrStatusConflict) {
		// Another invocation moved it first; whatever it decided stands.
		return RunResult{Action: ActionNoOp, Reason: string(ReasonClaimLost), OutreachID: rec.ID}, nil
	}
	if err != nil {
		return RunResult{OutreachID: rec.ID}, fmt.Errorf("skipping outreach %s: %w", rec.ID, err)
	}

	s.appendAudit(ctx, rec, v.Identity.Keys, core_domain.StatusPending, core_domain.StatusSkipped, core_domain.StageSkipped, v.Reason, nil, now)
	s.logger.InfoContext(ctx, "Candidate skipped", "outreach_id", rec.ID, "reason", v.Reason)
	return RunResult{Action: ActionSkipped, Reason: v.Reason, OutreachID: rec.ID}, nil
}

func (s *LaneScheduler) deferRecord(ctx context.Context, rec core_domain.OutreachRecord, keys []string, reason string, retryAt, now time.Time) (RunResult, error) {
	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	err := s.deps.Outreach.Reschedule(opCtx, rec.ID, []core_domain.OutreachStatus{core_domain.StatusPending}, retryAt, reason, now)
	cancel()
	if errors.Is(err, core_domain.ErrStatusConflict) {
		return RunResult{Action: ActionNoOp, Reason: string(ReasonClaimLost), OutreachID: rec.ID}, nil
	}
	if err != nil {
		return RunResult{OutreachID: rec.ID}, fmt.Errorf("rescheduling outreach %s: %w", rec.ID, err)
	}

	meta := map[string]any{"scheduled_at_before": rec.ScheduledAt.UTC().Format(time.RFC3339), "scheduled_at": retryAt.UTC().Format(time.RFC3339)}
	s.appendAudit(ctx, rec, keys, core_domain.StatusPending, core_domain.StatusPending, core_domain.StageDeferred, reason, meta, now)
	s.logger.InfoContext(ctx, "Candidate deferred", "outreach_id", rec.ID, "reason", reason, "retry_at", retryAt)
	return RunResult{Action: ActionDeferred, Reason: reason, OutreachID: rec.ID, RetryAt: &retryAt}, nil
}

func (s *LaneScheduler) appendAudit(ctx context.Context, rec core_domain.OutreachRecord, keys []string, before, after core_domain.OutreachStatus, stage core_domain.AuditStage, msg string, meta map[string]any, now time.Time) {
	opCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	err := s.deps.Audit.Append(opCtx, core_domain.AuditEntry{
		ID:                  uuid.New(),
		OutreachID:          rec.ID,
		CampaignID:          rec.CampaignID,
		Channel:             rec.Channel,
		RecipientKeys:       keys,
		StatusBefore:        before,
		StatusAfter:         after,
		Stage:               stage,
		StatusUpdateSuccess: true,
		ErrorMessage:        msg,
		Metadata:            meta,
		CreatedAt:           now,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to append audit entry", "outreach_id", rec.ID, "stage", stage, "error", err)
	}
}

func noOp(reason NoOpReason, retryAt time.Time) RunResult {
	res := RunResult{Action: ActionNoOp, Reason: string(reason)}
	if !retryAt.IsZero() {
		res.RetryAt = &retryAt
	}
	return res
}
