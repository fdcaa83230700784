package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

// VerdictKind is the eligibility outcome for one candidate.
type VerdictKind string

const (
	VerdictEligible VerdictKind = "eligible"
	VerdictSkip     VerdictKind = "skip"  // pending -> skipped, never retried
	VerdictDefer    VerdictKind = "defer" // stays pending, rescheduled to RetryAt
)

type Verdict struct {
	Kind     VerdictKind
	Reason   string
	RetryAt  time.Time
	Identity core_domain.RecipientIdentity
}

// EligibilityFacts is the store evidence the checks run against.
type EligibilityFacts struct {
	Blocked     bool
	BlockReason string
	PriorSends  []core_domain.PriorSend
	History     []core_domain.OutreachHistoryEntry
}

// EligibilityEngine runs identity, block list, duplicate and cooldown checks in that order.
type EligibilityEngine struct {
	blocklist domain.BlockListRepository
	history   domain.HistoryRepository
	cooldown  time.Duration
	logger    *slog.Logger
}

func NewEligibilityEngine(
	blocklist domain.BlockListRepository,
	history domain.HistoryRepository,
	cooldown time.Duration,
	logger *slog.Logger,
) *EligibilityEngine {
	return &EligibilityEngine{
		blocklist: blocklist,
		history:   history,
		cooldown:  cooldown,
		logger:    logger.With("component", "eligibility_engine"),
	}
}

// Evaluate resolves the recipient identity and judges the candidate. Store errors are
// returned as errors, never as a skip: an unknown answer must not terminate a record.
func (e *EligibilityEngine) Evaluate(ctx context.Context, cand *core_domain.Candidate, now time.Time) (Verdict, error) {
	identity, err := core_domain.ResolveIdentity(cand.Recipient, cand.Record.Channel)
	if err != nil {
		var idErr *core_domain.IdentityError
		if errors.As(err, &idErr) {
			return Verdict{Kind: VerdictSkip, Reason: idErr.Reason, Identity: identity}, nil
		}
		return Verdict{}, err
	}

	var facts EligibilityFacts
	facts.Blocked, facts.BlockReason, err = e.blocklist.IsBlocked(ctx, identity.Keys)
	if err != nil {
		return Verdict{}, fmt.Errorf("checking block list: %w", err)
	}
	if !facts.Blocked {
		facts.PriorSends, err = e.history.PriorSends(ctx, identity.Keys, cand.Record.ID)
		if err != nil {
			return Verdict{}, fmt.Errorf("loading prior sends: %w", err)
		}
		facts.History, err = e.history.History(ctx, identity.Keys)
		if err != nil {
			return Verdict{}, fmt.Errorf("loading outreach history: %w", err)
		}
	}

	v := Judge(cand, facts, now, e.cooldown)
	v.Identity = identity
	if v.Kind != VerdictEligible {
		e.logger.InfoContext(ctx, "Candidate not eligible",
			"outreach_id", cand.Record.ID, "verdict", v.Kind, "reason", v.Reason)
	}
	return v, nil
}

// Judge is the pure part of Evaluate, applied after identity resolution.
func Judge(cand *core_domain.Candidate, facts EligibilityFacts, now time.Time, cooldown time.Duration) Verdict {
	if facts.Blocked {
		reason := strings.TrimSpace(facts.BlockReason)
		if reason == "" {
			reason = "blocked"
		}
		return Verdict{Kind: VerdictSkip, Reason: "Do not message: " + reason}
	}

	priors := make([]core_domain.PriorSend, len(facts.PriorSends))
	copy(priors, facts.PriorSends)
	sort.SliceStable(priors, func(i, j int) bool {
		if !priors[i].SentAt.Equal(priors[j].SentAt) {
			return priors[i].SentAt.Before(priors[j].SentAt)
		}
		return priors[i].OutreachID.String() < priors[j].OutreachID.String()
	})

	campaignID := cand.Record.CampaignID
	for _, p := range priors {
		if p.CampaignID == campaignID {
			return Verdict{Kind: VerdictSkip, Reason: fmt.Sprintf(
				"Duplicate: already sent in this campaign to %s (previous: %s)", p.MatchedKey, p.OutreachID)}
		}
	}
	for _, h := range facts.History {
		if h.CampaignID.Valid && h.CampaignID.UUID == campaignID {
			return Verdict{Kind: VerdictSkip, Reason: fmt.Sprintf(
				"Duplicate: already sent in this campaign to %s (previous: %s)", firstKey(h.RecipientKeys), previousID(h))}
		}
	}
	if len(priors) > 0 {
		p := priors[0]
		name := p.CampaignName
		if name == "" {
			name = p.CampaignID.String()
		}
		return Verdict{Kind: VerdictSkip, Reason: fmt.Sprintf(
			"Cross-campaign: already sent in %q campaign to %s (previous: %s)", name, p.MatchedKey, p.OutreachID)}
	}

	var latest *core_domain.OutreachHistoryEntry
	for i := range facts.History {
		if latest == nil || facts.History[i].SentAt.After(latest.SentAt) {
			latest = &facts.History[i]
		}
	}
	if latest != nil && cooldown > 0 {
		until := latest.SentAt.Add(cooldown)
		if now.Before(until) {
			return Verdict{
				Kind:    VerdictDefer,
				Reason:  fmt.Sprintf("Cooldown: last contacted %s, eligible after %s", latest.SentAt.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339)),
				RetryAt: until,
			}
		}
	}

	return Verdict{Kind: VerdictEligible}
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return "unknown"
	}
	return keys[0]
}

func previousID(h core_domain.OutreachHistoryEntry) string {
	if h.OutreachID.Valid {
		return h.OutreachID.UUID.String()
	}
	if h.ID != uuid.Nil {
		return "history " + h.ID.String()
	}
	return "unknown"
}
