package app

import (
	"math/rand"
	"sync"
	"time"
)

// NoOpReason explains why an invocation did nothing.
type NoOpReason string

const (
	ReasonNone         NoOpReason = ""
	ReasonHoliday      NoOpReason = "holiday"
	ReasonClosedDay    NoOpReason = "closed_day"
	ReasonOutsideHours NoOpReason = "outside_hours"
	ReasonDailyCap     NoOpReason = "daily_cap"
	ReasonSpacing      NoOpReason = "spacing"
	ReasonNoCandidate  NoOpReason = "no_candidate"
	ReasonClaimLost    NoOpReason = "claim_lost"
	ReasonProviderDown NoOpReason = "provider_unavailable"
)

// SpacingMode selects what happens when the sending account was active too recently.
type SpacingMode string

const (
	SpacingPush SpacingMode = "push" // invocation is a no-op
	SpacingPull SpacingMode = "pull" // candidate is rescheduled forward
)

// GateState is everything Decide looks at. It is gathered by the caller.
type GateState struct {
	Now          time.Time
	SentToday    int
	LastActivity *time.Time
}

// Decision is the pure outcome of the admission gate.
type Decision struct {
	Admit   bool
	Reason  NoOpReason
	RetryAt time.Time // earliest time the failing condition can clear, when known
}

// Gate combines the calendar window, the daily cap and account spacing for one lane.
type Gate struct {
	Window     *Window
	DailyCap   int
	MinSpacing time.Duration
	Mode       SpacingMode
}

// Decide is a pure function of its inputs. Pull-mode spacing is not judged here:
// it depends on the candidate's account and is applied by SpacingDelay.
func (g Gate) Decide(s GateState) Decision {
	if reason := g.Window.Check(s.Now); reason != ReasonNone {
		return Decision{Reason: reason, RetryAt: g.Window.NextOpen(s.Now)}
	}
	if s.SentToday >= g.DailyCap {
		_, tomorrow := g.Window.DayBounds(s.Now)
		return Decision{Reason: ReasonDailyCap, RetryAt: g.Window.NextOpen(tomorrow)}
	}
	if g.Mode == SpacingPush {
		if retryAt, wait := g.SpacingDelay(s.Now, s.LastActivity); wait {
			return Decision{Reason: ReasonSpacing, RetryAt: retryAt}
		}
	}
	return Decision{Admit: true}
}

// SpacingDelay reports whether last activity is too recent and when it clears.
func (g Gate) SpacingDelay(now time.Time, last *time.Time) (time.Time, bool) {
	if last == nil || g.MinSpacing <= 0 {
		return time.Time{}, false
	}
	// Strictly more than MinSpacing must have passed.
	earliest := last.Add(g.MinSpacing)
	if !now.After(earliest) {
		return earliest, true
	}
	return time.Time{}, false
}

// Jitter picks a random delay in [Min, Max].
type Jitter struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewJitter(min, max time.Duration, seed int64) *Jitter {
	return &Jitter{Min: min, Max: max, rnd: rand.New(rand.NewSource(seed))}
}

func (j *Jitter) Next() time.Duration {
	if j == nil || j.Max <= j.Min {
		if j == nil {
			return 0
		}
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Min + time.Duration(j.rnd.Int63n(int64(j.Max-j.Min)+1))
}
