package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Check(t *testing.T) {
	w := newTestWindow(t)
	tests := []struct {
		name string
		at   time.Time
		want NoOpReason
	}{
		{"inside", testNow, ReasonNone},
		{"first minute", time.Date(2026, time.October, 14, 13, 0, 0, 0, time.UTC), ReasonNone},
		{"last minute", time.Date(2026, time.October, 14, 21, 59, 59, 0, time.UTC), ReasonNone},
		{"end is exclusive", time.Date(2026, time.October, 14, 22, 0, 0, 0, time.UTC), ReasonOutsideHours},
		{"sunday", time.Date(2026, time.October, 18, 15, 0, 0, 0, time.UTC), ReasonClosedDay},
		{"holiday on a weekday", time.Date(2026, time.December, 25, 15, 0, 0, 0, time.UTC), ReasonHoliday},
		// 03:30 UTC on Thursday is still Wednesday evening in New York.
		{"utc date differs from local", time.Date(2026, time.October, 15, 3, 30, 0, 0, time.UTC), ReasonOutsideHours},
		// Winter time: 14:00 UTC is 09:00 EST.
		{"standard time opening", time.Date(2026, time.November, 4, 14, 0, 0, 0, time.UTC), ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Check(tt.at))
		})
	}
}

func TestWindow_NextOpen(t *testing.T) {
	w := newTestWindow(t)
	loc := w.Location()
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"inside returns now", testNow, testNow},
		{"early morning", time.Date(2026, time.October, 14, 6, 0, 0, 0, loc), time.Date(2026, time.October, 14, 9, 0, 0, 0, loc)},
		{"evening rolls to next day", time.Date(2026, time.October, 14, 19, 0, 0, 0, loc), time.Date(2026, time.October, 15, 9, 0, 0, 0, loc)},
		{"friday evening rolls to monday", time.Date(2026, time.October, 16, 18, 0, 0, 0, loc), time.Date(2026, time.October, 19, 9, 0, 0, 0, loc)},
		{"christmas eve rolls past holiday", time.Date(2026, time.December, 24, 18, 30, 0, 0, loc), time.Date(2026, time.December, 28, 9, 0, 0, 0, loc)},
		{"across dst change", time.Date(2026, time.October, 30, 20, 0, 0, 0, loc), time.Date(2026, time.November, 2, 9, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.NextOpen(tt.from)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestWindow_DayBounds(t *testing.T) {
	w := newTestWindow(t)
	start, next := w.DayBounds(time.Date(2026, time.October, 15, 3, 30, 0, 0, time.UTC))
	assert.True(t, start.Equal(time.Date(2026, time.October, 14, 4, 0, 0, 0, time.UTC)), start.String())
	assert.True(t, next.Equal(time.Date(2026, time.October, 15, 4, 0, 0, 0, time.UTC)), next.String())

	// The day DST ends is 25 hours long.
	start, next = w.DayBounds(time.Date(2026, time.November, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 25*time.Hour, next.Sub(start))
}

func TestNewWindow_Validation(t *testing.T) {
	_, err := NewWindow(WindowConfig{StartHour: 9, EndHour: 18})
	assert.Error(t, err)
	_, err = NewWindow(WindowConfig{Location: time.UTC, StartHour: 18, EndHour: 9})
	assert.Error(t, err)
	_, err = NewWindow(WindowConfig{Location: time.UTC, StartHour: 0, EndHour: 24})
	assert.NoError(t, err)
}

func TestParseWeekdaysAndHolidays(t *testing.T) {
	days, err := ParseWeekdays([]string{"Mon", "tuesday", " FRI "})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Friday}, days)

	_, err = ParseWeekdays([]string{"someday"})
	assert.Error(t, err)

	hols, err := ParseHolidays([]string{"12-25", "01-01"})
	require.NoError(t, err)
	assert.Equal(t, []MonthDay{{Month: time.December, Day: 25}, {Month: time.January, Day: 1}}, hols)

	_, err = ParseHolidays([]string{"25-12"})
	assert.Error(t, err)
}

func TestGate_Decide(t *testing.T) {
	w := newTestWindow(t)
	push := Gate{Window: w, DailyCap: 38, MinSpacing: 5 * time.Minute, Mode: SpacingPush}
	pull := Gate{Window: w, DailyCap: 50, MinSpacing: 6 * time.Minute, Mode: SpacingPull}
	recent := testNow.Add(-2 * time.Minute)
	old := testNow.Add(-20 * time.Minute)
	saturday := time.Date(2026, time.October, 17, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		gate   Gate
		state  GateState
		admit  bool
		reason NoOpReason
	}{
		{"admits under cap with stale activity", push, GateState{Now: testNow, SentToday: 10, LastActivity: &old}, true, ReasonNone},
		{"admits with no activity", push, GateState{Now: testNow}, true, ReasonNone},
		{"window beats everything", push, GateState{Now: saturday, SentToday: 100}, false, ReasonClosedDay},
		{"cap reached", push, GateState{Now: testNow, SentToday: 38}, false, ReasonDailyCap},
		{"cap exceeded", pull, GateState{Now: testNow, SentToday: 51}, false, ReasonDailyCap},
		{"push spacing", push, GateState{Now: testNow, SentToday: 1, LastActivity: &recent}, false, ReasonSpacing},
		{"pull spacing is left to the candidate", pull, GateState{Now: testNow, SentToday: 1, LastActivity: &recent}, true, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.gate.Decide(tt.state)
			assert.Equal(t, tt.admit, d.Admit)
			assert.Equal(t, tt.reason, d.Reason)
			if !d.Admit {
				assert.False(t, d.RetryAt.IsZero(), "a refusal carries a retry time")
			}
		})
	}
}

func TestGate_SpacingDelay(t *testing.T) {
	g := Gate{MinSpacing: 6 * time.Minute}
	last := testNow.Add(-4 * time.Minute)

	at, wait := g.SpacingDelay(testNow, &last)
	assert.True(t, wait)
	assert.True(t, at.Equal(testNow.Add(2*time.Minute)))

	_, wait = g.SpacingDelay(testNow, nil)
	assert.False(t, wait)

	exact := testNow.Add(-6 * time.Minute)
	at, wait = g.SpacingDelay(testNow, &exact)
	assert.True(t, wait, "exactly min spacing ago is still too recent")
	assert.True(t, at.Equal(testNow))

	past := testNow.Add(-6*time.Minute - time.Second)
	_, wait = g.SpacingDelay(testNow, &past)
	assert.False(t, wait)
}

func TestJitter_Bounds(t *testing.T) {
	j := NewJitter(15*time.Second, 120*time.Second, 42)
	for i := 0; i < 500; i++ {
		d := j.Next()
		assert.GreaterOrEqual(t, d, 15*time.Second)
		assert.LessOrEqual(t, d, 120*time.Second)
	}

	assert.Equal(t, 5*time.Second, NewJitter(5*time.Second, 5*time.Second, 1).Next())
	var nilJitter *Jitter
	assert.Equal(t, time.Duration(0), nilJitter.Next())
}
