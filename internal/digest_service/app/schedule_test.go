package app

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchedule(t *testing.T) Schedule {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	slots, err := ParseSlots([]string{"09:00", "12:00", "15:00", "18:00", "21:00"})
	require.NoError(t, err)
	return Schedule{
		Slots:    slots,
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Window:   5 * time.Minute,
		Location: loc,
	}
}

func TestParseSlots(t *testing.T) {
	slots, err := ParseSlots([]string{"09:00", "21:30"})
	require.NoError(t, err)
	assert.Equal(t, []SlotTime{{9, 0}, {21, 30}}, slots)
	assert.Equal(t, "21:30", slots[1].String())

	_, err = ParseSlots([]string{"9am"})
	assert.Error(t, err)
}

func TestSchedule_DueSlot(t *testing.T) {
	s := newTestSchedule(t)
	ny := s.Location
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, time.October, day, hour, minute, 0, 0, ny)
	}
	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name    string
		now     time.Time
		last    *time.Time
		wantDue bool
		want    time.Time
	}{
		{"inside the noon window", at(14, 12, 2), nil, true, at(14, 12, 0)},
		{"exactly at the slot", at(14, 15, 0), nil, true, at(14, 15, 0)},
		{"window is end exclusive", at(14, 12, 5), nil, false, time.Time{}},
		{"before the slot", at(14, 11, 59), nil, false, time.Time{}},
		{"slot already sent", at(14, 12, 2), ptr(at(14, 12, 0)), false, time.Time{}},
		{"previous slot sent earlier", at(14, 12, 2), ptr(at(14, 9, 0)), true, at(14, 12, 0)},
		{"evening slot", at(14, 21, 3), ptr(at(14, 18, 0)), true, at(14, 21, 0)},
		{"weekend", at(17, 12, 2), nil, false, time.Time{}},
		{"utc input", time.Date(2026, time.October, 14, 16, 1, 0, 0, time.UTC), nil, true, at(14, 12, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, due := s.DueSlot(tc.now, tc.last)
			assert.Equal(t, tc.wantDue, due)
			if tc.wantDue {
				assert.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
			}
		})
	}
}

func TestSchedule_NextSlot(t *testing.T) {
	s := newTestSchedule(t)
	ny := s.Location

	next, ok := s.NextSlot(time.Date(2026, time.October, 14, 12, 0, 0, 0, ny))
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2026, time.October, 14, 15, 0, 0, 0, ny)))

	// Friday evening rolls over the weekend.
	next, ok = s.NextSlot(time.Date(2026, time.October, 16, 21, 0, 0, 0, ny))
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2026, time.October, 19, 9, 0, 0, 0, ny)))

	_, ok = Schedule{Location: ny}.NextSlot(time.Now())
	assert.False(t, ok)
}

func TestSchedule_DayBounds(t *testing.T) {
	s := newTestSchedule(t)
	start, end := s.DayBounds(time.Date(2026, time.October, 15, 2, 0, 0, 0, time.UTC))

	// 02:00 UTC on the 15th is still the 14th in New York.
	assert.True(t, start.Equal(time.Date(2026, time.October, 14, 4, 0, 0, 0, time.UTC)))
	assert.True(t, end.Equal(time.Date(2026, time.October, 15, 4, 0, 0, 0, time.UTC)))
}
