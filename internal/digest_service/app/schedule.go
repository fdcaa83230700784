package app

import (
	"fmt"
	"time"
)

// SlotTime is a local wall-clock digest time.
type SlotTime struct {
	Hour   int
	Minute int
}

func (s SlotTime) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// ParseSlots reads HH:MM values.
func ParseSlots(values []string) ([]SlotTime, error) {
	slots := make([]SlotTime, 0, len(values))
	for _, v := range values {
		t, err := time.Parse("15:04", v)
		if err != nil {
			return nil, fmt.Errorf("invalid digest slot %q: want HH:MM", v)
		}
		slots = append(slots, SlotTime{Hour: t.Hour(), Minute: t.Minute()})
	}
	return slots, nil
}

// Schedule decides when a digest is due. Slots are ascending local times on allowed weekdays;
// a slot is due for Window after it starts.
type Schedule struct {
	Slots    []SlotTime
	Weekdays []time.Weekday
	Window   time.Duration
	Location *time.Location
}

func (s Schedule) allowed(d time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

func (s Schedule) slotOn(local time.Time, slot SlotTime) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), slot.Hour, slot.Minute, 0, 0, s.Location)
}

// DueSlot returns the slot now falls in, unless last already covers it.
func (s Schedule) DueSlot(now time.Time, last *time.Time) (time.Time, bool) {
	local := now.In(s.Location)
	if !s.allowed(local.Weekday()) {
		return time.Time{}, false
	}
	for _, slot := range s.Slots {
		start := s.slotOn(local, slot)
		if local.Before(start) || local.Sub(start) >= s.Window {
			continue
		}
		if last != nil && !last.Before(start) {
			return time.Time{}, false
		}
		return start, true
	}
	return time.Time{}, false
}

// NextSlot returns the first slot strictly after now on an allowed weekday.
func (s Schedule) NextSlot(now time.Time) (time.Time, bool) {
	if len(s.Slots) == 0 || len(s.Weekdays) == 0 {
		return time.Time{}, false
	}
	local := now.In(s.Location)
	for day := 0; day < 8; day++ {
		d := local.AddDate(0, 0, day)
		if !s.allowed(d.Weekday()) {
			continue
		}
		for _, slot := range s.Slots {
			if start := s.slotOn(d, slot); start.After(now) {
				return start, true
			}
		}
	}
	return time.Time{}, false
}

// DayBounds returns the local calendar day containing now as [start, end).
func (s Schedule) DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(s.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	return start, start.AddDate(0, 0, 1)
}
