package app

import (
	"fmt"
	"strings"
	"time"
)

// MonthDay is a fixed calendar date that repeats every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// WindowConfig describes the quiet-hours window in the business timezone.
type WindowConfig struct {
	Location  *time.Location
	StartHour int // inclusive
	EndHour   int // exclusive
	Weekdays  []time.Weekday
	Holidays  []MonthDay
}

// Window answers whether sending is currently permitted by the calendar.
type Window struct {
	loc       *time.Location
	startHour int
	endHour   int
	weekdays  map[time.Weekday]bool
	holidays  []MonthDay
}

func NewWindow(cfg WindowConfig) (*Window, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("window: location is required")
	}
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("window: invalid hours %d-%d", cfg.StartHour, cfg.EndHour)
	}
	w := &Window{
		loc:       cfg.Location,
		startHour: cfg.StartHour,
		endHour:   cfg.EndHour,
		weekdays:  make(map[time.Weekday]bool, len(cfg.Weekdays)),
		holidays:  cfg.Holidays,
	}
	for _, d := range cfg.Weekdays {
		w.weekdays[d] = true
	}
	return w, nil
}

func (w *Window) Location() *time.Location { return w.loc }

// Check returns ReasonNone when now falls inside the window.
func (w *Window) Check(now time.Time) NoOpReason {
	local := now.In(w.loc)
	if w.IsHoliday(local) {
		return ReasonHoliday
	}
	if !w.weekdays[local.Weekday()] {
		return ReasonClosedDay
	}
	if h := local.Hour(); h < w.startHour || h >= w.endHour {
		return ReasonOutsideHours
	}
	return ReasonNone
}

func (w *Window) IsHoliday(t time.Time) bool {
	local := t.In(w.loc)
	for _, h := range w.holidays {
		if local.Month() == h.Month && local.Day() == h.Day {
			return true
		}
	}
	return false
}

// DayBounds returns the start of the local calendar day containing now and the start of the next one.
func (w *Window) DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(w.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	return start, start.AddDate(0, 0, 1)
}

// NextOpen returns the earliest instant at or after t that is inside the window.
func (w *Window) NextOpen(t time.Time) time.Time {
	local := t.In(w.loc)
	// A year of days is far more than any sane weekday/holiday combination needs.
	for i := 0; i < 366; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, w.loc)
		if w.IsHoliday(day) || !w.weekdays[day.Weekday()] {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), w.startHour, 0, 0, 0, w.loc)
		closeAt := time.Date(day.Year(), day.Month(), day.Day(), w.endHour, 0, 0, 0, w.loc)
		if i == 0 {
			if local.Before(open) {
				return open
			}
			if local.Before(closeAt) {
				return local
			}
			continue
		}
		return open
	}
	return local
}

// ParseWeekdays accepts short or long English day names.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseHolidays parses MM-DD values.
func ParseHolidays(values []string) ([]MonthDay, error) {
	out := make([]MonthDay, 0, len(values))
	for _, v := range values {
		t, err := time.Parse("01-02", strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", v, err)
		}
		out = append(out, MonthDay{Month: t.Month(), Day: t.Day()})
	}
	return out, nil
}
