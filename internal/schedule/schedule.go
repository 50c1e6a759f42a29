package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: an interval ending exactly when
// another begins does not overlap it.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Window is a named open interval within a calendar day, expressed in
// minutes from midnight (e.g. 540–1080 for 09:00–18:00).
type Window struct {
	Name        string
	OpenMinute  int
	CloseMinute int
}

// WeekHours holds the recurring weekly open windows per weekday.
// A weekday with no entry is closed.
type WeekHours map[time.Weekday][]Window

// TimeOff is a blocked interval. When Weekly is set the interval
// repeats every seven days starting from its base occurrence.
type TimeOff struct {
	ID     uuid.UUID
	Reason string
	Start  time.Time
	End    time.Time
	Weekly bool
}

// Snapshot is an immutable view of the calendar constraints, loaded by
// the caller and passed into each availability check. The engine holds
// no process-wide mutable configuration.
type Snapshot struct {
	Hours    WeekHours // nil when no working hours are configured at all
	TimeOff  []TimeOff
	Location *time.Location
}

// HoursConfigured reports whether any working hours exist. When false,
// the working-hours check is skipped entirely so that missing
// configuration never blocks booking.
func (s *Snapshot) HoursConfigured() bool {
	return s != nil && s.Hours != nil
}

func (s *Snapshot) loc() *time.Location {
	if s != nil && s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// WithinHours reports whether [start, end) lies entirely inside at
// least one open window for start's weekday. With no configured hours
// it returns true.
func (s *Snapshot) WithinHours(start, end time.Time) bool {
	if !s.HoursConfigured() {
		return true
	}

	local := start.In(s.loc())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc())

	openMin := int(start.Sub(dayStart) / time.Minute)
	closeMin := int(end.Sub(dayStart) / time.Minute)

	for _, w := range s.Hours[local.Weekday()] {
		if openMin >= w.OpenMinute && closeMin <= w.CloseMinute {
			return true
		}
	}
	return false
}

// BlockedByTimeOff reports whether [start, end) intersects any blocked
// interval, expanding weekly recurrences into the concrete occurrences
// around the candidate.
func (s *Snapshot) BlockedByTimeOff(start, end time.Time) bool {
	if s == nil {
		return false
	}
	for _, t := range s.TimeOff {
		if t.blocks(start, end) {
			return true
		}
	}
	return false
}

const week = 7 * 24 * time.Hour

func (t TimeOff) blocks(start, end time.Time) bool {
	if !t.Weekly {
		return t.Start.Before(end) && start.Before(t.End)
	}

	// Project the base occurrence into the candidate's week. Truncated
	// division can land one period off in either direction, so the
	// neighbouring occurrences are checked too. Occurrences before the
	// base never block.
	k := start.Sub(t.Start) / week
	for _, n := range []time.Duration{k - 1, k, k + 1} {
		if n < 0 {
			continue
		}
		occStart := t.Start.Add(n * week)
		occEnd := t.End.Add(n * week)
		if occStart.Before(end) && start.Before(occEnd) {
			return true
		}
	}
	return false
}

// OverlapsAny reports whether [start, end) intersects any busy interval.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	c := Interval{Start: start, End: end}
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}
