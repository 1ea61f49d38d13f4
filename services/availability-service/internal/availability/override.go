package availability

import (
	"fmt"
	"maps"
	"time"
)

// DateLayout is the canonical date-only key format.
const DateLayout = "2006-01-02"

// OverrideState is the per-date override. Inherit means "follow the weekday
// pattern" and is never stored.
type OverrideState uint8

const (
	Inherit OverrideState = iota
	ForceAvailable
	ForceUnavailable
)

func (s OverrideState) String() string {
	switch s {
	case Inherit:
		return "inherit"
	case ForceAvailable:
		return "available"
	case ForceUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("OverrideState(%d)", uint8(s))
	}
}

func ParseOverrideState(s string) (OverrideState, error) {
	switch s {
	case "inherit", "":
		return Inherit, nil
	case "available":
		return ForceAvailable, nil
	case "unavailable":
		return ForceUnavailable, nil
	default:
		return Inherit, fmt.Errorf("unknown override state %q", s)
	}
}

func (s OverrideState) MarshalText() ([]byte, error) {
	if s > ForceUnavailable {
		return nil, fmt.Errorf("unknown override state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *OverrideState) UnmarshalText(b []byte) error {
	v, err := ParseOverrideState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Day returns the calendar date of t as midnight UTC. All date comparisons go
// through it so dates from different locations compare by their civil date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Overrides maps a date key to a forced state. A key holds at most one state,
// so a date can never be forced available and unavailable at once.
type Overrides map[string]OverrideState

func (o Overrides) State(date time.Time) OverrideState {
	return o[DateKey(date)]
}

// Set records state for date; Inherit removes the entry.
func (o *Overrides) Set(date time.Time, state OverrideState) {
	key := DateKey(date)
	if state == Inherit {
		delete(*o, key)
		return
	}
	if *o == nil {
		*o = make(Overrides)
	}
	(*o)[key] = state
}

func (o Overrides) Clone() Overrides {
	if o == nil {
		return Overrides{}
	}
	return maps.Clone(o)
}

// IsDateAvailable resolves a calendar date: a forced state wins, otherwise the
// date is available when its weekday has at least one window.
func IsDateAvailable(date time.Time, weekly WeeklyAvailability, overrides Overrides) bool {
	switch overrides.State(date) {
	case ForceAvailable:
		return true
	case ForceUnavailable:
		return false
	}
	return weekly.IsOpen(WeekdayOf(date))
}

// ToggleSpecificDate flips the effective availability of date by forcing the
// opposite state, and returns the state now stored.
func ToggleSpecificDate(date time.Time, weekly WeeklyAvailability, overrides *Overrides) OverrideState {
	next := ForceAvailable
	if IsDateAvailable(date, weekly, *overrides) {
		next = ForceUnavailable
	}
	overrides.Set(date, next)
	return next
}
