package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidWindow  = errors.New("invalid time window")
	ErrInvalidWeekday = errors.New("weekday must be between 0 and 6")
	ErrWindowIndex    = errors.New("window index out of range")
	ErrWindowField    = errors.New("window field must be start or end")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidSlot    = errors.New("requested slot is not available")
	ErrSlotConflict   = errors.New("requested slot is already booked")
)

// ClockLayout is the zero-padded wall-clock format used for window bounds and
// booking start times. Zero padding keeps lexicographic and chronological order equal.
const ClockLayout = "15:04"

const DaysPerWeek = 7

// Weekday uses time.Weekday numbering: 0 is Sunday.
type Weekday int

func (d Weekday) Valid() bool {
	return d >= 0 && d < DaysPerWeek
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return time.Weekday(d).String()
}

// ParseWeekday accepts a number 0..6 or an English day name in any case.
func ParseWeekday(s string) (Weekday, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if d := Weekday(n); d.Valid() {
			return d, nil
		}
		return 0, ErrInvalidWeekday
	}
	for d := Weekday(0); d < DaysPerWeek; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday())
}

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both bounds are HH:MM and start < end.
func (w TimeWindow) Validate() error {
	if _, err := ParseClock(w.Start); err != nil {
		return fmt.Errorf("%w: start %q", ErrInvalidWindow, w.Start)
	}
	if _, err := ParseClock(w.End); err != nil {
		return fmt.Errorf("%w: end %q", ErrInvalidWindow, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Contains reports whether clock falls in [Start, End).
func (w TimeWindow) Contains(clock string) bool {
	return w.Start <= clock && clock < w.End
}

func (w TimeWindow) String() string {
	return w.Start + "-" + w.End
}

// ParseClock parses a zero-padded HH:MM value. Values such as "9:00" are
// rejected because they would sort incorrectly against padded ones.
func ParseClock(s string) (time.Time, error) {
	if len(s) != len(ClockLayout) {
		return time.Time{}, fmt.Errorf("clock %q must be HH:MM", s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock %q must be HH:MM", s)
	}
	return t, nil
}

func minutesOf(clock string) (int, error) {
	t, err := ParseClock(clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func clockOf(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
