package availability

import (
	"fmt"
	"slices"
)

type WindowField string

const (
	FieldStart WindowField = "start"
	FieldEnd   WindowField = "end"
)

// WeeklyAvailability holds the recurring pattern: one ordered window list per weekday.
// An empty list closes that weekday. Overlapping windows are kept as entered.
type WeeklyAvailability struct {
	Days [DaysPerWeek][]TimeWindow `json:"days"`
}

// Windows returns a copy of the windows for day.
func (wa WeeklyAvailability) Windows(day Weekday) []TimeWindow {
	if !day.Valid() {
		return nil
	}
	return slices.Clone(wa.Days[day])
}

func (wa WeeklyAvailability) IsOpen(day Weekday) bool {
	return day.Valid() && len(wa.Days[day]) > 0
}

// SetDayWindows replaces the full window list for day. Windows are not validated.
func (wa *WeeklyAvailability) SetDayWindows(day Weekday, windows []TimeWindow) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	if len(windows) == 0 {
		wa.Days[day] = nil
		return nil
	}
	wa.Days[day] = slices.Clone(windows)
	return nil
}

// ToggleDay closes an open day, or opens a closed day with def as its only window.
func (wa *WeeklyAvailability) ToggleDay(day Weekday, def TimeWindow) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	if len(wa.Days[day]) > 0 {
		wa.Days[day] = nil
		return nil
	}
	wa.Days[day] = []TimeWindow{def}
	return nil
}

func (wa *WeeklyAvailability) AddWindow(day Weekday, w TimeWindow) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	wa.Days[day] = append(wa.Days[day], w)
	return nil
}

func (wa *WeeklyAvailability) RemoveWindow(day Weekday, index int) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	if index < 0 || index >= len(wa.Days[day]) {
		return fmt.Errorf("%w: %d", ErrWindowIndex, index)
	}
	wa.Days[day] = slices.Delete(wa.Days[day], index, index+1)
	if len(wa.Days[day]) == 0 {
		wa.Days[day] = nil
	}
	return nil
}

// UpdateWindow sets one bound of one window in place.
func (wa *WeeklyAvailability) UpdateWindow(day Weekday, index int, field WindowField, value string) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	if index < 0 || index >= len(wa.Days[day]) {
		return fmt.Errorf("%w: %d", ErrWindowIndex, index)
	}
	switch field {
	case FieldStart:
		wa.Days[day][index].Start = value
	case FieldEnd:
		wa.Days[day][index].End = value
	default:
		return fmt.Errorf("%w: %q", ErrWindowField, field)
	}
	return nil
}

// ReplaceWindow sets both bounds of one window at once, so a window can move
// past its old bounds without passing through an invalid state.
func (wa *WeeklyAvailability) ReplaceWindow(day Weekday, index int, w TimeWindow) error {
	if !day.Valid() {
		return ErrInvalidWeekday
	}
	if index < 0 || index >= len(wa.Days[day]) {
		return fmt.Errorf("%w: %d", ErrWindowIndex, index)
	}
	wa.Days[day][index] = w
	return nil
}

func (wa WeeklyAvailability) Clone() WeeklyAvailability {
	var out WeeklyAvailability
	for d := range wa.Days {
		if len(wa.Days[d]) > 0 {
			out.Days[d] = slices.Clone(wa.Days[d])
		}
	}
	return out
}

// Validate checks every window of every day.
func (wa WeeklyAvailability) Validate() error {
	for d, windows := range wa.Days {
		for i, w := range windows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("%s window %d: %w", Weekday(d), i, err)
			}
		}
	}
	return nil
}
