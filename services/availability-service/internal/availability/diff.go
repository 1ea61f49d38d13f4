package availability

import "sort"

// WindowChange is one row-level edit needed to turn a stored pattern into a new one.
type WindowChange struct {
	Day      Weekday
	Position int
	Window   TimeWindow
	Removed  bool
}

// DiffWeekly lists the per-position upserts and deletes that transform prev into next.
// Unchanged positions produce nothing.
func DiffWeekly(prev, next WeeklyAvailability) []WindowChange {
	var changes []WindowChange
	for d := 0; d < DaysPerWeek; d++ {
		old, cur := prev.Days[d], next.Days[d]
		for i, w := range cur {
			if i < len(old) && old[i] == w {
				continue
			}
			changes = append(changes, WindowChange{Day: Weekday(d), Position: i, Window: w})
		}
		for i := len(cur); i < len(old); i++ {
			changes = append(changes, WindowChange{Day: Weekday(d), Position: i, Removed: true})
		}
	}
	return changes
}

type OverrideChange struct {
	Date  string        `json:"date"`
	State OverrideState `json:"state"`
}

// DiffOverrides returns changed date keys sorted by date. A change to Inherit
// means the stored override should be deleted.
func DiffOverrides(prev, next Overrides) []OverrideChange {
	var changes []OverrideChange
	for key, state := range next {
		if prev[key] != state {
			changes = append(changes, OverrideChange{Date: key, State: state})
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			changes = append(changes, OverrideChange{Date: key, State: Inherit})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Date < changes[j].Date })
	return changes
}
