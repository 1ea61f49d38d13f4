package availability

import (
	"slices"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
)

// SlotStarts returns start times within w, stepping by step, where a booking
// of length duration still ends at or before w.End.
func SlotStarts(w TimeWindow, duration, step time.Duration) []string {
	if duration <= 0 || step <= 0 {
		return nil
	}
	start, err := minutesOf(w.Start)
	if err != nil {
		return nil
	}
	end, err := minutesOf(w.End)
	if err != nil || end <= start {
		return nil
	}
	durMins := int(duration / time.Minute)
	stepMins := int(step / time.Minute)
	if durMins <= 0 || stepMins <= 0 || start+durMins > end {
		return nil
	}

	var out []string
	for m := start; m+durMins <= end; m += stepMins {
		out = append(out, clockOf(m))
	}
	return out
}

// OpenSlots lists the start times a customer can still pick on date: every
// grid start of the weekday windows, minus starts held by a blocking booking
// and, when date is the day of now, starts already in the past.
func OpenSlots(date time.Time, weekly WeeklyAvailability, duration, step time.Duration, bookings []model.Booking, now time.Time) []string {
	key := DateKey(Day(date))
	taken := make(map[string]struct{})
	for _, b := range bookings {
		if b.Status.BlocksSlot() && DateKey(Day(b.BookingDate)) == key {
			taken[b.StartTime] = struct{}{}
		}
	}
	nowClock := ""
	if DateKey(Day(now)) == key {
		nowClock = now.Format(ClockLayout)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, w := range ListAvailableTimes(date, weekly) {
		for _, s := range SlotStarts(w, duration, step) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			if _, ok := taken[s]; ok {
				continue
			}
			if nowClock != "" && s < nowClock {
				continue
			}
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
