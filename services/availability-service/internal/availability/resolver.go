package availability

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
)

const DefaultHorizonDays = 30

// AvailableDates yields the bookable dates in [start, start+horizonDays), in
// order. The sequence is computed on demand and can be ranged over repeatedly.
func AvailableDates(weekly WeeklyAvailability, overrides Overrides, horizonDays int, start time.Time) iter.Seq[time.Time] {
	first := Day(start)
	return func(yield func(time.Time) bool) {
		for i := 0; i < horizonDays; i++ {
			d := first.AddDate(0, 0, i)
			if !IsDateAvailable(d, weekly, overrides) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

func ListAvailableDates(weekly WeeklyAvailability, overrides Overrides, horizonDays int, start time.Time) []time.Time {
	return slices.Collect(AvailableDates(weekly, overrides, horizonDays, start))
}

// ListAvailableTimes returns the weekday windows for date. Overrides only
// include or exclude whole days, so a date forced available on a closed
// weekday has no candidate times.
func ListAvailableTimes(date time.Time, weekly WeeklyAvailability) []TimeWindow {
	return weekly.Windows(WeekdayOf(date))
}

func inHorizon(date, today time.Time, horizonDays int) bool {
	first := Day(today)
	d := Day(date)
	return !d.Before(first) && d.Before(first.AddDate(0, 0, horizonDays))
}

type SlotRequest struct {
	OwnerID     string
	Date        time.Time
	Time        string
	Service     model.Service
	Bookings    []model.Booking
	Weekly      WeeklyAvailability
	Overrides   Overrides
	HorizonDays int
	Today       time.Time
}

// Slot is a validated, not yet booked, selection.
type Slot struct {
	OwnerID         string
	Date            time.Time
	Time            string
	ServiceID       string
	DurationMinutes int
}

// ValidateSlotSelection checks a date/time choice against the owner's
// availability and bookings. Conflicts are exact start-time matches on the
// same date; service duration is not used to detect overlap.
func ValidateSlotSelection(req SlotRequest) (Slot, error) {
	date := Day(req.Date)
	key := DateKey(date)

	if !inHorizon(date, req.Today, req.HorizonDays) || !IsDateAvailable(date, req.Weekly, req.Overrides) {
		return Slot{}, fmt.Errorf("%w: date %s", ErrInvalidSlot, key)
	}
	if _, err := ParseClock(req.Time); err != nil {
		return Slot{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	within := false
	for _, w := range ListAvailableTimes(date, req.Weekly) {
		if w.Contains(req.Time) {
			within = true
			break
		}
	}
	if !within {
		return Slot{}, fmt.Errorf("%w: %s is outside the %s windows", ErrInvalidSlot, req.Time, key)
	}

	for _, b := range req.Bookings {
		if req.OwnerID != "" && b.OwnerID != "" && b.OwnerID != req.OwnerID {
			continue
		}
		if !b.Status.BlocksSlot() {
			continue
		}
		if DateKey(Day(b.BookingDate)) == key && b.StartTime == req.Time {
			return Slot{}, fmt.Errorf("%w: %s %s", ErrSlotConflict, key, req.Time)
		}
	}

	return Slot{
		OwnerID:         req.OwnerID,
		Date:            date,
		Time:            req.Time,
		ServiceID:       req.Service.ID,
		DurationMinutes: req.Service.DurationMinutes,
	}, nil
}
