package scheduling

import (
	"context"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
)

// AvailableDates lists the bookable dates from today through the owner's horizon.
func (p *Planner) AvailableDates(ctx context.Context, ownerID string, ov Overlay) ([]time.Time, error) {
	view, err := p.Weekly(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s := ov.Settings.withDefaults(p.defaults)
	return availability.ListAvailableDates(view.Weekly, ov.Overrides, s.HorizonDays, p.today()), nil
}

// AvailableTimes returns the candidate windows for date, or none when the
// date is closed or outside the horizon.
func (p *Planner) AvailableTimes(ctx context.Context, ownerID string, date time.Time, ov Overlay) ([]availability.TimeWindow, error) {
	view, err := p.Weekly(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !p.bookableDate(date, view.Weekly, ov) {
		return nil, nil
	}
	return availability.ListAvailableTimes(date, view.Weekly), nil
}

// OpenSlots lists start times on date that a booking for serviceID could take.
func (p *Planner) OpenSlots(ctx context.Context, ownerID, serviceID string, date time.Time, ov Overlay) ([]string, error) {
	view, err := p.Weekly(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	svc, err := p.bookableService(ctx, p.store, ownerID, serviceID)
	if err != nil {
		return nil, err
	}
	if !p.bookableDate(date, view.Weekly, ov) {
		return nil, nil
	}

	day := availability.Day(date)
	bookings, err := p.store.Bookings(ctx, ownerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, persistence("load bookings", err)
	}
	s := ov.Settings.withDefaults(p.defaults)
	return availability.OpenSlots(day, view.Weekly,
		time.Duration(svc.DurationMinutes)*time.Minute,
		time.Duration(s.SlotStepMinutes)*time.Minute,
		bookings, p.now()), nil
}

// ValidateSlot checks a selection against current state without holding any
// lock. BookSlot repeats the check atomically with the insert.
func (p *Planner) ValidateSlot(ctx context.Context, ownerID, serviceID string, date time.Time, clock string) (availability.Slot, error) {
	if ownerID == "" {
		return availability.Slot{}, ErrOwnerRequired
	}
	svc, err := p.bookableService(ctx, p.store, ownerID, serviceID)
	if err != nil {
		return availability.Slot{}, err
	}
	return p.validate(ctx, p.store, svc, date, clock)
}

func (p *Planner) validate(ctx context.Context, r Reader, svc model.Service, date time.Time, clock string) (availability.Slot, error) {
	ownerID := svc.OwnerID
	weekly, _, err := r.Weekly(ctx, ownerID)
	if err != nil {
		return availability.Slot{}, persistence("load weekly", err)
	}
	overrides, err := r.Overrides(ctx, ownerID)
	if err != nil {
		return availability.Slot{}, persistence("load overrides", err)
	}
	settings, err := p.settings(ctx, r, ownerID)
	if err != nil {
		return availability.Slot{}, err
	}
	day := availability.Day(date)
	bookings, err := r.Bookings(ctx, ownerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return availability.Slot{}, persistence("load bookings", err)
	}

	return availability.ValidateSlotSelection(availability.SlotRequest{
		OwnerID:     ownerID,
		Date:        day,
		Time:        clock,
		Service:     svc,
		Bookings:    bookings,
		Weekly:      weekly,
		Overrides:   overrides,
		HorizonDays: settings.HorizonDays,
		Today:       p.today(),
	})
}

func (p *Planner) bookableDate(date time.Time, weekly availability.WeeklyAvailability, ov Overlay) bool {
	s := ov.Settings.withDefaults(p.defaults)
	today := p.today()
	d := availability.Day(date)
	if d.Before(today) || !d.Before(today.AddDate(0, 0, s.HorizonDays)) {
		return false
	}
	return availability.IsDateAvailable(d, weekly, ov.Overrides)
}
