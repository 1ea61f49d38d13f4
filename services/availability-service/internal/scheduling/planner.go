// Package scheduling runs the owner-scoped availability and booking
// operations against a transactional store.
package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

type Planner struct {
	store    Store
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	defaults Settings
}

type Option func(*Planner)

func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

func WithIDs(newID func() string) Option {
	return func(p *Planner) { p.newID = newID }
}

// WithDefaults sets the settings used for owners that never saved their own.
func WithDefaults(s Settings) Option {
	return func(p *Planner) { p.defaults = s }
}

func NewPlanner(store Store, logger *slog.Logger, opts ...Option) *Planner {
	p := &Planner{
		store:    store,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		defaults: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WeeklyView is a weekly pattern with the version an edit must present to
// avoid overwriting a concurrent change.
type WeeklyView struct {
	Weekly  availability.WeeklyAvailability `json:"weekly"`
	Version int64                           `json:"version"`
}

type weeklyUpdated struct {
	OwnerID string                          `json:"owner_id"`
	Version int64                           `json:"version"`
	Weekly  availability.WeeklyAvailability `json:"weekly"`
}

func (p *Planner) Weekly(ctx context.Context, ownerID string) (WeeklyView, error) {
	if ownerID == "" {
		return WeeklyView{}, ErrOwnerRequired
	}
	wa, version, err := p.store.Weekly(ctx, ownerID)
	if err != nil {
		return WeeklyView{}, persistence("load weekly", err)
	}
	return WeeklyView{Weekly: wa, Version: version}, nil
}

func (p *Planner) SetDayWindows(ctx context.Context, ownerID string, expect int64, day availability.Weekday, windows []availability.TimeWindow) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, _ Settings) error {
		return wa.SetDayWindows(day, windows)
	})
}

// ToggleDay opens a closed day with the owner's default window, or closes an open one.
func (p *Planner) ToggleDay(ctx context.Context, ownerID string, expect int64, day availability.Weekday) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, s Settings) error {
		return wa.ToggleDay(day, s.DefaultWindow)
	})
}

func (p *Planner) AddWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, w availability.TimeWindow) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, _ Settings) error {
		return wa.AddWindow(day, w)
	})
}

func (p *Planner) RemoveWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, _ Settings) error {
		return wa.RemoveWindow(day, index)
	})
}

func (p *Planner) UpdateWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int, field availability.WindowField, value string) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, _ Settings) error {
		return wa.UpdateWindow(day, index, field, value)
	})
}

// ReplaceWindow sets both bounds of one window. Use it rather than two
// UpdateWindow calls when the new window does not overlap the old one.
func (p *Planner) ReplaceWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int, w availability.TimeWindow) (WeeklyView, error) {
	return p.editWeekly(ctx, ownerID, expect, func(wa *availability.WeeklyAvailability, _ Settings) error {
		return wa.ReplaceWindow(day, index, w)
	})
}

// editWeekly applies edit to the locked current pattern and persists only the
// rows that changed. expect of 0 skips the version check; any other value must
// match the stored version.
func (p *Planner) editWeekly(ctx context.Context, ownerID string, expect int64, edit func(*availability.WeeklyAvailability, Settings) error) (WeeklyView, error) {
	if ownerID == "" {
		return WeeklyView{}, ErrOwnerRequired
	}

	var view WeeklyView
	err := p.store.InTx(ctx, func(tx Tx) error {
		version, err := tx.LockAvailability(ctx, ownerID)
		if err != nil {
			return persistence("lock availability", err)
		}
		if expect != 0 && expect != version {
			return ErrStaleOverwrite
		}
		current, _, err := tx.Weekly(ctx, ownerID)
		if err != nil {
			return persistence("load weekly", err)
		}
		settings, err := p.settings(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := edit(&next, settings); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}

		changes := availability.DiffWeekly(current, next)
		if len(changes) == 0 {
			view = WeeklyView{Weekly: current, Version: version}
			return nil
		}
		version, err = tx.SaveWeekly(ctx, ownerID, changes)
		if err != nil {
			return persistence("save weekly", err)
		}
		view = WeeklyView{Weekly: next, Version: version}

		evt, err := outbox.NewEvent(outbox.EventWeeklyUpdated, outbox.AggregateAvailability, ownerID, ownerID,
			weeklyUpdated{OwnerID: ownerID, Version: version, Weekly: next})
		if err != nil {
			return err
		}
		return persistence("append event", tx.AppendEvent(ctx, evt))
	})
	if err != nil {
		return WeeklyView{}, persistence("weekly transaction", err)
	}
	return view, nil
}

func (p *Planner) today() time.Time {
	return availability.Day(p.now())
}
