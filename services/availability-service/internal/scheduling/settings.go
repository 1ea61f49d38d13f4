package scheduling

import (
	"context"
	"errors"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

const (
	MaxHorizonDays     = 365
	DefaultSlotMinutes = 30
)

// Settings are the owner-wide defaults: the window a closed day opens with
// and how far ahead customers may book.
type Settings struct {
	DefaultWindow   availability.TimeWindow `json:"default_window"`
	HorizonDays     int                     `json:"horizon_days"`
	SlotStepMinutes int                     `json:"slot_step_minutes"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultWindow:   availability.TimeWindow{Start: "09:00", End: "17:00"},
		HorizonDays:     availability.DefaultHorizonDays,
		SlotStepMinutes: DefaultSlotMinutes,
	}
}

func (s Settings) Validate() error {
	if err := s.DefaultWindow.Validate(); err != nil {
		return err
	}
	if s.HorizonDays < 1 || s.HorizonDays > MaxHorizonDays {
		return invalid("horizon_days must be between 1 and %d", MaxHorizonDays)
	}
	if s.SlotStepMinutes < 5 || s.SlotStepMinutes > 24*60 {
		return invalid("slot_step_minutes must be between 5 and 1440")
	}
	return nil
}

// withDefaults fills zero fields from d.
func (s Settings) withDefaults(d Settings) Settings {
	if s.DefaultWindow == (availability.TimeWindow{}) {
		s.DefaultWindow = d.DefaultWindow
	}
	if s.HorizonDays == 0 {
		s.HorizonDays = d.HorizonDays
	}
	if s.SlotStepMinutes == 0 {
		s.SlotStepMinutes = d.SlotStepMinutes
	}
	return s
}

func (p *Planner) settings(ctx context.Context, r Reader, ownerID string) (Settings, error) {
	s, err := r.Settings(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return p.defaults, nil
	}
	if err != nil {
		return Settings{}, persistence("load settings", err)
	}
	return s.withDefaults(p.defaults), nil
}

func (p *Planner) Settings(ctx context.Context, ownerID string) (Settings, error) {
	if ownerID == "" {
		return Settings{}, ErrOwnerRequired
	}
	return p.settings(ctx, p.store, ownerID)
}

func (p *Planner) SaveSettings(ctx context.Context, ownerID string, s Settings) (Settings, error) {
	if ownerID == "" {
		return Settings{}, ErrOwnerRequired
	}
	s = s.withDefaults(p.defaults)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	err := p.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockAvailability(ctx, ownerID); err != nil {
			return persistence("lock availability", err)
		}
		if err := tx.SaveSettings(ctx, ownerID, s); err != nil {
			return persistence("save settings", err)
		}
		evt, err := outbox.NewEvent(outbox.EventSettingsUpdated, outbox.AggregateAvailability, ownerID, ownerID, s)
		if err != nil {
			return err
		}
		return persistence("append event", tx.AppendEvent(ctx, evt))
	})
	if err != nil {
		return Settings{}, persistence("settings transaction", err)
	}
	return s, nil
}
