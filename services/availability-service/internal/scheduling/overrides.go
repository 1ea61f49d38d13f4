package scheduling

import (
	"context"
	"errors"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

// Overlay is the per-owner state layered over the weekly pattern when
// resolving dates. The client availability cache holds one per owner.
type Overlay struct {
	Overrides availability.Overrides `json:"overrides"`
	Settings  Settings               `json:"settings"`

	// Known is set by Planner.Overlay when the owner has saved anything:
	// a weekly pattern, settings or overrides. It is not cached.
	Known bool `json:"-"`
}

type overridesUpdated struct {
	OwnerID string                        `json:"owner_id"`
	Changes []availability.OverrideChange `json:"changes"`
}

func (p *Planner) Overrides(ctx context.Context, ownerID string) (availability.Overrides, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	o, err := p.store.Overrides(ctx, ownerID)
	if err != nil {
		return nil, persistence("load overrides", err)
	}
	return o, nil
}

// Overlay loads overrides and settings from the source of truth.
func (p *Planner) Overlay(ctx context.Context, ownerID string) (Overlay, error) {
	o, err := p.Overrides(ctx, ownerID)
	if err != nil {
		return Overlay{}, err
	}
	ov := Overlay{Overrides: o, Settings: p.defaults, Known: len(o) > 0}
	s, err := p.store.Settings(ctx, ownerID)
	switch {
	case err == nil:
		ov.Settings = s.withDefaults(p.defaults)
		ov.Known = true
	case !errors.Is(err, ErrNotFound):
		return Overlay{}, persistence("load settings", err)
	}
	if !ov.Known {
		_, version, err := p.store.Weekly(ctx, ownerID)
		if err != nil {
			return Overlay{}, persistence("load weekly", err)
		}
		ov.Known = version > 0
	}
	return ov, nil
}

// ApplyOverrides applies date-level changes on top of the stored set and
// returns the resulting set. Only dates named in changes are touched, so
// concurrent edits to other dates survive.
func (p *Planner) ApplyOverrides(ctx context.Context, ownerID string, changes []availability.OverrideChange) (availability.Overrides, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	for _, c := range changes {
		if _, err := availability.ParseDate(c.Date); err != nil {
			return nil, err
		}
	}

	var result availability.Overrides
	err := p.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockAvailability(ctx, ownerID); err != nil {
			return persistence("lock availability", err)
		}
		current, err := tx.Overrides(ctx, ownerID)
		if err != nil {
			return persistence("load overrides", err)
		}

		next := current.Clone()
		for _, c := range changes {
			d, _ := availability.ParseDate(c.Date)
			next.Set(d, c.State)
		}
		result = next

		diff := availability.DiffOverrides(current, next)
		if len(diff) == 0 {
			return nil
		}
		if err := tx.SaveOverrides(ctx, ownerID, diff); err != nil {
			return persistence("save overrides", err)
		}
		evt, err := outbox.NewEvent(outbox.EventOverrideUpdated, outbox.AggregateAvailability, ownerID, ownerID,
			overridesUpdated{OwnerID: ownerID, Changes: diff})
		if err != nil {
			return err
		}
		return persistence("append event", tx.AppendEvent(ctx, evt))
	})
	if err != nil {
		return nil, persistence("overrides transaction", err)
	}
	return result, nil
}
