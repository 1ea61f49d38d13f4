package scheduling

import (
	"context"
	"errors"
	"strings"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

type ServiceInput struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	PriceCents      int64  `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (in ServiceInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return invalid("name is required")
	case in.PriceCents < 0:
		return invalid("price_cents must not be negative")
	case in.DurationMinutes <= 0 || in.DurationMinutes > 24*60:
		return invalid("duration_minutes must be between 1 and 1440")
	}
	return nil
}

func (p *Planner) CreateService(ctx context.Context, ownerID string, in ServiceInput) (model.Service, error) {
	if ownerID == "" {
		return model.Service{}, ErrOwnerRequired
	}
	if err := in.validate(); err != nil {
		return model.Service{}, err
	}

	svc := model.Service{
		ID:              p.newID(),
		OwnerID:         ownerID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		PriceCents:      in.PriceCents,
		DurationMinutes: in.DurationMinutes,
		Status:          model.ServiceActive,
		CreatedAt:       p.now().UTC(),
	}
	err := p.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertService(ctx, svc); err != nil {
			return persistence("insert service", err)
		}
		return p.appendServiceEvent(ctx, tx, svc)
	})
	if err != nil {
		return model.Service{}, persistence("service transaction", err)
	}
	return svc, nil
}

func (p *Planner) Service(ctx context.Context, ownerID, id string) (model.Service, error) {
	if ownerID == "" {
		return model.Service{}, ErrOwnerRequired
	}
	svc, err := p.store.Service(ctx, ownerID, id)
	if err != nil {
		return model.Service{}, persistence("load service", err)
	}
	return svc, nil
}

// ListServices returns the owner's catalogue; activeOnly hides inactive entries.
func (p *Planner) ListServices(ctx context.Context, ownerID string, activeOnly bool) ([]model.Service, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	all, err := p.store.Services(ctx, ownerID)
	if err != nil {
		return nil, persistence("list services", err)
	}
	if !activeOnly {
		return all, nil
	}
	out := make([]model.Service, 0, len(all))
	for _, s := range all {
		if s.Status == model.ServiceActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *Planner) SetServiceStatus(ctx context.Context, ownerID, id string, status model.ServiceStatus) (model.Service, error) {
	if ownerID == "" {
		return model.Service{}, ErrOwnerRequired
	}
	if !status.Valid() {
		return model.Service{}, invalid("unknown service status %q", status)
	}

	var svc model.Service
	err := p.store.InTx(ctx, func(tx Tx) error {
		var err error
		svc, err = tx.Service(ctx, ownerID, id)
		if err != nil {
			return persistence("load service", err)
		}
		if svc.Status == status {
			return nil
		}
		if err := tx.SetServiceStatus(ctx, ownerID, id, status); err != nil {
			return persistence("set service status", err)
		}
		svc.Status = status
		return p.appendServiceEvent(ctx, tx, svc)
	})
	if err != nil {
		return model.Service{}, persistence("service transaction", err)
	}
	return svc, nil
}

func (p *Planner) appendServiceEvent(ctx context.Context, tx Tx, svc model.Service) error {
	evt, err := outbox.NewEvent(outbox.EventServiceCatalogChanged, outbox.AggregateService, svc.ID, svc.OwnerID, svc)
	if err != nil {
		return err
	}
	return persistence("append event", tx.AppendEvent(ctx, evt))
}

// bookableService loads serviceID and rejects inactive services.
func (p *Planner) bookableService(ctx context.Context, r Reader, ownerID, serviceID string) (model.Service, error) {
	if ownerID == "" {
		return model.Service{}, ErrOwnerRequired
	}
	if serviceID == "" {
		return model.Service{}, invalid("service_id is required")
	}
	svc, err := r.Service(ctx, ownerID, serviceID)
	if errors.Is(err, ErrNotFound) {
		return model.Service{}, ErrNotFound
	}
	if err != nil {
		return model.Service{}, persistence("load service", err)
	}
	if svc.Status != model.ServiceActive {
		return model.Service{}, ErrServiceInactive
	}
	return svc, nil
}
