package scheduling

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/servicehomie/platform/libs/metrics"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

type BookingRequest struct {
	OwnerID       string
	ServiceID     string
	Date          time.Time
	StartTime     string
	CustomerName  string
	CustomerEmail string
}

type bookingStatusChanged struct {
	BookingID string              `json:"booking_id"`
	OwnerID   string              `json:"owner_id"`
	From      model.BookingStatus `json:"from"`
	To        model.BookingStatus `json:"to"`
	Reason    string              `json:"reason,omitempty"`
}

func (r BookingRequest) validate() error {
	if r.OwnerID == "" {
		return ErrOwnerRequired
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return invalid("customer_name is required")
	}
	if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
		return invalid("customer_email is not a valid address")
	}
	return nil
}

// BookSlot validates the selection and creates a pending booking in one
// transaction. The owner's day is locked first, so two requests for the same
// slot cannot both pass validation.
func (p *Planner) BookSlot(ctx context.Context, req BookingRequest) (model.Booking, error) {
	b, err := p.bookSlot(ctx, req)
	switch {
	case err == nil:
		metrics.IncBooking("created")
	case errors.Is(err, availability.ErrSlotConflict):
		metrics.IncBooking("conflict")
	case errors.Is(err, availability.ErrInvalidSlot), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrServiceInactive), errors.Is(err, ErrNotFound):
		metrics.IncBooking("invalid")
	default:
		metrics.IncBooking("error")
	}
	return b, err
}

func (p *Planner) bookSlot(ctx context.Context, req BookingRequest) (model.Booking, error) {
	if err := req.validate(); err != nil {
		return model.Booking{}, err
	}
	day := availability.Day(req.Date)

	var booking model.Booking
	err := p.store.InTx(ctx, func(tx Tx) error {
		svc, err := p.bookableService(ctx, tx, req.OwnerID, req.ServiceID)
		if err != nil {
			return err
		}
		if err := tx.LockBookingDay(ctx, req.OwnerID, day); err != nil {
			return persistence("lock booking day", err)
		}
		slot, err := p.validate(ctx, tx, svc, day, req.StartTime)
		if err != nil {
			return err
		}

		now := p.now().UTC()
		booking = model.Booking{
			ID:              p.newID(),
			OwnerID:         req.OwnerID,
			ServiceID:       svc.ID,
			CustomerName:    strings.TrimSpace(req.CustomerName),
			CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
			BookingDate:     slot.Date,
			StartTime:       slot.Time,
			TotalPriceCents: svc.PriceCents,
			Status:          model.BookingPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return persistence("insert booking", err)
		}
		evt, err := outbox.NewEvent(outbox.EventBookingCreated, outbox.AggregateBooking, booking.ID, booking.OwnerID, booking)
		if err != nil {
			return err
		}
		return persistence("append event", tx.AppendEvent(ctx, evt))
	})
	if err != nil {
		return model.Booking{}, persistence("booking transaction", err)
	}
	p.logger.Info("booking created",
		"owner_id", booking.OwnerID,
		"booking_id", booking.ID,
		"date", availability.DateKey(booking.BookingDate),
		"start_time", booking.StartTime,
	)
	return booking, nil
}

func (p *Planner) Booking(ctx context.Context, ownerID, id string) (model.Booking, error) {
	if ownerID == "" {
		return model.Booking{}, ErrOwnerRequired
	}
	b, err := p.store.Booking(ctx, ownerID, id)
	if err != nil {
		return model.Booking{}, persistence("load booking", err)
	}
	return b, nil
}

// ListBookings returns bookings dated in [from, to).
func (p *Planner) ListBookings(ctx context.Context, ownerID string, from, to time.Time) ([]model.Booking, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	from, to = availability.Day(from), availability.Day(to)
	if !from.Before(to) {
		return nil, invalid("from must be before to")
	}
	bookings, err := p.store.Bookings(ctx, ownerID, from, to)
	if err != nil {
		return nil, persistence("list bookings", err)
	}
	return bookings, nil
}

// UpdateBookingStatus moves a booking along pending -> confirmed -> completed,
// or to cancelled from pending or confirmed.
func (p *Planner) UpdateBookingStatus(ctx context.Context, ownerID, id string, next model.BookingStatus) (model.Booking, error) {
	if ownerID == "" {
		return model.Booking{}, ErrOwnerRequired
	}
	if !next.Valid() {
		return model.Booking{}, invalid("unknown booking status %q", next)
	}
	var b model.Booking
	err := p.store.InTx(ctx, func(tx Tx) error {
		var err error
		b, err = p.transition(ctx, tx, ownerID, id, next, "")
		return err
	})
	if err != nil {
		return model.Booking{}, persistence("booking status transaction", err)
	}
	return b, nil
}

func (p *Planner) transition(ctx context.Context, tx Tx, ownerID, id string, next model.BookingStatus, reason string) (model.Booking, error) {
	b, err := tx.LockBooking(ctx, ownerID, id)
	if err != nil {
		return model.Booking{}, persistence("load booking", err)
	}
	if !b.Status.CanTransitionTo(next) {
		return model.Booking{}, ErrInvalidTransition
	}
	if b.Status == next {
		return b, nil
	}

	now := p.now().UTC()
	if err := tx.SetBookingStatus(ctx, ownerID, id, next, now); err != nil {
		return model.Booking{}, persistence("set booking status", err)
	}
	evt, err := outbox.NewEvent(outbox.EventBookingStatusChanged, outbox.AggregateBooking, id, ownerID,
		bookingStatusChanged{BookingID: id, OwnerID: ownerID, From: b.Status, To: next, Reason: reason})
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return model.Booking{}, persistence("append event", err)
	}
	b.Status = next
	b.UpdatedAt = now
	return b, nil
}

// AttachPaymentSession records the checkout session opened for a pending booking.
func (p *Planner) AttachPaymentSession(ctx context.Context, ownerID, id, sessionID string) error {
	if ownerID == "" {
		return ErrOwnerRequired
	}
	err := p.store.InTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, ownerID, id)
		if err != nil {
			return persistence("load booking", err)
		}
		if b.Status != model.BookingPending {
			return ErrInvalidTransition
		}
		return persistence("set payment session", tx.SetPaymentSession(ctx, ownerID, id, sessionID))
	})
	return persistence("payment session transaction", err)
}

// PaymentOutcome reports what a payment notification did to its booking.
type PaymentOutcome string

const (
	PaymentApplied   PaymentOutcome = "applied"
	PaymentDuplicate PaymentOutcome = "duplicate"

	// PaymentRefundRequired means the money arrived for a booking that was
	// cancelled first. The payment is recorded and announced, never applied.
	PaymentRefundRequired PaymentOutcome = "refund_required"
)

type paymentOrphaned struct {
	BookingID string              `json:"booking_id"`
	OwnerID   string              `json:"owner_id"`
	EventID   string              `json:"provider_event_id"`
	SessionID string              `json:"payment_session_id,omitempty"`
	Status    model.BookingStatus `json:"status"`
}

// ConfirmPaid confirms a booking once its payment succeeded. eventID makes
// redelivered notifications a no-op. Every outcome is terminal so the
// provider stops retrying.
func (p *Planner) ConfirmPaid(ctx context.Context, eventID, ownerID, bookingID string) (PaymentOutcome, error) {
	if ownerID == "" {
		return "", ErrOwnerRequired
	}
	outcome := PaymentDuplicate
	err := p.store.InTx(ctx, func(tx Tx) error {
		fresh, err := tx.ClaimWebhookEvent(ctx, eventID)
		if err != nil {
			return persistence("claim webhook event", err)
		}
		if !fresh {
			return nil
		}
		b, err := tx.LockBooking(ctx, ownerID, bookingID)
		if err != nil {
			return persistence("load booking", err)
		}
		switch b.Status {
		case model.BookingPending:
			if _, err := p.transition(ctx, tx, ownerID, bookingID, model.BookingConfirmed, "payment_completed"); err != nil {
				return err
			}
			outcome = PaymentApplied
		case model.BookingCancelled:
			evt, err := outbox.NewEvent(outbox.EventBookingPaymentOrphaned, outbox.AggregateBooking, bookingID, ownerID,
				paymentOrphaned{BookingID: bookingID, OwnerID: ownerID, EventID: eventID, SessionID: b.PaymentSessionID, Status: b.Status})
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, evt); err != nil {
				return persistence("append event", err)
			}
			outcome = PaymentRefundRequired
		}
		// confirmed and completed bookings are already paid
		return nil
	})
	if err != nil {
		return "", persistence("confirm payment transaction", err)
	}
	if outcome == PaymentRefundRequired {
		p.logger.Warn("payment received for cancelled booking", "owner_id", ownerID, "booking_id", bookingID, "provider_event_id", eventID)
	}
	return outcome, nil
}
