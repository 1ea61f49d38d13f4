package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	default:
		return false
	}
}

// BlocksSlot reports whether a booking in this status occupies its start time.
func (s BookingStatus) BlocksSlot() bool {
	return s.Valid() && s != BookingCancelled
}

// CanTransitionTo reports whether a booking may move from s to next.
// Staying in the same status is allowed so status updates can be retried.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCompleted || next == BookingCancelled
	default:
		return false
	}
}

type Booking struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	ServiceID        string        `json:"service_id"`
	CustomerName     string        `json:"customer_name"`
	CustomerEmail    string        `json:"customer_email"`
	BookingDate      time.Time     `json:"booking_date"`
	StartTime        string        `json:"start_time"`
	TotalPriceCents  int64         `json:"total_price_cents"`
	Status           BookingStatus `json:"status"`
	PaymentSessionID string        `json:"payment_session_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
