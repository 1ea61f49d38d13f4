package scheduling

import (
	"context"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

// Reader is the owner-scoped read side of the store. Lookups of a single
// missing row return ErrNotFound.
type Reader interface {
	// Weekly returns the pattern and its version; an owner that never saved
	// one has an empty pattern at version 0.
	Weekly(ctx context.Context, ownerID string) (availability.WeeklyAvailability, int64, error)
	Overrides(ctx context.Context, ownerID string) (availability.Overrides, error)
	Settings(ctx context.Context, ownerID string) (Settings, error)
	Service(ctx context.Context, ownerID, id string) (model.Service, error)
	Services(ctx context.Context, ownerID string) ([]model.Service, error)
	Booking(ctx context.Context, ownerID, id string) (model.Booking, error)
	// Bookings lists bookings with from <= booking_date < to, ordered by date and start time.
	Bookings(ctx context.Context, ownerID string, from, to time.Time) ([]model.Booking, error)
}

// Tx is a store transaction. Writes become visible on commit together with
// the outbox events appended in the same transaction.
type Tx interface {
	Reader

	// LockAvailability serializes availability edits for one owner and
	// returns the current weekly version.
	LockAvailability(ctx context.Context, ownerID string) (int64, error)
	// SaveWeekly applies row changes and returns the bumped version.
	SaveWeekly(ctx context.Context, ownerID string, changes []availability.WindowChange) (int64, error)
	SaveOverrides(ctx context.Context, ownerID string, changes []availability.OverrideChange) error
	SaveSettings(ctx context.Context, ownerID string, s Settings) error

	// LockBookingDay serializes booking creation for one owner and date.
	LockBookingDay(ctx context.Context, ownerID string, date time.Time) error
	LockBooking(ctx context.Context, ownerID, id string) (model.Booking, error)
	// InsertBooking returns availability.ErrSlotConflict when the slot is
	// already held by a non-cancelled booking.
	InsertBooking(ctx context.Context, b model.Booking) error
	SetBookingStatus(ctx context.Context, ownerID, id string, status model.BookingStatus, at time.Time) error
	SetPaymentSession(ctx context.Context, ownerID, id, sessionID string) error

	InsertService(ctx context.Context, s model.Service) error
	SetServiceStatus(ctx context.Context, ownerID, id string, status model.ServiceStatus) error

	// ClaimWebhookEvent records eventID and reports false if it was seen before.
	ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	Reader
	InTx(ctx context.Context, fn func(Tx) error) error
}
