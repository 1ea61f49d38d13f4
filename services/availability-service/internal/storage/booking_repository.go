package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

const bookingColumns = `
	id::text, owner_id, service_id::text, customer_name, customer_email, booking_date, start_time,
	total_price_cents, status, coalesce(payment_session_id, ''), created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.ServiceID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.BookingDate,
		&b.StartTime,
		&b.TotalPriceCents,
		&b.Status,
		&b.PaymentSessionID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const serviceColumns = `id::text, owner_id, name, description, price_cents, duration_minutes, status, created_at`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.PriceCents, &s.DurationMinutes, &s.Status, &s.CreatedAt)
	return s, err
}

func (q queries) Service(ctx context.Context, ownerID, id string) (model.Service, error) {
	s, err := scanService(q.db.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	return s, mapErr(err)
}

func (q queries) Services(ctx context.Context, ownerID string) ([]model.Service, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE owner_id = $1
		ORDER BY name, created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		return scanService(row)
	})
}

func (q queries) Booking(ctx context.Context, ownerID, id string) (model.Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	return b, mapErr(err)
}

func (q queries) Bookings(ctx context.Context, ownerID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = $1
			AND booking_date >= $2
			AND booking_date < $3
		ORDER BY booking_date, start_time, created_at
	`, ownerID, availability.Day(from), availability.Day(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Booking, error) {
		return scanBooking(row)
	})
}

// LockBookingDay takes a transaction-scoped advisory lock on owner and date.
func (t *txStore) LockBookingDay(ctx context.Context, ownerID string, date time.Time) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"booking:"+ownerID+":"+availability.DateKey(date))
	return err
}

func (t *txStore) LockBooking(ctx context.Context, ownerID, id string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, id, ownerID))
	return b, mapErr(err)
}

func (t *txStore) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, owner_id, service_id, customer_name, customer_email, booking_date, start_time,
			 total_price_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.OwnerID, b.ServiceID, b.CustomerName, b.CustomerEmail, availability.Day(b.BookingDate), b.StartTime,
		b.TotalPriceCents, b.Status, b.CreatedAt, b.UpdatedAt)
	return mapErr(err)
}

func (t *txStore) SetBookingStatus(ctx context.Context, ownerID, id string, status model.BookingStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = $3, updated_at = $4
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID, status, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (t *txStore) SetPaymentSession(ctx context.Context, ownerID, id, sessionID string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings SET payment_session_id = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID, sessionID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertService(ctx context.Context, s model.Service) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO services (id, owner_id, name, description, price_cents, duration_minutes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.OwnerID, s.Name, s.Description, s.PriceCents, s.DurationMinutes, s.Status, s.CreatedAt)
	return err
}

func (t *txStore) SetServiceStatus(ctx context.Context, ownerID, id string, status model.ServiceStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE services SET status = $3 WHERE id = $1 AND owner_id = $2
	`, id, ownerID, status)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (t *txStore) ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO processed_webhooks (event_id) VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}
