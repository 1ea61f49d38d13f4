package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

func (q queries) Weekly(ctx context.Context, ownerID string) (availability.WeeklyAvailability, int64, error) {
	var wa availability.WeeklyAvailability
	var version int64
	err := q.db.QueryRow(ctx, `
		SELECT coalesce((SELECT version FROM availability_versions WHERE owner_id = $1), 0)
	`, ownerID).Scan(&version)
	if err != nil {
		return wa, 0, err
	}

	rows, err := q.db.Query(ctx, `
		SELECT weekday, start_time, end_time
		FROM availability_windows
		WHERE owner_id = $1
		ORDER BY weekday, position
	`, ownerID)
	if err != nil {
		return wa, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var day int16
		var w availability.TimeWindow
		if err := rows.Scan(&day, &w.Start, &w.End); err != nil {
			return wa, 0, err
		}
		if err := wa.AddWindow(availability.Weekday(day), w); err != nil {
			return wa, 0, err
		}
	}
	return wa, version, rows.Err()
}

func (q queries) Overrides(ctx context.Context, ownerID string) (availability.Overrides, error) {
	rows, err := q.db.Query(ctx, `
		SELECT override_date, state
		FROM date_overrides
		WHERE owner_id = $1
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := availability.Overrides{}
	for rows.Next() {
		var date time.Time
		var raw string
		if err := rows.Scan(&date, &raw); err != nil {
			return nil, err
		}
		state, err := availability.ParseOverrideState(raw)
		if err != nil {
			return nil, err
		}
		out.Set(date, state)
	}
	return out, rows.Err()
}

func (q queries) Settings(ctx context.Context, ownerID string) (scheduling.Settings, error) {
	var s scheduling.Settings
	err := q.db.QueryRow(ctx, `
		SELECT default_start, default_end, horizon_days, slot_step_minutes
		FROM owner_settings
		WHERE owner_id = $1
	`, ownerID).Scan(&s.DefaultWindow.Start, &s.DefaultWindow.End, &s.HorizonDays, &s.SlotStepMinutes)
	return s, mapErr(err)
}

func (t *txStore) LockAvailability(ctx context.Context, ownerID string) (int64, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availability_versions (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return 0, err
	}
	var version int64
	err = t.tx.QueryRow(ctx, `
		SELECT version FROM availability_versions WHERE owner_id = $1 FOR UPDATE
	`, ownerID).Scan(&version)
	return version, err
}

// SaveWeekly upserts changed positions, deletes trailing ones, and bumps the
// version, all in one round trip.
func (t *txStore) SaveWeekly(ctx context.Context, ownerID string, changes []availability.WindowChange) (int64, error) {
	batch := &pgx.Batch{}
	for _, c := range changes {
		if c.Removed {
			batch.Queue(`
				DELETE FROM availability_windows
				WHERE owner_id = $1 AND weekday = $2 AND position = $3
			`, ownerID, int16(c.Day), c.Position)
			continue
		}
		batch.Queue(`
			INSERT INTO availability_windows (owner_id, weekday, position, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id, weekday, position) DO UPDATE
			SET start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time
		`, ownerID, int16(c.Day), c.Position, c.Window.Start, c.Window.End)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}

	var version int64
	err := t.tx.QueryRow(ctx, `
		UPDATE availability_versions
		SET version = version + 1, updated_at = now()
		WHERE owner_id = $1
		RETURNING version
	`, ownerID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("availability for %s was not locked before saving", ownerID)
	}
	return version, err
}

func (t *txStore) SaveOverrides(ctx context.Context, ownerID string, changes []availability.OverrideChange) error {
	batch := &pgx.Batch{}
	for _, c := range changes {
		date, err := availability.ParseDate(c.Date)
		if err != nil {
			return err
		}
		if c.State == availability.Inherit {
			batch.Queue(`DELETE FROM date_overrides WHERE owner_id = $1 AND override_date = $2`, ownerID, date)
			continue
		}
		batch.Queue(`
			INSERT INTO date_overrides (owner_id, override_date, state)
			VALUES ($1, $2, $3)
			ON CONFLICT (owner_id, override_date) DO UPDATE
			SET state = EXCLUDED.state, updated_at = now()
		`, ownerID, date, c.State.String())
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txStore) SaveSettings(ctx context.Context, ownerID string, s scheduling.Settings) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO owner_settings (owner_id, default_start, default_end, horizon_days, slot_step_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE
		SET default_start = EXCLUDED.default_start,
			default_end = EXCLUDED.default_end,
			horizon_days = EXCLUDED.horizon_days,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			updated_at = now()
	`, ownerID, s.DefaultWindow.Start, s.DefaultWindow.End, s.HorizonDays, s.SlotStepMinutes)
	return err
}
