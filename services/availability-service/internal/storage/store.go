// Package storage implements the scheduling store on PostgreSQL.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/servicehomie/platform/libs/db"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// queries holds the reads shared by Store and txStore.
type queries struct {
	db dbtx
}

type Store struct {
	queries
	pool *db.Pool
}

var _ scheduling.Store = (*Store)(nil)

func NewStore(pool *db.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(scheduling.Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txStore{queries: queries{db: tx}, tx: tx})
	})
}

// txStore is the write side, only reachable inside InTx.
type txStore struct {
	queries
	tx pgx.Tx
}

var _ scheduling.Tx = (*txStore)(nil)

const activeSlotIndex = "bookings_active_slot_uq"

// mapErr translates driver errors into the errors scheduling callers match on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduling.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotIndex:
			return availability.ErrSlotConflict
		case pgErr.Code == "22P02":
			// malformed uuid in a lookup
			return scheduling.ErrNotFound
		}
	}
	return err
}

func IsConflict(err error) bool {
	return errors.Is(mapErr(err), availability.ErrSlotConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(mapErr(err), scheduling.ErrNotFound)
}

// Migrate applies every embedded .sql file in name order. The statements are
// idempotent, so it is safe on every start.
func Migrate(ctx context.Context, pool *db.Pool, files fs.FS) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := fs.ReadFile(files, name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return &scheduling.PersistenceError{Op: "migrate " + name, Err: err}
		}
	}
	return nil
}
