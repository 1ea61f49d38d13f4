// Package cache keeps a per-owner copy of date overrides and settings in Redis.
// PostgreSQL stays the source of truth; the cache only saves round trips on
// public reads and batches an owner's edits until Sync.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/servicehomie/platform/libs/metrics"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

const DefaultTTL = 10 * time.Minute

// Source is the server-side state a cache is seeded from and synced to.
// *scheduling.Planner satisfies it.
type Source interface {
	Overlay(ctx context.Context, ownerID string) (scheduling.Overlay, error)
	ApplyOverrides(ctx context.Context, ownerID string, changes []availability.OverrideChange) (availability.Overrides, error)
	SaveSettings(ctx context.Context, ownerID string, s scheduling.Settings) (scheduling.Settings, error)
}

type Manager struct {
	rdb    redis.Cmdable
	src    Source
	ttl    time.Duration
	logger *slog.Logger
}

func NewManager(rdb redis.Cmdable, src Source, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{rdb: rdb, src: src, ttl: ttl, logger: logger}
}

func Key(ownerID string) string {
	return "availability:cache:" + ownerID
}

// Open returns a loaded cache for ownerID.
func (m *Manager) Open(ctx context.Context, ownerID string) (*ClientAvailabilityCache, error) {
	if ownerID == "" {
		return nil, scheduling.ErrOwnerRequired
	}
	c := &ClientAvailabilityCache{m: m, ownerID: ownerID}
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Overlay returns the cached overlay for ownerID. Redis failures fall back to
// the source so public reads keep working without the cache.
func (m *Manager) Overlay(ctx context.Context, ownerID string) (scheduling.Overlay, error) {
	c, err := m.Open(ctx, ownerID)
	if err != nil {
		return scheduling.Overlay{}, err
	}
	return c.Overlay(), nil
}

// Invalidate drops the cached blob so the next Load reads the source.
func (m *Manager) Invalidate(ctx context.Context, ownerID string) error {
	if err := m.rdb.Del(ctx, Key(ownerID)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", Key(ownerID), err)
	}
	return nil
}

func (m *Manager) read(ctx context.Context, ownerID string) (scheduling.Overlay, bool, error) {
	var ov scheduling.Overlay
	raw, err := m.rdb.Get(ctx, Key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ov, false, nil
	}
	if err != nil {
		return ov, false, err
	}
	if err := json.Unmarshal(raw, &ov); err != nil {
		return ov, false, fmt.Errorf("decode %s: %w", Key(ownerID), err)
	}
	return ov, true, nil
}

func (m *Manager) write(ctx context.Context, ownerID string, ov scheduling.Overlay) error {
	raw, err := json.Marshal(ov)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, Key(ownerID), raw, m.ttl).Err()
}

// ClientAvailabilityCache is one owner's overrides and settings. Mutations
// only touch memory; Flush writes Redis and Sync writes the source first.
type ClientAvailabilityCache struct {
	m       *Manager
	ownerID string

	mu    sync.Mutex
	base  scheduling.Overlay // as last seen in the source
	cur   scheduling.Overlay
	dirty bool
}

func (c *ClientAvailabilityCache) OwnerID() string { return c.ownerID }

// Load replaces in-memory state with the Redis blob, or with the source on a
// miss, seeding the blob. Owners the source knows nothing about are not
// seeded, so lookups of made-up owners leave Redis untouched. Unsaved
// mutations are discarded.
func (c *ClientAvailabilityCache) Load(ctx context.Context) error {
	ov, ok, err := c.m.read(ctx, c.ownerID)
	switch {
	case err != nil:
		metrics.IncCache("error")
		c.m.logger.Warn("availability cache read failed", "owner_id", c.ownerID, "err", err)
	case ok:
		metrics.IncCache("hit")
	default:
		metrics.IncCache("miss")
	}

	if !ok {
		ov, err = c.m.src.Overlay(ctx, c.ownerID)
		if err != nil {
			return err
		}
		if ov.Known {
			if werr := c.m.write(ctx, c.ownerID, ov); werr != nil {
				c.m.logger.Warn("availability cache seed failed", "owner_id", c.ownerID, "err", werr)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = clone(ov)
	c.cur = clone(ov)
	c.dirty = false
	return nil
}

// Overlay returns a copy of the current state, including unsynced edits.
func (c *ClientAvailabilityCache) Overlay() scheduling.Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.cur)
}

func (c *ClientAvailabilityCache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// ToggleDate flips the effective availability of date against weekly and
// returns the stored state.
func (c *ClientAvailabilityCache) ToggleDate(date time.Time, weekly availability.WeeklyAvailability) availability.OverrideState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	return availability.ToggleSpecificDate(date, weekly, &c.cur.Overrides)
}

// SetOverride stores state for date; Inherit clears it.
func (c *ClientAvailabilityCache) SetOverride(date time.Time, state availability.OverrideState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	c.cur.Overrides.Set(date, state)
}

func (c *ClientAvailabilityCache) SetSettings(s scheduling.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	c.cur.Settings = s
	return nil
}

// Flush writes the current state to Redis without touching the source.
func (c *ClientAvailabilityCache) Flush(ctx context.Context) error {
	ov := c.Overlay()
	if err := c.m.write(ctx, c.ownerID, ov); err != nil {
		return fmt.Errorf("flush %s: %w", Key(c.ownerID), err)
	}
	return nil
}

// Sync pushes the dates and settings changed since the last load to the
// source, adopts the source's result, and flushes. Dates this cache never
// touched are left as the source has them.
func (c *ClientAvailabilityCache) Sync(ctx context.Context) error {
	c.mu.Lock()
	base, cur := clone(c.base), clone(c.cur)
	c.mu.Unlock()

	next := cur
	if changes := availability.DiffOverrides(base.Overrides, cur.Overrides); len(changes) > 0 {
		merged, err := c.m.src.ApplyOverrides(ctx, c.ownerID, changes)
		if err != nil {
			return err
		}
		next.Overrides = merged
	}
	if cur.Settings != base.Settings {
		saved, err := c.m.src.SaveSettings(ctx, c.ownerID, cur.Settings)
		if err != nil {
			return err
		}
		next.Settings = saved
	}

	c.mu.Lock()
	c.base = clone(next)
	c.cur = clone(next)
	c.dirty = false
	c.mu.Unlock()
	return c.Flush(ctx)
}

func clone(ov scheduling.Overlay) scheduling.Overlay {
	ov.Overrides = ov.Overrides.Clone()
	return ov
}
