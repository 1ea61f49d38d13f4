package scheduling

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

// memState is one owner-agnostic snapshot of everything the store holds.
type memState struct {
	weekly    map[string]availability.WeeklyAvailability
	versions  map[string]int64
	overrides map[string]availability.Overrides
	settings  map[string]Settings
	services  map[string]model.Service
	bookings  map[string]model.Booking
	webhooks  map[string]bool
	events    []outbox.Event
}

func newMemState() *memState {
	return &memState{
		weekly:    map[string]availability.WeeklyAvailability{},
		versions:  map[string]int64{},
		overrides: map[string]availability.Overrides{},
		settings:  map[string]Settings{},
		services:  map[string]model.Service{},
		bookings:  map[string]model.Booking{},
		webhooks:  map[string]bool{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		weekly:    map[string]availability.WeeklyAvailability{},
		versions:  maps.Clone(s.versions),
		overrides: map[string]availability.Overrides{},
		settings:  maps.Clone(s.settings),
		services:  maps.Clone(s.services),
		bookings:  maps.Clone(s.bookings),
		webhooks:  maps.Clone(s.webhooks),
		events:    slices.Clone(s.events),
	}
	for k, v := range s.weekly {
		c.weekly[k] = v.Clone()
	}
	for k, v := range s.overrides {
		c.overrides[k] = v.Clone()
	}
	return c
}

// memStore is an in-memory Store. Transactions run serially on a copy that
// replaces the state only when fn succeeds.
type memStore struct {
	mu      sync.Mutex
	state   *memState
	failOn  string
	inserts int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{memReader: memReader{s: work}, store: m}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) reader() memReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{s: m.state}
}

func (m *memStore) Weekly(ctx context.Context, ownerID string) (availability.WeeklyAvailability, int64, error) {
	return m.reader().Weekly(ctx, ownerID)
}
func (m *memStore) Overrides(ctx context.Context, ownerID string) (availability.Overrides, error) {
	return m.reader().Overrides(ctx, ownerID)
}
func (m *memStore) Settings(ctx context.Context, ownerID string) (Settings, error) {
	return m.reader().Settings(ctx, ownerID)
}
func (m *memStore) Service(ctx context.Context, ownerID, id string) (model.Service, error) {
	return m.reader().Service(ctx, ownerID, id)
}
func (m *memStore) Services(ctx context.Context, ownerID string) ([]model.Service, error) {
	return m.reader().Services(ctx, ownerID)
}
func (m *memStore) Booking(ctx context.Context, ownerID, id string) (model.Booking, error) {
	return m.reader().Booking(ctx, ownerID, id)
}
func (m *memStore) Bookings(ctx context.Context, ownerID string, from, to time.Time) ([]model.Booking, error) {
	return m.reader().Bookings(ctx, ownerID, from, to)
}

type memReader struct {
	s *memState
}

func (r memReader) Weekly(_ context.Context, ownerID string) (availability.WeeklyAvailability, int64, error) {
	return r.s.weekly[ownerID].Clone(), r.s.versions[ownerID], nil
}

func (r memReader) Overrides(_ context.Context, ownerID string) (availability.Overrides, error) {
	return r.s.overrides[ownerID].Clone(), nil
}

func (r memReader) Settings(_ context.Context, ownerID string) (Settings, error) {
	s, ok := r.s.settings[ownerID]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return s, nil
}

func (r memReader) Service(_ context.Context, ownerID, id string) (model.Service, error) {
	s, ok := r.s.services[id]
	if !ok || s.OwnerID != ownerID {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (r memReader) Services(_ context.Context, ownerID string) ([]model.Service, error) {
	var out []model.Service
	for _, s := range r.s.services {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memReader) Booking(_ context.Context, ownerID, id string) (model.Booking, error) {
	b, ok := r.s.bookings[id]
	if !ok || b.OwnerID != ownerID {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (r memReader) Bookings(_ context.Context, ownerID string, from, to time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range r.s.bookings {
		if b.OwnerID == ownerID && !b.BookingDate.Before(from) && b.BookingDate.Before(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookingDate.Equal(out[j].BookingDate) {
			return out[i].BookingDate.Before(out[j].BookingDate)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

type memTx struct {
	memReader
	store *memStore
}

var errInjected = errors.New("injected failure")

func (t *memTx) fail(op string) error {
	if t.store.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) LockAvailability(_ context.Context, ownerID string) (int64, error) {
	return t.s.versions[ownerID], t.fail("LockAvailability")
}

func (t *memTx) SaveWeekly(_ context.Context, ownerID string, changes []availability.WindowChange) (int64, error) {
	if err := t.fail("SaveWeekly"); err != nil {
		return 0, err
	}
	wa := t.s.weekly[ownerID].Clone()
	for _, c := range changes {
		day := wa.Days[c.Day]
		if c.Removed {
			if c.Position < len(day) {
				wa.Days[c.Day] = day[:c.Position]
			}
			continue
		}
		if c.Position < len(day) {
			day[c.Position] = c.Window
		} else {
			day = append(day, c.Window)
		}
		wa.Days[c.Day] = day
	}
	for d := range wa.Days {
		if len(wa.Days[d]) == 0 {
			wa.Days[d] = nil
		}
	}
	t.s.weekly[ownerID] = wa
	t.s.versions[ownerID]++
	return t.s.versions[ownerID], nil
}

func (t *memTx) SaveOverrides(_ context.Context, ownerID string, changes []availability.OverrideChange) error {
	if err := t.fail("SaveOverrides"); err != nil {
		return err
	}
	o := t.s.overrides[ownerID].Clone()
	for _, c := range changes {
		d, _ := availability.ParseDate(c.Date)
		o.Set(d, c.State)
	}
	t.s.overrides[ownerID] = o
	return nil
}

func (t *memTx) SaveSettings(_ context.Context, ownerID string, s Settings) error {
	t.s.settings[ownerID] = s
	return t.fail("SaveSettings")
}

func (t *memTx) LockBookingDay(context.Context, string, time.Time) error { return nil }

func (t *memTx) LockBooking(ctx context.Context, ownerID, id string) (model.Booking, error) {
	return t.Booking(ctx, ownerID, id)
}

func (t *memTx) InsertBooking(_ context.Context, b model.Booking) error {
	if err := t.fail("InsertBooking"); err != nil {
		return err
	}
	for _, other := range t.s.bookings {
		if other.OwnerID == b.OwnerID && other.BookingDate.Equal(b.BookingDate) && other.StartTime == b.StartTime && other.Status.BlocksSlot() {
			return availability.ErrSlotConflict
		}
	}
	t.s.bookings[b.ID] = b
	t.store.inserts++
	return nil
}

func (t *memTx) SetBookingStatus(_ context.Context, ownerID, id string, status model.BookingStatus, at time.Time) error {
	b := t.s.bookings[id]
	b.Status = status
	b.UpdatedAt = at
	t.s.bookings[id] = b
	return nil
}

func (t *memTx) SetPaymentSession(_ context.Context, ownerID, id, sessionID string) error {
	b := t.s.bookings[id]
	b.PaymentSessionID = sessionID
	t.s.bookings[id] = b
	return nil
}

func (t *memTx) InsertService(_ context.Context, s model.Service) error {
	t.s.services[s.ID] = s
	return nil
}

func (t *memTx) SetServiceStatus(_ context.Context, ownerID, id string, status model.ServiceStatus) error {
	s := t.s.services[id]
	s.Status = status
	t.s.services[id] = s
	return nil
}

func (t *memTx) ClaimWebhookEvent(_ context.Context, eventID string) (bool, error) {
	if t.s.webhooks[eventID] {
		return false, nil
	}
	t.s.webhooks[eventID] = true
	return true, nil
}

func (t *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	if err := t.fail("AppendEvent"); err != nil {
		return err
	}
	t.s.events = append(t.s.events, evt)
	return nil
}
