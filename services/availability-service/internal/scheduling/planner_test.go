package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

const owner = "owner-1"

var (
	nineToFive = availability.TimeWindow{Start: "09:00", End: "17:00"}
	// Monday 3 June 2024, 08:00 UTC.
	testNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
)

func newTestPlanner(store *memStore) *Planner {
	n := 0
	return NewPlanner(store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return testNow }),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := availability.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	return d
}

func eventTypes(s *memState) []string {
	var out []string
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestEditWeeklyBumpsVersionAndWritesEvent(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	view, err := p.AddWindow(ctx, owner, 0, 1, nineToFive)
	if err != nil {
		t.Fatalf("AddWindow: %v", err)
	}
	if view.Version != 1 || len(view.Weekly.Windows(1)) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	view, err = p.ToggleDay(ctx, owner, view.Version, 2)
	if err != nil {
		t.Fatalf("ToggleDay: %v", err)
	}
	if got := view.Weekly.Windows(2); len(got) != 1 || got[0] != DefaultSettings().DefaultWindow {
		t.Fatalf("expected Tuesday opened with the default window, got %v", got)
	}
	if view.Version != 2 {
		t.Fatalf("expected version 2, got %d", view.Version)
	}

	stored, version, _ := store.Weekly(ctx, owner)
	if version != 2 || !stored.IsOpen(1) || !stored.IsOpen(2) {
		t.Fatalf("store out of sync: version=%d weekly=%+v", version, stored)
	}
	if got := eventTypes(store.snapshot()); len(got) != 2 || got[0] != outbox.EventWeeklyUpdated {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestEditWeeklyRejectsStaleVersion(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	if _, err := p.AddWindow(ctx, owner, 0, 1, nineToFive); err != nil {
		t.Fatalf("AddWindow: %v", err)
	}
	_, err := p.RemoveWindow(ctx, owner, 7, 1, 0)
	if !errors.Is(err, ErrStaleOverwrite) {
		t.Fatalf("expected ErrStaleOverwrite, got %v", err)
	}
	if wa, _, _ := store.Weekly(ctx, owner); !wa.IsOpen(1) {
		t.Fatal("stale edit must not be applied")
	}
}

func TestEditWeeklyValidatesWindows(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	_, err := p.AddWindow(ctx, owner, 0, 3, availability.TimeWindow{Start: "17:00", End: "09:00"})
	if !errors.Is(err, availability.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := p.RemoveWindow(ctx, owner, 0, 3, 0); !errors.Is(err, availability.ErrWindowIndex) {
		t.Fatalf("expected ErrWindowIndex, got %v", err)
	}
	if len(store.snapshot().events) != 0 {
		t.Fatal("rejected edits must not emit events")
	}
}

func TestReplaceWindowMovesWindowInOneEdit(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	view, err := p.AddWindow(ctx, owner, 0, 2, availability.TimeWindow{Start: "09:00", End: "10:00"})
	if err != nil {
		t.Fatalf("AddWindow: %v", err)
	}
	if _, err := p.UpdateWindow(ctx, owner, view.Version, 2, 0, availability.FieldStart, "11:00"); !errors.Is(err, availability.ErrInvalidWindow) {
		t.Fatalf("start past end should fail, got %v", err)
	}

	moved := availability.TimeWindow{Start: "11:00", End: "12:00"}
	view, err = p.ReplaceWindow(ctx, owner, view.Version, 2, 0, moved)
	if err != nil {
		t.Fatalf("ReplaceWindow: %v", err)
	}
	if got := view.Weekly.Windows(2); len(got) != 1 || got[0] != moved {
		t.Fatalf("unexpected windows %v", got)
	}
}

func TestEditWeeklyWithoutChangesKeepsVersion(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	first, err := p.SetDayWindows(ctx, owner, 0, 1, []availability.TimeWindow{nineToFive})
	if err != nil {
		t.Fatalf("SetDayWindows: %v", err)
	}
	again, err := p.SetDayWindows(ctx, owner, first.Version, 1, []availability.TimeWindow{nineToFive})
	if err != nil {
		t.Fatalf("SetDayWindows: %v", err)
	}
	if again.Version != first.Version || len(store.snapshot().events) != 1 {
		t.Fatalf("no-op edit changed state: version %d -> %d", first.Version, again.Version)
	}
}

func TestEditWeeklyRollsBackOnFailure(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	store.failOn = "AppendEvent"
	_, err := p.AddWindow(ctx, owner, 0, 1, nineToFive)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "append event" || !errors.Is(err, errInjected) {
		t.Fatalf("expected append event PersistenceError, got %v", err)
	}
	if wa, version, _ := store.Weekly(ctx, owner); wa.IsOpen(1) || version != 0 {
		t.Fatal("failed transaction must not persist the weekly change")
	}
}

func TestOperationsRequireOwner(t *testing.T) {
	p := newTestPlanner(newMemStore())
	ctx := context.Background()

	if _, err := p.Weekly(ctx, ""); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("Weekly: expected ErrOwnerRequired, got %v", err)
	}
	if _, err := p.ToggleDay(ctx, "", 0, 1); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("ToggleDay: expected ErrOwnerRequired, got %v", err)
	}
	if _, err := p.ApplyOverrides(ctx, "", nil); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("ApplyOverrides: expected ErrOwnerRequired, got %v", err)
	}
	if _, err := p.BookSlot(ctx, BookingRequest{}); !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("BookSlot: expected ErrOwnerRequired, got %v", err)
	}
}

func TestApplyOverrides(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	got, err := p.ApplyOverrides(ctx, owner, []availability.OverrideChange{
		{Date: "2024-06-04", State: availability.ForceAvailable},
		{Date: "2024-06-10", State: availability.ForceUnavailable},
	})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two overrides, got %v", got)
	}

	got, err = p.ApplyOverrides(ctx, owner, []availability.OverrideChange{{Date: "2024-06-04", State: availability.Inherit}})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	stored, _ := p.Overrides(ctx, owner)
	if len(got) != 1 || len(stored) != 1 || stored["2024-06-10"] != availability.ForceUnavailable {
		t.Fatalf("expected only 2024-06-10 left, got %v / %v", got, stored)
	}

	if _, err := p.ApplyOverrides(ctx, owner, []availability.OverrideChange{{Date: "06/10/2024", State: availability.ForceAvailable}}); !errors.Is(err, availability.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if n := len(store.snapshot().events); n != 2 {
		t.Fatalf("expected 2 override events, got %d", n)
	}
}

func TestOverlayReportsKnownOwner(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	ov, err := p.Overlay(ctx, "stranger")
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if ov.Known || ov.Settings != p.defaults {
		t.Fatalf("unexpected overlay for unknown owner %+v", ov)
	}

	if _, err := p.AddWindow(ctx, owner, 0, 1, nineToFive); err != nil {
		t.Fatalf("AddWindow: %v", err)
	}
	if ov, err = p.Overlay(ctx, owner); err != nil || !ov.Known {
		t.Fatalf("owner with a weekly pattern: known=%v err=%v", ov.Known, err)
	}
}

func TestSaveSettings(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	if _, err := p.SaveSettings(ctx, owner, Settings{HorizonDays: 1000}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	early := availability.TimeWindow{Start: "07:00", End: "11:00"}
	saved, err := p.SaveSettings(ctx, owner, Settings{DefaultWindow: early, HorizonDays: 14})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if saved.SlotStepMinutes != DefaultSlotMinutes {
		t.Fatalf("expected default slot step, got %d", saved.SlotStepMinutes)
	}

	view, err := p.ToggleDay(ctx, owner, 0, 6)
	if err != nil {
		t.Fatalf("ToggleDay: %v", err)
	}
	if got := view.Weekly.Windows(6); len(got) != 1 || got[0] != early {
		t.Fatalf("expected saved default window, got %v", got)
	}
}

func TestAvailableDatesUsesOverlay(t *testing.T) {
	store := newMemStore()
	p := newTestPlanner(store)
	ctx := context.Background()

	if _, err := p.AddWindow(ctx, owner, 0, 1, nineToFive); err != nil {
		t.Fatalf("AddWindow: %v", err)
	}
	ov := Overlay{
		Overrides: availability.Overrides{"2024-06-05": availability.ForceAvailable, "2024-06-10": availability.ForceUnavailable},
		Settings:  Settings{HorizonDays: 14},
	}
	dates, err := p.AvailableDates(ctx, owner, ov)
	if err != nil {
		t.Fatalf("AvailableDates: %v", err)
	}
	var keys []string
	for _, d := range dates {
		keys = append(keys, availability.DateKey(d))
	}
	want := []string{"2024-06-03", "2024-06-05"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}

	times, err := p.AvailableTimes(ctx, owner, mustDate(t, "2024-06-10"), ov)
	if err != nil || len(times) != 0 {
		t.Fatalf("expected no times on a forced-closed date, got %v (%v)", times, err)
	}
	times, err = p.AvailableTimes(ctx, owner, mustDate(t, "2024-06-17"), Overlay{})
	if err != nil || len(times) != 1 {
		t.Fatalf("expected Monday window with default horizon, got %v (%v)", times, err)
	}
}
