package availability

import (
	"slices"
	"testing"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
)

func TestSlotStarts_Basic(t *testing.T) {
	got := SlotStarts(TimeWindow{Start: "09:00", End: "10:00"}, 15*time.Minute, 15*time.Minute)
	want := []string{"09:00", "09:15", "09:30", "09:45"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSlotStarts_DurationMustFit(t *testing.T) {
	got := SlotStarts(TimeWindow{Start: "09:00", End: "10:00"}, 45*time.Minute, 15*time.Minute)
	want := []string{"09:00", "09:15"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := SlotStarts(TimeWindow{Start: "09:00", End: "09:30"}, time.Hour, 15*time.Minute); got != nil {
		t.Fatalf("expected no slots, got %v", got)
	}
	if got := SlotStarts(TimeWindow{Start: "09:00", End: "10:00"}, 0, 15*time.Minute); got != nil {
		t.Fatalf("expected no slots for zero duration, got %v", got)
	}
}

func TestOpenSlots_SkipsBooked(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	var weekly WeeklyAvailability
	_ = weekly.SetDayWindows(1, []TimeWindow{{Start: "09:00", End: "10:00"}})

	bookings := []model.Booking{
		{BookingDate: day, StartTime: "09:15", Status: model.BookingConfirmed},
		{BookingDate: day, StartTime: "09:30", Status: model.BookingCancelled},
		{BookingDate: day.AddDate(0, 0, 7), StartTime: "09:45", Status: model.BookingPending},
	}
	got := OpenSlots(day, weekly, 15*time.Minute, 15*time.Minute, bookings, day.AddDate(0, 0, -1))
	want := []string{"09:00", "09:30", "09:45"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOpenSlots_SkipsPast(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	var weekly WeeklyAvailability
	_ = weekly.SetDayWindows(1, []TimeWindow{{Start: "09:00", End: "10:00"}})

	now := day.Add(9*time.Hour + 31*time.Minute)
	got := OpenSlots(day, weekly, 15*time.Minute, 15*time.Minute, nil, now)
	// 09:00, 09:15, 09:30 already started.
	if !slices.Equal(got, []string{"09:45"}) {
		t.Fatalf("expected [09:45], got %v", got)
	}
}

func TestOpenSlots_MergesOverlappingWindows(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	var weekly WeeklyAvailability
	_ = weekly.SetDayWindows(1, []TimeWindow{
		{Start: "13:00", End: "14:00"},
		{Start: "09:00", End: "10:00"},
		{Start: "09:30", End: "10:30"},
	})
	got := OpenSlots(day, weekly, 30*time.Minute, 30*time.Minute, nil, day.AddDate(0, 0, -1))
	want := []string{"09:00", "09:30", "10:00", "13:00", "13:30"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
