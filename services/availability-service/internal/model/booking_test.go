package model

import "testing"

func TestBookingStatusTransitions(t *testing.T) {
	cases := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingCancelled, true},
		{BookingPending, BookingCompleted, false},
		{BookingConfirmed, BookingCompleted, true},
		{BookingConfirmed, BookingCancelled, true},
		{BookingConfirmed, BookingPending, false},
		{BookingCancelled, BookingConfirmed, false},
		{BookingCompleted, BookingCancelled, false},
		{BookingConfirmed, BookingConfirmed, true},
		{BookingPending, BookingStatus("archived"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestBookingStatusBlocksSlot(t *testing.T) {
	for _, s := range []BookingStatus{BookingPending, BookingConfirmed, BookingCompleted} {
		if !s.BlocksSlot() {
			t.Fatalf("expected %s to block its slot", s)
		}
	}
	if BookingCancelled.BlocksSlot() {
		t.Fatal("cancelled bookings must not block")
	}
	if BookingStatus("").BlocksSlot() {
		t.Fatal("unknown status must not block")
	}
}
