package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

const (
	owner         = "owner-1"
	webhookSecret = "whsec_test"
)

type fakeBookings struct {
	bookings map[string]model.Booking
	service  model.Service
	claimed  map[string]bool
	attached map[string]string
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{
		bookings: map[string]model.Booking{
			"b1": {ID: "b1", OwnerID: owner, ServiceID: "s1", CustomerEmail: "ada@example.com", TotalPriceCents: 5000, Status: model.BookingPending},
		},
		service:  model.Service{ID: "s1", OwnerID: owner, Name: "Deep clean", PriceCents: 5000},
		claimed:  map[string]bool{},
		attached: map[string]string{},
	}
}

func (f *fakeBookings) Booking(_ context.Context, ownerID, id string) (model.Booking, error) {
	b, ok := f.bookings[id]
	if !ok || b.OwnerID != ownerID {
		return model.Booking{}, scheduling.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) Service(_ context.Context, _, _ string) (model.Service, error) {
	return f.service, nil
}

func (f *fakeBookings) AttachPaymentSession(_ context.Context, _, id, sessionID string) error {
	b := f.bookings[id]
	b.PaymentSessionID = sessionID
	f.bookings[id] = b
	f.attached[id] = sessionID
	return nil
}

func (f *fakeBookings) ConfirmPaid(_ context.Context, eventID, _, bookingID string) (scheduling.PaymentOutcome, error) {
	if f.claimed[eventID] {
		return scheduling.PaymentDuplicate, nil
	}
	f.claimed[eventID] = true
	b := f.bookings[bookingID]
	if b.Status == model.BookingCancelled {
		return scheduling.PaymentRefundRequired, nil
	}
	b.Status = model.BookingConfirmed
	f.bookings[bookingID] = b
	return scheduling.PaymentApplied, nil
}

func (f *fakeBookings) UpdateBookingStatus(_ context.Context, _, id string, next model.BookingStatus) (model.Booking, error) {
	b := f.bookings[id]
	b.Status = next
	f.bookings[id] = b
	return b, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(f *fakeBookings, create SessionCreator) *Service {
	return New(Config{
		WebhookSecret: webhookSecret,
		SuccessURL:    "https://example.com/paid",
		CancelURL:     "https://example.com/cancelled",
	}, f, discard(), WithSessionCreator(create))
}

func sign(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func event(t *testing.T, id, typ string, session map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": session},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func TestCheckoutCreatesSessionForPendingBooking(t *testing.T) {
	f := newFakeBookings()
	var got *stripe.CheckoutSessionParams
	svc := newService(f, func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil
	})

	out, err := svc.Checkout(context.Background(), owner, "b1")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if out.SessionID != "cs_1" || out.URL == "" {
		t.Fatalf("unexpected checkout %+v", out)
	}
	if f.attached["b1"] != "cs_1" {
		t.Fatalf("session not attached: %v", f.attached)
	}
	if got.Metadata[metaBookingID] != "b1" || got.Metadata[metaOwnerID] != owner {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}
	if *got.LineItems[0].PriceData.UnitAmount != 5000 {
		t.Fatalf("unexpected amount %d", *got.LineItems[0].PriceData.UnitAmount)
	}
	if *got.IdempotencyKey != "booking-checkout:b1" {
		t.Fatalf("unexpected idempotency key %s", *got.IdempotencyKey)
	}
}

func TestCheckoutRejectsNonPendingBooking(t *testing.T) {
	f := newFakeBookings()
	b := f.bookings["b1"]
	b.Status = model.BookingConfirmed
	f.bookings["b1"] = b

	called := false
	svc := newService(f, func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		called = true
		return &stripe.CheckoutSession{ID: "cs_1"}, nil
	})
	if _, err := svc.Checkout(context.Background(), owner, "b1"); !errors.Is(err, scheduling.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if called {
		t.Fatal("stripe must not be called for a confirmed booking")
	}
}

func TestCheckoutProviderFailure(t *testing.T) {
	f := newFakeBookings()
	svc := newService(f, func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("card network down")
	})
	if _, err := svc.Checkout(context.Background(), owner, "b1"); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if len(f.attached) != 0 {
		t.Fatal("nothing should be attached on failure")
	}
}

func TestCheckoutNotConfigured(t *testing.T) {
	svc := New(Config{}, newFakeBookings(), discard())
	if _, err := svc.Checkout(context.Background(), owner, "b1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := svc.HandleWebhook(context.Background(), []byte("{}"), "t=1,v1=00"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestWebhookConfirmsPaidBookingOnce(t *testing.T) {
	f := newFakeBookings()
	svc := newService(f, nil)
	payload := event(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{metaOwnerID: owner, metaBookingID: "b1"},
	})

	res, err := svc.HandleWebhook(context.Background(), payload, sign(t, payload))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if res.Status != "applied" || f.bookings["b1"].Status != model.BookingConfirmed {
		t.Fatalf("unexpected result %+v, booking %s", res, f.bookings["b1"].Status)
	}

	res, err = svc.HandleWebhook(context.Background(), payload, sign(t, payload))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res.Status != "duplicate" {
		t.Fatalf("expected duplicate, got %+v", res)
	}
}

func TestWebhookPaidAfterCancellationIsTerminal(t *testing.T) {
	f := newFakeBookings()
	b := f.bookings["b1"]
	b.Status = model.BookingCancelled
	f.bookings["b1"] = b
	svc := newService(f, nil)
	payload := event(t, "evt_6", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_1",
		"metadata":       map[string]string{metaOwnerID: owner, metaBookingID: "b1"},
	})

	res, err := svc.HandleWebhook(context.Background(), payload, sign(t, payload))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if res.Status != "refund_required" || f.bookings["b1"].Status != model.BookingCancelled {
		t.Fatalf("unexpected result %+v, booking %s", res, f.bookings["b1"].Status)
	}

	res, err = svc.HandleWebhook(context.Background(), payload, sign(t, payload))
	if err != nil || res.Status != "duplicate" {
		t.Fatalf("redelivery: %+v err=%v", res, err)
	}
}

func TestWebhookIgnoresUnpaidAndUnknown(t *testing.T) {
	f := newFakeBookings()
	svc := newService(f, nil)

	unpaid := event(t, "evt_2", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata":       map[string]string{metaOwnerID: owner, metaBookingID: "b1"},
	})
	other := event(t, "evt_3", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})

	for _, payload := range [][]byte{unpaid, other} {
		res, err := svc.HandleWebhook(context.Background(), payload, sign(t, payload))
		if err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		if res.Status != "ignored" {
			t.Fatalf("expected ignored, got %+v", res)
		}
	}
	if f.bookings["b1"].Status != model.BookingPending {
		t.Fatalf("booking changed to %s", f.bookings["b1"].Status)
	}
}

func TestWebhookExpiredSessionReleasesPendingBooking(t *testing.T) {
	f := newFakeBookings()
	b := f.bookings["b1"]
	b.PaymentSessionID = "cs_9"
	f.bookings["b1"] = b
	svc := newService(f, nil)

	payload := event(t, "evt_4", "checkout.session.expired", map[string]any{
		"id":       "cs_9",
		"object":   "checkout.session",
		"metadata": map[string]string{metaOwnerID: owner, metaBookingID: "b1"},
	})
	res, err := svc.HandleWebhook(context.Background(), payload, sign(t, payload))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if res.Status != "applied" || f.bookings["b1"].Status != model.BookingCancelled {
		t.Fatalf("unexpected result %+v, booking %s", res, f.bookings["b1"].Status)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := newService(newFakeBookings(), nil)
	payload := event(t, "evt_5", "checkout.session.completed", map[string]any{"id": "cs_1", "object": "checkout.session"})
	if _, err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
