// Package payments takes payment for pending bookings through Stripe Checkout.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

var (
	ErrNotConfigured = errors.New("payments not configured")
	ErrBadSignature  = errors.New("invalid webhook signature")
	ErrProvider      = errors.New("payment provider error")
)

const (
	metaOwnerID   = "owner_id"
	metaBookingID = "booking_id"
)

// Bookings is the slice of the planner payments needs.
type Bookings interface {
	Booking(ctx context.Context, ownerID, id string) (model.Booking, error)
	Service(ctx context.Context, ownerID, id string) (model.Service, error)
	AttachPaymentSession(ctx context.Context, ownerID, id, sessionID string) error
	ConfirmPaid(ctx context.Context, eventID, ownerID, bookingID string) (scheduling.PaymentOutcome, error)
	UpdateBookingStatus(ctx context.Context, ownerID, id string, next model.BookingStatus) (model.Booking, error)
}

// SessionCreator opens a hosted checkout session.
type SessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

type Config struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	SuccessURL       string
	CancelURL        string
	Currency         string
}

type Service struct {
	cfg        Config
	bookings   Bookings
	logger     *slog.Logger
	newSession SessionCreator
}

type Option func(*Service)

// WithSessionCreator replaces the Stripe API call, mainly for tests.
func WithSessionCreator(fn SessionCreator) Option {
	return func(s *Service) { s.newSession = fn }
}

func New(cfg Config, bookings Bookings, logger *slog.Logger, opts ...Option) *Service {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	s := &Service{cfg: cfg, bookings: bookings, logger: logger}
	if cfg.SecretKey != "" {
		client := checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
		s.newSession = client.New
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Checkout opens a payment session for a pending booking and records its id
// on the booking. Retries for the same booking reuse the Stripe session.
func (s *Service) Checkout(ctx context.Context, ownerID, bookingID string) (Checkout, error) {
	if s.newSession == nil || s.cfg.SuccessURL == "" || s.cfg.CancelURL == "" {
		return Checkout{}, ErrNotConfigured
	}
	b, err := s.bookings.Booking(ctx, ownerID, bookingID)
	if err != nil {
		return Checkout{}, err
	}
	if b.Status != model.BookingPending {
		return Checkout{}, fmt.Errorf("%w: booking is %s", scheduling.ErrInvalidTransition, b.Status)
	}
	svc, err := s.bookings.Service(ctx, ownerID, b.ServiceID)
	if err != nil {
		return Checkout{}, err
	}

	meta := map[string]string{metaOwnerID: ownerID, metaBookingID: b.ID}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(b.ID),
		CustomerEmail:     stripe.String(b.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(b.TotalPriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(svc.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("booking-checkout:" + b.ID)

	sess, err := s.newSession(params)
	if err != nil {
		s.logger.Error("stripe checkout session create failed", "err", err, "booking_id", b.ID)
		return Checkout{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if err := s.bookings.AttachPaymentSession(ctx, ownerID, b.ID, sess.ID); err != nil {
		return Checkout{}, err
	}
	return Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// WebhookResult says what a delivered event did.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"` // applied, duplicate, refund_required or ignored
}

// HandleWebhook verifies and applies a Stripe event. A completed, paid
// session confirms its booking; an expired one releases a still pending slot.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		return WebhookResult{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	res := WebhookResult{EventID: evt.ID, EventType: string(evt.Type), Status: "ignored"}
	s.logger.Info("payment provider event received", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evt.Type)

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			s.logger.Error("stripe: invalid checkout session payload", "err", err)
			return res, nil
		}
		ownerID, bookingID := sess.Metadata[metaOwnerID], sess.Metadata[metaBookingID]
		if ownerID == "" || bookingID == "" {
			s.logger.Warn("stripe: checkout session without booking metadata", "session_id", sess.ID)
			return res, nil
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return res, nil
		}
		outcome, err := s.bookings.ConfirmPaid(ctx, evt.ID, ownerID, bookingID)
		if err != nil {
			return res, err
		}
		res.Status = string(outcome)
		if outcome == scheduling.PaymentRefundRequired {
			s.logger.Warn("stripe: paid session for cancelled booking needs a refund",
				"session_id", sess.ID, "payment_intent", paymentIntentID(sess), "booking_id", bookingID)
		}

	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			s.logger.Error("stripe: invalid checkout session payload", "err", err)
			return res, nil
		}
		ownerID, bookingID := sess.Metadata[metaOwnerID], sess.Metadata[metaBookingID]
		if ownerID == "" || bookingID == "" {
			return res, nil
		}
		b, err := s.bookings.Booking(ctx, ownerID, bookingID)
		if err != nil {
			return res, err
		}
		if b.Status != model.BookingPending || b.PaymentSessionID != sess.ID {
			return res, nil
		}
		if _, err := s.bookings.UpdateBookingStatus(ctx, ownerID, bookingID, model.BookingCancelled); err != nil {
			return res, err
		}
		res.Status = "applied"
	}
	return res, nil
}

func paymentIntentID(sess stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil {
		return ""
	}
	return sess.PaymentIntent.ID
}
