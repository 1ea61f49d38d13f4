// Package handlers exposes the availability, catalogue, booking and payment
// operations over HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/cache"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/payments"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

// Scheduler is the planner surface the handlers call. *scheduling.Planner
// implements it.
type Scheduler interface {
	Weekly(ctx context.Context, ownerID string) (scheduling.WeeklyView, error)
	SetDayWindows(ctx context.Context, ownerID string, expect int64, day availability.Weekday, windows []availability.TimeWindow) (scheduling.WeeklyView, error)
	ToggleDay(ctx context.Context, ownerID string, expect int64, day availability.Weekday) (scheduling.WeeklyView, error)
	AddWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, w availability.TimeWindow) (scheduling.WeeklyView, error)
	RemoveWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int) (scheduling.WeeklyView, error)
	UpdateWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int, field availability.WindowField, value string) (scheduling.WeeklyView, error)
	ReplaceWindow(ctx context.Context, ownerID string, expect int64, day availability.Weekday, index int, w availability.TimeWindow) (scheduling.WeeklyView, error)

	AvailableDates(ctx context.Context, ownerID string, ov scheduling.Overlay) ([]time.Time, error)
	AvailableTimes(ctx context.Context, ownerID string, date time.Time, ov scheduling.Overlay) ([]availability.TimeWindow, error)
	OpenSlots(ctx context.Context, ownerID, serviceID string, date time.Time, ov scheduling.Overlay) ([]string, error)

	CreateService(ctx context.Context, ownerID string, in scheduling.ServiceInput) (model.Service, error)
	Service(ctx context.Context, ownerID, id string) (model.Service, error)
	ListServices(ctx context.Context, ownerID string, activeOnly bool) ([]model.Service, error)
	SetServiceStatus(ctx context.Context, ownerID, id string, status model.ServiceStatus) (model.Service, error)

	BookSlot(ctx context.Context, req scheduling.BookingRequest) (model.Booking, error)
	Booking(ctx context.Context, ownerID, id string) (model.Booking, error)
	ListBookings(ctx context.Context, ownerID string, from, to time.Time) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, ownerID, id string, next model.BookingStatus) (model.Booking, error)
}

type Payments interface {
	Checkout(ctx context.Context, ownerID, bookingID string) (payments.Checkout, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (payments.WebhookResult, error)
}

type Handler struct {
	planner  Scheduler
	cache    *cache.Manager
	payments Payments
	logger   *slog.Logger
	now      func() time.Time
}

func New(planner Scheduler, overlays *cache.Manager, pay Payments, logger *slog.Logger) *Handler {
	return &Handler{planner: planner, cache: overlays, payments: pay, logger: logger, now: time.Now}
}

// Routes registers every endpoint on mux. requireOwner guards owner routes;
// limitPublic, when set, guards public writes.
func (h *Handler) Routes(mux *http.ServeMux, requireOwner, limitPublic func(http.Handler) http.Handler) {
	owner := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireOwner(fn))
	}
	public := func(pattern string, fn http.HandlerFunc) {
		if limitPublic != nil {
			mux.Handle(pattern, limitPublic(fn))
			return
		}
		mux.Handle(pattern, fn)
	}

	owner("GET /api/v1/availability", h.getWeekly)
	owner("PUT /api/v1/availability/days/{day}", h.setDayWindows)
	owner("POST /api/v1/availability/days/{day}/toggle", h.toggleDay)
	owner("POST /api/v1/availability/days/{day}/windows", h.addWindow)
	owner("DELETE /api/v1/availability/days/{day}/windows/{index}", h.removeWindow)
	owner("PATCH /api/v1/availability/days/{day}/windows/{index}", h.updateWindow)

	owner("GET /api/v1/availability/settings", h.getSettings)
	owner("PUT /api/v1/availability/settings", h.putSettings)
	owner("GET /api/v1/availability/overrides", h.getOverrides)
	owner("POST /api/v1/availability/overrides/{date}/toggle", h.toggleOverride)
	owner("PUT /api/v1/availability/overrides/{date}", h.putOverride)
	owner("DELETE /api/v1/availability/overrides/{date}", h.deleteOverride)

	owner("GET /api/v1/services", h.listServices)
	owner("POST /api/v1/services", h.createService)
	owner("GET /api/v1/services/{id}", h.getService)
	owner("PATCH /api/v1/services/{id}/status", h.setServiceStatus)

	owner("GET /api/v1/bookings", h.listBookings)
	owner("GET /api/v1/bookings/{id}", h.getBooking)
	owner("POST /api/v1/bookings/{id}/status", h.setBookingStatus)

	mux.HandleFunc("GET /api/v1/public/{owner}/services", h.publicServices)
	mux.HandleFunc("GET /api/v1/public/{owner}/dates", h.publicDates)
	mux.HandleFunc("GET /api/v1/public/{owner}/times", h.publicTimes)
	mux.HandleFunc("GET /api/v1/public/{owner}/slots", h.publicSlots)
	public("POST /api/v1/public/{owner}/bookings", h.publicBook)

	public("POST /api/v1/payments/checkout", h.checkout)
	mux.HandleFunc("POST /api/v1/payments/webhooks/stripe", h.stripeWebhook)
}
