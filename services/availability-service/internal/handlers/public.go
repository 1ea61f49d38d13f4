package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/servicehomie/platform/libs/httpx"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

type publicBookingRequest struct {
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

type checkoutRequest struct {
	OwnerID   string `json:"owner_id"`
	BookingID string `json:"booking_id"`
}

const maxWebhookBytes = 1 << 20

// overlay returns the cached overrides and settings for the owner in the path.
func (h *Handler) overlay(w http.ResponseWriter, r *http.Request) (string, scheduling.Overlay, bool) {
	ownerID := r.PathValue("owner")
	ov, err := h.cache.Overlay(r.Context(), ownerID)
	if err != nil {
		h.writeErr(w, r, err)
		return "", scheduling.Overlay{}, false
	}
	return ownerID, ov, true
}

func (h *Handler) publicServices(w http.ResponseWriter, r *http.Request) {
	list, err := h.planner.ListServices(r.Context(), r.PathValue("owner"), true)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": nonNil(list)})
}

func (h *Handler) publicDates(w http.ResponseWriter, r *http.Request) {
	ownerID, ov, ok := h.overlay(w, r)
	if !ok {
		return
	}
	dates, err := h.planner.AvailableDates(r.Context(), ownerID, ov)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, availability.DateKey(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"dates": keys})
}

func (h *Handler) publicTimes(w http.ResponseWriter, r *http.Request) {
	date, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	ownerID, ov, ok := h.overlay(w, r)
	if !ok {
		return
	}
	windows, err := h.planner.AvailableTimes(r.Context(), ownerID, date, ov)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":    availability.DateKey(date),
		"windows": nonNil(windows),
	})
}

func (h *Handler) publicSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := availability.ParseDate(q.Get("date"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		badRequest(w, r, "service_id is required")
		return
	}
	ownerID, ov, ok := h.overlay(w, r)
	if !ok {
		return
	}
	slots, err := h.planner.OpenSlots(r.Context(), ownerID, serviceID, date, ov)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":       availability.DateKey(date),
		"service_id": serviceID,
		"slots":      nonNil(slots),
	})
}

func (h *Handler) publicBook(w http.ResponseWriter, r *http.Request) {
	var req publicBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	date, err := availability.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	b, err := h.planner.BookSlot(r.Context(), scheduling.BookingRequest{
		OwnerID:       r.PathValue("owner"),
		ServiceID:     strings.TrimSpace(req.ServiceID),
		Date:          date,
		StartTime:     strings.TrimSpace(req.StartTime),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if req.OwnerID == "" || req.BookingID == "" {
		badRequest(w, r, "owner_id and booking_id are required")
		return
	}
	out, err := h.payments.Checkout(r.Context(), req.OwnerID, req.BookingID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

// stripeWebhook is unauthenticated; the signature is the authentication.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	sig := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
	if sig == "" {
		badRequest(w, r, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		badRequest(w, r, "failed to read request body")
		return
	}
	res, err := h.payments.HandleWebhook(r.Context(), body, sig)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
