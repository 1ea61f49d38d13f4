package handlers

import (
	"net/http"
	"strconv"

	"github.com/servicehomie/platform/libs/auth"
	"github.com/servicehomie/platform/libs/httpx"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/model"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

type serviceStatusRequest struct {
	Status model.ServiceStatus `json:"status"`
}

type bookingStatusRequest struct {
	Status model.BookingStatus `json:"status"`
}

const defaultBookingRangeDays = 30

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	list, err := h.planner.ListServices(r.Context(), auth.OwnerFromContext(r.Context()), activeOnly)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": nonNil(list)})
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var in scheduling.ServiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	svc, err := h.planner.CreateService(r.Context(), auth.OwnerFromContext(r.Context()), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.planner.Service(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) setServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req serviceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	svc, err := h.planner.SetServiceStatus(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

// listBookings serves from <= date < to. Both default to a window starting today.
func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := availability.Day(h.now())
	if raw := q.Get("from"); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		from = d
	}
	to := from.AddDate(0, 0, defaultBookingRangeDays)
	if raw := q.Get("to"); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		to = d
	}
	if !to.After(from) {
		badRequest(w, r, "to must be after from")
		return
	}

	list, err := h.planner.ListBookings(r.Context(), auth.OwnerFromContext(r.Context()), from, to)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": nonNil(list)})
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.planner.Booking(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) setBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req bookingStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	b, err := h.planner.UpdateBookingStatus(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
