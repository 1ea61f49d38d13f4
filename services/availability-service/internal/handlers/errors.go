package handlers

import (
	"errors"
	"net/http"

	"github.com/servicehomie/platform/libs/httpx"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/payments"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

type statusRule struct {
	target error
	status int
}

var statusRules = []statusRule{
	{scheduling.ErrOwnerRequired, http.StatusUnauthorized},
	{scheduling.ErrNotFound, http.StatusNotFound},
	{scheduling.ErrStaleOverwrite, http.StatusConflict},
	{scheduling.ErrInvalidTransition, http.StatusConflict},
	{availability.ErrSlotConflict, http.StatusConflict},
	{availability.ErrInvalidSlot, http.StatusUnprocessableEntity},
	{scheduling.ErrServiceInactive, http.StatusUnprocessableEntity},
	{scheduling.ErrInvalidInput, http.StatusBadRequest},
	{availability.ErrInvalidWindow, http.StatusBadRequest},
	{availability.ErrInvalidWeekday, http.StatusBadRequest},
	{availability.ErrWindowIndex, http.StatusBadRequest},
	{availability.ErrWindowField, http.StatusBadRequest},
	{availability.ErrInvalidDate, http.StatusBadRequest},
	{payments.ErrBadSignature, http.StatusBadRequest},
	{payments.ErrNotConfigured, http.StatusServiceUnavailable},
	{payments.ErrProvider, http.StatusBadGateway},
}

// writeErr maps err to a status. Unmatched errors, persistence failures
// included, become a 500 with the cause logged and not returned.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			httpx.WriteError(w, r, rule.status, err.Error())
			return
		}
	}
	h.logger.Error("request failed",
		"err", err,
		"method", r.Method,
		"route", r.Pattern,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	httpx.WriteError(w, r, http.StatusBadRequest, msg)
}
