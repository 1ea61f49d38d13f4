package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/servicehomie/platform/libs/auth"
	"github.com/servicehomie/platform/libs/httpx"
	"github.com/servicehomie/platform/services/availability-service/internal/availability"
	"github.com/servicehomie/platform/services/availability-service/internal/cache"
	"github.com/servicehomie/platform/services/availability-service/internal/scheduling"
)

type windowsRequest struct {
	Windows []availability.TimeWindow `json:"windows"`
}

// updateWindowRequest sets one bound with field and value, or both with
// start and end.
type updateWindowRequest struct {
	Field availability.WindowField `json:"field"`
	Value string                   `json:"value"`
	Start string                   `json:"start"`
	End   string                   `json:"end"`
}

type overrideRequest struct {
	State availability.OverrideState `json:"state"`
}

type overrideResponse struct {
	Date      string                     `json:"date"`
	State     availability.OverrideState `json:"state"`
	Available bool                       `json:"available"`
}

// expectedVersion reads If-Match. A missing header skips the version check.
func expectedVersion(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func writeWeekly(w http.ResponseWriter, status int, view scheduling.WeeklyView) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(view.Version, 10)))
	httpx.WriteJSON(w, status, view)
}

// weeklyEdit parses the day and If-Match shared by every weekly edit route.
func (h *Handler) weeklyEdit(w http.ResponseWriter, r *http.Request) (availability.Weekday, int64, bool) {
	day, err := availability.ParseWeekday(r.PathValue("day"))
	if err != nil {
		h.writeErr(w, r, err)
		return 0, 0, false
	}
	expect, ok := expectedVersion(r)
	if !ok {
		badRequest(w, r, "If-Match must be a version number")
		return 0, 0, false
	}
	return day, expect, true
}

func windowIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, availability.ErrWindowIndex
	}
	return i, nil
}

func (h *Handler) getWeekly(w http.ResponseWriter, r *http.Request) {
	view, err := h.planner.Weekly(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusOK, view)
}

func (h *Handler) setDayWindows(w http.ResponseWriter, r *http.Request) {
	day, expect, ok := h.weeklyEdit(w, r)
	if !ok {
		return
	}
	var req windowsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	view, err := h.planner.SetDayWindows(r.Context(), auth.OwnerFromContext(r.Context()), expect, day, req.Windows)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusOK, view)
}

func (h *Handler) toggleDay(w http.ResponseWriter, r *http.Request) {
	day, expect, ok := h.weeklyEdit(w, r)
	if !ok {
		return
	}
	view, err := h.planner.ToggleDay(r.Context(), auth.OwnerFromContext(r.Context()), expect, day)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusOK, view)
}

func (h *Handler) addWindow(w http.ResponseWriter, r *http.Request) {
	day, expect, ok := h.weeklyEdit(w, r)
	if !ok {
		return
	}
	var win availability.TimeWindow
	if err := httpx.DecodeJSON(r, &win); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	view, err := h.planner.AddWindow(r.Context(), auth.OwnerFromContext(r.Context()), expect, day, win)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusCreated, view)
}

func (h *Handler) removeWindow(w http.ResponseWriter, r *http.Request) {
	day, expect, ok := h.weeklyEdit(w, r)
	if !ok {
		return
	}
	index, err := windowIndex(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	view, err := h.planner.RemoveWindow(r.Context(), auth.OwnerFromContext(r.Context()), expect, day, index)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusOK, view)
}

func (h *Handler) updateWindow(w http.ResponseWriter, r *http.Request) {
	day, expect, ok := h.weeklyEdit(w, r)
	if !ok {
		return
	}
	index, err := windowIndex(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req updateWindowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	ownerID := auth.OwnerFromContext(r.Context())
	var view scheduling.WeeklyView
	switch {
	case req.Start != "" || req.End != "":
		if req.Field != "" {
			badRequest(w, r, "send either field and value or start and end")
			return
		}
		view, err = h.planner.ReplaceWindow(r.Context(), ownerID, expect, day, index,
			availability.TimeWindow{Start: req.Start, End: req.End})
	default:
		view, err = h.planner.UpdateWindow(r.Context(), ownerID, expect, day, index, req.Field, req.Value)
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeWeekly(w, http.StatusOK, view)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	c, err := h.cache.Open(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c.Overlay().Settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var s scheduling.Settings
	if err := httpx.DecodeJSON(r, &s); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	c, err := h.cache.Open(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := c.SetSettings(s); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := c.Sync(r.Context()); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c.Overlay().Settings)
}

func (h *Handler) getOverrides(w http.ResponseWriter, r *http.Request) {
	c, err := h.cache.Open(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c.Overlay().Overrides)
}

func (h *Handler) toggleOverride(w http.ResponseWriter, r *http.Request) {
	h.editOverride(w, r, func(c *cache.ClientAvailabilityCache, date time.Time, weekly availability.WeeklyAvailability) {
		c.ToggleDate(date, weekly)
	})
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	h.editOverride(w, r, func(c *cache.ClientAvailabilityCache, date time.Time, _ availability.WeeklyAvailability) {
		c.SetOverride(date, req.State)
	})
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	h.editOverride(w, r, func(c *cache.ClientAvailabilityCache, date time.Time, _ availability.WeeklyAvailability) {
		c.SetOverride(date, availability.Inherit)
	})
}

// editOverride loads the owner's cache, applies edit to the date in the path,
// and syncs the result to the store before answering.
func (h *Handler) editOverride(w http.ResponseWriter, r *http.Request, edit func(*cache.ClientAvailabilityCache, time.Time, availability.WeeklyAvailability)) {
	ctx := r.Context()
	ownerID := auth.OwnerFromContext(ctx)
	date, err := availability.ParseDate(r.PathValue("date"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	view, err := h.planner.Weekly(ctx, ownerID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	c, err := h.cache.Open(ctx, ownerID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	edit(c, date, view.Weekly)
	if err := c.Sync(ctx); err != nil {
		h.writeErr(w, r, err)
		return
	}

	ov := c.Overlay()
	httpx.WriteJSON(w, http.StatusOK, overrideResponse{
		Date:      availability.DateKey(date),
		State:     ov.Overrides.State(date),
		Available: availability.IsDateAvailable(date, view.Weekly, ov.Overrides),
	})
}
