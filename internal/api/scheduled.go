package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/store"
)

type createScheduledRequest struct {
	Content     string `json:"content"`
	ScheduledAt string `json:"scheduledAt"`
	ContactID   string `json:"contactId"`
}

type updateScheduledRequest struct {
	Content     *string `json:"content"`
	ScheduledAt *string `json:"scheduledAt"`
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func (h *Handler) schedulerError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrValidation):
		return fail(c, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, scheduler.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "scheduled message not found or not pending", nil)
	default:
		return h.internalError(c, op, err)
	}
}

func (h *Handler) listScheduled(c echo.Context) error {
	list, err := h.sched.List(c.Request().Context())
	if err != nil {
		return h.internalError(c, "list scheduled", err)
	}
	if list == nil {
		list = []store.ScheduledMessage{}
	}
	return ok(c, list)
}

func (h *Handler) createScheduled(c echo.Context) error {
	var req createScheduledRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err.Error())
	}
	in := scheduler.Input{Content: req.Content, ContactID: req.ContactID}
	if req.ScheduledAt != "" {
		at, err := parseTime(req.ScheduledAt)
		if err != nil {
			return fail(c, http.StatusBadRequest, "VALIDATION", "scheduledAt must be an RFC 3339 timestamp", err.Error())
		}
		in.ScheduledAt = at
	}

	msg, err := h.sched.Create(c.Request().Context(), in)
	if err != nil {
		return h.schedulerError(c, "create scheduled", err)
	}
	return created(c, msg)
}

func (h *Handler) updateScheduled(c echo.Context) error {
	var req updateScheduledRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err.Error())
	}
	patch := scheduler.Patch{Content: req.Content}
	if req.ScheduledAt != nil {
		at, err := parseTime(*req.ScheduledAt)
		if err != nil {
			return fail(c, http.StatusBadRequest, "VALIDATION", "scheduledAt must be an RFC 3339 timestamp", err.Error())
		}
		patch.ScheduledAt = &at
	}

	msg, err := h.sched.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return h.schedulerError(c, "update scheduled", err)
	}
	return ok(c, msg)
}

func (h *Handler) deleteScheduled(c echo.Context) error {
	if err := h.sched.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.schedulerError(c, "delete scheduled", err)
	}
	return ok(c, map[string]any{"ok": true})
}

// runScheduler runs one tick now instead of waiting for the timer. The
// tick outlives a disconnected caller so no claimed row is failed by it.
func (h *Handler) runScheduler(c echo.Context) error {
	return ok(c, h.sched.Tick(context.WithoutCancel(c.Request().Context())))
}
