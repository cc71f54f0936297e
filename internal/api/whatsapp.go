package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/lifecycle"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/store"
	"go.uber.org/zap"
)

// StatusResponse is the body of GET /api/whatsapp/status.
type StatusResponse struct {
	status.State
	Session  string       `json:"session"`
	UptimeMs int64        `json:"uptimeMs"`
	Stats    *store.Stats `json:"stats,omitempty"`
}

// whatsAppStatus boots the session if needed, then reports the state.
// Polling this endpoint is what starts the client.
func (h *Handler) whatsAppStatus(c echo.Context) error {
	if err := h.session.EnsureStarted(c.Request().Context()); err != nil {
		h.logger.Warn("ensure session started", zap.Error(err))
	}

	resp := StatusResponse{
		State:    h.session.State(),
		Session:  h.sessionName,
		UptimeMs: time.Since(h.startedAt).Milliseconds(),
	}
	if h.db != nil {
		if stats, err := h.db.Stats(c.Request().Context()); err == nil {
			resp.Stats = stats
		}
	}
	return ok(c, resp)
}

func (h *Handler) whatsAppConnect(c echo.Context) error {
	if err := h.session.EnsureStarted(c.Request().Context()); err != nil {
		h.logger.Error("start session", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "START_FAILED", "failed to start session", err.Error())
	}
	return ok(c, map[string]any{"started": true})
}

func (h *Handler) whatsAppLogout(c echo.Context) error {
	err := h.session.Logout(c.Request().Context())
	if errors.Is(err, lifecycle.ErrNoSession) {
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "no active session", nil)
	}
	if err != nil {
		h.logger.Error("logout", zap.Error(err))
		return fail(c, http.StatusBadGateway, "LOGOUT_FAILED", "failed to log out", err.Error())
	}
	return ok(c, map[string]any{"ok": true})
}
