package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/store"
)

type sendRequest struct {
	Phone      string `json:"phone"`
	Content    string `json:"content"`
	TemplateID string `json:"templateId"`
}

// send delivers a message now. When content is empty the quick reply named
// by templateId supplies it.
func (h *Handler) send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err.Error())
	}
	ctx := c.Request().Context()

	content := strings.TrimSpace(req.Content)
	if content == "" && req.TemplateID != "" {
		tpl, err := h.db.GetQuickReply(ctx, req.TemplateID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(c, http.StatusBadRequest, "TEMPLATE_NOT_FOUND", "template not found", nil)
		}
		if err != nil {
			return h.internalError(c, "load template", err)
		}
		content = tpl.Content
	}
	if strings.TrimSpace(req.Phone) == "" || content == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "phone and content (or templateId) are required", nil)
	}

	res := h.sender.Send(ctx, req.Phone, content)
	if !res.Success {
		switch {
		case errors.Is(res.Err, dispatch.ErrNotConnected):
			return fail(c, http.StatusConflict, "NOT_CONNECTED", res.Error, nil)
		case errors.Is(res.Err, dispatch.ErrInvalidNumber):
			return fail(c, http.StatusBadRequest, "INVALID_NUMBER", res.Error, nil)
		default:
			return fail(c, http.StatusBadGateway, "SEND_FAILED", "failed to send message", res.Error)
		}
	}
	return ok(c, map[string]any{"ok": true, "messageId": res.MessageID})
}
