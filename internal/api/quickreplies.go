package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/store"
)

type createQuickReplyRequest struct {
	Shortcut string `json:"shortcut"`
	Content  string `json:"content"`
}

func (h *Handler) listQuickReplies(c echo.Context) error {
	list, err := h.db.ListQuickReplies(c.Request().Context())
	if err != nil {
		return h.internalError(c, "list quick replies", err)
	}
	if list == nil {
		list = []store.QuickReply{}
	}
	return ok(c, list)
}

func (h *Handler) createQuickReply(c echo.Context) error {
	var req createQuickReplyRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err.Error())
	}
	shortcut, content := strings.TrimSpace(req.Shortcut), strings.TrimSpace(req.Content)
	if shortcut == "" || content == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "shortcut and content are required", nil)
	}
	q, err := h.db.CreateQuickReply(c.Request().Context(), shortcut, content)
	if err != nil {
		return h.internalError(c, "create quick reply", err)
	}
	return created(c, q)
}

func (h *Handler) deleteQuickReply(c echo.Context) error {
	err := h.db.DeleteQuickReply(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "quick reply not found", nil)
	}
	if err != nil {
		return h.internalError(c, "delete quick reply", err)
	}
	return ok(c, map[string]any{"ok": true})
}
