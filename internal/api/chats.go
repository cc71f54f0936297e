package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessagePage is one page of a chat's history.
type MessagePage struct {
	Items      []store.Message `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// listChats answers an empty list when the schema is missing, so a fresh
// install renders instead of erroring.
func (h *Handler) listChats(c echo.Context) error {
	chats, err := h.db.ListChats(c.Request().Context())
	if store.IsMissingSchema(err) {
		h.logger.Warn("chats table missing, run migrations")
		return ok(c, []store.ChatSummary{})
	}
	if err != nil {
		return h.internalError(c, "list chats", err)
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}
	return ok(c, chats)
}

func (h *Handler) listMessages(c echo.Context) error {
	limit := defaultPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fail(c, http.StatusBadRequest, "VALIDATION", "limit must be a positive integer", nil)
		}
		limit = min(n, maxPageSize)
	}

	msgs, next, err := h.db.ListMessages(c.Request().Context(), c.Param("id"), c.QueryParam("cursor"), limit)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusBadRequest, "VALIDATION", "unknown cursor", nil)
	}
	if err != nil {
		return h.internalError(c, "list messages", err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return ok(c, MessagePage{Items: msgs, NextCursor: next})
}
