package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/lifecycle"
	"github.com/matheus3301/wpplus/internal/store"
)

type createContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

func (h *Handler) listContacts(c echo.Context) error {
	list, err := h.db.ListContacts(c.Request().Context())
	if err != nil {
		return h.internalError(c, "list contacts", err)
	}
	if list == nil {
		list = []store.ContactSummary{}
	}
	return ok(c, list)
}

func (h *Handler) createContact(c echo.Context) error {
	var req createContactRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse request", err.Error())
	}
	digits := dispatch.NormalizeNumber(req.Phone)
	if digits == "" {
		return fail(c, http.StatusBadRequest, "INVALID_NUMBER", "phone must contain digits", nil)
	}

	contact, err := h.db.UpsertContact(c.Request().Context(), &store.Contact{
		RemoteID: dispatch.RecipientID(digits),
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		return h.internalError(c, "create contact", err)
	}
	return created(c, contact)
}

// syncContacts copies the live session's address book into the store.
func (h *Handler) syncContacts(c echo.Context) error {
	if h.contacts == nil {
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "no active session", nil)
	}
	n, err := h.mirror.SyncContacts(c.Request().Context(), h.contacts)
	switch {
	case errors.Is(err, lifecycle.ErrNoSession):
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "no active session", nil)
	case errors.Is(err, lifecycle.ErrUnsupported):
		return fail(c, http.StatusNotImplemented, "UNSUPPORTED", err.Error(), nil)
	case err != nil:
		return h.internalError(c, "sync contacts", err)
	}
	return ok(c, map[string]any{"ok": true, "synced": n})
}
