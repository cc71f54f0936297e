package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/store"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

func created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

func fail(c echo.Context, status int, code, msg string, details any) error {
	return c.JSON(status, ErrorBody{Code: code, Error: msg, Details: details})
}

// internalError logs err and answers 500 without storage details. A
// missing table gets a hint, since it means migrations never ran.
func (h *Handler) internalError(c echo.Context, op string, err error) error {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.String("path", c.Path()),
		zap.Error(err))
	if store.IsMissingSchema(err) {
		return fail(c, http.StatusInternalServerError, "INTERNAL", "internal error", "database schema missing, run migrations")
	}
	return fail(c, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
