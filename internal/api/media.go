package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/mirror"
)

// media serves a downloaded attachment. The name is reduced to a bare
// basename so requests cannot leave the media directory.
func (h *Handler) media(c echo.Context) error {
	name := mirror.SafeFileName(c.Param("filename"))
	if name == "" || h.mediaDir == "" {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "file not found", nil)
	}
	path := filepath.Join(h.mediaDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "file not found", nil)
	}
	return c.File(path)
}
