package http

import (
	"net/http"

	"github.com/go-chi/render"
)

// HealthHandler reports service liveness and the store location.
type HealthHandler struct {
	storePath string
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(storePath, version string) *HealthHandler {
	return &HealthHandler{storePath: storePath, version: version}
}

// ServeHTTP implements http.Handler
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "healthy",
		"store":   h.storePath,
		"version": h.version,
	})
}
