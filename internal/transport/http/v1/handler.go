// Package v1 provides the read-only trace view handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Cypher-0-shift/JurAI/internal/repository"
	"github.com/Cypher-0-shift/JurAI/internal/session"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Sessions is the session registry the view reads from.
type Sessions interface {
	Latest() *session.Session
	Lookup(key string) (*session.Session, bool)
	Sessions() []*session.Session
}

// Handler handles HTTP requests.
type Handler struct {
	sessions Sessions
	outcomes repository.OutcomeStore
}

// NewHandler creates a new handler. outcomes may be nil.
func NewHandler(sessions Sessions, outcomes repository.OutcomeStore) *Handler {
	return &Handler{
		sessions: sessions,
		outcomes: outcomes,
	}
}

// RegisterRoutes registers the view routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/session", h.GetSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/outcomes", h.ListOutcomes)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
