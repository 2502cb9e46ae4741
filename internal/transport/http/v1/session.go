package v1

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Cypher-0-shift/JurAI/internal/session"
)

// GetSession returns the view of one session: the one named by ?key=, or
// the most recently started one.
// GET /v1/session
func (h *Handler) GetSession(c echo.Context) error {
	var s *session.Session
	if key := c.QueryParam("key"); key != "" {
		s, _ = h.sessions.Lookup(key)
	} else {
		s = h.sessions.Latest()
	}
	if s == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return c.JSON(http.StatusOK, s.View())
}

// ListSessions lists registered sessions ordered by key.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions := h.sessions.Sessions()
	views := make([]session.View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Key < views[j].Key })

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": views,
	})
}

// ListOutcomes returns archived session outcomes, newest first.
// GET /v1/outcomes?limit=N
func (h *Handler) ListOutcomes(c echo.Context) error {
	if h.outcomes == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "outcome archive not configured"})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
		limit = n
	}

	outcomes, err := h.outcomes.ListOutcomes(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"outcomes": outcomes,
	})
}
