// Package http provides the trace view HTTP server.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/repository"
	v1 "github.com/Cypher-0-shift/JurAI/internal/transport/http/v1"
	"github.com/Cypher-0-shift/JurAI/internal/transport/ws"
)

// NewViewServer creates and configures the read-only trace view server.
// wsServer and mt may be nil to leave out the live feed and /metrics.
func NewViewServer(sessions v1.Sessions, outcomes repository.OutcomeStore, wsServer *ws.Server, mt *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1Handler := v1.NewHandler(sessions, outcomes)
	v1Handler.RegisterRoutes(e)

	if wsServer != nil {
		e.GET("/v1/session/stream", wsServer.HandleWebSocket)
	}
	if mt != nil {
		e.GET("/metrics", echo.WrapHandler(mt.Handler()))
	}

	return e
}
