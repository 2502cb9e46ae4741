package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/config"
)

const maxMessageSize = 4096

// Greeting returns the first message sent to a viewer following key, or
// nil to send nothing.
type Greeting func(key string) any

// Server upgrades HTTP requests into read-only viewer connections.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	greeting Greeting
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a websocket server on hub. greeting may be nil.
func NewServer(cfg config.ServerConfig, h *Hub, greeting Greeting, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		hub:      h,
		greeting: greeting,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The view is read-only and served locally.
				return true
			},
		},
	}
}

// HandleWebSocket handles the upgrade and the connection lifecycle.
// GET /v1/session/stream?key=<session key>
func (s *Server) HandleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	client := s.hub.NewClient(conn, c.QueryParam("key"))
	conn.SetReadLimit(maxMessageSize)

	if s.greeting != nil {
		client.greet = func() []byte {
			v := s.greeting(client.Key)
			if v == nil {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				s.logger.Warn("failed to encode greeting", zap.String("client", client.ID), zap.Error(err))
				return nil
			}
			return data
		}
	}

	if !s.hub.Register(client) {
		conn.Close()
		return nil
	}

	go s.writePump(client)
	go s.readPump(client)

	return nil
}

// pongWait is how long a viewer may stay silent before it is dropped.
func (s *Server) pongWait() time.Duration {
	return s.cfg.PingInterval * 2
}

// readPump discards viewer messages and watches for the close.
func (s *Server) readPump(client *Client) {
	defer func() {
		s.hub.Unregister(client)
		client.Close()
	}()

	client.Conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(s.pongWait()))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				client.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", zap.String("client", client.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			client.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := client.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
