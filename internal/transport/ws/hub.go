// Package ws fans trace updates out to websocket viewers.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

const sendBuffer = 256

// Client is a single websocket viewer. An empty Key follows every session.
type Client struct {
	ID   string
	Key  string
	Conn *websocket.Conn
	Send chan []byte
	mu   sync.Mutex

	// greet renders the first message. The hub queues it when the client
	// joins, ahead of any broadcast it takes part in.
	greet func() []byte
}

// Hub manages viewers and broadcasts updates to them.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *keyedMessage
	stopped    chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

type keyedMessage struct {
	key  string
	data []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *keyedMessage, sendBuffer),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, c := range h.clients {
			close(c.Send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			if c.greet != nil {
				if data := c.greet(); data != nil {
					c.Send <- data
				}
			}
			h.logger.Debug("viewer registered", zap.String("client", c.ID), zap.String("key", c.Key))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				close(c.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("viewer unregistered", zap.String("client", c.ID))

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for _, c := range h.clients {
				if c.Key != "" && c.Key != msg.key {
					continue
				}
				select {
				case c.Send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range slow {
				h.logger.Warn("viewer buffer full, disconnecting", zap.String("client", c.ID))
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.Send)
	}
}

// NewClient creates a client for conn following key.
func (h *Hub) NewClient(conn *websocket.Conn, key string) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Key:  key,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
	}
}

// Register adds c to the hub. It reports false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes c from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Broadcast queues data for every client following key. It never blocks:
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(key string, data []byte) {
	select {
	case h.broadcast <- &keyedMessage{key: key, data: data}:
	case <-h.stopped:
	default:
		h.logger.Warn("broadcast queue full, dropping update", zap.String("key", key))
	}
}

// Publish encodes an update and broadcasts it to the session's viewers.
func (h *Hub) Publish(u domain.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Warn("failed to encode update", zap.Error(err))
		return
	}
	h.Broadcast(u.Key, data)
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Client) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.Conn.Close()
}
