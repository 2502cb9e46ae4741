// Package natssink publishes session trace updates onto NATS subjects.
package natssink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// Publisher is the part of a NATS connection the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink turns trace updates into NATS messages on
// <prefix>.<session key>.<update kind>.
type Sink struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// New creates a sink on an existing publisher.
func New(pub Publisher, prefix string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Connect dials url and returns a sink that owns the connection.
func Connect(url, prefix string, logger *zap.Logger) (*Sink, error) {
	conn, err := nats.Connect(url,
		nats.Name("jurywatch"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s := New(conn, prefix, logger)
	s.conn = conn
	return s, nil
}

// Subject returns the subject an update is published on.
func (s *Sink) Subject(u domain.Update) string {
	key := token(u.Key)
	if key == "" {
		key = "unknown"
	}
	return s.prefix + "." + key + "." + string(u.Kind)
}

// Publish sends one update. Failures are logged, never returned: the sink
// must not stall the session that feeds it.
func (s *Sink) Publish(u domain.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn("failed to encode update", zap.Error(err))
		return
	}

	subject := s.Subject(u)
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish update",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// Close drains and closes the owned connection, if any.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// token makes a session key safe to use as a single subject token.
func token(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', ':', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, key)
}
