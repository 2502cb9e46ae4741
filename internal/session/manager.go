// Package session runs pipeline watch sessions: it picks the acquisition
// mode, feeds the trace accumulator and detects completion.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/config"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/repository"
	"github.com/Cypher-0-shift/JurAI/internal/trace"
)

// Pipeline is the backend a session reads from.
type Pipeline interface {
	StartStream(ctx context.Context, submission map[string]any) (io.ReadCloser, error)
	GetResults(ctx context.Context, featureID, runID string) (*domain.RunSnapshot, error)
	Finalize(ctx context.Context, featureID, runID string) error
}

// Route carries the run identity supplied by whoever opens the view.
type Route struct {
	FeatureID string
	RunID     string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithListener attaches l to every session before it starts.
func WithListener(l trace.Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}

// WithSessionConfig sets pacing and agent strictness.
func WithSessionConfig(cfg config.SessionConfig) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// Manager starts sessions and keeps at most one per run key.
type Manager struct {
	pipeline  Pipeline
	pending   repository.PendingStore
	outcomes  repository.OutcomeStore
	logger    *zap.Logger
	metrics   *metrics.Metrics
	listeners []trace.Listener
	cfg       config.SessionConfig

	finalizeTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	latest   *Session

	// wg tracks session goroutines and fire-and-forget finalize calls.
	wg sync.WaitGroup
}

// NewManager creates a session manager. outcomes may be nil.
func NewManager(pipeline Pipeline, pending repository.PendingStore, outcomes repository.OutcomeStore, opts ...Option) *Manager {
	m := &Manager{
		pipeline:        pipeline,
		pending:         pending,
		outcomes:        outcomes,
		logger:          zap.NewNop(),
		cfg:             config.DefaultConfig().Session,
		finalizeTimeout: 30 * time.Second,
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for route. Starting the same run twice returns the
// existing handle while it is running or after it completed. Cancelling ctx
// tears the session down.
func (m *Manager) Start(ctx context.Context, route Route) (*Session, error) {
	pending, err := m.loadPending(ctx)
	if err != nil {
		return nil, err
	}

	mode := chooseMode(pending, route)
	key := sessionKey(mode, pending, route)

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		m.logger.Debug("session already started", zap.String("key", key))
		return existing, nil
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := newSession(m, key, mode, route, pending, cancel)
	if mode != domain.ModeNotStarted {
		m.sessions[key] = s
	}
	m.latest = s
	m.mu.Unlock()

	m.metrics.SessionStarted(modeLabel(mode))
	m.logger.Info("session started",
		zap.String("key", key),
		zap.String("mode", string(mode)),
		zap.String("feature_id", route.FeatureID),
		zap.String("run_id", route.RunID),
	)

	m.wg.Add(1)
	go s.run(sessCtx)

	return s, nil
}

func (m *Manager) loadPending(ctx context.Context) (*domain.PendingSubmission, error) {
	if m.pending == nil {
		return nil, nil
	}
	pending, err := m.pending.LoadPending(ctx)
	if errors.Is(err, repository.ErrNoPending) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// An unreadable cache is treated as empty.
		m.logger.Warn("failed to load pending submission", zap.Error(err))
		return nil, nil
	}
	return pending, nil
}

// chooseMode applies the mode rules. ModeNotStarted means there is nothing
// to acquire and the session completes as idle.
func chooseMode(pending *domain.PendingSubmission, route Route) domain.Mode {
	switch {
	case pending != nil && route.RunID == "":
		return domain.ModeStreaming
	case route.RunID != "" && route.FeatureID != "":
		return domain.ModePolling
	default:
		return domain.ModeNotStarted
	}
}

func modeLabel(mode domain.Mode) string {
	if mode == domain.ModeNotStarted {
		return "idle"
	}
	return string(mode)
}

func sessionKey(mode domain.Mode, pending *domain.PendingSubmission, route Route) string {
	switch mode {
	case domain.ModeStreaming:
		return "pending:" + pending.ID
	case domain.ModePolling:
		return route.FeatureID + "/" + route.RunID
	default:
		return "idle"
	}
}

// release drops a torn-down session so a later Start begins afresh.
// Completed sessions stay registered.
func (m *Manager) release(s *Session) {
	if s.Phase() == domain.PhaseCompleted {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.key] == s {
		delete(m.sessions, s.key)
	}
}

// Lookup returns the registered session for key.
func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Latest returns the most recently started session, or nil.
func (m *Manager) Latest() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Sessions returns all registered sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Wait blocks until every session goroutine and finalize call has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
