package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/trace"
)

// View is a read-only picture of a session.
type View struct {
	Key       string              `json:"key"`
	FeatureID string              `json:"feature_id,omitempty"`
	RunID     string              `json:"run_id,omitempty"`
	Mode      domain.Mode         `json:"mode"`
	Phase     domain.SessionPhase `json:"phase"`
	Trace     domain.TraceState   `json:"trace"`
	LastError string              `json:"last_error,omitempty"`
	Outcome   *domain.Outcome     `json:"outcome,omitempty"`
}

// Session watches a single run. All writes happen on its own goroutine.
type Session struct {
	m       *Manager
	key     string
	pending *domain.PendingSubmission
	token   *pendingToken
	acc     *trace.Accumulator
	logger  *zap.Logger
	cancel  context.CancelFunc

	gate      gate
	completed chan struct{}
	done      chan struct{}

	mu        sync.RWMutex
	featureID string
	runID     string
	mode      domain.Mode
	phase     domain.SessionPhase
	lastErr   string
	outcome   *domain.Outcome
	listeners []trace.Listener
}

func newSession(m *Manager, key string, mode domain.Mode, route Route, pending *domain.PendingSubmission, cancel context.CancelFunc) *Session {
	s := &Session{
		m:         m,
		key:       key,
		pending:   pending,
		acc:       trace.New(key),
		logger:    m.logger.With(zap.String("key", key)),
		cancel:    cancel,
		completed: make(chan struct{}),
		done:      make(chan struct{}),
		featureID: route.FeatureID,
		runID:     route.RunID,
		mode:      mode,
		phase:     domain.PhaseIdle,
	}
	if mode == domain.ModeStreaming {
		s.token = newPendingToken(m.pending, pending.ID)
		if s.featureID == "" {
			s.featureID = pending.FeatureID
		}
	}

	s.listeners = append(s.listeners, m.listeners...)
	s.acc.Subscribe(s.publish)
	return s
}

func (s *Session) run(ctx context.Context) {
	defer s.m.wg.Done()
	defer close(s.done)
	defer s.m.metrics.SessionEnded()
	defer s.m.release(s)
	defer s.cancel()

	switch s.Mode() {
	case domain.ModeStreaming:
		s.setPhase(domain.PhaseRunning)
		s.stream(ctx)
	case domain.ModePolling:
		s.setPhase(domain.PhaseRunning)
		s.poll(ctx)
	default:
		s.complete(ctx, domain.ReasonIdle, nil)
	}

	if ctx.Err() != nil && !s.gate.fired() {
		s.logger.Info("session torn down before completion")
	}
}

// Key returns the registry key of the session.
func (s *Session) Key() string {
	return s.key
}

// Stop tears the session down. A completed session is unaffected.
func (s *Session) Stop() {
	s.cancel()
}

// Completed is closed once the session reaches PhaseCompleted.
func (s *Session) Completed() <-chan struct{} {
	return s.completed
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers a listener for trace and phase updates.
func (s *Session) Subscribe(l trace.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns the current trace state.
func (s *Session) Snapshot() domain.TraceState {
	return s.acc.Snapshot()
}

func (s *Session) Mode() domain.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Session) Phase() domain.SessionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Run returns the run identity known so far.
func (s *Session) Run() (featureID, runID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.featureID, s.runID
}

// Outcome returns how the session completed, or nil while it runs.
func (s *Session) Outcome() *domain.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcome == nil {
		return nil
	}
	o := *s.outcome
	return &o
}

// View returns a consistent read-only picture of the session.
func (s *Session) View() View {
	state := s.acc.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		Key:       s.key,
		FeatureID: s.featureID,
		RunID:     s.runID,
		Mode:      s.mode,
		Phase:     s.phase,
		Trace:     state,
		LastError: s.lastErr,
	}
	if s.outcome != nil {
		o := *s.outcome
		v.Outcome = &o
	}
	return v
}

func (s *Session) setRun(featureID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featureID = featureID
	s.runID = runID
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

func (s *Session) lastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// setPhase moves the phase forward. It never regresses.
func (s *Session) setPhase(phase domain.SessionPhase) {
	s.mu.Lock()
	if s.phase == domain.PhaseCompleted || s.phase == phase {
		s.mu.Unlock()
		return
	}
	s.phase = phase
	s.mu.Unlock()

	s.publish(domain.Update{
		Kind:  domain.UpdatePhase,
		Key:   s.key,
		Phase: phase,
		Ts:    time.Now().UnixMilli(),
	})
}

func (s *Session) publish(u domain.Update) {
	s.mu.RLock()
	listeners := make([]trace.Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l(u)
	}
}
