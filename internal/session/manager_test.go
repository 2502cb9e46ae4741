package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Cypher-0-shift/JurAI/internal/config"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/repository"
	"github.com/Cypher-0-shift/JurAI/internal/sse"
)

type fakePipeline struct {
	mu          sync.Mutex
	stream      func(ctx context.Context) (io.ReadCloser, error)
	snapshot    *domain.RunSnapshot
	snapshotErr error
	finalizeErr error

	streamCalls int
	resultCalls int
	submissions []map[string]any
	finalized   []domain.FinalizeRequest
}

func (f *fakePipeline) StartStream(ctx context.Context, submission map[string]any) (io.ReadCloser, error) {
	f.mu.Lock()
	f.streamCalls++
	f.submissions = append(f.submissions, submission)
	stream := f.stream
	f.mu.Unlock()

	if stream == nil {
		return nil, fmt.Errorf("%w: no stream configured", sse.ErrStreamUnavailable)
	}
	return stream(ctx)
}

func (f *fakePipeline) GetResults(ctx context.Context, featureID, runID string) (*domain.RunSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakePipeline) Finalize(ctx context.Context, featureID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, domain.FinalizeRequest{FeatureID: featureID, RunID: runID})
	return f.finalizeErr
}

func (f *fakePipeline) calls() (stream, results int, finalized []domain.FinalizeRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCalls, f.resultCalls, append([]domain.FinalizeRequest(nil), f.finalized...)
}

func staticStream(body string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

type memStore struct {
	mu       sync.Mutex
	pending  *domain.PendingSubmission
	deletes  int
	outcomes []domain.Outcome
}

func (s *memStore) SavePending(ctx context.Context, p *domain.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
	return nil
}

func (s *memStore) LoadPending(ctx context.Context) (*domain.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil, repository.ErrNoPending
	}
	p := *s.pending
	return &p, nil
}

func (s *memStore) DeletePending(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.ID != id {
		return false, nil
	}
	s.pending = nil
	s.deletes++
	return true, nil
}

func (s *memStore) RecordOutcome(ctx context.Context, o *domain.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, *o)
	return nil
}

func (s *memStore) ListOutcomes(ctx context.Context, limit int) ([]domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Outcome(nil), s.outcomes...), nil
}

func (s *memStore) stats() (pending *domain.PendingSubmission, deletes int, outcomes []domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.deletes, append([]domain.Outcome(nil), s.outcomes...)
}

func withPending(id string) *memStore {
	return &memStore{pending: &domain.PendingSubmission{
		ID:      id,
		Context: map[string]any{"q1": "Teens", "q2": []any{"EU"}},
	}}
}

func newTestManager(t *testing.T, p *fakePipeline, store *memStore, opts ...Option) *Manager {
	t.Helper()
	cfg := config.DefaultConfig().Session
	cfg.CatchupInterval = 0
	cfg.PollFallbackDelay = 20 * time.Millisecond

	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics.New()),
		WithSessionConfig(cfg),
	}
	return NewManager(p, store, store, append(base, opts...)...)
}

func waitCompleted(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Completed():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not complete", s.Key())
	}
}

const juryThenDone = "event: jury_thinking\n" +
	"data: {\"msg\":\"Scanning data stores...\",\"is_log\":true}\n\n" +
	"event: done\n" +
	"data: {\"feature_id\":\"f1\",\"run_id\":\"r1\"}\n\n"

func TestStreamingConsumesPendingOnDone(t *testing.T) {
	p := &fakePipeline{stream: staticStream(juryThenDone)}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	assert.Equal(t, "pending:p1", s.Key())

	waitCompleted(t, s)
	m.Wait()

	state := s.Snapshot()
	assert.Equal(t, []string{"Scanning data stores..."}, state.Texts(domain.AgentJury))
	assert.Equal(t, domain.AgentNone, state.Active)
	assert.Equal(t, domain.PhaseCompleted, s.Phase())

	featureID, runID := s.Run()
	assert.Equal(t, "f1", featureID)
	assert.Equal(t, "r1", runID)

	pending, deletes, outcomes := store.stats()
	assert.Nil(t, pending)
	assert.Equal(t, 1, deletes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.ReasonStreamDone, outcomes[0].Reason)
	assert.Equal(t, 1, outcomes[0].Entries)

	_, _, finalized := p.calls()
	assert.Equal(t, []domain.FinalizeRequest{{FeatureID: "f1", RunID: "r1"}}, finalized)

	require.Len(t, p.submissions, 1)
	assert.Equal(t, "Teens", p.submissions[0]["q1"])
}

func TestDoubleStartReturnsSameSession(t *testing.T) {
	release := make(chan struct{})
	p := &fakePipeline{stream: func(ctx context.Context) (io.ReadCloser, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return io.NopCloser(strings.NewReader(juryThenDone)), nil
	}}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	first, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	second, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	assert.Same(t, first, second)

	close(release)
	waitCompleted(t, first)
	m.Wait()

	// Starting again after completion must not replay side effects.
	third, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, third)
	m.Wait()

	streams, _, finalized := p.calls()
	_, deletes, _ := store.stats()
	assert.Equal(t, 1, streams)
	assert.Equal(t, 1, deletes)
	assert.Len(t, finalized, 1)
	assert.Len(t, first.Snapshot().Texts(domain.AgentJury), 1)
}

func TestPollingTerminalSnapshotReplaysTrace(t *testing.T) {
	p := &fakePipeline{snapshot: &domain.RunSnapshot{
		FeatureID: "f1",
		RunID:     "r1",
		Status:    domain.RunStatusCoreCompleted,
		AgentTrace: []domain.TraceItem{
			{Agent: "Critic_Reviewer", Step: "Review", Logs: []string{"Checking ARIA labels..."}},
		},
	}}
	store := &memStore{}
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{FeatureID: "f1", RunID: "r1"})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	state := s.Snapshot()
	assert.Equal(t, []string{"Checking ARIA labels..."}, state.Texts(domain.AgentCritic))
	assert.Equal(t, domain.SourceHistory, state.Agents[domain.AgentCritic][0].Source)
	assert.Equal(t, "Review", state.Headline)
	assert.Equal(t, domain.PhaseCompleted, s.Phase())

	streams, results, finalized := p.calls()
	assert.Equal(t, 0, streams)
	assert.Equal(t, 1, results)
	assert.Empty(t, finalized)
	assert.Equal(t, domain.ReasonTerminalSnapshot, s.Outcome().Reason)
}

func TestPollingFailedSnapshotCompletesWithError(t *testing.T) {
	p := &fakePipeline{snapshot: &domain.RunSnapshot{Status: domain.RunStatusFailed}}
	m := newTestManager(t, p, &memStore{})

	s, err := m.Start(context.Background(), Route{FeatureID: "f1", RunID: "r1"})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	outcome := s.Outcome()
	require.NotNil(t, outcome)
	assert.Equal(t, domain.ReasonTerminalSnapshot, outcome.Reason)
	assert.NotEmpty(t, outcome.Error)
	assert.True(t, strings.HasPrefix(s.Snapshot().Headline, "Error:"))
}

func TestPollingInProgressCompletesAfterFallback(t *testing.T) {
	p := &fakePipeline{snapshot: &domain.RunSnapshot{
		Status: domain.RunStatusInProgress,
		AgentTrace: []domain.TraceItem{
			{Agent: "Jury_Primary", Step: "Initial Report", Logs: []string{"a", "b"}},
		},
	}}
	m := newTestManager(t, p, &memStore{})

	s, err := m.Start(context.Background(), Route{FeatureID: "f1", RunID: "r1"})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	assert.Equal(t, []string{"a", "b"}, s.Snapshot().Texts(domain.AgentJury))
	assert.Equal(t, domain.ReasonFallbackTimeout, s.Outcome().Reason)
	assert.Empty(t, s.Outcome().Error)
}

func TestPollingFetchErrorCompletesAfterFallback(t *testing.T) {
	p := &fakePipeline{snapshotErr: errors.New("connection refused")}
	m := newTestManager(t, p, &memStore{})

	s, err := m.Start(context.Background(), Route{FeatureID: "f1", RunID: "r1"})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	outcome := s.Outcome()
	assert.Equal(t, domain.ReasonFallbackTimeout, outcome.Reason)
	assert.Contains(t, outcome.Error, "connection refused")
	assert.Equal(t, "Error: could not load run results", s.Snapshot().Headline)
	assert.Contains(t, s.View().LastError, "connection refused")
}

func TestStreamUnavailableCompletesWithError(t *testing.T) {
	p := &fakePipeline{}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	assert.Equal(t, domain.PhaseCompleted, s.Phase())
	assert.Equal(t, domain.ReasonError, s.Outcome().Reason)
	assert.Equal(t, "Error: pipeline stream unavailable", s.Snapshot().Headline)

	pending, deletes, _ := store.stats()
	assert.NotNil(t, pending, "pending submission must survive a failed stream")
	assert.Equal(t, 0, deletes)
	_, _, finalized := p.calls()
	assert.Empty(t, finalized)
}

func TestStreamWithoutDoneCompletesWithError(t *testing.T) {
	p := &fakePipeline{stream: staticStream("event: status\ndata: \"Pipeline Started\"\n\n")}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	assert.Equal(t, domain.ReasonError, s.Outcome().Reason)
	_, deletes, _ := store.stats()
	assert.Equal(t, 0, deletes)
}

func TestStreamErrorFrameThenCloseKeepsPipelineError(t *testing.T) {
	p := &fakePipeline{stream: staticStream("event: error\ndata: Risk Failed: boom\n\n")}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	assert.Equal(t, "Error: Risk Failed: boom", s.Snapshot().Headline)
	assert.Equal(t, "Risk Failed: boom", s.View().LastError)
	require.NotNil(t, s.Outcome())
	assert.Equal(t, domain.ReasonError, s.Outcome().Reason)
	assert.Contains(t, s.Outcome().Error, "Risk Failed: boom")

	pending, deletes, outcomes := store.stats()
	assert.NotNil(t, pending)
	assert.Equal(t, 0, deletes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Error: Risk Failed: boom", outcomes[0].Headline)
}

func TestHeadlineLastWriteWins(t *testing.T) {
	body := "event: status\ndata: \"A\"\n\n" +
		"event: status\ndata: \"B\"\n\n" +
		"event: done\ndata: {\"feature_id\":\"f1\",\"run_id\":\"r1\"}\n\n"
	p := &fakePipeline{stream: staticStream(body)}
	m := newTestManager(t, p, withPending("p1"))

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	state := s.Snapshot()
	assert.Equal(t, "B", state.Headline)
	assert.Equal(t, 0, state.EntryCount())
}

func TestDoneWithoutIdentitySynthesizesOne(t *testing.T) {
	body := "event: done\ndata: {\"message\":\"Pipeline Complete\"}\n\n"
	p := &fakePipeline{stream: staticStream(body)}
	m := newTestManager(t, p, withPending("p1"))

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	featureID, runID := s.Run()
	assert.True(t, strings.HasPrefix(featureID, "feat_"), featureID)
	assert.True(t, strings.HasPrefix(runID, "run_"), runID)
	assert.Len(t, runID, len("run_")+8)
	assert.Equal(t, "Pipeline Complete", s.Snapshot().Headline)

	_, _, finalized := p.calls()
	require.Len(t, finalized, 1)
	assert.Equal(t, runID, finalized[0].RunID)
}

func TestIdleSessionCompletesImmediately(t *testing.T) {
	p := &fakePipeline{}
	store := &memStore{}
	m := newTestManager(t, p, store)

	s, err := m.Start(context.Background(), Route{FeatureID: "f1"})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	assert.Equal(t, domain.ReasonIdle, s.Outcome().Reason)
	assert.Equal(t, 0, s.Snapshot().EntryCount())
	streams, results, _ := p.calls()
	assert.Zero(t, streams)
	assert.Zero(t, results)

	_, ok := m.Lookup(s.Key())
	assert.False(t, ok)
	_, _, outcomes := store.stats()
	assert.Empty(t, outcomes)
}

func TestTeardownMidStreamKeepsPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	p := &fakePipeline{stream: func(ctx context.Context) (io.ReadCloser, error) {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}}
	store := withPending("p1")
	m := newTestManager(t, p, store)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := m.Start(ctx, Route{})
	require.NoError(t, err)

	_, err = io.WriteString(pw, "event: jury_thinking\ndata: {\"msg\":\"partial\",\"is_log\":true}\n\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Snapshot().EntryCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-s.Done()
	m.Wait()

	assert.NotEqual(t, domain.PhaseCompleted, s.Phase())
	assert.Nil(t, s.Outcome())
	pending, deletes, outcomes := store.stats()
	assert.NotNil(t, pending)
	assert.Zero(t, deletes)
	assert.Empty(t, outcomes)

	_, ok := m.Lookup("pending:p1")
	assert.False(t, ok, "torn-down session must be released")
}

func TestSessionPublishesPhaseUpdates(t *testing.T) {
	var mu sync.Mutex
	var phases []domain.SessionPhase
	listener := func(u domain.Update) {
		if u.Kind != domain.UpdatePhase {
			return
		}
		mu.Lock()
		phases = append(phases, u.Phase)
		mu.Unlock()
	}

	p := &fakePipeline{stream: staticStream(juryThenDone)}
	m := newTestManager(t, p, withPending("p1"), WithListener(listener))

	s, err := m.Start(context.Background(), Route{})
	require.NoError(t, err)
	waitCompleted(t, s)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.SessionPhase{domain.PhaseRunning, domain.PhaseCompleted}, phases)
}

func TestCompleteFiresOnce(t *testing.T) {
	p := &fakePipeline{}
	store := withPending("p1")
	m := newTestManager(t, p, store)
	s := newSession(m, "pending:p1", domain.ModeStreaming, Route{}, store.pending, func() {})
	s.setRun("f1", "r1")

	assert.True(t, s.complete(context.Background(), domain.ReasonStreamDone, nil))
	assert.False(t, s.complete(context.Background(), domain.ReasonStreamDone, nil))
	assert.False(t, s.complete(context.Background(), domain.ReasonError, errors.New("late")))
	m.Wait()

	_, deletes, outcomes := store.stats()
	assert.Equal(t, 1, deletes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.ReasonStreamDone, s.Outcome().Reason)
	_, _, finalized := p.calls()
	assert.Len(t, finalized, 1)
}

func TestCompletionBookkeepingSurvivesTeardown(t *testing.T) {
	p := &fakePipeline{}
	store := withPending("p1")
	m := newTestManager(t, p, store)
	s := newSession(m, "pending:p1", domain.ModeStreaming, Route{}, store.pending, func() {})
	s.setRun("f1", "r1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, s.complete(ctx, domain.ReasonStreamDone, nil))
	m.Wait()

	pending, deletes, outcomes := store.stats()
	assert.Nil(t, pending)
	assert.Equal(t, 1, deletes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.ReasonStreamDone, outcomes[0].Reason)
}

func TestChooseMode(t *testing.T) {
	pending := &domain.PendingSubmission{ID: "p1"}
	tests := []struct {
		name    string
		pending *domain.PendingSubmission
		route   Route
		want    domain.Mode
	}{
		{name: "pending only", pending: pending, want: domain.ModeStreaming},
		{name: "pending with feature", pending: pending, route: Route{FeatureID: "f1"}, want: domain.ModeStreaming},
		{name: "run route", route: Route{FeatureID: "f1", RunID: "r1"}, want: domain.ModePolling},
		{name: "run route wins over pending", pending: pending, route: Route{FeatureID: "f1", RunID: "r1"}, want: domain.ModePolling},
		{name: "run without feature", route: Route{RunID: "r1"}, want: domain.ModeNotStarted},
		{name: "nothing", want: domain.ModeNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseMode(tt.pending, tt.route))
		})
	}
}

func TestPendingTokenConsumesOnce(t *testing.T) {
	store := withPending("p1")
	token := newPendingToken(store, "p1")

	removed, err := token.consume(context.Background())
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = token.consume(context.Background())
	require.NoError(t, err)
	assert.False(t, removed)

	var nilToken *pendingToken
	removed, err = nilToken.consume(context.Background())
	require.NoError(t, err)
	assert.False(t, removed)
}
