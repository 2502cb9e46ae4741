package natssink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject: subject, data: data})
	return nil
}

func TestSubject(t *testing.T) {
	s := New(&fakePublisher{}, "jurywatch.trace.", nil)

	tests := []struct {
		key  string
		kind domain.UpdateKind
		want string
	}{
		{"f1/r1", domain.UpdateThought, "jurywatch.trace.f1_r1.thought"},
		{"pending:abc", domain.UpdatePhase, "jurywatch.trace.pending_abc.phase"},
		{"feat.1/run *", domain.UpdateHeadline, "jurywatch.trace.feat_1_run__.headline"},
		{"", domain.UpdateActive, "jurywatch.trace.unknown.active"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Subject(domain.Update{Key: tt.key, Kind: tt.kind}))
	}
}

func TestPublishEncodesUpdate(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, "jurywatch.trace", zaptest.NewLogger(t))

	entry := domain.ThoughtEntry{Text: "Scanning data stores...", Ordinal: 1, Source: domain.SourceLive}
	s.Publish(domain.Update{
		Kind:  domain.UpdateThought,
		Key:   "f1/r1",
		Agent: domain.AgentJury,
		Entry: &entry,
		Ts:    1700000000000,
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "jurywatch.trace.f1_r1.thought", pub.msgs[0].subject)

	var got domain.Update
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, domain.AgentJury, got.Agent)
	require.NotNil(t, got.Entry)
	assert.Equal(t, entry, *got.Entry)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	s := New(pub, "jurywatch.trace", zaptest.NewLogger(t))

	assert.NotPanics(t, func() {
		s.Publish(domain.Update{Kind: domain.UpdatePhase, Key: "idle", Phase: domain.PhaseCompleted})
	})
	assert.Empty(t, pub.msgs)
}

func TestCloseWithoutConnection(t *testing.T) {
	s := New(&fakePublisher{}, "x", nil)
	assert.NoError(t, s.Close())
}
