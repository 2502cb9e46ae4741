// Package trace holds the in-memory model of what each agent has been thinking.
package trace

import (
	"sync"
	"time"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// Listener is notified after every accumulator mutation.
type Listener func(update domain.Update)

// DedupKey identifies a replayed entry: agent, its position within the
// agent's sequence and its text.
type DedupKey struct {
	Agent    domain.AgentID
	Position int
	Text     string
}

// HistoryOrdinals is the size of the ordinal range reserved for replayed
// entries. Live entries are numbered above it, so an agent's sequence
// (history first) is strictly increasing whichever arrives first.
const HistoryOrdinals = 1 << 20

type agentLog struct {
	history    []domain.ThoughtEntry
	live       []domain.ThoughtEntry
	historySeq int
	liveSeq    int
	seen       map[DedupKey]struct{}
}

func (l *agentLog) nextLive() int {
	l.liveSeq++
	return HistoryOrdinals + l.liveSeq
}

// nextHistory returns false once the reserved range is used up.
func (l *agentLog) nextHistory() (int, bool) {
	if l.historySeq == HistoryOrdinals {
		return 0, false
	}
	l.historySeq++
	return l.historySeq, true
}

// observedLive reports whether the live entry at position carries text.
func (l *agentLog) observedLive(position int, text string) bool {
	return position >= 0 && position < len(l.live) && l.live[position].Text == text
}

// Accumulator is the authoritative trace of one session. Writes come from
// the session goroutine, reads may come from anywhere.
type Accumulator struct {
	mu        sync.RWMutex
	key       string
	agents    map[domain.AgentID]*agentLog
	active    domain.AgentID
	headline  string
	listeners []Listener
	now       func() time.Time
}

// New creates an empty accumulator. key is stamped on every published update.
func New(key string) *Accumulator {
	a := &Accumulator{
		key:    key,
		agents: make(map[domain.AgentID]*agentLog, len(domain.Agents)),
		now:    time.Now,
	}
	for _, id := range domain.Agents {
		a.agents[id] = &agentLog{seen: make(map[DedupKey]struct{})}
	}
	return a
}

// Subscribe registers a listener. Listeners are called synchronously in
// mutation order and must not call back into the accumulator's writers.
func (a *Accumulator) Subscribe(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

func (a *Accumulator) log(agent domain.AgentID) *agentLog {
	l, ok := a.agents[agent]
	if !ok {
		l = &agentLog{seen: make(map[DedupKey]struct{})}
		a.agents[agent] = l
	}
	return l
}

// AppendThought appends a live entry to agent and marks it active.
// The headline is untouched.
func (a *Accumulator) AppendThought(agent domain.AgentID, text string) domain.ThoughtEntry {
	a.mu.Lock()
	l := a.log(agent)
	entry := domain.ThoughtEntry{Text: text, Ordinal: l.nextLive(), Source: domain.SourceLive}
	l.live = append(l.live, entry)
	updates := []domain.Update{a.update(domain.UpdateThought, agent, &entry)}
	if a.active != agent {
		a.active = agent
		updates = append(updates, a.update(domain.UpdateActive, agent, nil))
	}
	a.mu.Unlock()

	a.notify(updates...)
	return entry
}

// MergeHistory inserts a replayed entry at position in agent's history.
// Entries already merged under the same DedupKey, or already observed live
// at the same position, are ignored, so replaying a snapshot twice is a
// no-op. It reports whether an entry was added.
func (a *Accumulator) MergeHistory(agent domain.AgentID, position int, text string) bool {
	key := DedupKey{Agent: agent, Position: position, Text: text}

	a.mu.Lock()
	l := a.log(agent)
	if _, dup := l.seen[key]; dup {
		a.mu.Unlock()
		return false
	}
	l.seen[key] = struct{}{}
	if l.observedLive(position, text) {
		a.mu.Unlock()
		return false
	}
	ordinal, ok := l.nextHistory()
	if !ok {
		a.mu.Unlock()
		return false
	}
	entry := domain.ThoughtEntry{Text: text, Ordinal: ordinal, Source: domain.SourceHistory}
	l.history = append(l.history, entry)
	u := a.update(domain.UpdateThought, agent, &entry)
	a.mu.Unlock()

	a.notify(u)
	return true
}

// SetHeadline replaces the shared status line.
func (a *Accumulator) SetHeadline(text string) {
	a.mu.Lock()
	a.headline = text
	u := a.update(domain.UpdateHeadline, a.active, nil)
	u.Headline = text
	a.mu.Unlock()

	a.notify(u)
}

// MarkActive highlights agent without appending an entry.
func (a *Accumulator) MarkActive(agent domain.AgentID) {
	a.mu.Lock()
	if a.active == agent {
		a.mu.Unlock()
		return
	}
	a.active = agent
	u := a.update(domain.UpdateActive, agent, nil)
	a.mu.Unlock()

	a.notify(u)
}

// ClearActive ends the current thinking burst. Entries are retained.
func (a *Accumulator) ClearActive() {
	a.MarkActive(domain.AgentNone)
}

// Active returns the agent currently thinking, or AgentNone.
func (a *Accumulator) Active() domain.AgentID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// Headline returns the current status line.
func (a *Accumulator) Headline() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.headline
}

// Snapshot returns a deep copy of the current state. History entries come
// before live entries of the same agent.
func (a *Accumulator) Snapshot() domain.TraceState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	state := domain.TraceState{
		Agents:   make(map[domain.AgentID][]domain.ThoughtEntry, len(a.agents)),
		Active:   a.active,
		Headline: a.headline,
	}
	for id, l := range a.agents {
		entries := make([]domain.ThoughtEntry, 0, len(l.history)+len(l.live))
		entries = append(entries, l.history...)
		entries = append(entries, l.live...)
		state.Agents[id] = entries
	}
	return state
}

// update must be called with mu held.
func (a *Accumulator) update(kind domain.UpdateKind, agent domain.AgentID, entry *domain.ThoughtEntry) domain.Update {
	return domain.Update{
		Kind:  kind,
		Key:   a.key,
		Agent: agent,
		Entry: entry,
		Ts:    a.now().UnixMilli(),
	}
}

func (a *Accumulator) notify(updates ...domain.Update) {
	a.mu.RLock()
	listeners := make([]Listener, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.RUnlock()

	for _, u := range updates {
		for _, l := range listeners {
			l(u)
		}
	}
}
