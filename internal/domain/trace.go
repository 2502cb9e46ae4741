package domain

// ThoughtEntry is one line of an agent's visible reasoning.
type ThoughtEntry struct {
	Text    string      `json:"text"`
	Ordinal int         `json:"ordinal"`
	Source  EntrySource `json:"source"`
}

// TraceState is a read-only view of the accumulated trace.
type TraceState struct {
	Agents   map[AgentID][]ThoughtEntry `json:"agents"`
	Active   AgentID                    `json:"active,omitempty"`
	Headline string                     `json:"headline"`
}

// Texts returns the entry texts of one agent in display order.
func (s TraceState) Texts(agent AgentID) []string {
	entries := s.Agents[agent]
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts
}

// EntryCount returns the number of entries across all agents.
func (s TraceState) EntryCount() int {
	n := 0
	for _, entries := range s.Agents {
		n += len(entries)
	}
	return n
}

// Update is a single change to a session's trace or phase.
type Update struct {
	Kind     UpdateKind    `json:"kind"`
	Key      string        `json:"key,omitempty"`
	Agent    AgentID       `json:"agent,omitempty"`
	Entry    *ThoughtEntry `json:"entry,omitempty"`
	Headline string        `json:"headline,omitempty"`
	Phase    SessionPhase  `json:"phase,omitempty"`
	Ts       int64         `json:"ts"` // Unix milliseconds
}
