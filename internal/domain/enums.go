// Package domain defines the core domain models for the pipeline watcher.
package domain

// RunStatus represents the status reported by a polled run snapshot.
type RunStatus string

const (
	RunStatusInProgress       RunStatus = "IN_PROGRESS"
	RunStatusCoreCompleted    RunStatus = "CORE_COMPLETED"
	RunStatusRiskCompleted    RunStatus = "RISK_COMPLETED"
	RunStatusAutofixCompleted RunStatus = "AUTOFIX_COMPLETED"
	RunStatusImportedVerdict  RunStatus = "IMPORTED_VERDICT"
	RunStatusFailed           RunStatus = "FAILED"
)

// IsTerminal reports whether the pipeline has finished producing trace.
// Unknown statuses are treated as still running.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCoreCompleted, RunStatusRiskCompleted, RunStatusAutofixCompleted,
		RunStatusImportedVerdict, RunStatusFailed:
		return true
	}
	return false
}

// EventType represents the type of a stream frame.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeStatus  EventType = "status"
	EventTypeError   EventType = "error"
	EventTypeDiff    EventType = "diff"
	EventTypeRisk    EventType = "risk"
	EventTypeVerdict EventType = "verdict"
	EventTypeDone    EventType = "done"

	// Agent progress events
	EventTypeJuryThinking   EventType = "jury_thinking"
	EventTypeCriticThinking EventType = "critic_thinking"
	EventTypeJudgeThinking  EventType = "judge_thinking"

	// Agent milestones
	EventTypeJuryReport     EventType = "jury_report"
	EventTypeCriticFeedback EventType = "critic_feedback"
	EventTypeJudgeVerdict   EventType = "judge_verdict"
)

// AgentID identifies one of the fixed logical agents of the pipeline.
type AgentID string

const (
	AgentNone   AgentID = ""
	AgentJury   AgentID = "jury"
	AgentCritic AgentID = "critic"
	AgentJudge  AgentID = "judge"
)

// Agents lists every agent identity in pipeline order.
var Agents = []AgentID{AgentJury, AgentCritic, AgentJudge}

// SessionPhase is the externally visible progress of a session.
// It only moves forward.
type SessionPhase string

const (
	PhaseIdle      SessionPhase = "idle"
	PhaseRunning   SessionPhase = "running"
	PhaseCompleted SessionPhase = "completed"
)

// Mode is the acquisition strategy chosen by the mode controller.
type Mode string

const (
	ModeNotStarted Mode = "not_started"
	ModeStreaming  Mode = "streaming"
	ModePolling    Mode = "polling"
	ModeCompleted  Mode = "completed"
)

// CompletionReason records which signal completed a session.
type CompletionReason string

const (
	ReasonStreamDone       CompletionReason = "stream_done"
	ReasonTerminalSnapshot CompletionReason = "terminal_snapshot"
	ReasonFallbackTimeout  CompletionReason = "fallback_timeout"
	ReasonIdle             CompletionReason = "idle"
	ReasonError            CompletionReason = "error"
)

// EntrySource tells whether a thought was observed live or replayed.
type EntrySource string

const (
	SourceLive    EntrySource = "live"
	SourceHistory EntrySource = "history"
)

// UpdateKind represents the kind of a trace update.
type UpdateKind string

const (
	UpdateThought  UpdateKind = "thought"
	UpdateHeadline UpdateKind = "headline"
	UpdateActive   UpdateKind = "active"
	UpdatePhase    UpdateKind = "phase"
)
