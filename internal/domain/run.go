package domain

import (
	"encoding/json"
	"time"
)

// PendingSubmission is a questionnaire waiting to be streamed to the pipeline.
type PendingSubmission struct {
	ID        string         `json:"id"`
	FeatureID string         `json:"feature_id,omitempty"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunSnapshot is the polled result resource of a run.
type RunSnapshot struct {
	FeatureID      string          `json:"feature_id"`
	RunID          string          `json:"run_id"`
	Status         RunStatus       `json:"status"`
	Timestamp      string          `json:"timestamp,omitempty"`
	AgentTrace     []TraceItem     `json:"agent_trace"`
	Verdict        json.RawMessage `json:"verdict,omitempty"`
	RiskAssessment json.RawMessage `json:"risk_assessment,omitempty"`
	AutoFix        json.RawMessage `json:"auto_fix,omitempty"`
}

// TraceItem is one historical step of an agent in a run snapshot.
type TraceItem struct {
	Agent     string          `json:"agent"`
	Step      string          `json:"step"`
	Logs      []string        `json:"logs,omitempty"`
	Content   string          `json:"content,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// CoreRunRequest starts the core pipeline in the background.
type CoreRunRequest struct {
	FeatureID   string         `json:"feature_id,omitempty"`
	ContextData map[string]any `json:"context_data"`
}

// CoreRunResponse is returned by a background core run.
type CoreRunResponse struct {
	RunID     string    `json:"run_id"`
	FeatureID string    `json:"feature_id"`
	Status    RunStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// FinalizeRequest is sent once a streamed run has completed.
type FinalizeRequest struct {
	FeatureID string `json:"feature_id"`
	RunID     string `json:"run_id"`
}

// Outcome records how a session reached completion.
type Outcome struct {
	Key         string           `json:"key"`
	FeatureID   string           `json:"feature_id,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	Mode        Mode             `json:"mode"`
	Reason      CompletionReason `json:"reason"`
	Error       string           `json:"error,omitempty"`
	Headline    string           `json:"headline,omitempty"`
	Entries     int              `json:"entries"`
	CompletedAt time.Time        `json:"completed_at"`
}
