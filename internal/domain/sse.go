package domain

// Frame is one decoded event/data unit of the pipeline stream.
type Frame struct {
	EventType EventType `json:"event"`
	Data      string    `json:"data"`
}

// DoneEventData is the run identity and closing message of a done frame.
type DoneEventData struct {
	FeatureID string `json:"feature_id"`
	RunID     string `json:"run_id"`
	Message   string `json:"message,omitempty"`
}
