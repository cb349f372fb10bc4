package models

// EventType is the discriminator tag carried by every stream event.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventPhaseStart    EventType = "phase_start"
	EventPhaseComplete EventType = "phase_complete"
	EventFileStart     EventType = "file_start"
	EventFileComplete  EventType = "file_complete"
	EventTableStart    EventType = "table_start"
	EventTableComplete EventType = "table_complete"
	EventMessage       EventType = "message"
	EventWarning       EventType = "warning"
	EventProgress      EventType = "progress"
	EventTokenUpdate   EventType = "token_update"
	EventRunComplete   EventType = "run_complete"
	EventRunError      EventType = "run_error"
	EventReviewReady   EventType = "review_ready"
)

// Event is one record from a run's event stream. Events are ordered by
// arrival order within a connection and are never mutated once logged.
type Event struct {
	Type            EventType   `json:"type"`
	Phase           Phase       `json:"phase,omitempty"`
	File            string      `json:"file,omitempty"`
	Table           string      `json:"table,omitempty"`
	Message         string      `json:"message,omitempty"`
	Error           string      `json:"error,omitempty"`
	PercentComplete int         `json:"percent_complete,omitempty"`
	Tokens          *TokenUsage `json:"tokens,omitempty"`
}

// Terminal reports whether this event ends the streaming phase of a run.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventRunComplete, EventRunError, EventReviewReady:
		return true
	}
	return false
}

// Progress is the latest known progress report for a run. Each progress
// event replaces it outright; nothing is merged or averaged.
type Progress struct {
	Phase           Phase  `json:"phase"`
	PercentComplete int    `json:"percent_complete"`
	Message         string `json:"message"`
}

// TokenUsage is a running total reported by the server. Each token-bearing
// event carries the full total, not a delta, so the latest report wins.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}
