package models

import "time"

type RunStatus string

const (
	RunStatusPending        RunStatus = "pending"
	RunStatusRunning        RunStatus = "running"
	RunStatusComplete       RunStatus = "complete"
	RunStatusFailed         RunStatus = "failed"
	RunStatusAwaitingReview RunStatus = "awaiting_review"
	RunStatusCancelled      RunStatus = "cancelled"
)

// Run is the authoritative run record owned by the server. The monitor
// only references it by ID; the record itself is refreshed by FetchRun.
type Run struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Source      string      `json:"source"`
	Status      RunStatus   `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	TableCount  int         `json:"table_count,omitempty"`
	Tokens      *TokenUsage `json:"tokens,omitempty"`
}

// Finished reports whether the server considers the run settled.
func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusComplete, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}
