package runstate

import (
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

// RecentEventLimit caps the visible event window. The full log stays
// complete; only the projection is bounded.
const RecentEventLimit = 20

// displayable lists the event types that appear in the visible log.
// Pure control events (run_start, phase_start) and events with dedicated
// widgets (progress, token_update) are excluded here, not at
// aggregation time.
var displayable = map[models.EventType]bool{
	models.EventPhaseComplete: true,
	models.EventFileStart:     true,
	models.EventFileComplete:  true,
	models.EventTableStart:    true,
	models.EventTableComplete: true,
	models.EventMessage:       true,
	models.EventWarning:       true,
	models.EventRunComplete:   true,
	models.EventRunError:      true,
	models.EventReviewReady:   true,
}

// PhaseChip is one entry of the fixed phase strip.
type PhaseChip struct {
	Phase  models.Phase
	Status models.PhaseStatus
}

// PhaseChips projects the phase map into fixed order for rendering.
func PhaseChips(s State) []PhaseChip {
	chips := make([]PhaseChip, 0, len(models.PhaseOrder))
	for _, p := range models.PhaseOrder {
		chips = append(chips, PhaseChip{Phase: p, Status: s.Phases[p]})
	}
	return chips
}

// RecentEvents filters the log to displayable types and returns the last
// RecentEventLimit entries, oldest first.
func RecentEvents(s State) []models.Event {
	var out []models.Event
	for _, ev := range s.Events {
		if displayable[ev.Type] {
			out = append(out, ev)
		}
	}
	if len(out) > RecentEventLimit {
		out = out[len(out)-RecentEventLimit:]
	}
	return out
}

// ProgressMode selects how the progress bar renders.
type ProgressMode int

const (
	// ProgressHidden: not streaming and nothing ever reported.
	ProgressHidden ProgressMode = iota
	// ProgressIndeterminate: streaming but no progress report yet.
	ProgressIndeterminate
	// ProgressDeterminate: a progress report exists; show its percent.
	ProgressDeterminate
)

func ProgressFor(s State, streaming bool) ProgressMode {
	switch {
	case s.Progress != nil:
		return ProgressDeterminate
	case streaming:
		return ProgressIndeterminate
	default:
		return ProgressHidden
	}
}

// ElapsedLabel formats the wall-clock time since the stream started as
// minutes:seconds.
func ElapsedLabel(start, now time.Time) string {
	if start.IsZero() || now.Before(start) {
		return "0:00"
	}
	secs := int(now.Sub(start).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
