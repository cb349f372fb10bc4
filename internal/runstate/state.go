// Package runstate accumulates a run's streamed events into a single
// state value and derives the read-only projections the UI renders.
package runstate

import (
	"github.com/quarrylabs/quarry/internal/models"
)

// State is the accumulated view of one connection's event stream. It is
// built empty when a connection starts, mutated only through Apply, and
// discarded when a new connection is started. The event log is
// append-only; entries are never rewritten or removed.
type State struct {
	Events       []models.Event
	Phases       map[models.Phase]models.PhaseStatus
	Progress     *models.Progress
	Tokens       models.TokenUsage
	Terminal     bool
	TerminalType models.EventType
}

// New returns an empty state with every phase pending.
func New() *State {
	phases := make(map[models.Phase]models.PhaseStatus, len(models.PhaseOrder))
	for _, p := range models.PhaseOrder {
		phases[p] = models.PhasePending
	}
	return &State{Phases: phases}
}

// Apply folds one event into the state. It is the only mutation path and
// is total: any representable event yields a next state, unrecognized
// types just append to the log. Events must be applied in arrival order;
// terminal detection and phase transitions depend on sequence.
func (s *State) Apply(ev models.Event) {
	s.Events = append(s.Events, ev)

	switch ev.Type {
	case models.EventPhaseStart:
		if ev.Phase != "" {
			s.Phases[ev.Phase] = models.PhaseActive
		}

	case models.EventPhaseComplete:
		if ev.Phase != "" {
			s.Phases[ev.Phase] = models.PhaseComplete
		}

	case models.EventRunError:
		// A run-level failure lands on whatever is in flight. Phases not
		// currently active keep their status.
		for p, st := range s.Phases {
			if st == models.PhaseActive {
				s.Phases[p] = models.PhaseError
			}
		}

	case models.EventProgress:
		// Wholesale replacement; the percent is passed through as-is,
		// even out of range, matching the server's report.
		s.Progress = &models.Progress{
			Phase:           ev.Phase,
			PercentComplete: ev.PercentComplete,
			Message:         ev.Message,
		}
	}

	// Token-bearing events report running totals, so the latest report
	// replaces the counters outright. Terminal events may carry a final
	// total alongside their terminal effect.
	if ev.Tokens != nil {
		s.Tokens = *ev.Tokens
	}

	if ev.Terminal() {
		s.Terminal = true
		s.TerminalType = ev.Type
	}
}

// Snapshot returns a copy safe to read while the original keeps
// evolving. The event slice shares its backing array; the log is
// append-only, so already-visible entries never change under the reader.
func (s *State) Snapshot() State {
	phases := make(map[models.Phase]models.PhaseStatus, len(s.Phases))
	for p, st := range s.Phases {
		phases[p] = st
	}
	snap := State{
		Events:       s.Events[:len(s.Events):len(s.Events)],
		Phases:       phases,
		Tokens:       s.Tokens,
		Terminal:     s.Terminal,
		TerminalType: s.TerminalType,
	}
	if s.Progress != nil {
		p := *s.Progress
		snap.Progress = &p
	}
	return snap
}
