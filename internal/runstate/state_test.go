package runstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/models"
)

func TestNewAllPhasesPending(t *testing.T) {
	s := New()
	require.Len(t, s.Phases, len(models.PhaseOrder))
	for _, p := range models.PhaseOrder {
		assert.Equal(t, models.PhasePending, s.Phases[p])
	}
	assert.False(t, s.Terminal)
	assert.Nil(t, s.Progress)
}

func TestPhaseStartThenComplete(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseIngest})
	assert.Equal(t, models.PhaseActive, s.Phases[models.PhaseIngest])

	s.Apply(models.Event{Type: models.EventPhaseComplete, Phase: models.PhaseIngest})
	assert.Equal(t, models.PhaseComplete, s.Phases[models.PhaseIngest])
}

func TestRunErrorMarksActivePhases(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseIngest})
	s.Apply(models.Event{Type: models.EventPhaseComplete, Phase: models.PhaseIngest})
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseAnalyze})

	s.Apply(models.Event{Type: models.EventRunError, Error: "boom"})

	assert.Equal(t, models.PhaseError, s.Phases[models.PhaseAnalyze])
	// Completed and pending phases are untouched.
	assert.Equal(t, models.PhaseComplete, s.Phases[models.PhaseIngest])
	assert.Equal(t, models.PhasePending, s.Phases[models.PhaseDesign])
}

func TestRunErrorWithNoActivePhase(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventRunError, Error: "early failure"})

	for _, p := range models.PhaseOrder {
		assert.Equal(t, models.PhasePending, s.Phases[p])
	}
	assert.True(t, s.Terminal)
	assert.Equal(t, models.EventRunError, s.TerminalType)
}

func TestProgressReplacedNotMerged(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventProgress, Phase: models.PhaseAnalyze, PercentComplete: 45, Message: "profiling"})
	s.Apply(models.Event{Type: models.EventProgress, Phase: models.PhaseAnalyze, PercentComplete: 60})

	require.NotNil(t, s.Progress)
	assert.Equal(t, 60, s.Progress.PercentComplete)
	assert.Empty(t, s.Progress.Message, "replacement is wholesale, not a merge")
}

func TestProgressPercentNotClamped(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventProgress, PercentComplete: 140})
	assert.Equal(t, 140, s.Progress.PercentComplete)
}

func TestTokensLatestWins(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventTokenUpdate, Tokens: &models.TokenUsage{Total: 100}})
	s.Apply(models.Event{Type: models.EventTokenUpdate, Tokens: &models.TokenUsage{Prompt: 200, Completion: 50, Total: 250}})

	assert.Equal(t, 250, s.Tokens.Total, "totals replace, they do not accumulate")
	assert.Equal(t, 200, s.Tokens.Prompt)
}

func TestTerminalEventStillApplied(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhasePersist})
	s.Apply(models.Event{
		Type:   models.EventRunComplete,
		Tokens: &models.TokenUsage{Total: 900},
	})

	assert.True(t, s.Terminal)
	assert.Equal(t, models.EventRunComplete, s.TerminalType)
	// The terminal event is logged and its token payload applied.
	assert.Len(t, s.Events, 2)
	assert.Equal(t, 900, s.Tokens.Total)
}

func TestReviewReadyIsTerminal(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventReviewReady})
	assert.True(t, s.Terminal)
	assert.Equal(t, models.EventReviewReady, s.TerminalType)
}

func TestEveryEventAppended(t *testing.T) {
	s := New()
	events := []models.Event{
		{Type: models.EventRunStart},
		{Type: models.EventTokenUpdate, Tokens: &models.TokenUsage{Total: 10}},
		{Type: "unrecognized_type"},
		{Type: models.EventMessage, Message: "hello"},
	}
	for _, ev := range events {
		s.Apply(ev)
	}
	assert.Equal(t, events, s.Events)
}

func TestUnknownTypeIsNoOpBesidesLog(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: "schema_drift", Phase: models.PhaseAnalyze})
	assert.Equal(t, models.PhasePending, s.Phases[models.PhaseAnalyze])
	assert.False(t, s.Terminal)
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseIngest})
	snap := s.Snapshot()

	s.Apply(models.Event{Type: models.EventPhaseComplete, Phase: models.PhaseIngest})
	s.Apply(models.Event{Type: models.EventProgress, PercentComplete: 10})

	assert.Len(t, snap.Events, 1)
	assert.Equal(t, models.PhaseActive, snap.Phases[models.PhaseIngest])
	assert.Nil(t, snap.Progress)
}
