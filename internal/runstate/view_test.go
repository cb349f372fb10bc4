package runstate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/models"
)

func TestPhaseChipsFixedOrder(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseExtract})

	chips := PhaseChips(s.Snapshot())
	require.Len(t, chips, 6)
	for i, p := range models.PhaseOrder {
		assert.Equal(t, p, chips[i].Phase)
	}
	assert.Equal(t, models.PhaseActive, chips[3].Status)
}

func TestRecentEventsFiltersControlEvents(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventRunStart})
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseIngest})
	s.Apply(models.Event{Type: models.EventFileStart, File: "a.csv"})
	s.Apply(models.Event{Type: models.EventFileComplete, File: "a.csv"})
	s.Apply(models.Event{Type: models.EventPhaseStart, Phase: models.PhaseExtract})
	s.Apply(models.Event{Type: models.EventTableStart, Table: "orders"})

	recent := RecentEvents(s.Snapshot())
	require.Len(t, recent, 3)
	assert.Equal(t, "a.csv", recent[0].File)
	assert.Equal(t, models.EventFileComplete, recent[1].Type)
	assert.Equal(t, "orders", recent[2].Table)

	// The control events still drove phase status.
	assert.Equal(t, models.PhaseActive, s.Phases[models.PhaseIngest])
	assert.Equal(t, models.PhaseActive, s.Phases[models.PhaseExtract])
}

func TestRecentEventsBounded(t *testing.T) {
	s := New()
	for i := 0; i < 100; i++ {
		s.Apply(models.Event{Type: models.EventMessage, Message: fmt.Sprintf("m%d", i)})
	}
	recent := RecentEvents(s.Snapshot())
	require.Len(t, recent, RecentEventLimit)
	// Window keeps the most recent entries, oldest first.
	assert.Equal(t, "m80", recent[0].Message)
	assert.Equal(t, "m99", recent[len(recent)-1].Message)
}

func TestRecentEventsExcludesProgressAndTokens(t *testing.T) {
	s := New()
	s.Apply(models.Event{Type: models.EventProgress, PercentComplete: 10})
	s.Apply(models.Event{Type: models.EventTokenUpdate, Tokens: &models.TokenUsage{Total: 5}})
	assert.Empty(t, RecentEvents(s.Snapshot()))
}

func TestProgressFor(t *testing.T) {
	s := New()
	assert.Equal(t, ProgressHidden, ProgressFor(s.Snapshot(), false))
	assert.Equal(t, ProgressIndeterminate, ProgressFor(s.Snapshot(), true))

	s.Apply(models.Event{Type: models.EventProgress, PercentComplete: 30})
	assert.Equal(t, ProgressDeterminate, ProgressFor(s.Snapshot(), true))
	// A report outlives the stream.
	assert.Equal(t, ProgressDeterminate, ProgressFor(s.Snapshot(), false))
}

func TestElapsedLabel(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "0:00", ElapsedLabel(start, start))
	assert.Equal(t, "0:07", ElapsedLabel(start, start.Add(7*time.Second)))
	assert.Equal(t, "1:05", ElapsedLabel(start, start.Add(65*time.Second)))
	assert.Equal(t, "12:00", ElapsedLabel(start, start.Add(12*time.Minute)))
	assert.Equal(t, "0:00", ElapsedLabel(time.Time{}, start))
}
