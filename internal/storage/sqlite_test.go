package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "quarry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStorage(t)

	completed := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	run := &models.Run{
		ID:          "r-1",
		Name:        "orders-export",
		Source:      "s3://bucket/orders",
		Status:      models.RunStatusComplete,
		CreatedAt:   completed.Add(-10 * time.Minute),
		CompletedAt: &completed,
		TableCount:  4,
		Tokens:      &models.TokenUsage{Prompt: 200, Completion: 50, Total: 250},
	}
	require.NoError(t, s.SaveRun(run))

	got, err := s.GetRun("r-1")
	require.NoError(t, err)
	assert.Equal(t, "orders-export", got.Name)
	assert.Equal(t, models.RunStatusComplete, got.Status)
	assert.Equal(t, 4, got.TableCount)
	require.NotNil(t, got.Tokens)
	assert.Equal(t, 250, got.Tokens.Total)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
}

func TestSaveRunUpserts(t *testing.T) {
	s := newTestStorage(t)

	run := &models.Run{ID: "r-1", Name: "orders", Status: models.RunStatusRunning, CreatedAt: time.Now()}
	require.NoError(t, s.SaveRun(run))

	run.Status = models.RunStatusFailed
	run.Error = "validation failed"
	require.NoError(t, s.SaveRun(run))

	got, err := s.GetRun("r-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "validation failed", got.Error)

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"r-old", "r-mid", "r-new"} {
		require.NoError(t, s.SaveRun(&models.Run{
			ID:        id,
			Name:      id,
			Status:    models.RunStatusComplete,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r-new", runs[0].ID)
	assert.Equal(t, "r-mid", runs[1].ID)
}

func TestDeleteRun(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.SaveRun(&models.Run{ID: "r-1", Name: "x", Status: models.RunStatusComplete, CreatedAt: time.Now()}))
	require.NoError(t, s.DeleteRun("r-1"))

	_, err := s.GetRun("r-1")
	assert.Error(t, err)
}
