package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestFetchRun(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/runs/r-1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(models.Run{ID: "r-1", Status: models.RunStatusComplete})
	}))

	run, err := c.FetchRun(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, run.Status)
}

func TestSubmitRunFillsRequestID(t *testing.T) {
	var got SubmitRunRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.Run{ID: "r-2", Status: models.RunStatusPending})
	}))

	run, err := c.SubmitRun(context.Background(), SubmitRunRequest{Name: "orders", Source: "s3://bucket"})
	require.NoError(t, err)
	assert.Equal(t, "r-2", run.ID)
	assert.NotEmpty(t, got.RequestID, "request id should be generated when absent")
}

func TestCancelRun(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/runs/r-3/cancel", r.URL.Path)
		json.NewEncoder(w).Encode(models.Run{ID: "r-3", Status: models.RunStatusCancelled})
	}))

	run, err := c.CancelRun(context.Background(), "r-3")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
}

func TestErrorDecoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"run_not_found","message":"no such run"}}`))
	}))

	_, err := c.FetchRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "run_not_found")
}

func TestErrorNonJSONBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))

	_, err := c.FetchRun(context.Background(), "r-1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestStreamEventsReturnsBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Write([]byte("data: {\"type\":\"run_start\"}\n"))
	}))

	body, err := c.StreamEvents(context.Background(), "r-1")
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 64)
	n, _ := body.Read(buf)
	assert.Contains(t, string(buf[:n]), "run_start")
}

func TestStreamEventsErrorStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"bad_token","message":"expired"}}`))
	}))

	_, err := c.StreamEvents(context.Background(), "r-1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}
