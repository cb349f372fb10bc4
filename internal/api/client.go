package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylabs/quarry/internal/models"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the run service (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey authenticates requests. Sent as a bearer token.
	APIKey string

	// HTTPClient is an optional custom HTTP client for API requests.
	// Event streams always use a client without a timeout; their
	// lifetime is bound to the request context instead.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the run service. All methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	streamC *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  httpClient,
		streamC: &http.Client{},
	}, nil
}

// SubmitRunRequest configures a new extraction run.
type SubmitRunRequest struct {
	Name    string         `json:"name"`
	Source  string         `json:"source"`
	Options map[string]any `json:"options,omitempty"`

	// RequestID deduplicates retried submissions. Filled in with a
	// random UUID when empty.
	RequestID string `json:"request_id,omitempty"`
}

// SubmitRun starts a new run and returns its record.
func (c *Client) SubmitRun(ctx context.Context, req SubmitRunRequest) (*models.Run, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	var run models.Run
	if err := c.post(ctx, "/v1/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// FetchRun returns the authoritative run record. The monitor calls this
// once after any terminal event so the UI reflects server-confirmed
// status rather than only the last streamed event.
func (c *Client) FetchRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := c.get(ctx, "/v1/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun asks the server to cancel the job itself. This is distinct
// from closing a local stream connection.
func (c *Client) CancelRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := c.post(ctx, "/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ApprovePlan resumes a run paused for human review, optionally with
// modifications to the proposed plan.
func (c *Client) ApprovePlan(ctx context.Context, id string, modifications map[string]any) (*models.Run, error) {
	body := map[string]any{}
	if len(modifications) > 0 {
		body["modifications"] = modifications
	}
	var run models.Run
	if err := c.post(ctx, "/v1/runs/"+url.PathEscape(id)+"/approve", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp struct {
		Runs []*models.Run `json:"runs"`
	}
	if err := c.get(ctx, "/v1/runs?limit="+strconv.Itoa(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// StreamEvents opens the run's long-lived event feed and returns its
// body. The caller owns the reader and must close it; cancelling ctx
// aborts the connection and unblocks any in-flight read.
func (c *Client) StreamEvents(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/runs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.streamC.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode, Code: "unknown"}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && json.Unmarshal(data, &body) == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
