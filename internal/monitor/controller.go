// Package monitor owns the lifecycle of a run's event-stream connection
// and the state accumulated from it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/runstate"
	"github.com/quarrylabs/quarry/internal/stream"
)

// DefaultOpenDelay is how long Start waits before actually opening the
// connection. The delay absorbs duplicate initialization from the host
// UI: a second Start for the same mount lands inside the window and
// supersedes the first timer instead of producing two live connections.
const DefaultOpenDelay = 150 * time.Millisecond

// Hooks receives every applied event. A non-empty notice is surfaced in
// the snapshot; errors are contained and never interrupt the stream.
type Hooks interface {
	OnEvent(ev models.Event) (notice string, err error)
}

// Options configures a Controller.
type Options struct {
	// OpenDelay overrides DefaultOpenDelay. Negative means zero.
	OpenDelay time.Duration

	// Hooks is optional.
	Hooks Hooks

	// FetchTimeout bounds the authoritative refetch after a terminal
	// event. Defaults to 10 seconds.
	FetchTimeout time.Duration
}

// Controller opens and supervises at most one live connection to a
// run's event feed. Starting a new connection always fully supersedes
// the previous one: each attempt carries its own generation and context,
// and every mutation re-checks the generation under the mutex, so a
// superseded connection can never touch the aggregator again, even for
// reads already in flight.
type Controller struct {
	client       *api.Client
	hooks        Hooks
	openDelay    time.Duration
	fetchTimeout time.Duration

	mu        sync.Mutex
	gen       int
	cancel    context.CancelFunc
	timer     *time.Timer
	state     *runstate.State
	run       *models.Run
	runID     string
	streaming bool
	lastErr   string
	notice    string
	startedAt time.Time

	updates chan struct{}
}

// Snapshot is a point-in-time copy of everything the presentation layer
// reads.
type Snapshot struct {
	RunID     string
	Run       *models.Run
	State     runstate.State
	Streaming bool
	Err       string
	Notice    string
	StartedAt time.Time
}

// New creates a Controller. It holds no connection until Start.
func New(client *api.Client, opts Options) *Controller {
	delay := opts.OpenDelay
	if delay == 0 {
		delay = DefaultOpenDelay
	} else if delay < 0 {
		delay = 0
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Controller{
		client:       client,
		hooks:        opts.Hooks,
		openDelay:    delay,
		fetchTimeout: fetchTimeout,
		state:        runstate.New(),
		updates:      make(chan struct{}, 1),
	}
}

// Updates signals that Snapshot has new content. The channel coalesces:
// a reader that drains it and then calls Snapshot sees everything.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns a copy of the monitor's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		RunID:     c.runID,
		State:     c.state.Snapshot(),
		Streaming: c.streaming,
		Err:       c.lastErr,
		Notice:    c.notice,
		StartedAt: c.startedAt,
	}
	if c.run != nil {
		r := *c.run
		snap.Run = &r
	}
	return snap
}

// Start begins monitoring runID. Any live connection is cancelled first
// and the aggregator is reset; the open itself is deferred by the open
// delay and re-checks that it has not been superseded.
func (c *Controller) Start(runID string) {
	c.mu.Lock()
	c.supersedeLocked()
	c.gen++
	gen := c.gen

	if c.run != nil && c.run.ID != runID {
		c.run = nil
	}
	c.state = runstate.New()
	c.runID = runID
	c.streaming = true
	c.lastErr = ""
	c.notice = ""
	c.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.timer = time.AfterFunc(c.openDelay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		c.consume(ctx, gen, runID)
	})
	c.mu.Unlock()

	c.signal()
}

// Stop cancels the live connection, if any, and marks the monitor as
// not streaming. Accumulated state is kept. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	c.supersedeLocked()
	changed := c.streaming
	c.streaming = false
	c.mu.Unlock()

	if changed {
		c.signal()
	}
}

// Close releases the controller when its owning view is discarded. It
// behaves exactly like Stop.
func (c *Controller) Close() {
	c.Stop()
}

// supersedeLocked cancels the in-flight attempt and clears the deferred
// open timer so a cancelled Start can never race a fresh one.
func (c *Controller) supersedeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// consume opens the feed and pumps it through the decoder, parser, and
// aggregator until the stream ends, fails, or is superseded.
func (c *Controller) consume(ctx context.Context, gen int, runID string) {
	body, err := c.client.StreamEvents(ctx, runID)
	if err != nil {
		c.fail(gen, err)
		return
	}
	defer body.Close()

	var dec stream.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				ev, ok := stream.ParseLine(line)
				if !ok {
					continue
				}
				terminal, current := c.apply(gen, ev)
				if !current {
					return
				}
				if terminal {
					c.settle(gen, runID)
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Server closed the stream without a terminal event.
				err = errors.New("connection closed before the run finished")
			}
			c.fail(gen, err)
			return
		}
	}
}

// apply folds one event into the aggregator. It reports whether the
// event was terminal and whether this connection is still current; a
// superseded connection mutates nothing.
func (c *Controller) apply(gen int, ev models.Event) (terminal, current bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false, false
	}
	c.state.Apply(ev)
	terminal = c.state.Terminal
	c.mu.Unlock()

	if c.hooks != nil {
		notice, err := c.hooks.OnEvent(ev)
		if err == nil && notice != "" {
			c.mu.Lock()
			if gen == c.gen {
				c.notice = notice
			}
			c.mu.Unlock()
		}
	}

	c.signal()
	return terminal, true
}

// settle runs after a terminal event: close the connection, then fetch
// the authoritative run record exactly once so the UI reflects
// server-confirmed status rather than only the last streamed event.
func (c *Controller) settle(gen int, runID string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.streaming = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.signal()

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()
	run, err := c.client.FetchRun(ctx, runID)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// The streamed state stands; only the refetch failed.
		c.lastErr = fmt.Sprintf("fetch run after completion: %v", err)
	} else {
		c.run = run
	}
	c.mu.Unlock()
	c.signal()
}

// fail records a transport failure. Cancellation is not an error: the
// generation check already filtered superseded attempts, and a context
// cancelled between checks is silent by design.
func (c *Controller) fail(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.streaming = false
	if !errors.Is(err, context.Canceled) {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	c.signal()
}

func (c *Controller) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
