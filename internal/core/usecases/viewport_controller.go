package usecases

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/pkg/metrics"
)

// Default debounce delays.
const (
	DefaultPanDelay    = 120 * time.Millisecond
	DefaultFilterDelay = 50 * time.Millisecond
)

// ViewportState is the controller lifecycle.
type ViewportState int

const (
	StateIdle ViewportState = iota
	StateScheduled
	StateInFlight
	StateApplied
	StateSuperseded
	StateFailed
)

func (s ViewportState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateInFlight:
		return "in_flight"
	case StateApplied:
		return "applied"
	case StateSuperseded:
		return "superseded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChangeKind selects the debounce delay.
type ChangeKind int

const (
	ChangePan ChangeKind = iota
	ChangeFilter
)

// ViewportResult is the applied state of a session.
type ViewportResult struct {
	Token    uint64               `json:"token"`
	Query    domain.Query         `json:"-"`
	Zoom     int                  `json:"zoom"`
	Points   []domain.Point       `json:"points"`
	Clusters []domain.ClusterNode `json:"clusters,omitempty"`
}

// ViewportExecutor computes a result for a query. It must return promptly
// once ctx is cancelled.
type ViewportExecutor func(ctx context.Context, q domain.Query, zoom int) (ViewportResult, error)

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ViewportOptions configure a ViewportController.
type ViewportOptions struct {
	PanDelay    time.Duration
	FilterDelay time.Duration
	OnApply     func(ViewportResult)
	OnError     func(error)
	AfterFunc   AfterFunc
}

// ViewportController debounces viewport and filter changes and makes sure
// only the latest request is applied. Every Submit takes a new token; a
// scheduled or running request whose token is no longer current is
// dropped, and the running one is cancelled.
type ViewportController struct {
	exec ViewportExecutor
	opts ViewportOptions

	mu        sync.Mutex
	token     uint64
	state     ViewportState
	stopTimer func() bool
	cancel    context.CancelFunc
	applied   *ViewportResult
	appliedFP string
	closed    bool

	// emitMu keeps callbacks in token order without holding mu.
	emitMu sync.Mutex
}

// NewViewportController creates an idle controller.
func NewViewportController(exec ViewportExecutor, opts ViewportOptions) *ViewportController {
	if opts.PanDelay <= 0 {
		opts.PanDelay = DefaultPanDelay
	}
	if opts.FilterDelay <= 0 {
		opts.FilterDelay = DefaultFilterDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	return &ViewportController{exec: exec, opts: opts}
}

// Submit schedules q after the debounce delay for kind, superseding any
// scheduled or running request. It returns the request token.
func (c *ViewportController) Submit(kind ChangeKind, q domain.Query, zoom int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.token
	}

	c.supersedeLocked()
	c.token++
	token := c.token
	c.state = StateScheduled

	delay := c.opts.PanDelay
	if kind == ChangeFilter {
		delay = c.opts.FilterDelay
	}
	c.stopTimer = c.opts.AfterFunc(delay, func() { c.fire(token, q, zoom) })
	return token
}

// supersedeLocked drops the pending timer and cancels the running request.
func (c *ViewportController) supersedeLocked() {
	superseded := false
	if c.stopTimer != nil {
		if c.stopTimer() {
			superseded = true
		}
		c.stopTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		superseded = true
	}
	if superseded {
		c.state = StateSuperseded
		metrics.ViewportOutcomes.WithLabelValues("superseded").Inc()
	}
}

func fingerprint(q domain.Query, zoom int) string {
	return q.Fingerprint() + "@" + strconv.Itoa(zoom)
}

func (c *ViewportController) fire(token uint64, q domain.Query, zoom int) {
	c.mu.Lock()
	if token != c.token || c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	fp := fingerprint(q, zoom)
	if c.applied != nil && fp == c.appliedFP {
		c.state = StateIdle
		c.mu.Unlock()
		metrics.ViewportOutcomes.WithLabelValues("unchanged").Inc()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateInFlight
	c.mu.Unlock()

	res, err := c.exec(ctx, q, zoom)
	cancel()

	c.mu.Lock()
	if token != c.token || c.closed {
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	if err != nil {
		if domain.IsCancelled(err) {
			c.state = StateSuperseded
			c.mu.Unlock()
			return
		}
		c.state = StateFailed
		c.emitMu.Lock()
		c.mu.Unlock()
		metrics.ViewportOutcomes.WithLabelValues("failed").Inc()
		slog.Warn("viewport query failed", "token", token, "error", err)
		if c.opts.OnError != nil {
			c.opts.OnError(err)
		}
		c.emitMu.Unlock()
		return
	}

	res.Token = token
	res.Query = q
	res.Zoom = zoom
	c.applied = &res
	c.appliedFP = fp
	c.state = StateApplied
	c.emitMu.Lock()
	c.mu.Unlock()
	metrics.ViewportOutcomes.WithLabelValues("applied").Inc()
	if c.opts.OnApply != nil {
		c.opts.OnApply(res)
	}
	c.emitMu.Unlock()
}

// State returns the current lifecycle state.
func (c *ViewportController) State() ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the latest issued token.
func (c *ViewportController) Token() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// LastApplied returns the most recent applied result. A failed request
// leaves it untouched.
func (c *ViewportController) LastApplied() (ViewportResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == nil {
		return ViewportResult{}, false
	}
	return *c.applied, true
}

// Close cancels pending work and waits for a running OnApply or OnError
// to return. No callback starts after Close returns. Later submissions are
// ignored. Close must not be called from a callback.
func (c *ViewportController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.closed = true
	c.token++
	c.state = StateIdle
	c.mu.Unlock()

	c.emitMu.Lock()
	c.emitMu.Unlock()
}

// NewQueryExecutor returns an executor that filters points with engine and,
// when clusters is set, clusters them at the requested zoom.
func NewQueryExecutor(engine *QueryEngine, clusters *ClusterService) ViewportExecutor {
	return func(ctx context.Context, q domain.Query, zoom int) (ViewportResult, error) {
		points, err := engine.Query(ctx, q)
		if err != nil {
			return ViewportResult{}, err
		}
		res := ViewportResult{Points: points}
		if clusters != nil {
			nodes, err := clusters.Clusters(ctx, q, zoom)
			if err != nil {
				return ViewportResult{}, err
			}
			res.Clusters = nodes
		}
		if err := ctx.Err(); err != nil {
			return ViewportResult{}, err
		}
		return res, nil
	}
}
