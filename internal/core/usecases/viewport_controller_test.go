package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/spatial"
	"github.com/namtang/stopmap/internal/core/usecases"
)

// fakeClock records scheduled callbacks so tests decide when they fire.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// due marks every live timer as fired and returns their callbacks.
func (c *fakeClock) due() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var fs []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			fs = append(fs, t.f)
		}
	}
	return fs
}

func (c *fakeClock) fireAll() {
	for _, f := range c.due() {
		f()
	}
}

func (c *fakeClock) lastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1].delay
}

func bboxQuery(west float64) domain.Query {
	return domain.Query{BBox: &domain.Bounds{West: west, South: 13.6, East: west + 0.1, North: 13.8}}
}

// recorder collects executed queries and callbacks.
type recorder struct {
	mu       sync.Mutex
	executed []domain.Query
	applied  []usecases.ViewportResult
	errs     []error
}

func (r *recorder) exec(ctx context.Context, q domain.Query, zoom int) (usecases.ViewportResult, error) {
	r.mu.Lock()
	r.executed = append(r.executed, q)
	r.mu.Unlock()
	return usecases.ViewportResult{Points: []domain.Point{pt(q.Fingerprint(), "bus", 13.7, 100.5)}}, nil
}

func (r *recorder) options(clock *fakeClock) usecases.ViewportOptions {
	return usecases.ViewportOptions{
		AfterFunc: clock.AfterFunc,
		OnApply: func(res usecases.ViewportResult) {
			r.mu.Lock()
			r.applied = append(r.applied, res)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func TestViewportController_DebounceCollapses(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	c := usecases.NewViewportController(rec.exec, rec.options(clock))

	var last uint64
	for i := 0; i < 5; i++ {
		last = c.Submit(usecases.ChangePan, bboxQuery(100.0+float64(i)/10), 12)
	}
	assert.Equal(t, usecases.StateScheduled, c.State())

	clock.fireAll()

	require.Len(t, rec.executed, 1)
	assert.InDelta(t, 100.4, rec.executed[0].BBox.West, 1e-9)
	require.Len(t, rec.applied, 1)
	assert.Equal(t, last, rec.applied[0].Token)
	assert.Equal(t, 12, rec.applied[0].Zoom)
	assert.Equal(t, usecases.StateApplied, c.State())
}

func TestViewportController_Delays(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	opts := rec.options(clock)
	c := usecases.NewViewportController(rec.exec, opts)

	c.Submit(usecases.ChangePan, bboxQuery(100), 10)
	assert.Equal(t, usecases.DefaultPanDelay, clock.lastDelay())
	c.Submit(usecases.ChangeFilter, bboxQuery(100), 10)
	assert.Equal(t, usecases.DefaultFilterDelay, clock.lastDelay())

	opts.PanDelay = 300 * time.Millisecond
	c = usecases.NewViewportController(rec.exec, opts)
	c.Submit(usecases.ChangePan, bboxQuery(100), 10)
	assert.Equal(t, 300*time.Millisecond, clock.lastDelay())
}

func TestViewportController_SupersededResultNeverApplied(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}

	startedA := make(chan struct{})
	releaseA := make(chan struct{})
	exec := func(ctx context.Context, q domain.Query, zoom int) (usecases.ViewportResult, error) {
		if q.BBox.West == 100 {
			close(startedA)
			<-releaseA
			// A slow backend that ignores cancellation still returns a result.
			return usecases.ViewportResult{Points: []domain.Point{pt("A", "bus", 13.7, 100.5)}}, nil
		}
		return usecases.ViewportResult{Points: []domain.Point{pt("B", "bus", 13.7, 100.5)}}, nil
	}
	c := usecases.NewViewportController(exec, rec.options(clock))

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	fired := clock.due()
	require.Len(t, fired, 1)
	doneA := make(chan struct{})
	go func() {
		fired[0]()
		close(doneA)
	}()
	<-startedA
	assert.Equal(t, usecases.StateInFlight, c.State())

	tokenB := c.Submit(usecases.ChangePan, bboxQuery(101), 12)
	clock.fireAll()

	close(releaseA)
	<-doneA

	require.Len(t, rec.applied, 1)
	assert.Equal(t, "B", rec.applied[0].Points[0].ID)
	applied, ok := c.LastApplied()
	require.True(t, ok)
	assert.Equal(t, tokenB, applied.Token)
	assert.Equal(t, "B", applied.Points[0].ID)
}

func TestViewportController_InFlightIsCancelled(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	exec := func(ctx context.Context, q domain.Query, zoom int) (usecases.ViewportResult, error) {
		if q.BBox.West == 100 {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return usecases.ViewportResult{}, ctx.Err()
		}
		return usecases.ViewportResult{}, nil
	}
	c := usecases.NewViewportController(exec, rec.options(clock))

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	fired := clock.due()
	done := make(chan struct{})
	go func() {
		fired[0]()
		close(done)
	}()
	<-started

	c.Submit(usecases.ChangeFilter, bboxQuery(101), 12)
	<-cancelled
	<-done

	assert.Empty(t, rec.errs, "cancellation is never reported")
	clock.fireAll()
	assert.Len(t, rec.applied, 1)
}

func TestViewportController_FailureKeepsLastApplied(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	boom := errors.New("backend unavailable")
	exec := func(ctx context.Context, q domain.Query, zoom int) (usecases.ViewportResult, error) {
		if q.BBox.West == 101 {
			return usecases.ViewportResult{}, boom
		}
		return rec.exec(ctx, q, zoom)
	}
	c := usecases.NewViewportController(exec, rec.options(clock))

	first := c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	clock.fireAll()
	c.Submit(usecases.ChangePan, bboxQuery(101), 12)
	clock.fireAll()

	assert.Equal(t, usecases.StateFailed, c.State())
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], boom)
	applied, ok := c.LastApplied()
	require.True(t, ok)
	assert.Equal(t, first, applied.Token)
}

func TestViewportController_CancelledErrorIsDiscarded(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	exec := func(ctx context.Context, q domain.Query, zoom int) (usecases.ViewportResult, error) {
		return usecases.ViewportResult{}, domain.ErrCancelled
	}
	c := usecases.NewViewportController(exec, rec.options(clock))

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	clock.fireAll()

	assert.Empty(t, rec.errs)
	assert.Empty(t, rec.applied)
	assert.Equal(t, usecases.StateSuperseded, c.State())
}

func TestViewportController_UnchangedFingerprintSkipsExecution(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	c := usecases.NewViewportController(rec.exec, rec.options(clock))

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	clock.fireAll()

	// Sub-micro-degree jitter rounds to the same fingerprint.
	c.Submit(usecases.ChangePan, bboxQuery(100.0000001), 12)
	clock.fireAll()

	assert.Len(t, rec.executed, 1)
	assert.Equal(t, usecases.StateIdle, c.State())

	// A zoom change alone is a new request.
	c.Submit(usecases.ChangePan, bboxQuery(100), 13)
	clock.fireAll()
	assert.Len(t, rec.executed, 2)
}

func TestViewportController_Close(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	c := usecases.NewViewportController(rec.exec, rec.options(clock))

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	c.Close()
	clock.fireAll()
	c.Submit(usecases.ChangePan, bboxQuery(101), 12)
	clock.fireAll()

	assert.Empty(t, rec.executed)
}

func TestViewportController_CloseWaitsForRunningCallback(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	started := make(chan struct{})
	var finished atomic.Bool
	opts := rec.options(clock)
	opts.OnApply = func(usecases.ViewportResult) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}
	c := usecases.NewViewportController(rec.exec, opts)

	c.Submit(usecases.ChangePan, bboxQuery(100), 12)
	go clock.fireAll()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("callback did not start")
	}

	c.Close()
	assert.True(t, finished.Load(), "Close returned while OnApply was still running")

	c.Close()
}

func TestViewportController_RealTimer(t *testing.T) {
	engine, store := newEngine(t, scenarioPoints()...)
	clusters := usecases.NewClusterService(store, engine, nil, spatial.DefaultOptions())

	applied := make(chan usecases.ViewportResult, 1)
	c := usecases.NewViewportController(usecases.NewQueryExecutor(engine, clusters), usecases.ViewportOptions{
		PanDelay: 5 * time.Millisecond,
		OnApply:  func(res usecases.ViewportResult) { applied <- res },
	})
	defer c.Close()

	c.Submit(usecases.ChangePan, domain.Query{Types: domain.NewTypeSet(domain.TypeBus, domain.TypeBTS)}, 14)

	select {
	case res := <-applied:
		assert.Equal(t, []string{"1", "2"}, ids(res.Points))
		total := 0
		for _, n := range res.Clusters {
			total += n.Count
		}
		assert.Equal(t, 2, total)
	case <-time.After(2 * time.Second):
		t.Fatal("viewport result was not applied")
	}
}
