package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
	"github.com/namtang/stopmap/internal/pkg/cache"
	"github.com/namtang/stopmap/internal/pkg/fuzzy"
	"github.com/namtang/stopmap/internal/pkg/metrics"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

// Snapshot is one immutable load of the dataset. Readers must not modify
// Points.
type Snapshot struct {
	Points     []domain.Point
	Source     string
	Version    int64
	Generation int64
	LoadedAt   time.Time

	// search holds the normalized searchable fields of Points[i], in
	// searchFields order.
	search [][]string
}

// searchFields are the fuzzy-matched attributes and their weights.
var searchFields = []fuzzy.Field{
	{Name: "name_th", Weight: 0.5},
	{Name: "name_en", Weight: 0.4},
	{Name: "address_th", Weight: 0.3},
	{Name: "address_en", Weight: 0.3},
}

func newSnapshot(source string, version, generation int64, points []domain.Point) *Snapshot {
	search := make([][]string, len(points))
	for i, p := range points {
		search[i] = []string{
			fuzzy.Normalize(p.NameTH),
			fuzzy.Normalize(p.NameEN),
			fuzzy.Normalize(p.AddressTH),
			fuzzy.Normalize(p.AddressEN),
		}
	}
	return &Snapshot{
		Points:     points,
		Source:     source,
		Version:    version,
		Generation: generation,
		LoadedAt:   time.Now(),
		search:     search,
	}
}

// PointStore owns the loaded dataset. Reloads replace the snapshot
// wholesale; readers holding an older snapshot keep a consistent view.
type PointStore struct {
	source    ports.PointSource
	cache     *cache.ProcessCache[string, *Snapshot]
	publisher ports.EventPublisher

	mu   sync.RWMutex
	snap *Snapshot

	// loadMu serializes Load so installs happen in source-version order.
	loadMu sync.Mutex

	generation atomic.Int64
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewPointStore creates a store reading from source. snapshots may be shared
// between stores; nil creates a private one. publisher is optional.
func NewPointStore(source ports.PointSource, snapshots *cache.ProcessCache[string, *Snapshot], publisher ports.EventPublisher) *PointStore {
	if snapshots == nil {
		snapshots = cache.New[string, *Snapshot](4, func(k string) string { return k })
	}
	return &PointStore{
		source:    source,
		cache:     snapshots,
		publisher: publisher,
		ready:     make(chan struct{}),
	}
}

// Load reads the source unless the snapshot for its current version is
// already cached, then installs it. Concurrent calls run one at a time.
// Source failures are returned as *domain.LoadError.
func (s *PointStore) Load(ctx context.Context) (*Snapshot, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDatasetLoad)
	defer span.End()

	name := s.source.Name()
	version, err := s.source.Version(ctx)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, &domain.LoadError{Source: name, Err: err}
	}

	snap, hit, err := s.cache.GetOrLoadContext(ctx, name, version, func(ctx context.Context) (*Snapshot, error) {
		points, err := s.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		return newSnapshot(name, version, s.generation.Add(1), points), nil
	})
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("error").Inc()
		span.RecordError(err)
		var le *domain.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &domain.LoadError{Source: name, Err: err}
	}

	if hit {
		metrics.DatasetLoads.WithLabelValues("unchanged").Inc()
	} else {
		metrics.DatasetLoads.WithLabelValues("loaded").Inc()
	}
	if s.install(snap) {
		metrics.PointsLoaded.Set(float64(len(snap.Points)))
		slog.InfoContext(ctx, "dataset installed",
			"source", name, "version", version, "generation", snap.Generation, "points", len(snap.Points))
		s.publish(ctx, snap)
	}
	return snap, nil
}

// Refresh reloads if the source version moved and reports whether a new
// snapshot was installed.
func (s *PointStore) Refresh(ctx context.Context) (bool, error) {
	before := s.Snapshot()
	after, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return before == nil || before.Generation != after.Generation, nil
}

// install swaps in snap if it differs from the current one.
func (s *PointStore) install(snap *Snapshot) bool {
	s.mu.Lock()
	changed := s.snap == nil || s.snap.Generation != snap.Generation
	if changed {
		s.snap = snap
	}
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	return changed
}

func (s *PointStore) publish(ctx context.Context, snap *Snapshot) {
	if s.publisher == nil {
		return
	}
	ev := ports.DatasetEvent{Source: snap.Source, Version: snap.Version, Count: len(snap.Points)}
	if err := s.publisher.PublishDatasetLoaded(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish dataset event", "error", err)
	}
}

// Snapshot returns the current snapshot or nil before the first load.
func (s *PointStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// current is Snapshot with the not-ready check applied.
func (s *PointStore) current() (*Snapshot, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	return snap, nil
}

// All returns a copy of the loaded points.
func (s *PointStore) All() ([]domain.Point, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Point, len(snap.Points))
	copy(out, snap.Points)
	return out, nil
}

// Ready is closed after the first successful load.
func (s *PointStore) Ready() <-chan struct{} {
	return s.ready
}

// IsReady reports whether a snapshot is installed.
func (s *PointStore) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the first load or ctx is done.
func (s *PointStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
