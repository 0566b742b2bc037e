package usecases_test

import (
	"context"
	"sync"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
)

// --- Mock PointSource ---

type mockSource struct {
	name      string
	versionFn func(ctx context.Context) (int64, error)
	loadFn    func(ctx context.Context) ([]domain.Point, error)

	mu    sync.Mutex
	loads int
}

func (m *mockSource) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockSource) Version(ctx context.Context) (int64, error) {
	if m.versionFn != nil {
		return m.versionFn(ctx)
	}
	return 1, nil
}

func (m *mockSource) Load(ctx context.Context) ([]domain.Point, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil, nil
}

func (m *mockSource) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	publishFn func(ctx context.Context, ev ports.DatasetEvent) error
}

func (m *mockPublisher) PublishDatasetLoaded(ctx context.Context, ev ports.DatasetEvent) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, context.DeadlineExceeded
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock RouteProvider ---

type mockRoutes struct {
	routeFn func(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error)
	calls   int
}

func (m *mockRoutes) Route(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error) {
	m.calls++
	if m.routeFn != nil {
		return m.routeFn(ctx, start, end)
	}
	return nil, nil
}

// --- Fixtures ---

func pt(id, tag string, lat, lng float64) domain.Point {
	p, ok := domain.NewPoint(domain.PointInput{ID: id, NameEN: id, Lat: lat, Lng: lng, RawTag: tag})
	if !ok {
		panic("invalid fixture point " + id)
	}
	return p
}

func staticSource(points ...domain.Point) *mockSource {
	return &mockSource{
		loadFn: func(ctx context.Context) ([]domain.Point, error) { return points, nil },
	}
}

func ids(points []domain.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}
