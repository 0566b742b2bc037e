package ports

import (
	"context"

	"github.com/namtang/stopmap/internal/core/domain"
)

// DatasetEvent describes a newly loaded point snapshot.
type DatasetEvent struct {
	Source  string `json:"source"`
	Version int64  `json:"version"`
	Count   int    `json:"count"`
}

// EventPublisher publishes dataset lifecycle events to a message broker.
type EventPublisher interface {
	PublishDatasetLoaded(ctx context.Context, event DatasetEvent) error
}

// EventSubscriber receives reload requests from a message broker.
type EventSubscriber interface {
	SubscribeReloadRequests(ctx context.Context, handler func(ctx context.Context) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// RouteProvider returns a route polyline between two endpoints. The
// coordinates are already converted to (lat, lng).
type RouteProvider interface {
	Route(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error)
}
