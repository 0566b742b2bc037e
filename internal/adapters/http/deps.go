package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/adapters/valkey"
	"github.com/namtang/stopmap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Infrastructure
// handles (NATS, DB, Cache) are optional and only used for readiness.
type Dependencies struct {
	Store      *usecases.PointStore
	Facilities *usecases.PointStore
	Engine     *usecases.QueryEngine
	Clusters   *usecases.ClusterService
	Heatmap    *usecases.HeatmapService
	Corridor   *usecases.CorridorService
	Viewport   ViewportSettings
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}

// ViewportSettings are the debounce delays for WebSocket sessions.
type ViewportSettings struct {
	PanDelay    time.Duration
	FilterDelay time.Duration
}
