package usecases

import (
	"context"
	"time"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/spatial"
	"github.com/namtang/stopmap/internal/pkg/cache"
	"github.com/namtang/stopmap/internal/pkg/metrics"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

// ClusterService keeps one cluster index per filter (types and text) and
// dataset generation. A new dataset or a new filter builds a fresh index;
// indexes are never patched.
type ClusterService struct {
	store   *PointStore
	engine  *QueryEngine
	indexes *cache.ProcessCache[string, *spatial.Index]
	opts    spatial.Options
}

// NewClusterService creates the service. indexes may be nil.
func NewClusterService(store *PointStore, engine *QueryEngine, indexes *cache.ProcessCache[string, *spatial.Index], opts spatial.Options) *ClusterService {
	if indexes == nil {
		indexes = cache.New[string, *spatial.Index](32, func(k string) string { return k })
	}
	return &ClusterService{store: store, engine: engine, indexes: indexes, opts: opts}
}

// Index returns the index for q's filter, building it on first use. The
// bbox and limit of q are ignored.
func (s *ClusterService) Index(ctx context.Context, q domain.Query) (*spatial.Index, error) {
	snap, err := s.store.current()
	if err != nil {
		return nil, err
	}
	q.BBox = nil
	q.Limit = 0

	idx, hit, err := s.indexes.GetOrLoadContext(ctx, q.FilterKey(), snap.Generation, func(ctx context.Context) (*spatial.Index, error) {
		points, err := s.engine.QuerySnapshot(ctx, snap, q)
		if err != nil {
			return nil, err
		}
		_, span := telemetry.Tracer().Start(ctx, telemetry.SpanIndexBuild)
		defer span.End()
		start := time.Now()
		built := spatial.Build(points, s.opts)
		metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	if hit {
		metrics.CacheHits.WithLabelValues("cluster_index").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("cluster_index").Inc()
	}
	return idx, nil
}

// Clusters returns the nodes visible in q.BBox at zoom. A nil bbox means
// the whole world.
func (s *ClusterService) Clusters(ctx context.Context, q domain.Query, zoom int) ([]domain.ClusterNode, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanClusters)
	defer span.End()

	bbox := domain.Bounds{West: -180, South: -90, East: 180, North: 90}
	if q.BBox != nil {
		bbox = *q.BBox
	}
	idx, err := s.Index(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("clusters").Inc()
	return idx.GetClusters(bbox, zoom), nil
}

// ExpansionZoom returns the zoom at which the aggregate splits.
func (s *ClusterService) ExpansionZoom(ctx context.Context, q domain.Query, clusterID int) (int, error) {
	idx, err := s.Index(ctx, q)
	if err != nil {
		return 0, err
	}
	return idx.ExpansionZoom(clusterID)
}

// Leaves pages through the points under an aggregate.
func (s *ClusterService) Leaves(ctx context.Context, q domain.Query, clusterID, limit, offset int) ([]domain.Point, error) {
	idx, err := s.Index(ctx, q)
	if err != nil {
		return nil, err
	}
	return idx.Leaves(clusterID, limit, offset)
}

// Invalidate drops every built index.
func (s *ClusterService) Invalidate() {
	s.indexes.Purge()
}
