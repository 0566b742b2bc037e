package usecases

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/pkg/fuzzy"
	"github.com/namtang/stopmap/internal/pkg/geospatial"
	"github.com/namtang/stopmap/internal/pkg/metrics"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

// DefaultNearestK is used when Nearest is called with k <= 0.
const DefaultNearestK = 10

// QueryEngine filters the current snapshot.
type QueryEngine struct {
	store   *PointStore
	matcher *fuzzy.Matcher
}

// NewQueryEngine creates an engine over store. threshold <= 0 uses the
// default fuzzy cutoff.
func NewQueryEngine(store *PointStore, threshold float64) *QueryEngine {
	return &QueryEngine{
		store:   store,
		matcher: fuzzy.NewMatcher(threshold, searchFields...),
	}
}

// Query returns the points of the current snapshot matching q.
func (e *QueryEngine) Query(ctx context.Context, q domain.Query) ([]domain.Point, error) {
	snap, err := e.store.current()
	if err != nil {
		return nil, err
	}
	return e.QuerySnapshot(ctx, snap, q)
}

// QuerySnapshot runs q against a specific snapshot. It returns ctx.Err()
// when ctx ends mid-scan.
func (e *QueryEngine) QuerySnapshot(ctx context.Context, snap *Snapshot, q domain.Query) ([]domain.Point, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanQuery)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.QueriesTotal.WithLabelValues("filter").Inc()
		metrics.QueryDuration.WithLabelValues("filter").Observe(time.Since(start).Seconds())
	}()

	out, err := e.filter(ctx, snap, q)
	span.SetAttributes(
		attribute.String("query.filter_key", q.FilterKey()),
		attribute.Int("query.results", len(out)),
	)
	return out, err
}

// Filter is the pure filtering step. Order follows the snapshot.
func (e *QueryEngine) Filter(snap *Snapshot, q domain.Query) []domain.Point {
	out, _ := e.filter(context.Background(), snap, q)
	return out
}

func (e *QueryEngine) filter(ctx context.Context, snap *Snapshot, q domain.Query) ([]domain.Point, error) {
	if snap == nil || q.Types.Empty() {
		return []domain.Point{}, nil
	}

	var bound func(domain.LatLng) bool
	if q.BBox != nil {
		b := *q.BBox
		bound = b.Contains
	}
	terms := fuzzy.Terms(q.Text, q.District)
	postcode := fuzzy.Normalize(q.Postcode)

	out := make([]domain.Point, 0)
	for i, p := range snap.Points {
		// Cheap cancellation check for long scans.
		if i&1023 == 1023 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !q.Types.Contains(p.Type) {
			continue
		}
		if bound != nil && !bound(p.Location()) {
			continue
		}
		if postcode != "" && !addressContains(snap.search[i], postcode) {
			continue
		}
		if len(terms) > 0 && !e.matcher.Match(terms, snap.search[i]) {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// addressContains reports whether either address field holds s verbatim.
// Postcodes are matched this way, never fuzzily.
func addressContains(fields []string, s string) bool {
	return strings.Contains(fields[2], s) || strings.Contains(fields[3], s)
}

// Nearest returns up to k points closest to (lat, lng), nearest first.
// Points farther than withinMeters are dropped when withinMeters > 0.
func (e *QueryEngine) Nearest(ctx context.Context, lat, lng float64, k int, withinMeters float64) ([]domain.Point, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanNearest)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.QueriesTotal.WithLabelValues("nearest").Inc()
		metrics.QueryDuration.WithLabelValues("nearest").Observe(time.Since(start).Seconds())
	}()

	snap, err := e.store.current()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return NearestIn(snap.Points, lat, lng, k, withinMeters), nil
}

// NearestIn is the pure nearest-k over points. Ties keep source order.
func NearestIn(points []domain.Point, lat, lng float64, k int, withinMeters float64) []domain.Point {
	if k <= 0 {
		k = DefaultNearestK
	}
	type ranked struct {
		idx  int
		dist float64
	}
	candidates := make([]ranked, 0, len(points))
	for i, p := range points {
		d := geospatial.Haversine(lat, lng, p.Lat, p.Lng)
		if math.IsNaN(d) {
			continue
		}
		if withinMeters > 0 && d > withinMeters {
			continue
		}
		candidates = append(candidates, ranked{idx: i, dist: d})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].dist < candidates[b].dist
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.Point, len(candidates))
	for i, c := range candidates {
		out[i] = points[c.idx]
	}
	return out
}
