package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
	"github.com/namtang/stopmap/internal/pkg/geospatial"
	"github.com/namtang/stopmap/internal/pkg/metrics"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

// routeCacheTTL is how long a provider route is reused, in seconds.
const routeCacheTTL = 3600

// CorridorService builds route corridors and filters points against them.
type CorridorService struct {
	routes ports.RouteProvider
	cache  ports.CacheService
	buffer float64
}

// NewCorridorService creates the service. cache may be nil; buffer <= 0
// uses domain.DefaultCorridorBuffer.
func NewCorridorService(routes ports.RouteProvider, cache ports.CacheService, buffer float64) *CorridorService {
	if buffer <= 0 {
		buffer = domain.DefaultCorridorBuffer
	}
	return &CorridorService{routes: routes, cache: cache, buffer: buffer}
}

// Buffer returns the default corridor half-width in meters.
func (s *CorridorService) Buffer() float64 { return s.buffer }

// Build asks the provider for a route between start and end. Any provider
// failure, a missed deadline included, yields the straight corridor with
// Fallback set. The only error returned is cancellation of ctx.
func (s *CorridorService) Build(ctx context.Context, start, end domain.LatLng) (domain.Corridor, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRouteFetch)
	defer span.End()

	vertices, err := s.FetchRoute(ctx, start, end)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return domain.Corridor{}, domain.ErrCancelled
		}
		span.RecordError(err)
		metrics.RouteFetches.WithLabelValues("fallback").Inc()
		slog.WarnContext(ctx, "route provider failed, using straight corridor", "error", err)
		return domain.StraightCorridor(start, end, s.buffer), nil
	}
	return domain.Corridor{Vertices: vertices, BufferMeters: s.buffer}, nil
}

// FetchRoute returns the cached or freshly fetched route polyline without
// any fallback. Fresh routes are written back to the cache.
func (s *CorridorService) FetchRoute(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error) {
	key := routeCacheKey(start, end)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var vertices []domain.LatLng
			if err := json.Unmarshal(data, &vertices); err == nil && len(vertices) >= 2 {
				metrics.RouteFetches.WithLabelValues("cached").Inc()
				return vertices, nil
			}
		}
	}

	if s.routes == nil {
		return nil, &domain.FetchError{Err: errors.New("no route provider configured")}
	}

	vertices, err := s.routes.Route(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(vertices) < 2 {
		return nil, &domain.FetchError{Err: errors.New("empty route geometry")}
	}

	metrics.RouteFetches.WithLabelValues("ok").Inc()
	if s.cache != nil {
		if data, err := json.Marshal(vertices); err == nil {
			_ = s.cache.Set(ctx, key, data, routeCacheTTL)
		}
	}
	return vertices, nil
}

func routeCacheKey(start, end domain.LatLng) string {
	return fmt.Sprintf("route:%.6f,%.6f:%.6f,%.6f", start.Lat, start.Lng, end.Lat, end.Lng)
}

// DistanceToCorridor returns the distance in meters from p to the corridor
// polyline. Once a segment within the buffer is found the scan stops, so the
// result is exact only when it exceeds the buffer.
func DistanceToCorridor(p domain.LatLng, c domain.Corridor) float64 {
	return geospatial.PolylineDistance(p.Point(), lineString(c.Vertices), c.BufferMeters)
}

func lineString(vertices []domain.LatLng) orb.LineString {
	ls := make(orb.LineString, len(vertices))
	for i, v := range vertices {
		ls[i] = v.Point()
	}
	return ls
}

// Filter keeps the points within buffer meters of the corridor, in input
// order. buffer <= 0 uses the corridor's own buffer.
func (s *CorridorService) Filter(points []domain.Point, c domain.Corridor, buffer float64) []domain.Point {
	_, span := telemetry.Tracer().Start(context.Background(), telemetry.SpanCorridor)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.QueriesTotal.WithLabelValues("corridor").Inc()
		metrics.QueryDuration.WithLabelValues("corridor").Observe(time.Since(start).Seconds())
	}()
	return FilterCorridor(points, c, buffer)
}

// FilterCorridor is the pure corridor filter. Segment envelopes padded by
// the buffer go into an R-tree so each point is measured only against
// nearby segments.
func FilterCorridor(points []domain.Point, c domain.Corridor, buffer float64) []domain.Point {
	if buffer <= 0 {
		buffer = c.BufferMeters
	}
	if buffer <= 0 {
		buffer = domain.DefaultCorridorBuffer
	}
	out := make([]domain.Point, 0)
	if len(c.Vertices) == 0 {
		return out
	}

	line := lineString(c.Vertices)
	if len(line) == 1 {
		line = append(line, line[0])
	}

	// Envelopes are padded a little wider than the buffer; the exact test
	// below decides membership.
	pad := buffer * 1.1
	var tr rtree.RTreeG[int]
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		maxLat := math.Max(math.Abs(a[1]), math.Abs(b[1]))
		padLat := geospatial.MetersToLatDegrees(pad)
		padLon := geospatial.MetersToLonDegrees(pad, maxLat)
		tr.Insert(
			[2]float64{math.Min(a[0], b[0]) - padLon, math.Min(a[1], b[1]) - padLat},
			[2]float64{math.Max(a[0], b[0]) + padLon, math.Max(a[1], b[1]) + padLat},
			i,
		)
	}

	for _, p := range points {
		pt := p.Location().Point()
		inside := false
		tr.Search([2]float64{pt[0], pt[1]}, [2]float64{pt[0], pt[1]},
			func(_, _ [2]float64, seg int) bool {
				if geospatial.SegmentDistance(pt, line[seg], line[seg+1]) <= buffer {
					inside = true
					return false
				}
				return true
			})
		if inside {
			out = append(out, p)
		}
	}
	return out
}
