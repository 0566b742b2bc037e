package usecases

import (
	"context"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/pkg/metrics"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

// HeatmapService sums point weights into S2 cells whose size follows the
// map zoom.
type HeatmapService struct {
	engine *QueryEngine
}

func NewHeatmapService(engine *QueryEngine) *HeatmapService {
	return &HeatmapService{engine: engine}
}

// CellLevel maps a web map zoom to an S2 level. S2 level n cells are
// roughly the size of a zoom n tile, so a few levels finer gives a smooth
// heatmap.
func CellLevel(zoom int) int {
	level := zoom + 4
	if level < 2 {
		level = 2
	}
	if level > 20 {
		level = 20
	}
	return level
}

// Cells returns the weighted cells of the points matching q, heaviest
// first.
func (s *HeatmapService) Cells(ctx context.Context, q domain.Query, zoom int) ([]domain.HeatCell, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanHeatmap)
	defer span.End()

	q.Limit = 0
	points, err := s.engine.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("heatmap").Inc()
	return Aggregate(points, CellLevel(zoom)), nil
}

// Aggregate buckets points into S2 cells at level.
func Aggregate(points []domain.Point, level int) []domain.HeatCell {
	buckets := make(map[s2.CellID]*domain.HeatCell)
	for _, p := range points {
		id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng)).Parent(level)
		cell, ok := buckets[id]
		if !ok {
			center := id.LatLng()
			cell = &domain.HeatCell{
				Token: id.ToToken(),
				Lat:   center.Lat.Degrees(),
				Lng:   center.Lng.Degrees(),
			}
			buckets[id] = cell
		}
		cell.Weight += p.Weight
		cell.Count++
	}

	out := make([]domain.HeatCell, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Token < out[j].Token
	})
	return out
}
