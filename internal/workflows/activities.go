package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/usecases"
)

// CorridorActivities holds the activity implementations for the corridor workflow.
type CorridorActivities struct {
	Corridors *usecases.CorridorService
	Engine    *usecases.QueryEngine
}

// FetchRoute returns the route polyline between start and end. Provider
// 4xx answers are not retried.
func (a *CorridorActivities) FetchRoute(ctx context.Context, start, end domain.LatLng) ([]domain.LatLng, error) {
	vertices, err := a.Corridors.FetchRoute(ctx, start, end)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.Status >= 400 && fe.Status < 500 {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "RouteRejected", err)
		}
		return nil, fmt.Errorf("fetch route: %w", err)
	}
	return vertices, nil
}

// SelectPoints filters the current snapshot by the query terms and keeps
// the points inside the corridor buffer.
func (a *CorridorActivities) SelectPoints(ctx context.Context, corridor domain.Corridor, filter CorridorFilter) ([]domain.Point, error) {
	candidates, err := a.Engine.Query(ctx, filter.Query())
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	points := a.Corridors.Filter(candidates, corridor, corridor.BufferMeters)
	slog.InfoContext(ctx, "corridor points selected",
		"vertices", len(corridor.Vertices), "candidates", len(candidates), "selected", len(points), "fallback", corridor.Fallback)
	return points, nil
}
