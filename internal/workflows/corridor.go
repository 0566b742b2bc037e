package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/namtang/stopmap/internal/core/domain"
)

// TaskQueue is the default queue served by cmd/corridor-worker.
const TaskQueue = "stopmap-corridor"

// CorridorFilter is the serializable form of the non-spatial query terms.
// A nil Types means every type.
type CorridorFilter struct {
	Types    []string `json:"types"`
	Text     string   `json:"text,omitempty"`
	District string   `json:"district,omitempty"`
	Postcode string   `json:"postcode,omitempty"`
}

// Query converts the filter into a domain query without a bbox.
func (f CorridorFilter) Query() domain.Query {
	q := domain.Query{Text: f.Text, District: f.District, Postcode: f.Postcode}
	if f.Types != nil {
		var types []domain.StopType
		for _, raw := range f.Types {
			if t, ok := domain.ParseStopType(raw); ok {
				types = append(types, t)
			}
		}
		q.Types = domain.NewTypeSet(types...)
	}
	return q
}

// CorridorInput is the input for the corridor workflow.
type CorridorInput struct {
	Start        domain.LatLng
	End          domain.LatLng
	BufferMeters float64
	Filter       CorridorFilter
}

// CorridorResult is the built corridor with the points inside it.
type CorridorResult struct {
	Corridor domain.Corridor
	Points   []domain.Point
}

// CorridorWorkflow fetches the route with retries and falls back to the
// straight segment once they are exhausted, then selects the points
// inside the corridor buffer.
func CorridorWorkflow(ctx workflow.Context, input CorridorInput) (CorridorResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting corridor workflow", "start", input.Start, "end", input.End)

	buffer := input.BufferMeters
	if buffer <= 0 {
		buffer = domain.DefaultCorridorBuffer
	}

	routeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	// Step 1: route, or the straight fallback
	var vertices []domain.LatLng
	corridor := domain.Corridor{BufferMeters: buffer}
	err := workflow.ExecuteActivity(routeCtx, "FetchRoute", input.Start, input.End).Get(ctx, &vertices)
	if err != nil || len(vertices) < 2 {
		logger.Warn("route fetch failed, using straight corridor", "error", err)
		corridor = domain.StraightCorridor(input.Start, input.End, buffer)
	} else {
		corridor.Vertices = vertices
	}

	// Step 2: points along the corridor
	selectCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	var points []domain.Point
	if err := workflow.ExecuteActivity(selectCtx, "SelectPoints", corridor, input.Filter).Get(ctx, &points); err != nil {
		return CorridorResult{}, err
	}

	logger.Info("Corridor built", "fallback", corridor.Fallback, "points", len(points))
	return CorridorResult{Corridor: corridor, Points: points}, nil
}
