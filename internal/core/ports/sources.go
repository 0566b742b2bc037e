package ports

import (
	"context"

	"github.com/namtang/stopmap/internal/core/domain"
)

// PointSource reads the raw dataset. Malformed records are skipped by the
// source; an error means the source itself could not be read.
type PointSource interface {
	Name() string
	// Version returns a stamp that changes whenever the content changes,
	// such as a file modification time.
	Version(ctx context.Context) (int64, error)
	Load(ctx context.Context) ([]domain.Point, error)
}
