package filesource

import (
	"context"
	"strings"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
)

// Multi concatenates several sources in order. Its version changes when
// any member's version changes.
type Multi struct {
	sources []ports.PointSource
}

// NewMulti combines sources.
func NewMulti(sources ...ports.PointSource) *Multi {
	return &Multi{sources: sources}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Version combines member versions with FNV-style mixing.
func (m *Multi) Version(ctx context.Context) (int64, error) {
	var v uint64 = 14695981039346656037
	for _, s := range m.sources {
		sv, err := s.Version(ctx)
		if err != nil {
			return 0, err
		}
		v ^= uint64(sv)
		v *= 1099511628211
	}
	return int64(v), nil
}

func (m *Multi) Load(ctx context.Context) ([]domain.Point, error) {
	var all []domain.Point
	for _, s := range m.sources {
		pts, err := s.Load(ctx)
		if err != nil {
			return nil, &domain.LoadError{Source: s.Name(), Err: err}
		}
		all = append(all, pts...)
	}
	return all, nil
}
