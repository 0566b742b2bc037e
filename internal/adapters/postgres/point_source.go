package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
)

var _ ports.PointSource = (*PointSource)(nil)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// PointSource reads stops from a table with the columns id, name_th,
// name_en, lat, lng, address_th, address_en, icon and updated_at. The
// service only reads it.
type PointSource struct {
	db    *DB
	table string
}

// NewPointSource creates a source over table.
func NewPointSource(db *DB, table string) (*PointSource, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PointSource{db: db, table: table}, nil
}

func (s *PointSource) Name() string { return "postgres:" + s.table }

// Version combines the row count with the latest update time, so inserts,
// deletes and edits all move it.
func (s *PointSource) Version(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) * 1000003
		       + COALESCE(FLOOR(EXTRACT(EPOCH FROM MAX(updated_at)) * 1000), 0)::bigint
		FROM `+s.table).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("version %s: %w", s.table, err)
	}
	return version, nil
}

// Load reads every row in id order. Rows with unusable coordinates are
// skipped like malformed file records.
func (s *PointSource) Load(ctx context.Context) ([]domain.Point, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id::text, COALESCE(name_th, ''), COALESCE(name_en, ''),
		       lat, lng,
		       COALESCE(address_th, ''), COALESCE(address_en, ''), COALESCE(icon, '')
		FROM `+s.table+`
		WHERE lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}

	defer rows.Close()

	var (
		points  []domain.Point
		skipped int
	)
	for rows.Next() {
		var in domain.PointInput
		if err := rows.Scan(&in.ID, &in.NameTH, &in.NameEN, &in.Lat, &in.Lng,
			&in.AddressTH, &in.AddressEN, &in.RawTag); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		p, ok := domain.NewPoint(in)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", s.table, err)
	}

	slog.InfoContext(ctx, "postgres points loaded", "table", s.table, "accepted", len(points), "skipped", skipped)
	return points, nil
}
