package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/namtang/stopmap/internal/core/domain"
)

const upsertBatchSize = 500

// Upsert writes points into the source table in batches. Rows only change
// updated_at when a column actually differs, so unchanged imports leave
// the source version alone.
func (s *PointSource) Upsert(ctx context.Context, points []domain.Point) (int, error) {
	query := `
		INSERT INTO ` + s.table + ` AS t (id, name_th, name_en, lat, lng, address_th, address_en, icon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name_th = EXCLUDED.name_th, name_en = EXCLUDED.name_en,
		    lat = EXCLUDED.lat, lng = EXCLUDED.lng,
		    address_th = EXCLUDED.address_th, address_en = EXCLUDED.address_en,
		    icon = EXCLUDED.icon, updated_at = now()
		WHERE (t.name_th, t.name_en, t.lat, t.lng, t.address_th, t.address_en, t.icon)
		   IS DISTINCT FROM
		      (EXCLUDED.name_th, EXCLUDED.name_en, EXCLUDED.lat, EXCLUDED.lng,
		       EXCLUDED.address_th, EXCLUDED.address_en, EXCLUDED.icon)`

	batch := &pgx.Batch{}
	total := 0
	for _, p := range points {
		if p.ID == "" {
			continue
		}
		batch.Queue(query, p.ID, p.NameTH, p.NameEN, p.Lat, p.Lng, p.AddressTH, p.AddressEN, p.RawTag)
		if batch.Len() >= upsertBatchSize {
			if err := s.flush(ctx, batch); err != nil {
				return total, err
			}
			total += batch.Len()
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := s.flush(ctx, batch); err != nil {
			return total, err
		}
		total += batch.Len()
	}

	slog.InfoContext(ctx, "postgres points upserted", "table", s.table, "rows", total)
	return total, nil
}

func (s *PointSource) flush(ctx context.Context, batch *pgx.Batch) error {
	br := s.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert %s: %w", s.table, err)
		}
	}
	return nil
}
