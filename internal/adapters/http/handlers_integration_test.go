//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/usecases"
)

const integrationTable = "stopmap_it_points"

// setupTestDB connects to STOPMAP_TEST_DSN and seeds a fresh points table.
func setupTestDB(t *testing.T) *postgres.DB {
	dsn := os.Getenv("STOPMAP_TEST_DSN")
	if dsn == "" {
		t.Skip("STOPMAP_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := postgres.Drop(ctx, db, integrationTable); err != nil {
		t.Fatal(err)
	}
	if err := postgres.Migrate(ctx, db, integrationTable); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Pool.Exec(ctx, `INSERT INTO `+integrationTable+` (id, name_th, name_en, lat, lng, icon) VALUES
		('1', 'สยาม', 'Siam', 13.7456, 100.5347, 'bts.png'),
		('2', 'ป้าย', 'Bus stop', 13.7460, 100.5350, 'bus_stop.png'),
		('3', 'ท่าเรือ', 'Sathorn Pier', 13.7190, 100.5140, 'pier.png'),
		('4', 'bad', 'bad', 95, 100.5, 'bus.png')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func TestStops_Integration_PostgresSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)

	src, err := postgres.NewPointSource(db, integrationTable)
	if err != nil {
		t.Fatal(err)
	}
	store := usecases.NewPointStore(src, nil, nil)
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	deps := buildDeps(store, nil)
	deps.DB = db
	app := setupApp(deps)

	status, body, _ := get(t, app, "/v1/stops?types=bts,boat")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var res struct {
		Data []domain.Point `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if got := idsOf(res.Data); got != "1,3" {
		t.Errorf("expected 1,3 got %q", got)
	}

	// Re-importing identical rows keeps the version stable.
	before, err := src.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snap := store.Snapshot()
	if _, err := src.Upsert(context.Background(), snap.Points); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	after, _ := src.Version(context.Background())
	if before != after {
		t.Errorf("expected unchanged version, got %d then %d", before, after)
	}

	status, body, _ = get(t, app, "/v1/ready")
	if status != 200 {
		t.Errorf("expected ready, got %d: %s", status, body)
	}
}
