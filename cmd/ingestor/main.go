package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/namtang/stopmap/internal/adapters/filesource"
	natsadapter "github.com/namtang/stopmap/internal/adapters/nats"
	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/pkg/config"
	"github.com/namtang/stopmap/internal/pkg/logging"
)

// Manifest lists the stop files to load into the database.
type Manifest struct {
	Source string      `json:"source"`
	Files  []FileEntry `json:"files"`
}

type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func main() {
	cfg, err := config.Load("stopmap-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("stopmap-ingestor", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, cfg.Data.Table); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	target, err := postgres.NewPointSource(db, cfg.Data.Table)
	if err != nil {
		log.Fatalf("target: %v", err)
	}

	manifest, err := readManifest(os.Args[1:], cfg.Data.StopsPath)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	// Optional second arg: comma-separated file names to ingest.
	nameFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			nameFilter[strings.TrimSpace(s)] = true
		}
	}

	slog.Info("stop ingestion starting", "files", len(manifest.Files), "source", manifest.Source)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range manifest.Files {
		if len(nameFilter) > 0 && !nameFilter[f.Name] {
			continue
		}
		g.Go(func() error {
			points, err := filesource.NewNamtangFile(f.Path).Load(gctx)
			if err != nil {
				slog.Error("file load failed", "name", f.Name, "path", f.Path, "error", err)
				return nil
			}
			changed, err := target.Upsert(gctx, points)
			if err != nil {
				return err
			}
			slog.Info("file ingested", "name", f.Name, "rows", len(points), "changed", changed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("ingest: %v", err)
	}

	// Running API instances reload on request rather than waiting for
	// their next poll.
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, skipping reload request", "error", err)
		} else {
			defer pub.Close()
			if err := pub.RequestReload(ctx); err != nil {
				slog.Warn("reload request failed", "error", err)
			}
		}
	}

	slog.Info("ingestion complete")
}

// readManifest loads the manifest named by the first argument. Without
// one, the configured stops_path becomes a single-entry manifest.
func readManifest(args []string, fallback string) (*Manifest, error) {
	if len(args) == 0 || args[0] == "" {
		m := &Manifest{Source: "config"}
		for _, p := range strings.Split(fallback, ",") {
			if p = strings.TrimSpace(p); p != "" {
				m.Files = append(m.Files, FileEntry{Name: p, Path: p})
			}
		}
		return m, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
