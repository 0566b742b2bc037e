package main

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/namtang/stopmap/internal/adapters/filesource"
	"github.com/namtang/stopmap/internal/adapters/osrm"
	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/adapters/valkey"
	"github.com/namtang/stopmap/internal/core/ports"
	"github.com/namtang/stopmap/internal/core/usecases"
	"github.com/namtang/stopmap/internal/pkg/config"
	"github.com/namtang/stopmap/internal/pkg/logging"
	"github.com/namtang/stopmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("stopmap-corridor-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("stopmap-corridor-worker", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	var source ports.PointSource
	if cfg.Data.Source == "postgres" {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		if source, err = postgres.NewPointSource(db, cfg.Data.Table); err != nil {
			log.Fatalf("data source: %v", err)
		}
	} else {
		var files []ports.PointSource
		for _, p := range strings.Split(cfg.Data.StopsPath, ",") {
			if p = strings.TrimSpace(p); p != "" {
				files = append(files, filesource.NewNamtangFile(p))
			}
		}
		source = filesource.NewMulti(files...)
	}

	store := usecases.NewPointStore(source, nil, nil)
	if _, err := store.Load(ctx); err != nil {
		log.Fatalf("initial load: %v", err)
	}

	var routes ports.RouteProvider
	if cfg.Routing.BaseURL != "" {
		routes = osrm.New(cfg.Routing.BaseURL, cfg.Routing.Profile, time.Duration(cfg.Routing.Timeout)*time.Second)
	}
	var routeCache ports.CacheService
	if cfg.Valkey.Enabled {
		if vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix); err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer vc.Close()
			routeCache = vc
		}
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	queue := cfg.Temporal.TaskQueue
	if queue == "" {
		queue = workflows.TaskQueue
	}
	w := worker.New(c, queue, worker.Options{})

	w.RegisterWorkflow(workflows.CorridorWorkflow)
	w.RegisterActivity(&workflows.CorridorActivities{
		Corridors: usecases.NewCorridorService(routes, routeCache, cfg.Corridor.BufferMeters),
		Engine:    usecases.NewQueryEngine(store, cfg.Search.Threshold),
	})

	slog.Info("corridor worker started", "queue", queue, "points", len(store.Snapshot().Points))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
