package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/namtang/stopmap/internal/adapters/filesource"
	"github.com/namtang/stopmap/internal/adapters/http"
	natsadapter "github.com/namtang/stopmap/internal/adapters/nats"
	"github.com/namtang/stopmap/internal/adapters/osrm"
	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/adapters/valkey"
	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
	"github.com/namtang/stopmap/internal/core/spatial"
	"github.com/namtang/stopmap/internal/core/usecases"
	"github.com/namtang/stopmap/internal/pkg/config"
	"github.com/namtang/stopmap/internal/pkg/logging"
	"github.com/namtang/stopmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("stopmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup("stopmap-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database (only for the postgres source)
	var db *postgres.DB
	if cfg.Data.Source == "postgres" {
		db, err = postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go db.ReportPoolMetrics(ctx, 15*time.Second)
	}

	source, err := stopSource(cfg, db)
	if err != nil {
		log.Fatalf("data source: %v", err)
	}

	// Route cache
	var cache *valkey.Cache
	var routeCache ports.CacheService
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			routeCache = cache
		}
	}

	// NATS
	var (
		natsConn  *nats.Conn
		publisher ports.EventPublisher
	)
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			natsConn = pub.Conn()
		}
	}

	// Use cases
	store := usecases.NewPointStore(source, nil, publisher)
	engine := usecases.NewQueryEngine(store, cfg.Search.Threshold)
	clusters := usecases.NewClusterService(store, engine, nil, spatial.Options{
		MinZoom:          cfg.Clustering.MinZoom,
		MaxZoom:          cfg.Clustering.MaxZoom,
		Radius:           cfg.Clustering.Radius,
		Extent:           cfg.Clustering.Extent,
		NodeSize:         cfg.Clustering.NodeSize,
		MaxExpansionZoom: cfg.Clustering.MaxExpansionZoom,
	})
	var routes ports.RouteProvider
	if cfg.Routing.BaseURL != "" {
		routes = osrm.New(cfg.Routing.BaseURL, cfg.Routing.Profile, time.Duration(cfg.Routing.Timeout)*time.Second)
	}
	corridors := usecases.NewCorridorService(routes, routeCache, cfg.Corridor.BufferMeters)

	var facilities *usecases.PointStore
	if cfg.Data.FacilitiesPath != "" {
		facilities = usecases.NewPointStore(filesource.NewFacilityFile(cfg.Data.FacilitiesPath), nil, nil)
	}

	// The first load is fatal: there is nothing to serve without it.
	if _, err := store.Load(ctx); err != nil {
		log.Fatalf("initial load: %v", err)
	}
	if facilities != nil {
		if _, err := facilities.Load(ctx); err != nil {
			log.Fatalf("initial facility load: %v", err)
		}
	}

	// Indexes of older generations are never hit again.
	reload := func(ctx context.Context) error {
		changed, err := store.Refresh(ctx)
		if changed {
			clusters.Invalidate()
		}
		return err
	}

	go refreshLoop(ctx, cfg.Data.RefreshEvery(), reload, facilities)

	if cfg.NATS.Enabled {
		instance := hostnameOr(uuid.NewString())
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, instance)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeReloadRequests(ctx, reload); err != nil {
				slog.Warn("reload subscription failed", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Store:      store,
		Facilities: facilities,
		Engine:     engine,
		Clusters:   clusters,
		Heatmap:    usecases.NewHeatmapService(engine),
		Corridor:   corridors,
		Viewport: http.ViewportSettings{
			PanDelay:    time.Duration(cfg.Viewport.PanDelayMS) * time.Millisecond,
			FilterDelay: time.Duration(cfg.Viewport.FilterDelayMS) * time.Millisecond,
		},
		NATS:  natsConn,
		DB:    db,
		Cache: cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Stopmap API",
	})

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "points", len(store.Snapshot().Points))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// stopSource builds the configured dataset source. A comma-separated
// stops_path concatenates several namtang files.
func stopSource(cfg *config.Config, db *postgres.DB) (ports.PointSource, error) {
	switch cfg.Data.Source {
	case "postgres":
		return postgres.NewPointSource(db, cfg.Data.Table)
	case "file":
		var files []ports.PointSource
		for _, p := range strings.Split(cfg.Data.StopsPath, ",") {
			if p = strings.TrimSpace(p); p != "" {
				files = append(files, filesource.NewNamtangFile(p))
			}
		}
		if len(files) == 1 {
			return files[0], nil
		}
		return filesource.NewMulti(files...), nil
	}
	return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
}

// refreshLoop polls the sources for new versions. A failed refresh keeps
// serving the previous snapshot.
func refreshLoop(ctx context.Context, every time.Duration, reload func(context.Context) error, facilities *usecases.PointStore) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logRefresh(reload(ctx))
			if facilities != nil {
				_, err := facilities.Refresh(ctx)
				logRefresh(err)
			}
		}
	}
}

func logRefresh(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var le *domain.LoadError
	if errors.As(err, &le) {
		slog.Warn("dataset refresh failed", "source", le.Source, "error", le.Err)
		return
	}
	slog.Warn("dataset refresh failed", "error", err)
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
