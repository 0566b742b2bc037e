package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/namtang/stopmap/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(recover.New())

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
	}))

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Map panning fires many small requests; the limit is per IP.
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics" || c.Path() == "/v1/health" || c.Path() == "/v1/ready"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(legacyRoutes))

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/stops", timeout.NewWithContext(StopsHandler(deps), requestTimeout))
	v1.Get("/stops/nearest", timeout.NewWithContext(NearestHandler(deps), requestTimeout))
	v1.Get("/clusters", timeout.NewWithContext(ClustersHandler(deps), requestTimeout))
	v1.Get("/clusters/:id/expansion-zoom", timeout.NewWithContext(ExpansionZoomHandler(deps), requestTimeout))
	v1.Get("/clusters/:id/leaves", timeout.NewWithContext(LeavesHandler(deps), requestTimeout))
	v1.Get("/heatmap", timeout.NewWithContext(HeatmapHandler(deps), requestTimeout))
	v1.Get("/corridor", timeout.NewWithContext(CorridorHandler(deps), requestTimeout))
	v1.Get("/facilities", timeout.NewWithContext(FacilitiesHandler(deps), requestTimeout))

	// Legacy unversioned paths
	app.Get("/api/stops", timeout.NewWithContext(StopsHandler(deps), requestTimeout))
	app.Get("/api/province-data", timeout.NewWithContext(FacilitiesHandler(deps), requestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/viewport", websocket.New(WebSocketHandler(deps)))
}
