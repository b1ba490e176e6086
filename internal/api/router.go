package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/metrics"
)

// bodyLimit leaves room for a base64 probe image.
const bodyLimit = 8 * 1024 * 1024

// Capture is the pipeline surface the terminal API needs.
type Capture interface {
	handler.FrameProcessor
	handler.BreakerState
}

// TerminalDependencies wires the local terminal API.
type TerminalDependencies struct {
	Capture Capture
	Events  handler.EventCounter
	Roster  handler.RosterInfo
	Sync    handler.SyncStatus
	Trigger handler.SyncTrigger
	Checks  map[string]handler.Pinger

	SyncConfigured bool
}

// AuthorityDependencies wires the authority API.
type AuthorityDependencies struct {
	Sites    middleware.SiteRepository
	SiteSeen middleware.SiteSeenRecorder
	Batches  handler.BatchIngester
	Records  handler.RecordCounter
	Roster   handler.RosterProvider
	Checks   map[string]handler.Pinger
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, appName string) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      appName,
		BodyLimit:    bodyLimit,
	})

	return &Router{
		app:    app,
		logger: logger,
	}
}

func (r *Router) useCommon(checks map[string]handler.Pinger) {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))

	healthHandler := handler.NewHealthHandler(checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)
}

// SetupTerminal registers the local API used by the kiosk UI and operators.
func (r *Router) SetupTerminal(deps TerminalDependencies) {
	r.useCommon(deps.Checks)
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	r.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := r.app.Group("/v1")

	probeHandler := handler.NewProbeHandler(deps.Capture, r.logger)
	v1.Post("/probes", probeHandler.Process)
	v1.Get("/sessions/:id", probeHandler.Session)
	v1.Post("/sessions/:id/reset", probeHandler.Reset)

	statusHandler := handler.NewStatusHandler(deps.Events, deps.Roster, deps.Capture, deps.Sync, r.logger)
	v1.Get("/status", statusHandler.Status)

	syncHandler := handler.NewSyncHandler(deps.Trigger, deps.Sync, deps.SyncConfigured)
	v1.Post("/sync", syncHandler.Trigger)
}

// SetupAuthority registers the API terminals sync against.
func (r *Router) SetupAuthority(deps AuthorityDependencies) {
	r.useCommon(deps.Checks)

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	v1 := r.app.Group("/v1")
	v1.Use(middleware.SiteAuth(deps.Sites, deps.SiteSeen))

	// Rate limiting per site, after auth so the site is known
	r.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	v1.Use(r.rateLimiter.Handler())

	attendanceHandler := handler.NewAttendanceHandler(deps.Batches, deps.Records, r.logger)
	v1.Post("/attendance/batch", attendanceHandler.Batch)
	v1.Get("/site", attendanceHandler.Status)

	rosterHandler := handler.NewRosterHandler(deps.Roster)
	v1.Get("/roster", rosterHandler.Get)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
