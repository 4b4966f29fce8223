package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "guidestats/api/v1"
	"guidestats/internal/http"
	"guidestats/internal/metrics"
)

// publicCORSConfig is shared by every tracker-facing endpoint; the guide
// pages post from their own origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// publicIngestLimit is the per-IP budget for the ingestion endpoints. A
// reader produces one track call per page plus a handful of events.
const publicIngestLimit = 120

// RouteDeps are the collaborators MountAppRoutes wires into the server.
type RouteDeps struct {
	// Env decides whether rate limiting applies; dev and test skip it.
	Env     cartridgemiddleware.EnvironmentChecker
	Handler *v1.Handler
	Metrics *metrics.Metrics
}

// NewServerConfig returns cartridge's defaults without the global
// Sec-Fetch-Site check: the server-side tracker transport and sendBeacon
// from older browsers carry no such header, and the API holds no cookie
// session worth protecting.
func NewServerConfig() *cartridge.ServerConfig {
	cfg := cartridge.DefaultServerConfig()
	cfg.EnableSecFetchSite = false
	cfg.EnableTemplates = false
	return cfg
}

// NewRouteMount binds deps into a cartridge RouteMountFunc.
func NewRouteMount(deps RouteDeps) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		MountAppRoutes(srv, deps)
	}
}

// MountAppRoutes mounts health, metrics and the analytics API.
func MountAppRoutes(srv *cartridge.Server, deps RouteDeps) {
	limiterOpts := []cartridgemiddleware.RateLimiterOption{
		cartridgemiddleware.WithMax(publicIngestLimit),
		cartridgemiddleware.WithDuration(time.Minute),
	}
	if deps.Env != nil {
		limiterOpts = append(limiterOpts, cartridgemiddleware.WithEnv(deps.Env))
	}
	publicRateLimiter := cartridgemiddleware.RateLimiter(limiterOpts...)

	// Ingestion: CORS, per-IP rate limit and the SQLite write limiter.
	ingestConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CORSConfig:       publicCORSConfig,
		WriteConcurrency: true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}

	readConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
	}

	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	metricsHandler := deps.Metrics.Handler()
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	})

	deps.Handler.Mount(srv, "/api/analytics", ingestConfig, readConfig)
}
