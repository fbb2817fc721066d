// Package api provides the HTTP API for the LicenseGate server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/HoangDuong1310/licensegate/internal/api/handlers"
	"github.com/HoangDuong1310/licensegate/internal/api/middleware"
	"github.com/HoangDuong1310/licensegate/internal/config"
	"github.com/HoangDuong1310/licensegate/internal/db"
	"github.com/HoangDuong1310/licensegate/internal/licensing"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment controls CORS strictness and gin mode.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// AdminToken protects the admin endpoint group. Empty disables admin routes.
	AdminToken string
	// RateLimit is a limiter format string (e.g. "60-M") for the protocol
	// endpoints. Ignored when RateLimitOn is false.
	RateLimit   string
	RateLimitOn bool
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment: config.EnvDevelopment,
		RateLimit:   "60-M",
		RateLimitOn: true,
		Version:     "dev",
		Commit:      "unknown",
		BuildDate:   "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, database *db.DB, service *licensing.Service, logger zerolog.Logger) (*Router, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	// Health check endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Version endpoint (no auth required)
	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, logger)
	versionHandler.RegisterPublicRoutes(r.Engine)

	// Client-facing license protocol (rate limited, no auth: the key is
	// the credential)
	apiV1 := r.Engine.Group("/api/v1")
	if cfg.RateLimitOn {
		rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		apiV1.Use(rateLimiter)
	}

	licenseHandler := handlers.NewLicenseHandler(service, logger)
	licenseHandler.RegisterRoutes(apiV1)

	// Admin endpoints (bearer token auth)
	admin := r.Engine.Group("/api/v1/admin")
	admin.Use(middleware.AdminAuth(cfg.AdminToken, logger))

	keysHandler := handlers.NewKeysHandler(service, database, logger)
	keysHandler.RegisterRoutes(admin)

	plansHandler := handlers.NewPlansHandler(database, logger)
	plansHandler.RegisterRoutes(admin)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
