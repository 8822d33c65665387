// Package api provides the HTTP API for Maplisted.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/maplisted/maplisted/internal/api/handler"
	"github.com/maplisted/maplisted/internal/api/middleware"
	"github.com/maplisted/maplisted/internal/auth"
	"github.com/maplisted/maplisted/internal/listing"
	"github.com/maplisted/maplisted/internal/ratelimit"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	ServiceName    string
	Metrics        *middleware.Metrics
	AuthService    *auth.Service
	ListingService *listing.Service
	RateLimiter    ratelimit.Limiter
	Pool           *pgxpool.Pool
	AllowedOrigins []string
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "maplisted-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders) // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)      // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON) // JSON content type
	r.Use(middleware.RequireJSON)     // Reject non-JSON request bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Pool)
	listingHandler := handler.NewListingHandler(cfg.ListingService)

	// Auth middleware: reads require only optional identity, mutations a
	// verified one.
	authMiddleware := middleware.Auth(cfg.AuthService)
	optionalAuth := middleware.OptionalAuth(cfg.AuthService)

	// Reads get a per-user window so shared NATs don't starve each other;
	// mutations get a coarse per-IP window plus their per-action budget
	// backed by the shared store.
	readRateLimit := middleware.RateLimitByUser(middleware.ReadRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	createLimit := middleware.ActionLimit(cfg.RateLimiter, middleware.CreateListingBudget)
	updateLimit := middleware.ActionLimit(cfg.RateLimiter, middleware.UpdateListingBudget)
	deleteLimit := middleware.ActionLimit(cfg.RateLimiter, middleware.DeleteListingBudget)
	approveLimit := middleware.ActionLimit(cfg.RateLimiter, middleware.ApproveViewerBudget)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		r.Route("/listings", func(r chi.Router) {
			// Reads are open to anonymous viewers; disclosure shaping
			// handles what they may see.
			r.With(optionalAuth, readRateLimit).Get("/", listingHandler.ListListings)
			r.With(optionalAuth, readRateLimit).Get("/{listingId}", listingHandler.GetListing)

			// Mutations require an authenticated owner.
			r.With(authMiddleware, standardRateLimit, createLimit).Post("/", listingHandler.CreateListing)
			r.With(authMiddleware, standardRateLimit, updateLimit).Put("/{listingId}", listingHandler.UpdateListing)
			r.With(authMiddleware, standardRateLimit, deleteLimit).Delete("/{listingId}", listingHandler.DeleteListing)
			r.With(authMiddleware, standardRateLimit, approveLimit).Post("/{listingId}/approvals", listingHandler.GrantAccess)
		})
	})

	return r
}

// corsMiddleware builds the CORS handler. With no configured origins only
// same-origin browser clients can call the API.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{
			"X-Request-Id", "Location",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler
}
