// Package main provides the entrypoint for the Maplisted API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/maplisted/maplisted/internal/api"
	"github.com/maplisted/maplisted/internal/api/middleware"
	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/auth"
	"github.com/maplisted/maplisted/internal/database"
	"github.com/maplisted/maplisted/internal/events"
	"github.com/maplisted/maplisted/internal/listing"
	"github.com/maplisted/maplisted/internal/ratelimit"
	"github.com/maplisted/maplisted/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "maplisted-api"

	// Local development reads a .env file; deployed environments set real
	// environment variables and have no such file.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Maplisted API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	sampleRatio := 0.0
	if raw := os.Getenv("OTEL_TRACE_SAMPLE_RATIO"); raw != "" {
		if parsed, parseErr := strconv.ParseFloat(raw, 64); parseErr == nil {
			sampleRatio = parsed
		} else {
			log.Warn().Str("value", raw).Msg("invalid OTEL_TRACE_SAMPLE_RATIO, sampling everything")
		}
	}

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
		SampleRatio:    sampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database. Cloud SQL can lag a cold start, so retry with
	// exponential backoff before giving up.
	dbConfig := database.ConfigFromEnv()
	pool, err := connectWithRetry(ctx, dbConfig, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize token service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	authService := auth.NewService(auth.Config{
		SigningKey: jwtSigningKey,
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://api.maplisted.dev"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", serviceName),
	})
	log.Info().Msg("auth service initialized")

	// Rate limiting: the Postgres-backed limiter shares counters across
	// replicas; the in-memory fallback keeps mutations metered when the
	// store is unavailable.
	rateLimiter := ratelimit.NewResilientLimiter(
		ratelimit.NewPostgresLimiter(pool),
		ratelimit.NewInMemoryLimiter(),
		log,
	)
	log.Info().Msg("rate limiter initialized")

	// Domain event publisher (optional, requires Pub/Sub configuration).
	var publisher events.Publisher = events.NopPublisher{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topicName := getEnvOrDefault("PUBSUB_LISTING_TOPIC", "listing-events")
		pubsubPublisher, err := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: projectID,
			TopicName: topicName,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
		}
		defer func() {
			if closeErr := pubsubPublisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub publisher")
			}
		}()
		publisher = pubsubPublisher
		log.Info().
			Str("topic", topicName).
			Msg("pubsub publisher initialized")
	} else {
		log.Warn().Msg("Pub/Sub not configured - listing events will be dropped")
	}

	// Initialize listing repositories and service
	listingRepo := listing.NewPostgresRepository(pool)
	approvalRepo := approval.NewPostgresRepository(pool)
	listingService := listing.NewService(listing.ServiceConfig{
		Listings:  listingRepo,
		Approvals: approvalRepo,
		Events:    publisher,
		Logger:    log,
	})
	log.Info().Msg("listing service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		AuthService:    authService,
		ListingService: listingService,
		RateLimiter:    rateLimiter,
		Pool:           pool,
		AllowedOrigins: splitEnvList("CORS_ALLOWED_ORIGINS"),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// connectWithRetry connects to the database with exponential backoff.
func connectWithRetry(ctx context.Context, cfg database.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		var connectErr error
		pool, connectErr = database.Connect(ctx, cfg)
		if connectErr != nil {
			log.Warn().Err(connectErr).Msg("database not ready, retrying")
		}
		return connectErr
	}, backoff.WithContext(policy, ctx))

	return pool, err
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitEnvList splits a comma-separated environment variable into a slice.
func splitEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
