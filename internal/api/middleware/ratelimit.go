package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/maplisted/maplisted/internal/api/models"
	"github.com/maplisted/maplisted/internal/ratelimit"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// ReadRateLimit applies to listing reads (300 req/min). Map panning
	// fires a query per viewport change, so the ceiling is generous.
	ReadRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to standard endpoints (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// RateLimitByUser creates a rate limiter middleware using authenticated user ID.
// Falls back to IP-based rate limiting for unauthenticated requests, so
// signed-in users behind a shared NAT do not drain each other's allowance.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// keyByUserOrIP returns the user ID if authenticated, otherwise the client IP.
func keyByUserOrIP(r *http.Request) (string, error) {
	// Try to get user ID from context (set by auth middleware)
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}

	// Fall back to IP-based rate limiting
	return httprate.KeyByRealIP(r)
}

// ActionBudget pairs an action key with its allowance per window.
type ActionBudget struct {
	// Action is the mutation being limited, e.g. "listing:create".
	Action string
	// Max is the number of requests allowed per window.
	Max int
	// Window is the fixed-window duration.
	Window time.Duration
}

// Per-action budgets for listing mutations. All windows are ten minutes;
// the counters are keyed by action and client identity, so a client that
// exhausts one action can still perform the others.
var (
	CreateListingBudget = ActionBudget{Action: "listing:create", Max: 20, Window: 10 * time.Minute}
	UpdateListingBudget = ActionBudget{Action: "listing:update", Max: 50, Window: 10 * time.Minute}
	DeleteListingBudget = ActionBudget{Action: "listing:delete", Max: 20, Window: 10 * time.Minute}
	ApproveViewerBudget = ActionBudget{Action: "listing:approve", Max: 30, Window: 10 * time.Minute}
)

// ActionLimit enforces a per-action budget using the shared rate limit
// store. Unlike the httprate limiters above, counters survive restarts and
// are shared across replicas when the store is Postgres-backed.
//
// A limiter failure denies the request with 503 rather than letting the
// mutation through unmetered.
func ActionLimit(limiter ratelimit.Limiter, budget ActionBudget) func(http.Handler) http.Handler {
	decisions, _ := otel.Meter(meterName).Int64Counter(
		"ratelimit.decision.total",
		metric.WithDescription("Action rate limit decisions by action and outcome"),
		metric.WithUnit("{decision}"),
	)
	record := func(r *http.Request, outcome string) {
		decisions.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("action", budget.Action),
			attribute.String("outcome", outcome),
		))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ratelimit.ClientIdentity(r)

			result, err := limiter.Check(r.Context(), budget.Action, identity, budget.Max, budget.Window)
			if err != nil {
				record(r, "error")
				traceID := GetRequestID(r.Context())
				problem := models.NewServiceUnavailable(traceID, "Rate limit check failed. Please try again later.")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			if !result.Allowed {
				record(r, "denied")
				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget.Max))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				traceID := GetRequestID(r.Context())
				problem := models.NewTooManyRequests(traceID, "Rate limit exceeded for "+budget.Action+". Please try again later.")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			record(r, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
func rateLimitExceededHandler(w http.ResponseWriter, r *http.Request) {
	traceID := GetRequestID(r.Context())

	problem := models.NewTooManyRequests(traceID, "Rate limit exceeded. Please try again later.")
	problem.Instance = r.URL.Path

	// Add Retry-After header (estimate based on window)
	// httprate doesn't expose exact reset time, so we use a conservative estimate
	w.Header().Set("Retry-After", strconv.Itoa(60)) // 60 seconds

	problem.Write(w)
}
