package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ResilientLimiter wraps a shared-store Limiter with a circuit breaker and
// falls back to a process-local limiter while the store is unhealthy.
// Falling back trades cross-instance accuracy for availability: each
// instance enforces the window on its own traffic instead of failing every
// request when the store is down.
type ResilientLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *gobreaker.CircuitBreaker[*Result]
	logger   zerolog.Logger
}

// NewResilientLimiter creates a limiter that prefers primary and degrades to
// fallback when the breaker is open.
func NewResilientLimiter(primary, fallback Limiter, logger zerolog.Logger) *ResilientLimiter {
	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "rate-limit-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("rate limit store circuit breaker state changed")
		},
	})

	return &ResilientLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

// Check runs the check against the primary limiter through the breaker,
// degrading to the fallback limiter on failure or while the breaker is open.
func (l *ResilientLimiter) Check(ctx context.Context, actionKey, clientIdentity string, max int, window time.Duration) (*Result, error) {
	result, err := l.breaker.Execute(func() (*Result, error) {
		return l.primary.Check(ctx, actionKey, clientIdentity, max, window)
	})
	if err == nil {
		return result, nil
	}

	l.logger.Warn().
		Err(err).
		Str("action", actionKey).
		Msg("shared rate limit store unavailable, using local window")

	return l.fallback.Check(ctx, actionKey, clientIdentity, max, window)
}

// Ensure ResilientLimiter implements Limiter interface.
var _ Limiter = (*ResilientLimiter)(nil)
