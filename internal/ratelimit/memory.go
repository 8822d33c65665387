package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is a single fixed-window counter.
type bucket struct {
	count   int
	resetAt time.Time
}

// InMemoryLimiter is a process-local Limiter. Buckets live for as long as
// the process does; a bucket whose window has elapsed is reset in place on
// the next check rather than garbage collected. Suitable for single-instance
// deployments and tests; multi-instance deployments should use
// PostgresLimiter.
type InMemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewInMemoryLimiter creates a new in-memory limiter.
func NewInMemoryLimiter() *InMemoryLimiter {
	return &InMemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Check applies fixed-window counting for the given key. The mutex
// serializes the read-modify-write so a concurrent burst can never exceed
// max inside one window.
func (l *InMemoryLimiter) Check(_ context.Context, actionKey, clientIdentity string, max int, window time.Duration) (*Result, error) {
	key := bucketKey(actionKey, clientIdentity)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !b.resetAt.After(now) {
		resetAt := now.Add(window)
		l.buckets[key] = &bucket{count: 1, resetAt: resetAt}
		return &Result{Allowed: true, Remaining: max - 1, ResetAt: resetAt}, nil
	}

	if b.count >= max {
		return &Result{Allowed: false, Remaining: 0, ResetAt: b.resetAt}, nil
	}

	b.count++
	return &Result{Allowed: true, Remaining: max - b.count, ResetAt: b.resetAt}, nil
}

// Ensure InMemoryLimiter implements Limiter interface.
var _ Limiter = (*InMemoryLimiter)(nil)
