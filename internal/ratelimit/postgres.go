package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLimiter is a Limiter backed by a shared rate_buckets table, for
// deployments running more than one API instance. The read-check-write runs
// in a transaction holding a row lock on the bucket, which gives the same
// per-key atomicity the in-memory limiter gets from its mutex.
type PostgresLimiter struct {
	pool *pgxpool.Pool
}

// NewPostgresLimiter creates a new Postgres-backed limiter.
func NewPostgresLimiter(pool *pgxpool.Pool) *PostgresLimiter {
	return &PostgresLimiter{pool: pool}
}

// Check applies fixed-window counting against the shared bucket table.
func (l *PostgresLimiter) Check(ctx context.Context, actionKey, clientIdentity string, max int, window time.Duration) (*Result, error) {
	key := bucketKey(actionKey, clientIdentity)
	now := time.Now()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var count int
	var resetAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT count, reset_at FROM rate_buckets WHERE bucket_key = $1 FOR UPDATE`,
		key,
	).Scan(&count, &resetAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		resetAt = now.Add(window)
		_, err = tx.Exec(ctx,
			`INSERT INTO rate_buckets (bucket_key, count, reset_at) VALUES ($1, 1, $2)
			 ON CONFLICT (bucket_key) DO UPDATE SET count = 1, reset_at = $2`,
			key, resetAt,
		)
		if err != nil {
			return nil, fmt.Errorf("create rate bucket: %w", err)
		}
		count = 1

	case err != nil:
		return nil, fmt.Errorf("read rate bucket: %w", err)

	case !resetAt.After(now):
		// Window elapsed; start a fresh one.
		resetAt = now.Add(window)
		_, err = tx.Exec(ctx,
			`UPDATE rate_buckets SET count = 1, reset_at = $2 WHERE bucket_key = $1`,
			key, resetAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reset rate bucket: %w", err)
		}
		count = 1

	case count >= max:
		// Denied checks do not increment.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit rate limit tx: %w", err)
		}
		return &Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil

	default:
		count++
		_, err = tx.Exec(ctx,
			`UPDATE rate_buckets SET count = $2 WHERE bucket_key = $1`,
			key, count,
		)
		if err != nil {
			return nil, fmt.Errorf("increment rate bucket: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rate limit tx: %w", err)
	}

	return &Result{Allowed: true, Remaining: max - count, ResetAt: resetAt}, nil
}

// Ensure PostgresLimiter implements Limiter interface.
var _ Limiter = (*PostgresLimiter)(nil)
