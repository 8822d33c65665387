// Package worker provides background job processing for Maplisted.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/events"
)

// PurgeJob removes access approvals left behind by deleted listings.
// Approvals are keyed by listing, so a listing deletion makes every
// approval for it unreachable; the purge keeps the approval store from
// accumulating those rows.
type PurgeJob struct {
	approvals approval.Repository
	logger    zerolog.Logger

	metrics *PurgeMetrics
}

// PurgeMetrics tracks purge job statistics.
type PurgeMetrics struct {
	mu sync.RWMutex

	TotalPurges      int64
	FailedPurges     int64
	ApprovalsRemoved int64

	LastPurgeAt       time.Time
	LastPurgeDuration time.Duration
}

// PurgeJobConfig holds configuration for creating a PurgeJob.
type PurgeJobConfig struct {
	Approvals approval.Repository
	Logger    zerolog.Logger
}

// NewPurgeJob creates a new purge job processor.
func NewPurgeJob(cfg PurgeJobConfig) *PurgeJob {
	return &PurgeJob{
		approvals: cfg.Approvals,
		logger:    cfg.Logger,
		metrics:   &PurgeMetrics{},
	}
}

// Handle processes a listing lifecycle event. Only deletion events carry
// work for this job; everything else is acknowledged untouched.
func (j *PurgeJob) Handle(ctx context.Context, e events.Event) error {
	if e.Type != events.TypeListingDeleted {
		return nil
	}
	return j.purgeListing(ctx, e.ListingID)
}

func (j *PurgeJob) purgeListing(ctx context.Context, listingID string) error {
	if listingID == "" {
		return fmt.Errorf("purge event without listing id")
	}

	startTime := time.Now()

	removed, err := j.approvals.DeleteForListing(ctx, listingID)
	duration := time.Since(startTime)

	j.metrics.mu.Lock()
	j.metrics.TotalPurges++
	j.metrics.LastPurgeAt = time.Now()
	j.metrics.LastPurgeDuration = duration
	if err != nil {
		j.metrics.FailedPurges++
	} else {
		j.metrics.ApprovalsRemoved += int64(removed)
	}
	j.metrics.mu.Unlock()

	if err != nil {
		j.logger.Error().
			Err(err).
			Str("listing_id", listingID).
			Msg("failed to purge approvals")
		return fmt.Errorf("purging approvals for %s: %w", listingID, err)
	}

	j.logger.Info().
		Str("listing_id", listingID).
		Int("removed", removed).
		Dur("duration", duration).
		Msg("purged approvals for deleted listing")

	return nil
}

// GetMetrics returns a copy of the current metrics.
func (j *PurgeJob) GetMetrics() PurgeMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return PurgeMetrics{
		TotalPurges:       j.metrics.TotalPurges,
		FailedPurges:      j.metrics.FailedPurges,
		ApprovalsRemoved:  j.metrics.ApprovalsRemoved,
		LastPurgeAt:       j.metrics.LastPurgeAt,
		LastPurgeDuration: j.metrics.LastPurgeDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *PurgeJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_purges":        m.TotalPurges,
		"failed_purges":       m.FailedPurges,
		"approvals_removed":   m.ApprovalsRemoved,
		"last_purge_at":       m.LastPurgeAt,
		"last_purge_duration": m.LastPurgeDuration.String(),
	}
}
