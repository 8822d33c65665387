package approval

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-instance use. Production should
// use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	approvals map[string]*Approval
}

// NewInMemoryRepository creates a new in-memory approval repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		approvals: make(map[string]*Approval),
	}
}

// pairKey identifies the (listing, viewer) pair in the map.
func pairKey(listingID, viewerID string) string {
	return listingID + "\x00" + viewerID
}

// Upsert creates or refreshes the approval for (listingID, viewerID). The
// mutex makes the read-check-write atomic, so a granter double-submitting
// concurrently still ends up with one record.
func (r *InMemoryRepository) Upsert(_ context.Context, listingID, viewerID string) (*Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(listingID, viewerID)
	a := &Approval{
		ListingID:  listingID,
		ViewerID:   viewerID,
		ApprovedAt: time.Now(),
	}
	r.approvals[key] = a

	cpy := *a
	return &cpy, nil
}

// Exists reports whether an approval exists for (listingID, viewerID).
func (r *InMemoryRepository) Exists(_ context.Context, listingID, viewerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.approvals[pairKey(listingID, viewerID)]
	return ok, nil
}

// DeleteForListing removes every approval attached to a listing.
func (r *InMemoryRepository) DeleteForListing(_ context.Context, listingID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, a := range r.approvals {
		if a.ListingID == listingID {
			delete(r.approvals, key)
			removed++
		}
	}
	return removed, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
