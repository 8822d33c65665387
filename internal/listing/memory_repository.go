package listing

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-instance use. Production should
// use PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Listing
	ordered []string // IDs in insertion order, for stable tie-breaking
}

// NewInMemoryRepository creates a new in-memory listing repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID: make(map[string]*Listing),
	}
}

// GetByID retrieves a listing by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return nil, ErrListingNotFound
	}

	cpy := *l
	return &cpy, nil
}

// Query retrieves listings matching the filter, newest first. The stable
// sort over the insertion-ordered slice preserves insertion order among
// listings created at the same instant.
func (r *InMemoryRepository) Query(_ context.Context, filter Filter, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Listing
	for _, id := range r.ordered {
		l := r.byID[id]
		if l == nil {
			continue
		}
		if matches(l, filter) {
			cpy := *l
			items = append(items, &cpy)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextCursor = items[limit-1].ID
	}

	return result, nil
}

// Create creates a new listing.
func (r *InMemoryRepository) Create(_ context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *l
	if _, ok := r.byID[l.ID]; !ok {
		r.ordered = append(r.ordered, l.ID)
	}
	r.byID[l.ID] = &cpy
	return nil
}

// Update updates an existing listing.
func (r *InMemoryRepository) Update(_ context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[l.ID]; !ok {
		return ErrListingNotFound
	}

	cpy := *l
	r.byID[l.ID] = &cpy
	return nil
}

// Delete deletes a listing by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrListingNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.ordered {
		if existing == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
