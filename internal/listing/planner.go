package listing

import (
	"context"
	"math"
	"strings"

	"github.com/maplisted/maplisted/internal/api/models"
)

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 500
)

// Planner turns a viewport plus facet filters into a bounded, indexable
// repository query and post-processes the results. It deliberately returns
// exact-coordinate listings: the spatial filter works on true locations
// even when only an approximate one will be displayed. Disclosure shaping
// is the Service's job.
type Planner struct {
	repo Repository
}

// NewPlanner creates a new query planner.
func NewPlanner(repo Repository) *Planner {
	return &Planner{repo: repo}
}

// Query validates and normalizes the filter, then executes it. Results are
// ordered by creation time descending with stable insertion-order ties.
func (p *Planner) Query(ctx context.Context, filter Filter, opts ListOptions) (*ListResult, error) {
	if fieldErrors := validateFilter(&filter); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	filter.Categories = normalizeCategories(filter.Categories)
	filter.Search = strings.TrimSpace(filter.Search)

	if opts.Limit <= 0 {
		opts.Limit = DefaultQueryLimit
	}
	if opts.Limit > MaxQueryLimit {
		opts.Limit = MaxQueryLimit
	}

	return p.repo.Query(ctx, filter, opts)
}

// validateFilter rejects malformed viewports before any persistence call.
func validateFilter(f *Filter) []models.FieldError {
	if f.Viewport == nil {
		return nil
	}

	var errs []models.FieldError
	check := func(field string, v float64, min, max float64) {
		if math.IsNaN(v) || v < min || v > max {
			errs = append(errs, models.FieldError{
				Field:   field,
				Message: "must be a finite number within range",
			})
		}
	}

	check("viewport.northeast.lat", f.Viewport.NorthEast.Lat, -90, 90)
	check("viewport.northeast.lng", f.Viewport.NorthEast.Lng, -180, 180)
	check("viewport.southwest.lat", f.Viewport.SouthWest.Lat, -90, 90)
	check("viewport.southwest.lng", f.Viewport.SouthWest.Lng, -180, 180)

	return errs
}

// normalizeCategories trims tokens and drops empties.
func normalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// matches reports whether a listing satisfies the (already normalized)
// filter. Shared by the in-memory repository; the Postgres repository
// expresses the same predicate in SQL.
func matches(l *Listing, f Filter) bool {
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}

	if f.Search != "" && !containsFold(l.Name, f.Search) {
		return false
	}

	if len(f.Categories) > 0 {
		matched := false
		for _, c := range f.Categories {
			if containsFold(l.Category, c) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.Viewport != nil {
		if l.Latitude == nil || l.Longitude == nil {
			return false
		}
		if !f.Viewport.Contains(*l.Latitude, *l.Longitude) {
			return false
		}
	}

	return true
}

// containsFold is a case-insensitive substring test.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
