package listing

import "context"

// Point is a geographic coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Viewport is the rectangular geographic bounds visible on a map. The
// filter it produces is a four-sided inequality; a viewport crossing the
// ±180° meridian is not specially handled.
type Viewport struct {
	NorthEast Point
	SouthWest Point
}

// Contains reports whether the point lies inside the viewport rectangle,
// inclusive on all four sides.
func (v Viewport) Contains(lat, lng float64) bool {
	return lat >= v.SouthWest.Lat && lat <= v.NorthEast.Lat &&
		lng >= v.SouthWest.Lng && lng <= v.NorthEast.Lng
}

// Filter narrows a listing query. Zero values mean "no constraint".
type Filter struct {
	// Viewport bounds the query to a map rectangle on exact coordinates.
	Viewport *Viewport

	// Categories is an OR of case-insensitive substring matches against the
	// category field.
	Categories []string

	// Search is a case-insensitive substring match against the name.
	Search string

	// OwnerID, Type and Status are exact matches.
	OwnerID string
	Type    string
	Status  string
}

// ListOptions contains options for listing queries.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of a listing query, newest first.
type ListResult struct {
	Items      []*Listing
	NextCursor string
}

// Repository defines the interface for listing persistence.
type Repository interface {
	// GetByID retrieves a listing by ID.
	// Returns ErrListingNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Listing, error)

	// Query retrieves listings matching the filter, ordered by creation
	// time descending with ties broken by insertion order.
	Query(ctx context.Context, filter Filter, opts ListOptions) (*ListResult, error)

	// Create creates a new listing.
	Create(ctx context.Context, l *Listing) error

	// Update updates an existing listing.
	Update(ctx context.Context, l *Listing) error

	// Delete deletes a listing by ID.
	Delete(ctx context.Context, id string) error
}
