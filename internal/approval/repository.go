package approval

import "context"

// Repository defines the interface for approval persistence.
type Repository interface {
	// Upsert creates the approval for (listingID, viewerID), or refreshes
	// its timestamp if one already exists. It never creates a second record
	// for the same pair.
	Upsert(ctx context.Context, listingID, viewerID string) (*Approval, error)

	// Exists reports whether an approval exists for (listingID, viewerID).
	// A missing record is false, not an error.
	Exists(ctx context.Context, listingID, viewerID string) (bool, error)

	// DeleteForListing removes every approval attached to a listing and
	// returns how many were removed. Called when the listing itself is
	// deleted.
	DeleteForListing(ctx context.Context, listingID string) (int, error)
}
