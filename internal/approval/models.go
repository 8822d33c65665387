// Package approval stores owner-granted exceptions that let a specific
// viewer see a specific listing's exact coordinates.
package approval

import "time"

// Approval records that a viewer may see the exact coordinates of a
// listing. At most one approval exists per (listing, viewer) pair; granting
// again refreshes ApprovedAt. Approvals never expire; they are removed only
// when their listing is deleted.
//
// The store holds no notion of ownership: callers are responsible for
// checking that the granter owns the listing before writing.
type Approval struct {
	ListingID  string
	ViewerID   string
	ApprovedAt time.Time
}
