// Package listing provides the geospatial visibility core: listings with
// exact coordinates, per-listing privacy configuration, viewer entitlement
// resolution, and the spatial query planner.
package listing

import (
	"errors"
	"time"
)

// Repository and service errors.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNotOwner        = errors.New("requester does not own this listing")
)

// Visibility is the privacy variant configured on a listing.
type Visibility string

// Visibility variants. Only the approval flow currently affects disclosure;
// VisibilityVerifiedOnly and VisibilityHiddenUntilContact are stored and
// surfaced but not yet consulted when resolving entitlement.
const (
	VisibilityPublicKm           Visibility = "public_km"
	VisibilityVerifiedOnly       Visibility = "verified_only"
	VisibilityHiddenUntilContact Visibility = "hidden_until_contact"
)

// DefaultRadiusKm is the advisory disclosure radius used when a listing
// carries no valid privacy configuration.
const DefaultRadiusKm = 2.0

// Listing types.
const (
	TypeItem  = "item"
	TypeStore = "store"
	TypeEvent = "event"
)

// Listing statuses.
const (
	StatusAvailable   = "available"
	StatusReserved    = "reserved"
	StatusUnavailable = "unavailable"
)

// PrivacyConfig is the per-listing disclosure configuration.
type PrivacyConfig struct {
	Visibility Visibility
	RadiusKm   float64
}

// Normalize returns the config with invalid values replaced by defaults.
// A listing must never fail to render because its privacy configuration is
// absent or malformed; it falls back to (public_km, 2.0) instead.
func (c PrivacyConfig) Normalize() PrivacyConfig {
	out := c
	switch out.Visibility {
	case VisibilityPublicKm, VisibilityVerifiedOnly, VisibilityHiddenUntilContact:
	default:
		out.Visibility = VisibilityPublicKm
	}
	if !(out.RadiusKm > 0) {
		out.RadiusKm = DefaultRadiusKm
	}
	return out
}

// Listing is a published item with a location and display attributes.
// Latitude/Longitude are the exact coordinates and are never serialized to
// a viewer directly; the service derives disclosed center fields from them.
// Both are nil when the listing has no location.
type Listing struct {
	ID           string
	OwnerID      string
	Name         string
	Type         string
	Category     string
	Status       string
	Price        *float64
	CurrencyCode *string
	City         *string
	Country      *string
	Latitude     *float64
	Longitude    *float64
	Privacy      PrivacyConfig
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
