package models

// LatLng is a geographic coordinate pair as serialized to clients.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DisclosedListing is the privacy-safe view of a listing. It never carries
// raw latitude/longitude fields: location is exposed only through the two
// derived center fields. ApproximateCenter is present for every listing
// with a location, whoever is asking; ExactCenter is non-null only when
// CanNavigate is true.
type DisclosedListing struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Type                string    `json:"type"`
	Category            string    `json:"category,omitempty"`
	Status              string    `json:"status"`
	Price               *float64  `json:"price,omitempty"`
	CurrencyCode        *string   `json:"currencyCode,omitempty"`
	City                *string   `json:"city,omitempty"`
	Country             *string   `json:"country,omitempty"`
	OwnerID             string    `json:"ownerId"`
	Visibility          string    `json:"visibility"`
	ApproximateCenter   *LatLng   `json:"approximateCenter"`
	ApproximateRadiusKm *float64  `json:"approximateRadiusKm"`
	CanNavigate         bool      `json:"canNavigate"`
	ExactCenter         *LatLng   `json:"exactCenter"`
	CreatedAt           Timestamp `json:"createdAt"`
	UpdatedAt           Timestamp `json:"updatedAt"`
}

// PagedListings represents a paginated list of disclosed listings.
type PagedListings struct {
	Items []DisclosedListing `json:"items"`
	Meta  PagedResponseMeta  `json:"meta"`
}

// ListingCreateRequest is the request body for publishing a listing.
type ListingCreateRequest struct {
	Name               string   `json:"name" validate:"required,min=1,max=200"`
	Type               string   `json:"type" validate:"required,oneof=item store event"`
	Category           string   `json:"category,omitempty" validate:"omitempty,max=40"`
	Price              *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	CurrencyCode       *string  `json:"currencyCode,omitempty" validate:"omitempty,len=3"`
	City               *string  `json:"city,omitempty" validate:"omitempty,max=60"`
	Country            *string  `json:"country,omitempty" validate:"omitempty,max=60"`
	Latitude           float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Visibility         string   `json:"visibility,omitempty"`
	VisibilityRadiusKm *float64 `json:"visibilityRadiusKm,omitempty" validate:"omitempty,gt=0"`
}

// ListingUpdateRequest is the request body for updating a listing. All
// fields are optional; latitude and longitude must be provided together.
type ListingUpdateRequest struct {
	Name               *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Type               *string  `json:"type,omitempty" validate:"omitempty,oneof=item store event"`
	Category           *string  `json:"category,omitempty" validate:"omitempty,max=40"`
	Status             *string  `json:"status,omitempty" validate:"omitempty,max=40"`
	Price              *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	CurrencyCode       *string  `json:"currencyCode,omitempty" validate:"omitempty,len=3"`
	City               *string  `json:"city,omitempty" validate:"omitempty,max=60"`
	Country            *string  `json:"country,omitempty" validate:"omitempty,max=60"`
	Latitude           *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude          *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Visibility         *string  `json:"visibility,omitempty"`
	VisibilityRadiusKm *float64 `json:"visibilityRadiusKm,omitempty" validate:"omitempty,gt=0"`
}

// GrantAccessRequest is the request body for granting a viewer exact
// disclosure on a listing.
type GrantAccessRequest struct {
	ViewerUserID string `json:"viewerUserId" validate:"required"`
}

// AccessApproval is an owner-granted exception allowing one viewer exact
// disclosure for one listing.
type AccessApproval struct {
	ListingID  string    `json:"listingId"`
	ViewerID   string    `json:"viewerId"`
	ApprovedAt Timestamp `json:"approvedAt"`
}
