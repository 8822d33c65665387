package listing

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maplisted/maplisted/internal/api/models"
	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/events"
	"github.com/maplisted/maplisted/pkg/geoprivacy"
)

// Validation constants.
const (
	MaxNameLength     = 200
	MaxCategoryLength = 40
	MaxStatusLength   = 40
	MaxPlaceLength    = 60
)

// ServiceConfig holds configuration for the listing service.
type ServiceConfig struct {
	Listings  Repository
	Approvals approval.Repository
	Events    events.Publisher
	Logger    zerolog.Logger
}

// Service is the visibility façade the HTTP layer calls. It composes the
// query planner, the privacy gate and the obfuscator so that callers only
// ever see disclosed views, never raw coordinates.
type Service struct {
	listings  Repository
	approvals approval.Repository
	planner   *Planner
	gate      *PrivacyGate
	events    events.Publisher
	logger    zerolog.Logger
}

// NewService creates a new listing service.
func NewService(cfg ServiceConfig) *Service {
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Service{
		listings:  cfg.Listings,
		approvals: cfg.Approvals,
		planner:   NewPlanner(cfg.Listings),
		gate:      NewPrivacyGate(cfg.Approvals),
		events:    publisher,
		logger:    cfg.Logger,
	}
}

// GetOne retrieves one listing shaped for the requester. requesterID may be
// empty for anonymous viewers.
func (s *Service) GetOne(ctx context.Context, listingID, requesterID string) (*models.DisclosedListing, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Resolve(ctx, l, requesterID)
	if err != nil {
		return nil, err
	}

	view := s.disclose(l, decision)
	return &view, nil
}

// GetMany retrieves listings matching the filter, each shaped for the
// requester. The planner filters on true coordinates; the shaping here
// guarantees no exact center leaks for non-owned, non-approved results.
func (s *Service) GetMany(ctx context.Context, filter Filter, opts ListOptions, requesterID string) (*models.PagedListings, error) {
	result, err := s.planner.Query(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	items := make([]models.DisclosedListing, 0, len(result.Items))
	for _, l := range result.Items {
		decision, err := s.gate.Resolve(ctx, l, requesterID)
		if err != nil {
			return nil, err
		}
		items = append(items, s.disclose(l, decision))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	return &models.PagedListings{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// GrantAccess lets the listing owner grant a viewer exact disclosure.
// Returns ErrNotOwner when granterID does not own the listing.
func (s *Service) GrantAccess(ctx context.Context, listingID, granterID, viewerID string) (*models.AccessApproval, error) {
	if viewerID == "" {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "viewerUserId", Message: "is required"},
		}}
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != granterID {
		return nil, ErrNotOwner
	}

	a, err := s.approvals.Upsert(ctx, listingID, viewerID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:      events.TypeAccessGranted,
		ListingID: listingID,
		ViewerID:  viewerID,
	})

	return &models.AccessApproval{
		ListingID:  a.ListingID,
		ViewerID:   a.ViewerID,
		ApprovedAt: models.Timestamp(a.ApprovedAt),
	}, nil
}

// Create publishes a new listing owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, input *models.ListingCreateRequest) (*models.DisclosedListing, error) {
	if fieldErrors := validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	lat := input.Latitude
	lng := input.Longitude

	l := &Listing{
		ID:           "lst_" + uuid.New().String()[:22],
		OwnerID:      ownerID,
		Name:         input.Name,
		Type:         input.Type,
		Category:     input.Category,
		Status:       StatusAvailable,
		Price:        input.Price,
		CurrencyCode: normalizeCurrency(input.CurrencyCode),
		City:         input.City,
		Country:      input.Country,
		Latitude:     &lat,
		Longitude:    &lng,
		Privacy: PrivacyConfig{
			Visibility: Visibility(input.Visibility),
			RadiusKm:   derefOr(input.VisibilityRadiusKm, 0),
		}.Normalize(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.listings.Create(ctx, l); err != nil {
		return nil, err
	}

	// The creator is the owner; disclose with exact coordinates.
	view := s.disclose(l, Decision{AllowExact: true})
	return &view, nil
}

// Update applies a partial update. Only the owner may update a listing.
func (s *Service) Update(ctx context.Context, listingID, requesterID string, input *models.ListingUpdateRequest) (*models.DisclosedListing, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	if fieldErrors := validateUpdateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Name != nil {
		l.Name = *input.Name
	}
	if input.Type != nil {
		l.Type = *input.Type
	}
	if input.Category != nil {
		l.Category = *input.Category
	}
	if input.Status != nil {
		l.Status = *input.Status
	}
	if input.Price != nil {
		l.Price = input.Price
	}
	if input.CurrencyCode != nil {
		l.CurrencyCode = normalizeCurrency(input.CurrencyCode)
	}
	if input.City != nil {
		l.City = input.City
	}
	if input.Country != nil {
		l.Country = input.Country
	}
	if input.Latitude != nil && input.Longitude != nil {
		l.Latitude = input.Latitude
		l.Longitude = input.Longitude
	}
	if input.Visibility != nil || input.VisibilityRadiusKm != nil {
		next := l.Privacy
		if input.Visibility != nil {
			next.Visibility = Visibility(*input.Visibility)
		}
		if input.VisibilityRadiusKm != nil {
			next.RadiusKm = *input.VisibilityRadiusKm
		}
		l.Privacy = next.Normalize()
	}
	l.UpdatedAt = time.Now()

	if err := s.listings.Update(ctx, l); err != nil {
		return nil, err
	}

	view := s.disclose(l, Decision{AllowExact: true})
	return &view, nil
}

// Delete removes a listing and, through the published event, its approvals.
// Only the owner may delete.
func (s *Service) Delete(ctx context.Context, listingID, requesterID string) error {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.OwnerID != requesterID {
		return ErrNotOwner
	}

	if err := s.listings.Delete(ctx, listingID); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:      events.TypeListingDeleted,
		ListingID: listingID,
	})

	return nil
}

// disclose builds the privacy-safe view of a listing. The approximate
// center is computed for every viewer, including the owner, so the UI can
// always offer an approximate rendering; the exact center is attached only
// when the gate allowed it.
func (s *Service) disclose(l *Listing, decision Decision) models.DisclosedListing {
	privacy := l.Privacy.Normalize()

	lat, lng := math.NaN(), math.NaN()
	if l.Latitude != nil {
		lat = *l.Latitude
	}
	if l.Longitude != nil {
		lng = *l.Longitude
	}

	view := models.DisclosedListing{
		ID:           l.ID,
		Name:         l.Name,
		Type:         l.Type,
		Category:     l.Category,
		Status:       l.Status,
		Price:        l.Price,
		CurrencyCode: l.CurrencyCode,
		City:         l.City,
		Country:      l.Country,
		OwnerID:      l.OwnerID,
		Visibility:   string(privacy.Visibility),
		CanNavigate:  decision.AllowExact,
		CreatedAt:    models.Timestamp(l.CreatedAt),
		UpdatedAt:    models.Timestamp(l.UpdatedAt),
	}

	if approx := geoprivacy.Approximate(lat, lng, privacy.RadiusKm); approx != nil {
		view.ApproximateCenter = &models.LatLng{Lat: approx.Center.Lat, Lng: approx.Center.Lng}
		radius := approx.RadiusKm
		view.ApproximateRadiusKm = &radius
	}

	if decision.AllowExact && l.Latitude != nil && l.Longitude != nil {
		view.ExactCenter = &models.LatLng{Lat: *l.Latitude, Lng: *l.Longitude}
	}

	return view
}

// publish sends a domain event. Event delivery is best effort: a publish
// failure is logged and never fails the operation that triggered it.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event", string(e.Type)).
			Str("listing_id", e.ListingID).
			Msg("failed to publish listing event")
	}
}

// validateCreateInput validates the create listing input.
func validateCreateInput(input *models.ListingCreateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	} else if len(input.Name) > MaxNameLength {
		errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 200 characters"})
	}

	if !validType(input.Type) {
		errs = append(errs, models.FieldError{Field: "type", Message: "must be one of item, store, event"})
	}

	errs = append(errs, validateCoordinate("latitude", input.Latitude, -90, 90)...)
	errs = append(errs, validateCoordinate("longitude", input.Longitude, -180, 180)...)

	errs = append(errs, validateCommonFields(
		&input.Category, nil, input.Price, input.CurrencyCode,
		input.City, input.Country, input.VisibilityRadiusKm,
	)...)

	return errs
}

// validateUpdateInput validates the update listing input.
func validateUpdateInput(input *models.ListingUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name != nil {
		if *input.Name == "" {
			errs = append(errs, models.FieldError{Field: "name", Message: "cannot be empty"})
		} else if len(*input.Name) > MaxNameLength {
			errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 200 characters"})
		}
	}

	if input.Type != nil && !validType(*input.Type) {
		errs = append(errs, models.FieldError{Field: "type", Message: "must be one of item, store, event"})
	}

	// Coordinates move together or not at all.
	if (input.Latitude == nil) != (input.Longitude == nil) {
		errs = append(errs, models.FieldError{Field: "latitude", Message: "latitude and longitude must be provided together"})
	}
	if input.Latitude != nil {
		errs = append(errs, validateCoordinate("latitude", *input.Latitude, -90, 90)...)
	}
	if input.Longitude != nil {
		errs = append(errs, validateCoordinate("longitude", *input.Longitude, -180, 180)...)
	}

	errs = append(errs, validateCommonFields(
		input.Category, input.Status, input.Price, input.CurrencyCode,
		input.City, input.Country, input.VisibilityRadiusKm,
	)...)

	return errs
}

// validateCommonFields checks the optional fields shared by create and
// update requests.
func validateCommonFields(category, status *string, price *float64, currency, city, country *string, radiusKm *float64) []models.FieldError {
	var errs []models.FieldError

	if category != nil && len(*category) > MaxCategoryLength {
		errs = append(errs, models.FieldError{Field: "category", Message: "must be at most 40 characters"})
	}
	if status != nil && len(*status) > MaxStatusLength {
		errs = append(errs, models.FieldError{Field: "status", Message: "must be at most 40 characters"})
	}
	if price != nil && (*price < 0 || math.IsNaN(*price)) {
		errs = append(errs, models.FieldError{Field: "price", Message: "must be non-negative"})
	}
	if currency != nil && len(*currency) != 3 {
		errs = append(errs, models.FieldError{Field: "currencyCode", Message: "must be a 3-letter code"})
	}
	if city != nil && len(*city) > MaxPlaceLength {
		errs = append(errs, models.FieldError{Field: "city", Message: "must be at most 60 characters"})
	}
	if country != nil && len(*country) > MaxPlaceLength {
		errs = append(errs, models.FieldError{Field: "country", Message: "must be at most 60 characters"})
	}
	if radiusKm != nil && !(*radiusKm > 0) {
		errs = append(errs, models.FieldError{Field: "visibilityRadiusKm", Message: "must be greater than zero"})
	}

	return errs
}

func validateCoordinate(field string, v, min, max float64) []models.FieldError {
	if math.IsNaN(v) || v < min || v > max {
		return []models.FieldError{{Field: field, Message: "is out of range"}}
	}
	return nil
}

func validType(t string) bool {
	switch t {
	case TypeItem, TypeStore, TypeEvent:
		return true
	}
	return false
}

func normalizeCurrency(code *string) *string {
	if code == nil {
		return nil
	}
	upper := strings.ToUpper(*code)
	return &upper
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
