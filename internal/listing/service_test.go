package listing_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplisted/maplisted/internal/api/models"
	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/events"
	"github.com/maplisted/maplisted/internal/listing"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) captured() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type serviceFixture struct {
	service   *listing.Service
	approvals *approval.InMemoryRepository
	publisher *capturePublisher
}

func newServiceFixture() *serviceFixture {
	approvals := approval.NewInMemoryRepository()
	publisher := &capturePublisher{}

	return &serviceFixture{
		service: listing.NewService(listing.ServiceConfig{
			Listings:  listing.NewInMemoryRepository(),
			Approvals: approvals,
			Events:    publisher,
			Logger:    zerolog.New(io.Discard),
		}),
		approvals: approvals,
		publisher: publisher,
	}
}

func createListing(t *testing.T, f *serviceFixture, ownerID string, lat, lng float64) *models.DisclosedListing {
	t.Helper()
	view, err := f.service.Create(context.Background(), ownerID, &models.ListingCreateRequest{
		Name:      "Test listing",
		Type:      listing.TypeItem,
		Category:  "misc",
		Latitude:  lat,
		Longitude: lng,
	})
	require.NoError(t, err)
	return view
}

func TestService_Create_OwnerSeesExactAndSnappedCenters(t *testing.T) {
	f := newServiceFixture()

	view := createListing(t, f, "usr_owner", 37.7749, -122.4194)

	assert.True(t, view.CanNavigate)
	require.NotNil(t, view.ExactCenter)
	assert.Equal(t, 37.7749, view.ExactCenter.Lat)
	assert.Equal(t, -122.4194, view.ExactCenter.Lng)

	require.NotNil(t, view.ApproximateCenter)
	assert.Equal(t, 37.77, view.ApproximateCenter.Lat)
	assert.Equal(t, -122.42, view.ApproximateCenter.Lng)
	require.NotNil(t, view.ApproximateRadiusKm)
	assert.Equal(t, 2.0, *view.ApproximateRadiusKm)
}

func TestService_GetOne_DisclosurePrecedence(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)
	_, err := f.service.GrantAccess(ctx, created.ID, "usr_owner", "usr_approved")
	require.NoError(t, err)

	tests := []struct {
		name        string
		requesterID string
		wantExact   bool
	}{
		{"anonymous", "", false},
		{"owner", "usr_owner", true},
		{"approved viewer", "usr_approved", true},
		{"stranger", "usr_stranger", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.service.GetOne(ctx, created.ID, tt.requesterID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantExact, view.CanNavigate)
			if tt.wantExact {
				require.NotNil(t, view.ExactCenter)
				assert.Equal(t, 40.0, view.ExactCenter.Lat)
			} else {
				assert.Nil(t, view.ExactCenter)
			}
			// Every viewer gets the approximate center.
			require.NotNil(t, view.ApproximateCenter)
			assert.Equal(t, 40.0, view.ApproximateCenter.Lat)
			assert.Equal(t, -73.0, view.ApproximateCenter.Lng)
		})
	}
}

func TestService_DisclosedViewNeverSerializesRawCoordinates(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.123456, -73.654321)

	for _, requesterID := range []string{"", "usr_owner", "usr_stranger"} {
		view, err := f.service.GetOne(ctx, created.ID, requesterID)
		require.NoError(t, err)

		data, err := json.Marshal(view)
		require.NoError(t, err)

		assert.NotContains(t, string(data), `"latitude"`)
		assert.NotContains(t, string(data), `"longitude"`)
	}
}

func TestService_GetOne_NotFound(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.GetOne(context.Background(), "lst_missing", "usr_a")
	assert.ErrorIs(t, err, listing.ErrListingNotFound)
}

func TestService_GetMany_ShapesEveryItem(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	createListing(t, f, "usr_owner", 52.1, 4.1)
	createListing(t, f, "usr_other", 52.2, 4.2)

	page, err := f.service.GetMany(ctx, listing.Filter{}, listing.ListOptions{}, "usr_owner")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	for _, item := range page.Items {
		if item.OwnerID == "usr_owner" {
			assert.True(t, item.CanNavigate)
			assert.NotNil(t, item.ExactCenter)
		} else {
			assert.False(t, item.CanNavigate)
			assert.Nil(t, item.ExactCenter)
		}
		assert.NotNil(t, item.ApproximateCenter)
	}
	assert.Equal(t, listing.DefaultQueryLimit, page.Meta.Limit)
}

func TestService_GrantAccess(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)

	granted, err := f.service.GrantAccess(ctx, created.ID, "usr_owner", "usr_viewer")
	require.NoError(t, err)
	assert.Equal(t, created.ID, granted.ListingID)
	assert.Equal(t, "usr_viewer", granted.ViewerID)

	// Granting again refreshes the same record instead of duplicating it.
	again, err := f.service.GrantAccess(ctx, created.ID, "usr_owner", "usr_viewer")
	require.NoError(t, err)
	assert.Equal(t, granted.ListingID, again.ListingID)
	assert.Equal(t, granted.ViewerID, again.ViewerID)

	exists, err := f.approvals.Exists(ctx, created.ID, "usr_viewer")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_GrantAccess_Errors(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)

	_, err := f.service.GrantAccess(ctx, created.ID, "usr_stranger", "usr_viewer")
	assert.ErrorIs(t, err, listing.ErrNotOwner)

	_, err = f.service.GrantAccess(ctx, "lst_missing", "usr_owner", "usr_viewer")
	assert.ErrorIs(t, err, listing.ErrListingNotFound)

	var validationErr *listing.ValidationError
	_, err = f.service.GrantAccess(ctx, created.ID, "usr_owner", "")
	assert.ErrorAs(t, err, &validationErr)
}

func TestService_GrantAccess_PublishesEvent(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)
	_, err := f.service.GrantAccess(ctx, created.ID, "usr_owner", "usr_viewer")
	require.NoError(t, err)

	captured := f.publisher.captured()
	require.NotEmpty(t, captured)
	last := captured[len(captured)-1]
	assert.Equal(t, events.TypeAccessGranted, last.Type)
	assert.Equal(t, created.ID, last.ListingID)
	assert.Equal(t, "usr_viewer", last.ViewerID)
}

func TestService_Create_Validation(t *testing.T) {
	f := newServiceFixture()

	tests := []struct {
		name  string
		input models.ListingCreateRequest
		field string
	}{
		{"missing name", models.ListingCreateRequest{Type: "item", Latitude: 1, Longitude: 1}, "name"},
		{"bad type", models.ListingCreateRequest{Name: "x", Type: "spaceship", Latitude: 1, Longitude: 1}, "type"},
		{"latitude out of range", models.ListingCreateRequest{Name: "x", Type: "item", Latitude: 95, Longitude: 1}, "latitude"},
		{"longitude out of range", models.ListingCreateRequest{Name: "x", Type: "item", Latitude: 1, Longitude: 181}, "longitude"},
		{"negative price", models.ListingCreateRequest{Name: "x", Type: "item", Latitude: 1, Longitude: 1, Price: floatPtr(-5)}, "price"},
		{"bad currency", models.ListingCreateRequest{Name: "x", Type: "item", Latitude: 1, Longitude: 1, CurrencyCode: strPtr("EURO")}, "currencyCode"},
		{"zero radius", models.ListingCreateRequest{Name: "x", Type: "item", Latitude: 1, Longitude: 1, VisibilityRadiusKm: floatPtr(0)}, "visibilityRadiusKm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			_, err := f.service.Create(context.Background(), "usr_owner", &input)

			var validationErr *listing.ValidationError
			require.ErrorAs(t, err, &validationErr)

			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func strPtr(s string) *string {
	return &s
}

func TestService_Create_UnknownVisibilityFallsBack(t *testing.T) {
	f := newServiceFixture()

	view, err := f.service.Create(context.Background(), "usr_owner", &models.ListingCreateRequest{
		Name:       "Test",
		Type:       listing.TypeItem,
		Latitude:   40.0,
		Longitude:  -73.0,
		Visibility: "secret_mode",
	})
	require.NoError(t, err)

	assert.Equal(t, string(listing.VisibilityPublicKm), view.Visibility)
	require.NotNil(t, view.ApproximateRadiusKm)
	assert.Equal(t, listing.DefaultRadiusKm, *view.ApproximateRadiusKm)
}

func TestService_Update(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)

	_, err := f.service.Update(ctx, created.ID, "usr_stranger", &models.ListingUpdateRequest{Name: strPtr("New name")})
	assert.ErrorIs(t, err, listing.ErrNotOwner)

	view, err := f.service.Update(ctx, created.ID, "usr_owner", &models.ListingUpdateRequest{
		Name:   strPtr("New name"),
		Status: strPtr(listing.StatusReserved),
	})
	require.NoError(t, err)
	assert.Equal(t, "New name", view.Name)
	assert.Equal(t, listing.StatusReserved, view.Status)
	// Untouched fields survive partial updates.
	assert.Equal(t, "misc", view.Category)

	// Coordinates must move together.
	var validationErr *listing.ValidationError
	_, err = f.service.Update(ctx, created.ID, "usr_owner", &models.ListingUpdateRequest{Latitude: floatPtr(41.0)})
	assert.ErrorAs(t, err, &validationErr)
}

func TestService_Delete_PublishesDeletionEvent(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	created := createListing(t, f, "usr_owner", 40.0, -73.0)

	err := f.service.Delete(ctx, created.ID, "usr_stranger")
	assert.ErrorIs(t, err, listing.ErrNotOwner)

	require.NoError(t, f.service.Delete(ctx, created.ID, "usr_owner"))

	_, err = f.service.GetOne(ctx, created.ID, "usr_owner")
	assert.ErrorIs(t, err, listing.ErrListingNotFound)

	captured := f.publisher.captured()
	require.NotEmpty(t, captured)
	last := captured[len(captured)-1]
	assert.Equal(t, events.TypeListingDeleted, last.Type)
	assert.Equal(t, created.ID, last.ListingID)
}
