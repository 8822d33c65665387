package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplisted/maplisted/internal/api"
	"github.com/maplisted/maplisted/internal/api/models"
	"github.com/maplisted/maplisted/internal/approval"
	"github.com/maplisted/maplisted/internal/auth"
	"github.com/maplisted/maplisted/internal/listing"
	"github.com/maplisted/maplisted/internal/ratelimit"
)

// testAuthService creates a token service for testing.
func testAuthService() *auth.Service {
	return auth.NewService(auth.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.maplisted.dev",
		Audience:   "maplisted-api",
	})
}

func newTestRouter() http.Handler {
	logger := zerolog.New(io.Discard)

	listingService := listing.NewService(listing.ServiceConfig{
		Listings:  listing.NewInMemoryRepository(),
		Approvals: approval.NewInMemoryRepository(),
		Logger:    logger,
	})

	return api.NewRouter(api.RouterConfig{
		Version:        "test",
		BuildTime:      "2024-01-01T00:00:00Z",
		Logger:         logger,
		AuthService:    testAuthService(),
		ListingService: listingService,
		RateLimiter:    ratelimit.NewInMemoryLimiter(),
	})
}

// addAuthHeader adds a valid Bearer token for the given user.
func addAuthHeader(t *testing.T, req *http.Request, userID string) {
	t.Helper()
	token, _, err := testAuthService().GenerateAccessToken(userID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

// createTestListing publishes a listing through the API and returns it.
func createTestListing(t *testing.T, router http.Handler, ownerID string, input models.ListingCreateRequest) models.DisclosedListing {
	t.Helper()

	body, err := json.Marshal(input)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/listings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, ownerID)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotEmpty(t, w.Header().Get("Location"))

	var created models.DisclosedListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	return created
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_CreateListing(t *testing.T) {
	router := newTestRouter()

	created := createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name:      "Vintage road bike",
		Type:      "item",
		Category:  "bikes",
		Latitude:  52.3702,
		Longitude: 4.8952,
	})

	assert.NotEmpty(t, created.ID)
	assert.Contains(t, created.ID, "lst_")
	assert.Equal(t, "usr_owner1", created.OwnerID)
	assert.True(t, created.CanNavigate)
	require.NotNil(t, created.ExactCenter)
	assert.Equal(t, 52.3702, created.ExactCenter.Lat)
	require.NotNil(t, created.ApproximateCenter)
	assert.Equal(t, 52.37, created.ApproximateCenter.Lat)
	assert.Equal(t, 4.9, created.ApproximateCenter.Lng)
}

func TestRouter_CreateListing_RequiresAuth(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(models.ListingCreateRequest{
		Name: "Vintage road bike", Type: "item", Latitude: 52.37, Longitude: 4.89,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_CreateListing_ValidationError(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(models.ListingCreateRequest{
		Name: "", Type: "spaceship", Latitude: 95, Longitude: 4.89,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, "usr_owner1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.TraceID)
	assert.NotEmpty(t, problem.Errors)
}

func TestRouter_GetListing_AnonymousNeverSeesExactCenter(t *testing.T) {
	router := newTestRouter()

	created := createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name: "Garage sale", Type: "event", Latitude: 40.0, Longitude: -73.0,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/listings/"+created.ID, http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var view models.DisclosedListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))

	assert.False(t, view.CanNavigate)
	assert.Nil(t, view.ExactCenter)
	require.NotNil(t, view.ApproximateCenter)

	// The serialized body must never carry raw coordinate fields.
	assert.NotContains(t, w.Body.String(), `"latitude"`)
	assert.NotContains(t, w.Body.String(), `"longitude"`)
}

func TestRouter_GetListing_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/listings/lst_missing", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
}

// The full approval round trip: the owner publishes at an exact point, a
// stranger only sees the snapped center until the owner grants access.
func TestRouter_GrantAccess_RoundTrip(t *testing.T) {
	router := newTestRouter()

	created := createTestListing(t, router, "usr_alice", models.ListingCreateRequest{
		Name:     "Moving boxes",
		Type:     "item",
		Latitude: 40.0, Longitude: -73.0,
		Visibility:         "public_km",
		VisibilityRadiusKm: floatPtr(3.0),
	})

	// Stranger sees approximate only.
	req := httptest.NewRequest(http.MethodGet, "/v1/listings/"+created.ID, http.NoBody)
	addAuthHeader(t, req, "usr_bob")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.DisclosedListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.False(t, view.CanNavigate)
	assert.Nil(t, view.ExactCenter)
	require.NotNil(t, view.ApproximateRadiusKm)
	assert.Equal(t, 3.0, *view.ApproximateRadiusKm)

	// A stranger cannot grant access.
	grantBody, _ := json.Marshal(models.GrantAccessRequest{ViewerUserID: "usr_bob"})
	req = httptest.NewRequest(http.MethodPost, "/v1/listings/"+created.ID+"/approvals", bytes.NewReader(grantBody))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, "usr_bob")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The owner grants bob access.
	req = httptest.NewRequest(http.MethodPost, "/v1/listings/"+created.ID+"/approvals", bytes.NewReader(grantBody))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, "usr_alice")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var granted models.AccessApproval
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &granted))
	assert.Equal(t, created.ID, granted.ListingID)
	assert.Equal(t, "usr_bob", granted.ViewerID)

	// Bob now sees the exact center.
	req = httptest.NewRequest(http.MethodGet, "/v1/listings/"+created.ID, http.NoBody)
	addAuthHeader(t, req, "usr_bob")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.CanNavigate)
	require.NotNil(t, view.ExactCenter)
	assert.Equal(t, 40.0, view.ExactCenter.Lat)
	assert.Equal(t, -73.0, view.ExactCenter.Lng)
}

func TestRouter_ListListings_ViewportAndSearch(t *testing.T) {
	router := newTestRouter()

	createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name: "Bike in Amsterdam", Type: "item", Category: "bikes",
		Latitude: 52.37, Longitude: 4.89,
	})
	createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name: "Bike in Rotterdam", Type: "item", Category: "bikes",
		Latitude: 51.92, Longitude: 4.48,
	})

	url := fmt.Sprintf("/v1/listings?neLat=%f&neLng=%f&swLat=%f&swLng=%f&q=bike", 53.0, 5.5, 52.0, 4.0)
	req := httptest.NewRequest(http.MethodGet, url, http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page models.PagedListings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))

	require.Len(t, page.Items, 1)
	assert.Equal(t, "Bike in Amsterdam", page.Items[0].Name)
	assert.False(t, page.Items[0].CanNavigate)
	assert.Nil(t, page.Items[0].ExactCenter)
}

func TestRouter_ListListings_InvalidViewport(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/listings?neLat=53.0", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_UpdateListing_OnlyOwner(t *testing.T) {
	router := newTestRouter()

	created := createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name: "Old couch", Type: "item", Latitude: 52.0, Longitude: 4.0,
	})

	body, _ := json.Marshal(models.ListingUpdateRequest{Name: strPtr("Comfy couch")})

	req := httptest.NewRequest(http.MethodPut, "/v1/listings/"+created.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, "usr_intruder")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPut, "/v1/listings/"+created.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, "usr_owner1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.DisclosedListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Comfy couch", updated.Name)
}

func TestRouter_DeleteListing(t *testing.T) {
	router := newTestRouter()

	created := createTestListing(t, router, "usr_owner1", models.ListingCreateRequest{
		Name: "Old couch", Type: "item", Latitude: 52.0, Longitude: 4.0,
	})

	req := httptest.NewRequest(http.MethodDelete, "/v1/listings/"+created.ID, http.NoBody)
	addAuthHeader(t, req, "usr_owner1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/listings/"+created.ID, http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}
