package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplisted/maplisted/internal/api/models"
	"github.com/maplisted/maplisted/internal/api/response"
	"github.com/maplisted/maplisted/internal/listing"
)

// ListingHandler handles listing endpoints.
type ListingHandler struct {
	service *listing.Service
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(service *listing.Service) *ListingHandler {
	return &ListingHandler{service: service}
}

// ListListings handles GET /v1/listings - viewport search over listings.
//
// Query parameters:
//
//	neLat, neLng, swLat, swLng - viewport corners; all four or none
//	category                   - comma-separated, any match qualifies
//	q                          - substring match on the name
//	type, status               - exact matches
//	limit, cursor              - pagination
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	filter, opts, fieldErrors := parseListingQuery(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	page, err := h.service.GetMany(r.Context(), filter, opts, GetUserID(r.Context()))
	if err != nil {
		writeListingError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, page)
}

// GetListing handles GET /v1/listings/{listingId}.
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")
	if listingID == "" {
		response.BadRequest(w, r, "listingId is required", nil)
		return
	}

	view, err := h.service.GetOne(r.Context(), listingID, GetUserID(r.Context()))
	if err != nil {
		writeListingError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, view)
}

// CreateListing handles POST /v1/listings.
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var input models.ListingCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	view, err := h.service.Create(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		writeListingError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/listings/%s", view.ID)
	response.Created(w, r, location, view)
}

// UpdateListing handles PUT /v1/listings/{listingId}.
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")
	if listingID == "" {
		response.BadRequest(w, r, "listingId is required", nil)
		return
	}

	var input models.ListingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	view, err := h.service.Update(r.Context(), listingID, GetUserID(r.Context()), &input)
	if err != nil {
		writeListingError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, view)
}

// DeleteListing handles DELETE /v1/listings/{listingId}.
func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")
	if listingID == "" {
		response.BadRequest(w, r, "listingId is required", nil)
		return
	}

	if err := h.service.Delete(r.Context(), listingID, GetUserID(r.Context())); err != nil {
		writeListingError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// GrantAccess handles POST /v1/listings/{listingId}/approvals - the owner
// grants a viewer exact disclosure.
func (h *ListingHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")
	if listingID == "" {
		response.BadRequest(w, r, "listingId is required", nil)
		return
	}

	var input models.GrantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	a, err := h.service.GrantAccess(r.Context(), listingID, GetUserID(r.Context()), input.ViewerUserID)
	if err != nil {
		writeListingError(w, r, err)
		return
	}

	// Upserts answer 201 whether the approval is new or refreshed.
	response.JSON(w, r, http.StatusCreated, a)
}

// writeListingError maps service errors onto problem responses.
func writeListingError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *listing.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "invalid input", validationErr.Errors)
	case errors.Is(err, listing.ErrListingNotFound):
		response.NotFound(w, r, "listing not found")
	case errors.Is(err, listing.ErrNotOwner):
		response.Forbidden(w, r, "only the listing owner may perform this operation")
	default:
		response.ServiceUnavailable(w, r, "listing storage is unavailable")
	}
}

// parseListingQuery translates query parameters into a filter. The viewport
// corners must be supplied together; range checks happen in the planner.
func parseListingQuery(r *http.Request) (listing.Filter, listing.ListOptions, []models.FieldError) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	var filter listing.Filter
	var opts listing.ListOptions

	corners := []string{"neLat", "neLng", "swLat", "swLng"}
	present := 0
	for _, name := range corners {
		if q.Get(name) != "" {
			present++
		}
	}
	switch present {
	case 0:
		// No viewport constraint.
	case len(corners):
		values := make([]float64, len(corners))
		for i, name := range corners {
			v, err := strconv.ParseFloat(q.Get(name), 64)
			if err != nil {
				fieldErrors = append(fieldErrors, models.FieldError{Field: name, Message: "must be a number"})
				continue
			}
			values[i] = v
		}
		if len(fieldErrors) == 0 {
			filter.Viewport = &listing.Viewport{
				NorthEast: listing.Point{Lat: values[0], Lng: values[1]},
				SouthWest: listing.Point{Lat: values[2], Lng: values[3]},
			}
		}
	default:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "viewport",
			Message: "neLat, neLng, swLat and swLng must be provided together",
		})
	}

	if raw := q.Get("category"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Categories = append(filter.Categories, c)
			}
		}
	}
	filter.Search = q.Get("q")
	filter.Type = q.Get("type")
	filter.Status = q.Get("status")

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			opts.Limit = limit
		}
	}
	opts.Cursor = q.Get("cursor")

	return filter, opts, fieldErrors
}
