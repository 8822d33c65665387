package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// listingColumns is the select list shared by every read query. seq is a
// bigserial that records insertion order for stable tie-breaking.
const listingColumns = `
	id, owner_id, name, type, category, status,
	price, currency_code, city, country,
	latitude, longitude, visibility, radius_km,
	created_at, updated_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL listing repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID retrieves a listing by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	return l, nil
}

// Query retrieves listings matching the filter, newest first. The viewport
// becomes a four-sided inequality over the indexed latitude/longitude
// columns; substring facets use ILIKE.
func (r *PostgresRepository) Query(ctx context.Context, filter Filter, opts ListOptions) (*ListResult, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Search != "" {
		conds = append(conds, "name ILIKE '%' || "+arg(filter.Search)+" || '%'")
	}
	if len(filter.Categories) > 0 {
		ors := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			ors = append(ors, "category ILIKE '%' || "+arg(c)+" || '%'")
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if filter.Viewport != nil {
		conds = append(conds,
			"latitude >= "+arg(filter.Viewport.SouthWest.Lat),
			"latitude <= "+arg(filter.Viewport.NorthEast.Lat),
			"longitude >= "+arg(filter.Viewport.SouthWest.Lng),
			"longitude <= "+arg(filter.Viewport.NorthEast.Lng),
		)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	// Fetch one extra to determine if there are more results.
	fetchLimit := limit + 1

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, seq ASC LIMIT " + arg(fetchLimit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextCursor = items[limit-1].ID
	}

	return result, nil
}

// Create creates a new listing.
func (r *PostgresRepository) Create(ctx context.Context, l *Listing) error {
	query := `
		INSERT INTO listings (
			id, owner_id, name, type, category, status,
			price, currency_code, city, country,
			latitude, longitude, visibility, radius_km,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.pool.Exec(ctx, query,
		l.ID,
		l.OwnerID,
		l.Name,
		l.Type,
		l.Category,
		l.Status,
		l.Price,
		l.CurrencyCode,
		l.City,
		l.Country,
		l.Latitude,
		l.Longitude,
		string(l.Privacy.Visibility),
		l.Privacy.RadiusKm,
		l.CreatedAt,
		l.UpdatedAt,
	)
	return err
}

// Update updates an existing listing.
func (r *PostgresRepository) Update(ctx context.Context, l *Listing) error {
	query := `
		UPDATE listings SET
			name = $2,
			type = $3,
			category = $4,
			status = $5,
			price = $6,
			currency_code = $7,
			city = $8,
			country = $9,
			latitude = $10,
			longitude = $11,
			visibility = $12,
			radius_km = $13,
			updated_at = $14
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		l.ID,
		l.Name,
		l.Type,
		l.Category,
		l.Status,
		l.Price,
		l.CurrencyCode,
		l.City,
		l.Country,
		l.Latitude,
		l.Longitude,
		string(l.Privacy.Visibility),
		l.Privacy.RadiusKm,
		l.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrListingNotFound
	}

	return nil
}

// Delete deletes a listing by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM listings WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// scanListing scans one listing row.
func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	var visibility string

	err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Name,
		&l.Type,
		&l.Category,
		&l.Status,
		&l.Price,
		&l.CurrencyCode,
		&l.City,
		&l.Country,
		&l.Latitude,
		&l.Longitude,
		&visibility,
		&l.Privacy.RadiusKm,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Privacy.Visibility = Visibility(visibility)
	return &l, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
