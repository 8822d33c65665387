package approval

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// The listing_access_approvals table carries a primary key on
// (listing_id, viewer_id); the upsert leans on that constraint so two
// concurrent grants for the same pair collapse into one row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL approval repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Upsert creates or refreshes the approval for (listingID, viewerID).
func (r *PostgresRepository) Upsert(ctx context.Context, listingID, viewerID string) (*Approval, error) {
	query := `
		INSERT INTO listing_access_approvals (listing_id, viewer_id, approved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (listing_id, viewer_id)
		DO UPDATE SET approved_at = now()
		RETURNING listing_id, viewer_id, approved_at
	`

	var a Approval
	err := r.pool.QueryRow(ctx, query, listingID, viewerID).Scan(
		&a.ListingID,
		&a.ViewerID,
		&a.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// Exists reports whether an approval exists for (listingID, viewerID).
func (r *PostgresRepository) Exists(ctx context.Context, listingID, viewerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM listing_access_approvals
			WHERE listing_id = $1 AND viewer_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, listingID, viewerID).Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

// DeleteForListing removes every approval attached to a listing.
func (r *PostgresRepository) DeleteForListing(ctx context.Context, listingID string) (int, error) {
	query := `DELETE FROM listing_access_approvals WHERE listing_id = $1`
	tag, err := r.pool.Exec(ctx, query, listingID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
