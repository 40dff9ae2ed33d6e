package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"artwork-orders/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetListing retrieves a listing by ID
func (q *queries) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := sqlx.GetContext(ctx, q.db, &listing, "SELECT * FROM listings WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "listing %d", id)
	}
	return &listing, nil
}

// ReserveStock decrements stock only when enough is available and returns the
// remaining quantity. Check and decrement are one statement.
func (q *queries) ReserveStock(ctx context.Context, listingID int64, quantity int) (int, error) {
	var remaining int
	err := sqlx.GetContext(ctx, q.db, &remaining, `
		UPDATE listings
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING quantity`,
		quantity, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		listing, getErr := q.GetListing(ctx, listingID)
		if getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("listing %d has %d, requested %d: %w",
			listingID, listing.Quantity, quantity, models.ErrInsufficientStock)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}
	return remaining, nil
}

// ReleaseStock returns quantity to a listing and reports the new level
func (q *queries) ReleaseStock(ctx context.Context, listingID int64, quantity int) (int, error) {
	var level int
	err := sqlx.GetContext(ctx, q.db, &level, `
		UPDATE listings
		SET quantity = quantity + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING quantity`,
		quantity, listingID)
	if err != nil {
		return 0, notFound(err, "listing %d", listingID)
	}
	return level, nil
}
