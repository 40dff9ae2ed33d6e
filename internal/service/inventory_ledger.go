package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryLedger owns listing stock. It never touches the quantity column
// except through the repository's conditional reserve/release updates, so it
// works the same on the database handle and inside a transaction.
type InventoryLedger struct {
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{logger: util.GetLogger()}
}

// Reserve takes quantity units of a listing and returns the remaining stock
func (l *InventoryLedger) Reserve(ctx context.Context, repo store.Repository, listingID int64, quantity int) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Reserve",
		attribute.Int64("listing_id", listingID),
		attribute.Int("quantity", quantity))
	defer span.End()

	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d: %w", quantity, models.ErrInvalidArgument)
	}

	start := time.Now()
	remaining, err := repo.ReserveStock(ctx, listingID, quantity)
	util.InventoryReserveLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.FailSpan(span, err)
		switch {
		case errors.Is(err, models.ErrInsufficientStock):
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, models.ErrNotFound):
			util.InventoryReservationsFailed.WithLabelValues("not_found").Inc()
		default:
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	l.logger.Debug("Stock reserved",
		zap.Int64("listing_id", listingID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining))
	return remaining, nil
}

// Release returns quantity units to a listing
func (l *InventoryLedger) Release(ctx context.Context, repo store.Repository, listingID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release",
		attribute.Int64("listing_id", listingID),
		attribute.Int("quantity", quantity))
	defer span.End()

	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative, got %d: %w", quantity, models.ErrInvalidArgument)
	}
	if quantity == 0 {
		return nil
	}

	level, err := repo.ReleaseStock(ctx, listingID, quantity)
	if err != nil {
		util.FailSpan(span, err)
		return err
	}

	l.logger.Debug("Stock released",
		zap.Int64("listing_id", listingID),
		zap.Int("quantity", quantity),
		zap.Int("level", level))
	return nil
}
