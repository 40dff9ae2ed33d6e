package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"artwork-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateOrder creates a new order
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (profile_id, status, total_price)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query, order.ProfileID, order.Status, order.TotalPrice)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %s already has a pending order: %w", order.ProfileID, ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.db, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}
	return &order, nil
}

// GetOrderForUpdate retrieves an order and locks its row until the transaction ends
func (q *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.db, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}
	return &order, nil
}

// GetPendingOrderByProfile returns the profile's open order, or nil when there is none
func (q *queries) GetPendingOrderByProfile(ctx context.Context, profileID string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.db, &order,
		"SELECT * FROM orders WHERE profile_id = $1 AND status = $2", profileID, models.OrderStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByProfile retrieves orders for a profile, newest first
func (q *queries) GetOrdersByProfile(ctx context.Context, profileID string) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, q.db, &orders,
		"SELECT * FROM orders WHERE profile_id = $1 ORDER BY created_at DESC, id DESC", profileID)
	return orders, err
}

// UpdateOrderStatus updates order status
func (q *queries) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	return requireRow(res, "order %d", orderID)
}

// RecalculateOrderTotal sets total_price to the sum of the order's item prices
func (q *queries) RecalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, q.db, &total, `
		UPDATE orders
		SET total_price = (SELECT COALESCE(SUM(price), 0) FROM order_items WHERE order_id = $1),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_price`,
		orderID)
	if err != nil {
		return decimal.Zero, notFound(err, "order %d", orderID)
	}
	return total, nil
}

// SaveCheckout stores delivery details, the shipping quote and the status in one statement
func (q *queries) SaveCheckout(ctx context.Context, order *models.Order) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE orders
		SET delivery_address = $1, city = $2, zip = $3, country = $4,
		    referral_code = $5, shipping_cost = $6, status = $7, updated_at = NOW()
		WHERE id = $8`,
		order.DeliveryAddress, order.City, order.Zip, order.Country,
		order.ReferralCode, order.ShippingCost, order.Status, order.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "order %d", order.ID)
}

// CreateOrderItem creates a new order item
func (q *queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, listing_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	row := q.db.QueryRowxContext(ctx, query, item.OrderID, item.ListingID, item.Quantity, item.Price)
	return row.Scan(&item.ID, &item.CreatedAt)
}

// GetOrderItem retrieves a single order item
func (q *queries) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := sqlx.GetContext(ctx, q.db, &item, "SELECT * FROM order_items WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order item %d", id)
	}
	return &item, nil
}

// DeleteOrderItem removes an order item
func (q *queries) DeleteOrderItem(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM order_items WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(res, "order item %d", id)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (q *queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q.db, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

func requireRow(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, models.ErrNotFound)...)
	}
	return nil
}
