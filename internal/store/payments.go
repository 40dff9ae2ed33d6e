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

// CreatePayment creates a new payment record
func (q *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, transaction_reference, payee_email, amount, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query,
		payment.OrderID, payment.TransactionReference, payment.PayeeEmail, payment.Amount, payment.Status)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment reference %s: %w", payment.TransactionReference, ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetPaymentByReferenceForUpdate loads a payment by gateway reference and locks it
func (q *queries) GetPaymentByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.db, &payment,
		"SELECT * FROM payments WHERE transaction_reference = $1 FOR UPDATE", reference)
	if err != nil {
		return nil, notFound(err, "payment %s", reference)
	}
	return &payment, nil
}

// GetCompletedPaymentByOrderID returns the most recent completed payment for an order
func (q *queries) GetCompletedPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.db, &payment, `
		SELECT * FROM payments
		WHERE order_id = $1 AND payment_status = $2
		ORDER BY updated_at DESC LIMIT 1`,
		orderID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, notFound(err, "completed payment for order %d", orderID)
	}
	return &payment, nil
}

// HasInitiatedPayment reports whether the order has a payment still awaiting settlement
func (q *queries) HasInitiatedPayment(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.db, &exists,
		"SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND payment_status = $2)",
		orderID, models.PaymentStatusInitiated)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// MarkPaymentCompleted flips an INITIATED payment to COMPLETED
func (q *queries) MarkPaymentCompleted(ctx context.Context, paymentID int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payments SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3`,
		models.PaymentStatusCompleted, paymentID, models.PaymentStatusInitiated)
	if err != nil {
		return err
	}
	return requireRow(res, "initiated payment %d", paymentID)
}

// CreditReferral adds amount to the referral balance. Reports false when the code is unknown.
func (q *queries) CreditReferral(ctx context.Context, code string, amount decimal.Decimal) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE referrals SET balance = balance + $1 WHERE code = $2", amount, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetReferralByCode retrieves a referral by its code
func (q *queries) GetReferralByCode(ctx context.Context, code string) (*models.Referral, error) {
	var referral models.Referral
	err := sqlx.GetContext(ctx, q.db, &referral, "SELECT id, code, balance FROM referrals WHERE code = $1", code)
	if err != nil {
		return nil, notFound(err, "referral %s", code)
	}
	return &referral, nil
}

// GetShipmentByOrderID returns the order's shipment, or nil when none was recorded
func (q *queries) GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := sqlx.GetContext(ctx, q.db, &shipment, "SELECT * FROM shipments WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// UpsertShipment records the carrier shipment for an order
func (q *queries) UpsertShipment(ctx context.Context, shipment *models.Shipment) error {
	query := `
		INSERT INTO shipments (order_id, carrier_shipment_id, tracking_id, is_paid)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE
		SET carrier_shipment_id = EXCLUDED.carrier_shipment_id,
		    tracking_id = EXCLUDED.tracking_id,
		    updated_at = NOW()
		RETURNING id, is_paid, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query,
		shipment.OrderID, shipment.CarrierShipmentID, shipment.TrackingID, shipment.IsPaid)
	return row.Scan(&shipment.ID, &shipment.IsPaid, &shipment.CreatedAt, &shipment.UpdatedAt)
}

// MarkShipmentPaid flags the carrier shipment as paid
func (q *queries) MarkShipmentPaid(ctx context.Context, shipmentID int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE shipments SET is_paid = TRUE, updated_at = NOW() WHERE id = $1", shipmentID)
	if err != nil {
		return err
	}
	return requireRow(res, "shipment %d", shipmentID)
}
