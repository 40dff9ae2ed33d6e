package service

import (
	"context"
	"time"

	"artwork-orders/internal/gateway"
	"artwork-orders/internal/models"
	"artwork-orders/internal/shipping"

	"github.com/shopspring/decimal"
)

// PaymentGateway creates and verifies gateway transactions
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency string) (*gateway.Transaction, error)
	VerifyTransaction(ctx context.Context, reference string) (*gateway.Verification, error)
}

// RateQuoter quotes shipping cost for a delivery
type RateQuoter interface {
	Quote(ctx context.Context, detail shipping.ShipmentDetail) (decimal.Decimal, error)
}

// CarrierPayer pays the carrier for a booked shipment
type CarrierPayer interface {
	PayFromWallet(ctx context.Context, shipmentID string) error
}

// Notifier delivers customer and operator notifications. Calls are best effort.
type Notifier interface {
	NotifyOrderShipped(ctx context.Context, email string, orderID int64, trackingID string) error
	NotifyAdminPaymentComplete(ctx context.Context, orderID int64) error
	NotifyPaymentReceived(ctx context.Context, email string, orderID int64) error
}

// EventPublisher emits domain events. Calls are best effort.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, event *models.OrderEvent) error
	PublishPaymentEvent(ctx context.Context, eventType string, event *models.PaymentEvent) error
	PublishReferralCredited(ctx context.Context, event *models.ReferralCreditedEvent) error
}

// Locker serializes work on a key across service instances
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// IdempotencyCache remembers settled references so redelivered webhooks skip the database
type IdempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}
