package store

import (
	"context"
	"errors"

	"artwork-orders/internal/models"

	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// Repository is the set of persistence operations the services use. The same
// contract is served by the database handle and by a transaction handle.
type Repository interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ReserveStock(ctx context.Context, listingID int64, quantity int) (int, error)
	ReleaseStock(ctx context.Context, listingID int64, quantity int) (int, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetPendingOrderByProfile(ctx context.Context, profileID string) (*models.Order, error)
	GetOrdersByProfile(ctx context.Context, profileID string) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	RecalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)
	SaveCheckout(ctx context.Context, order *models.Order) error

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error)
	DeleteOrderItem(ctx context.Context, id int64) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error)
	GetCompletedPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	HasInitiatedPayment(ctx context.Context, orderID int64) (bool, error)
	MarkPaymentCompleted(ctx context.Context, paymentID int64) error

	CreditReferral(ctx context.Context, code string, amount decimal.Decimal) (bool, error)
	GetReferralByCode(ctx context.Context, code string) (*models.Referral, error)

	GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error)
	UpsertShipment(ctx context.Context, shipment *models.Shipment) error
	MarkShipmentPaid(ctx context.Context, shipmentID int64) error
}

// Transactor is a Repository that can also open a transaction scope. All
// writes made through the Repository passed to fn are committed together when
// fn returns nil and discarded otherwise.
type Transactor interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
