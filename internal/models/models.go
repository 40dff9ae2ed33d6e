package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is a sellable artwork with a finite on-hand quantity
type Listing struct {
	ID        int64           `db:"id" json:"id"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order
type Order struct {
	ID              int64               `db:"id" json:"id"`
	ProfileID       string              `db:"profile_id" json:"profile_id"`
	Status          string              `db:"status" json:"status"`
	TotalPrice      decimal.Decimal     `db:"total_price" json:"total_price"`
	ShippingCost    decimal.NullDecimal `db:"shipping_cost" json:"shipping_cost"`
	DeliveryAddress *string             `db:"delivery_address" json:"delivery_address,omitempty"`
	City            *string             `db:"city" json:"city,omitempty"`
	Zip             *string             `db:"zip" json:"zip,omitempty"`
	Country         *string             `db:"country" json:"country,omitempty"`
	ReferralCode    *string             `db:"referral_code" json:"referral_code,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// AmountDue is what a payment has to cover: items plus quoted shipping.
func (o *Order) AmountDue() decimal.Decimal {
	if !o.ShippingCost.Valid {
		return o.TotalPrice
	}
	return o.TotalPrice.Add(o.ShippingCost.Decimal)
}

// OrderItem is a line item. Price is unit price × quantity at the time it was added.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ListingID int64           `db:"listing_id" json:"listing_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Payment represents a gateway transaction for an order
type Payment struct {
	ID                   int64           `db:"id" json:"id"`
	OrderID              int64           `db:"order_id" json:"order_id"`
	TransactionReference string          `db:"transaction_reference" json:"transaction_reference"`
	PayeeEmail           string          `db:"payee_email" json:"payee_email"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	Status               string          `db:"payment_status" json:"payment_status"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Referral accrues commission for a referral code
type Referral struct {
	ID      int64           `db:"id" json:"id"`
	Code    string          `db:"code" json:"code"`
	Balance decimal.Decimal `db:"balance" json:"balance"`
}

// Shipment tracks the carrier shipment of an order
type Shipment struct {
	ID                int64     `db:"id" json:"id"`
	OrderID           int64     `db:"order_id" json:"order_id"`
	CarrierShipmentID string    `db:"carrier_shipment_id" json:"carrier_shipment_id"`
	TrackingID        string    `db:"tracking_id" json:"tracking_id"`
	IsPaid            bool      `db:"is_paid" json:"is_paid"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending       = "PENDING"
	OrderStatusCheckoutReady = "CHECKOUT_READY"
	OrderStatusPaid          = "PAID"
	OrderStatusShipped       = "SHIPPED"
	OrderStatusCanceled      = "CANCELED"
)

// Payment statuses
const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusCompleted = "COMPLETED"
)

// Roles
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// Actor is the already-authenticated caller
type Actor struct {
	ProfileID string
	UserID    string
	Role      string
	Email     string
}

// IsAdmin reports whether the actor carries the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
