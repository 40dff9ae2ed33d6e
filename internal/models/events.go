package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderItemAdded     = "ORDER_ITEM_ADDED"
	EventTypeOrderItemRemoved   = "ORDER_ITEM_REMOVED"
	EventTypeOrderCheckoutReady = "ORDER_CHECKOUT_READY"
	EventTypeOrderCanceled      = "ORDER_CANCELED"
	EventTypePaymentInitiated   = "PAYMENT_INITIATED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderShipped       = "ORDER_SHIPPED"
	EventTypeReferralCredited   = "REFERRAL_CREDITED"
)

// Notification types
const (
	NotificationOrderShipped            = "ORDER_SHIPPED"
	NotificationAdminPaymentComplete    = "ADMIN_PAYMENT_COMPLETE"
	NotificationCustomerPaymentReceived = "CUSTOMER_PAYMENT_RECEIVED"
)

// Gateway webhook events
const (
	WebhookEventChargeSuccess = "charge.success"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published on every order lifecycle change
type OrderEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	ProfileID  string          `json:"profile_id"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ItemID     int64           `json:"item_id,omitempty"`
	ListingID  int64           `json:"listing_id,omitempty"`
	Quantity   int             `json:"quantity,omitempty"`
}

// PaymentEvent is published when a payment is initiated or settled
type PaymentEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	PaymentID int64           `json:"payment_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// ReferralCreditedEvent is published when a referral balance grows
type ReferralCreditedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
}

// Notification is consumed by the external notification service
type Notification struct {
	BaseEvent
	Kind       string `json:"kind"`
	Email      string `json:"email,omitempty"`
	OrderID    int64  `json:"order_id"`
	TrackingID string `json:"tracking_id,omitempty"`
}

// WebhookPayload is the gateway's callback body
type WebhookPayload struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Currency  string          `json:"currency,omitempty"`
}
