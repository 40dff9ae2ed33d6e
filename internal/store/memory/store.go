// Package memory is an in-process implementation of store.Transactor. All
// operations are serialized by one mutex; WithTx works on a copy of the data
// that replaces the live copy only when the callback succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu   sync.Mutex
	data *state
}

var _ store.Transactor = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newState()}
}

// WithTx runs fn against a private copy of the data and publishes it on success
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.data.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.data = draft
	return nil
}

// AddListing seeds a listing and returns it
func (s *Store) AddListing(title string, price decimal.Decimal, quantity int) models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l := models.Listing{
		ID:        s.data.id(),
		Title:     title,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.data.listings[l.ID] = l
	return l
}

// AddReferral seeds a referral code with a zero balance
func (s *Store) AddReferral(code string) models.Referral {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := models.Referral{ID: s.data.id(), Code: code, Balance: decimal.Zero}
	s.data.referrals[code] = r
	return r
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetListing(ctx, id)
}

func (s *Store) ReserveStock(ctx context.Context, listingID int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ReserveStock(ctx, listingID, quantity)
}

func (s *Store) ReleaseStock(ctx context.Context, listingID int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ReleaseStock(ctx, listingID, quantity)
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateOrder(ctx, order)
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrderByID(ctx, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrderForUpdate(ctx, id)
}

func (s *Store) GetPendingOrderByProfile(ctx context.Context, profileID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetPendingOrderByProfile(ctx, profileID)
}

func (s *Store) GetOrdersByProfile(ctx context.Context, profileID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrdersByProfile(ctx, profileID)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateOrderStatus(ctx, orderID, status)
}

func (s *Store) RecalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RecalculateOrderTotal(ctx, orderID)
}

func (s *Store) SaveCheckout(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SaveCheckout(ctx, order)
}

func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateOrderItem(ctx, item)
}

func (s *Store) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrderItem(ctx, id)
}

func (s *Store) DeleteOrderItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteOrderItem(ctx, id)
}

func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrderItemsByOrderID(ctx, orderID)
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreatePayment(ctx, payment)
}

func (s *Store) GetPaymentByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetPaymentByReferenceForUpdate(ctx, reference)
}

func (s *Store) GetCompletedPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetCompletedPaymentByOrderID(ctx, orderID)
}

func (s *Store) HasInitiatedPayment(ctx context.Context, orderID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.HasInitiatedPayment(ctx, orderID)
}

func (s *Store) MarkPaymentCompleted(ctx context.Context, paymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MarkPaymentCompleted(ctx, paymentID)
}

func (s *Store) CreditReferral(ctx context.Context, code string, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreditReferral(ctx, code, amount)
}

func (s *Store) GetReferralByCode(ctx context.Context, code string) (*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetReferralByCode(ctx, code)
}

func (s *Store) GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetShipmentByOrderID(ctx, orderID)
}

func (s *Store) UpsertShipment(ctx context.Context, shipment *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpsertShipment(ctx, shipment)
}

func (s *Store) MarkShipmentPaid(ctx context.Context, shipmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MarkShipmentPaid(ctx, shipmentID)
}
