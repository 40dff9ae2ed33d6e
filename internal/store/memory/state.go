package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"

	"github.com/shopspring/decimal"
)

// state holds records by value so a shallow map copy is a full snapshot.
type state struct {
	lastID    int64
	listings  map[int64]models.Listing
	orders    map[int64]models.Order
	items     map[int64]models.OrderItem
	payments  map[int64]models.Payment
	referrals map[string]models.Referral
	shipments map[int64]models.Shipment
}

var _ store.Repository = (*state)(nil)

func newState() *state {
	return &state{
		listings:  make(map[int64]models.Listing),
		orders:    make(map[int64]models.Order),
		items:     make(map[int64]models.OrderItem),
		payments:  make(map[int64]models.Payment),
		referrals: make(map[string]models.Referral),
		shipments: make(map[int64]models.Shipment),
	}
}

func (st *state) clone() *state {
	c := &state{
		lastID:    st.lastID,
		listings:  make(map[int64]models.Listing, len(st.listings)),
		orders:    make(map[int64]models.Order, len(st.orders)),
		items:     make(map[int64]models.OrderItem, len(st.items)),
		payments:  make(map[int64]models.Payment, len(st.payments)),
		referrals: make(map[string]models.Referral, len(st.referrals)),
		shipments: make(map[int64]models.Shipment, len(st.shipments)),
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.referrals {
		c.referrals[k] = v
	}
	for k, v := range st.shipments {
		c.shipments[k] = v
	}
	return c
}

func (st *state) id() int64 {
	st.lastID++
	return st.lastID
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, models.ErrNotFound)...)
}

func (st *state) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	l, ok := st.listings[id]
	if !ok {
		return nil, notFound("listing %d", id)
	}
	return &l, nil
}

func (st *state) ReserveStock(_ context.Context, listingID int64, quantity int) (int, error) {
	l, ok := st.listings[listingID]
	if !ok {
		return 0, notFound("listing %d", listingID)
	}
	if l.Quantity < quantity {
		return 0, fmt.Errorf("listing %d has %d, requested %d: %w",
			listingID, l.Quantity, quantity, models.ErrInsufficientStock)
	}
	l.Quantity -= quantity
	l.UpdatedAt = time.Now()
	st.listings[listingID] = l
	return l.Quantity, nil
}

func (st *state) ReleaseStock(_ context.Context, listingID int64, quantity int) (int, error) {
	l, ok := st.listings[listingID]
	if !ok {
		return 0, notFound("listing %d", listingID)
	}
	l.Quantity += quantity
	l.UpdatedAt = time.Now()
	st.listings[listingID] = l
	return l.Quantity, nil
}

func (st *state) CreateOrder(_ context.Context, order *models.Order) error {
	if order.Status == models.OrderStatusPending {
		for _, o := range st.orders {
			if o.ProfileID == order.ProfileID && o.Status == models.OrderStatusPending {
				return fmt.Errorf("profile %s already has a pending order: %w", order.ProfileID, store.ErrDuplicate)
			}
		}
	}
	now := time.Now()
	order.ID = st.id()
	order.CreatedAt = now
	order.UpdatedAt = now
	st.orders[order.ID] = *order
	return nil
}

func (st *state) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, notFound("order %d", id)
	}
	return &o, nil
}

func (st *state) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return st.GetOrderByID(ctx, id)
}

func (st *state) GetPendingOrderByProfile(_ context.Context, profileID string) (*models.Order, error) {
	for _, o := range st.orders {
		if o.ProfileID == profileID && o.Status == models.OrderStatusPending {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (st *state) GetOrdersByProfile(_ context.Context, profileID string) ([]models.Order, error) {
	var orders []models.Order
	for _, o := range st.orders {
		if o.ProfileID == profileID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (st *state) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o, ok := st.orders[orderID]
	if !ok {
		return notFound("order %d", orderID)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	st.orders[orderID] = o
	return nil
}

func (st *state) RecalculateOrderTotal(_ context.Context, orderID int64) (decimal.Decimal, error) {
	o, ok := st.orders[orderID]
	if !ok {
		return decimal.Zero, notFound("order %d", orderID)
	}
	total := decimal.Zero
	for _, it := range st.items {
		if it.OrderID == orderID {
			total = total.Add(it.Price)
		}
	}
	o.TotalPrice = total
	o.UpdatedAt = time.Now()
	st.orders[orderID] = o
	return total, nil
}

func (st *state) SaveCheckout(_ context.Context, order *models.Order) error {
	o, ok := st.orders[order.ID]
	if !ok {
		return notFound("order %d", order.ID)
	}
	o.DeliveryAddress = order.DeliveryAddress
	o.City = order.City
	o.Zip = order.Zip
	o.Country = order.Country
	o.ReferralCode = order.ReferralCode
	o.ShippingCost = order.ShippingCost
	o.Status = order.Status
	o.UpdatedAt = time.Now()
	st.orders[order.ID] = o
	return nil
}

func (st *state) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	if _, ok := st.orders[item.OrderID]; !ok {
		return notFound("order %d", item.OrderID)
	}
	item.ID = st.id()
	item.CreatedAt = time.Now()
	st.items[item.ID] = *item
	return nil
}

func (st *state) GetOrderItem(_ context.Context, id int64) (*models.OrderItem, error) {
	it, ok := st.items[id]
	if !ok {
		return nil, notFound("order item %d", id)
	}
	return &it, nil
}

func (st *state) DeleteOrderItem(_ context.Context, id int64) error {
	if _, ok := st.items[id]; !ok {
		return notFound("order item %d", id)
	}
	delete(st.items, id)
	return nil
}

func (st *state) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	for _, it := range st.items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (st *state) CreatePayment(_ context.Context, payment *models.Payment) error {
	for _, p := range st.payments {
		if p.TransactionReference == payment.TransactionReference {
			return fmt.Errorf("payment reference %s: %w", payment.TransactionReference, store.ErrDuplicate)
		}
	}
	now := time.Now()
	payment.ID = st.id()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	st.payments[payment.ID] = *payment
	return nil
}

func (st *state) GetPaymentByReferenceForUpdate(_ context.Context, reference string) (*models.Payment, error) {
	for _, p := range st.payments {
		if p.TransactionReference == reference {
			found := p
			return &found, nil
		}
	}
	return nil, notFound("payment %s", reference)
}

func (st *state) GetCompletedPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	var latest *models.Payment
	for _, p := range st.payments {
		if p.OrderID != orderID || p.Status != models.PaymentStatusCompleted {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			found := p
			latest = &found
		}
	}
	if latest == nil {
		return nil, notFound("completed payment for order %d", orderID)
	}
	return latest, nil
}

func (st *state) HasInitiatedPayment(_ context.Context, orderID int64) (bool, error) {
	for _, p := range st.payments {
		if p.OrderID == orderID && p.Status == models.PaymentStatusInitiated {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) MarkPaymentCompleted(_ context.Context, paymentID int64) error {
	p, ok := st.payments[paymentID]
	if !ok || p.Status != models.PaymentStatusInitiated {
		return notFound("initiated payment %d", paymentID)
	}
	p.Status = models.PaymentStatusCompleted
	p.UpdatedAt = time.Now()
	st.payments[paymentID] = p
	return nil
}

func (st *state) CreditReferral(_ context.Context, code string, amount decimal.Decimal) (bool, error) {
	r, ok := st.referrals[code]
	if !ok {
		return false, nil
	}
	r.Balance = r.Balance.Add(amount)
	st.referrals[code] = r
	return true, nil
}

func (st *state) GetReferralByCode(_ context.Context, code string) (*models.Referral, error) {
	r, ok := st.referrals[code]
	if !ok {
		return nil, notFound("referral %s", code)
	}
	return &r, nil
}

func (st *state) GetShipmentByOrderID(_ context.Context, orderID int64) (*models.Shipment, error) {
	for _, sh := range st.shipments {
		if sh.OrderID == orderID {
			found := sh
			return &found, nil
		}
	}
	return nil, nil
}

func (st *state) UpsertShipment(ctx context.Context, shipment *models.Shipment) error {
	now := time.Now()
	existing, _ := st.GetShipmentByOrderID(ctx, shipment.OrderID)
	if existing != nil {
		existing.CarrierShipmentID = shipment.CarrierShipmentID
		existing.TrackingID = shipment.TrackingID
		existing.UpdatedAt = now
		st.shipments[existing.ID] = *existing
		*shipment = *existing
		return nil
	}
	shipment.ID = st.id()
	shipment.CreatedAt = now
	shipment.UpdatedAt = now
	st.shipments[shipment.ID] = *shipment
	return nil
}

func (st *state) MarkShipmentPaid(_ context.Context, shipmentID int64) error {
	sh, ok := st.shipments[shipmentID]
	if !ok {
		return notFound("shipment %d", shipmentID)
	}
	sh.IsPaid = true
	sh.UpdatedAt = time.Now()
	st.shipments[shipmentID] = sh
	return nil
}
