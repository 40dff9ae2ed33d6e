package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"artwork-orders/internal/gateway"
	"artwork-orders/internal/models"
	"artwork-orders/internal/shipping"
	"artwork-orders/internal/store/memory"

	"github.com/shopspring/decimal"
)

type fakeEvents struct {
	mu        sync.Mutex
	types     []string
	referrals []models.ReferralCreditedEvent
	err       error
}

func (f *fakeEvents) PublishOrderEvent(ctx context.Context, eventType string, event *models.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return f.err
}

func (f *fakeEvents) PublishPaymentEvent(ctx context.Context, eventType string, event *models.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return f.err
}

func (f *fakeEvents) PublishReferralCredited(ctx context.Context, event *models.ReferralCreditedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, models.EventTypeReferralCredited)
	f.referrals = append(f.referrals, *event)
	return f.err
}

func (f *fakeEvents) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu       sync.Mutex
	shipped  []string
	admin    []int64
	received []string
	err      error
}

func (f *fakeNotifier) NotifyOrderShipped(ctx context.Context, email string, orderID int64, trackingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipped = append(f.shipped, email+"/"+trackingID)
	return f.err
}

func (f *fakeNotifier) NotifyAdminPaymentComplete(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin = append(f.admin, orderID)
	return f.err
}

func (f *fakeNotifier) NotifyPaymentReceived(ctx context.Context, email string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, email)
	return f.err
}

type fakeQuoter struct {
	cost  decimal.Decimal
	err   error
	calls int
	last  shipping.ShipmentDetail
	// during runs while the quote is outstanding
	during func()
}

func (f *fakeQuoter) Quote(ctx context.Context, detail shipping.ShipmentDetail) (decimal.Decimal, error) {
	f.calls++
	f.last = detail
	if f.during != nil {
		f.during()
	}
	return f.cost, f.err
}

type fakeCarrier struct {
	err   error
	calls []string
}

func (f *fakeCarrier) PayFromWallet(ctx context.Context, shipmentID string) error {
	f.calls = append(f.calls, shipmentID)
	return f.err
}

type fakeGateway struct {
	initErr     error
	verifyErr   error
	status      string
	seq         int
	lastMinor   int64
	lastEmail   string
	verifyCalls int
}

func (f *fakeGateway) InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency string) (*gateway.Transaction, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.seq++
	f.lastMinor = amountMinor
	f.lastEmail = email
	ref := fmt.Sprintf("ref-%d", f.seq)
	return &gateway.Transaction{Reference: ref, AuthorizationURL: "https://pay.example/" + ref}, nil
}

func (f *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*gateway.Verification, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	status := f.status
	if status == "" {
		status = "success"
	}
	return &gateway.Verification{Reference: reference, Status: status}, nil
}

type fakeLocker struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fakeCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	f.keys[key] = true
	return nil
}

func (f *fakeCache) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

// fixture wires every service against one in-memory store
type fixture struct {
	store     *memory.Store
	events    *fakeEvents
	notifier  *fakeNotifier
	quoter    *fakeQuoter
	carrier   *fakeCarrier
	gateway   *fakeGateway
	orders    *OrderService
	checkout  *CheckoutCoordinator
	payments  *PaymentService
	shipments *ShipmentService
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.NewStore(),
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
		quoter:   &fakeQuoter{cost: decimal.NewFromInt(500)},
		carrier:  &fakeCarrier{},
		gateway:  &fakeGateway{},
	}
	f.orders = NewOrderService(f.store, NewInventoryLedger(), &fakeLocker{}, f.events, time.Second)
	f.checkout = NewCheckoutCoordinator(f.store, f.quoter, f.events)
	f.payments = NewPaymentService(f.store, f.gateway, NewReferralLedger(decimal.NewFromInt(10)), f.notifier, f.events,
		PaymentOptions{Currency: "NGN"})
	f.shipments = NewShipmentService(f.store, f.carrier, f.notifier, f.events)
	return f
}

var (
	buyer = models.Actor{ProfileID: "profile-1", UserID: "user-1", Role: models.RoleCustomer, Email: "buyer@example.com"}
	other = models.Actor{ProfileID: "profile-2", UserID: "user-2", Role: models.RoleCustomer, Email: "other@example.com"}
	admin = models.Actor{ProfileID: "profile-9", UserID: "admin-1", Role: models.RoleAdmin, Email: "ops@example.com"}
)

var lagos = CheckoutRequest{
	DeliveryAddress: "12 Admiralty Way",
	City:            "Lagos",
	Zip:             "106104",
	Country:         "NG",
}

func (f *fixture) stock(listingID int64) int {
	l, err := f.store.GetListing(context.Background(), listingID)
	if err != nil {
		panic(err)
	}
	return l.Quantity
}

// readyOrder builds a CHECKOUT_READY order holding qty units at price each
func (f *fixture) readyOrder(price int64, qty int, referral string) *models.Order {
	ctx := context.Background()
	listing := f.store.AddListing("Oba's Court", decimal.NewFromInt(price), qty+5)
	order, err := f.orders.GetOrCreateOpenOrder(ctx, buyer)
	if err != nil {
		panic(err)
	}
	if _, _, err := f.orders.AddItem(ctx, buyer, order.ID, AddItemRequest{ListingID: listing.ID, Quantity: qty}); err != nil {
		panic(err)
	}
	req := lagos
	req.ReferralCode = referral
	order, err = f.checkout.Checkout(ctx, buyer, order.ID, req)
	if err != nil {
		panic(err)
	}
	return order
}

// paidOrder builds a PAID order and returns it with its payment reference
func (f *fixture) paidOrder() (*models.Order, string) {
	ctx := context.Background()
	order := f.readyOrder(1000, 2, "")
	resp, err := f.payments.Initiate(ctx, buyer, InitiatePaymentRequest{OrderID: order.ID, Amount: order.AmountDue()})
	if err != nil {
		panic(err)
	}
	if err := f.payments.Reconcile(ctx, chargeSuccess(resp.Reference)); err != nil {
		panic(err)
	}
	order, err = f.store.GetOrderByID(ctx, order.ID)
	if err != nil {
		panic(err)
	}
	return order, resp.Reference
}

func chargeSuccess(ref string) *models.WebhookPayload {
	return &models.WebhookPayload{
		Event: models.WebhookEventChargeSuccess,
		Data:  models.WebhookData{Reference: ref, Status: "success"},
	}
}
