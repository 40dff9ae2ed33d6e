package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"artwork-orders/internal/gateway"
	"artwork-orders/internal/models"
	"artwork-orders/internal/service"
	"artwork-orders/internal/shipping"
	"artwork-orders/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopEvents struct{}

func (nopEvents) PublishOrderEvent(context.Context, string, *models.OrderEvent) error     { return nil }
func (nopEvents) PublishPaymentEvent(context.Context, string, *models.PaymentEvent) error { return nil }
func (nopEvents) PublishReferralCredited(context.Context, *models.ReferralCreditedEvent) error {
	return nil
}

type nopNotifier struct{}

func (nopNotifier) NotifyOrderShipped(context.Context, string, int64, string) error { return nil }
func (nopNotifier) NotifyAdminPaymentComplete(context.Context, int64) error         { return nil }
func (nopNotifier) NotifyPaymentReceived(context.Context, string, int64) error      { return nil }

type stubQuoter struct{ err error }

func (q stubQuoter) Quote(context.Context, shipping.ShipmentDetail) (decimal.Decimal, error) {
	return decimal.NewFromInt(500), q.err
}

type stubCarrier struct{}

func (stubCarrier) PayFromWallet(context.Context, string) error { return nil }

type stubGateway struct{}

func (stubGateway) InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency string) (*gateway.Transaction, error) {
	return &gateway.Transaction{Reference: "ref-1", AuthorizationURL: "https://pay.example/ref-1"}, nil
}

func (stubGateway) VerifyTransaction(ctx context.Context, reference string) (*gateway.Verification, error) {
	return &gateway.Verification{Reference: reference, Status: "success"}, nil
}

type fakeQueue struct {
	payloads []*models.WebhookPayload
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, payload *models.WebhookPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

type fixedVerifier bool

func (v fixedVerifier) VerifySignature([]byte, string) bool { return bool(v) }

type testServer struct {
	router  *gin.Engine
	handler *Handler
	store   *memory.Store
	listing models.Listing
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.NewStore()
	orders := service.NewOrderService(st, service.NewInventoryLedger(), nil, nopEvents{}, time.Second)
	checkout := service.NewCheckoutCoordinator(st, stubQuoter{}, nopEvents{})
	payments := service.NewPaymentService(st, stubGateway{}, service.NewReferralLedger(decimal.NewFromInt(10)),
		nopNotifier{}, nopEvents{}, service.PaymentOptions{Currency: "NGN"})
	shipments := service.NewShipmentService(st, stubCarrier{}, nopNotifier{}, nopEvents{})

	h := NewHandler(orders, checkout, payments, shipments)
	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{
		router:  router,
		handler: h,
		store:   st,
		listing: st.AddListing("Lekki Sunset", decimal.NewFromInt(2500), 3),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var customer = map[string]string{
	headerProfileID: "profile-1",
	headerUserID:    "user-1",
	headerEmail:     "buyer@example.com",
}

var operator = map[string]string{
	headerUserID: "admin-1",
	headerRole:   "admin",
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func (s *testServer) openOrder(t *testing.T) models.Order {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/orders", nil, customer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var order models.Order
	decode(t, w, &order)
	return order
}

func orderPath(id int64, suffix string) string {
	return "/api/v1/orders/" + strconv.FormatInt(id, 10) + suffix
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadinessCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.WithReadinessCheck("database", func(ctx context.Context) error { return errors.New("down") })
	w = s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database")
}

func TestMissingIdentity(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderFlow(t *testing.T) {
	s := newTestServer(t)
	order := s.openOrder(t)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	w := s.do(t, http.MethodPost, orderPath(order.ID, "/items"),
		service.AddItemRequest{ListingID: s.listing.ID, Quantity: 2}, customer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added struct {
		Order models.Order     `json:"order"`
		Item  models.OrderItem `json:"item"`
	}
	decode(t, w, &added)
	assert.True(t, added.Order.TotalPrice.Equal(decimal.NewFromInt(5000)))

	w = s.do(t, http.MethodPatch, orderPath(order.ID, "/checkout"), service.CheckoutRequest{
		DeliveryAddress: "1 Marina",
		City:            "Lagos",
		Zip:             "101001",
		Country:         "NG",
	}, customer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/payments",
		map[string]interface{}{"order_id": order.ID, "amount": "5000"}, customer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/payments",
		map[string]interface{}{"order_id": order.ID, "amount": "5500"}, customer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var initiated service.InitiatePaymentResponse
	decode(t, w, &initiated)
	assert.Equal(t, "ref-1", initiated.Reference)

	w = s.do(t, http.MethodPost, "/api/v1/payments/webhook", models.WebhookPayload{
		Event: models.WebhookEventChargeSuccess,
		Data:  models.WebhookData{Reference: "ref-1"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, orderPath(order.ID, "/ship"),
		service.ShipOrderRequest{CarrierShipmentID: "SHP-1", TrackingID: "TRK-1"}, customer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, orderPath(order.ID, "/ship"),
		service.ShipOrderRequest{CarrierShipmentID: "SHP-1", TrackingID: "TRK-1"}, operator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPatch, orderPath(order.ID, "/cancel"), nil, customer)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, orderPath(order.ID, ""), nil, customer)
	require.Equal(t, http.StatusOK, w.Code)
	var details service.OrderDetails
	decode(t, w, &details)
	assert.Equal(t, models.OrderStatusShipped, details.Order.Status)
	require.NotNil(t, details.Shipment)
	assert.Equal(t, "TRK-1", details.Shipment.TrackingID)
}

func TestAddItemInsufficientStock(t *testing.T) {
	s := newTestServer(t)
	order := s.openOrder(t)

	w := s.do(t, http.MethodPost, orderPath(order.ID, "/items"),
		service.AddItemRequest{ListingID: s.listing.ID, Quantity: 4}, customer)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, orderPath(order.ID, "/items"),
		map[string]interface{}{"listing_id": s.listing.ID}, customer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveItem(t *testing.T) {
	s := newTestServer(t)
	order := s.openOrder(t)

	w := s.do(t, http.MethodPost, orderPath(order.ID, "/items"),
		service.AddItemRequest{ListingID: s.listing.ID, Quantity: 1}, customer)
	require.Equal(t, http.StatusCreated, w.Code)
	var added struct {
		Item models.OrderItem `json:"item"`
	}
	decode(t, w, &added)

	path := "/api/v1/order-items/" + strconv.FormatInt(added.Item.ID, 10)
	stranger := map[string]string{headerProfileID: "profile-2"}
	w = s.do(t, http.MethodDelete, path, nil, stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, path, nil, customer)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Order
	decode(t, w, &updated)
	assert.True(t, updated.TotalPrice.IsZero())
}

func TestInvalidIDs(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/orders/abc", nil, customer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/404", nil, customer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.handler.checkout = service.NewCheckoutCoordinator(s.store, stubQuoter{err: errors.New("timeout")}, nopEvents{})
	order := s.openOrder(t)
	w := s.do(t, http.MethodPost, orderPath(order.ID, "/items"),
		service.AddItemRequest{ListingID: s.listing.ID, Quantity: 1}, customer)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPatch, orderPath(order.ID, "/checkout"), service.CheckoutRequest{
		DeliveryAddress: "1 Marina",
		City:            "Lagos",
		Zip:             "101001",
		Country:         "NG",
	}, customer)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWebhookQueued(t *testing.T) {
	s := newTestServer(t)
	q := &fakeQueue{}
	s.handler.WithWebhookQueue(q)

	w := s.do(t, http.MethodPost, "/api/v1/payments/webhook", models.WebhookPayload{
		Event: models.WebhookEventChargeSuccess,
		Data:  models.WebhookData{Reference: "ref-7"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, "ref-7", q.payloads[0].Data.Reference)

	q.err = errors.New("broker down")
	w = s.do(t, http.MethodPost, "/api/v1/payments/webhook", models.WebhookPayload{Event: "charge.success"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhookSignature(t *testing.T) {
	s := newTestServer(t)
	s.handler.WithSignatureVerifier(fixedVerifier(false))

	w := s.do(t, http.MethodPost, "/api/v1/payments/webhook", models.WebhookPayload{Event: "charge.success"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/payments/webhook", models.WebhookPayload{Event: "transfer.failed"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrUnauthorized, http.StatusForbidden},
		{models.ErrInsufficientStock, http.StatusConflict},
		{models.ErrInvalidStateTransition, http.StatusConflict},
		{models.ErrAmountMismatch, http.StatusBadRequest},
		{models.ErrInvalidArgument, http.StatusBadRequest},
		{models.ErrUpstreamUnavailable, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
