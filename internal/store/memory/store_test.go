package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveStockNeverOverdraws(t *testing.T) {
	s := NewStore()
	listing := s.AddListing("Harmattan", decimal.NewFromInt(100), 7)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveStock(ctx, listing.ID, 2); err == nil {
				mu.Lock()
				reserved += 2
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, reserved)
	assert.Equal(t, 1, got.Quantity)
}

func TestReserveUnknownListing(t *testing.T) {
	s := NewStore()

	_, err := s.ReserveStock(context.Background(), 42, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWithTxDiscardsOnError(t *testing.T) {
	s := NewStore()
	listing := s.AddListing("Dusk", decimal.NewFromInt(50), 4)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Repository) error {
		_, err := tx.ReserveStock(ctx, listing.ID, 3)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
}

func TestWithTxCommits(t *testing.T) {
	s := NewStore()
	listing := s.AddListing("Dawn", decimal.NewFromInt(50), 4)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Repository) error {
		order := &models.Order{ProfileID: "p1", Status: models.OrderStatusPending}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if _, err := tx.ReserveStock(ctx, listing.ID, 1); err != nil {
			return err
		}
		return tx.CreateOrderItem(ctx, &models.OrderItem{
			OrderID: order.ID, ListingID: listing.ID, Quantity: 1, Price: listing.Price,
		})
	})
	require.NoError(t, err)

	order, err := s.GetPendingOrderByProfile(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, order)

	total, err := s.RecalculateOrderTotal(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(50)))
}

func TestOnePendingOrderPerProfile(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &models.Order{ProfileID: "p1", Status: models.OrderStatusPending}))
	err := s.CreateOrder(ctx, &models.Order{ProfileID: "p1", Status: models.OrderStatusPending})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestCreditReferralUnknownCode(t *testing.T) {
	s := NewStore()
	s.AddReferral("ABC123")
	ctx := context.Background()

	ok, err := s.CreditReferral(ctx, "NOPE", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CreditReferral(ctx, "ABC123", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.GetReferralByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, r.Balance.Equal(decimal.NewFromInt(10)))
}

func TestHasInitiatedPayment(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	order := &models.Order{ProfileID: "p1", Status: models.OrderStatusCheckoutReady}
	require.NoError(t, s.CreateOrder(ctx, order))

	open, err := s.HasInitiatedPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, open)

	payment := &models.Payment{OrderID: order.ID, TransactionReference: "ref-1", Status: models.PaymentStatusInitiated}
	require.NoError(t, s.CreatePayment(ctx, payment))
	open, err = s.HasInitiatedPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, open)

	require.NoError(t, s.MarkPaymentCompleted(ctx, payment.ID))
	open, err = s.HasInitiatedPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, open)
}
