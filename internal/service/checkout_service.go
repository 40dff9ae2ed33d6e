package service

import (
	"context"
	"fmt"
	"strings"

	"artwork-orders/internal/models"
	"artwork-orders/internal/shipping"
	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutRequest carries the delivery details for an order
type CheckoutRequest struct {
	DeliveryAddress string `json:"delivery_address" binding:"required"`
	City            string `json:"city" binding:"required"`
	Zip             string `json:"zip" binding:"required"`
	Country         string `json:"country" binding:"required"`
	ReferralCode    string `json:"referral_code"`
}

func (r CheckoutRequest) validate() error {
	for name, v := range map[string]string{
		"delivery_address": r.DeliveryAddress,
		"city":             r.City,
		"zip":              r.Zip,
		"country":          r.Country,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required: %w", name, models.ErrInvalidArgument)
		}
	}
	return nil
}

// CheckoutCoordinator attaches delivery details and a shipping quote to an order
type CheckoutCoordinator struct {
	store  store.Transactor
	quoter RateQuoter
	events EventPublisher
	logger *zap.Logger
}

// NewCheckoutCoordinator creates a new checkout coordinator
func NewCheckoutCoordinator(store store.Transactor, quoter RateQuoter, events EventPublisher) *CheckoutCoordinator {
	return &CheckoutCoordinator{
		store:  store,
		quoter: quoter,
		events: events,
		logger: util.GetLogger(),
	}
}

// Checkout quotes shipping for the order and moves it to CHECKOUT_READY.
// The quote is obtained before anything is written, so a failed quote leaves
// the order untouched.
func (c *CheckoutCoordinator) Checkout(ctx context.Context, actor models.Actor, orderID int64, req CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutCoordinator.Checkout",
		attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := c.checkout(ctx, actor, orderID, req)
	if err != nil {
		util.FailSpan(span, err)
		reason := failureReason(err)
		util.OrderOperationsFailed.WithLabelValues("checkout", reason).Inc()
		c.logger.Warn("Checkout failed",
			zap.String("op", "checkout"),
			zap.Int64("order_id", orderID),
			zap.String("profile_id", actor.ProfileID),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, err
	}

	util.OrdersCheckedOutTotal.Inc()
	c.logger.Info("Order ready for payment",
		zap.Int64("order_id", order.ID),
		zap.String("shipping_cost", order.ShippingCost.Decimal.String()))

	if err := c.events.PublishOrderEvent(ctx, models.EventTypeOrderCheckoutReady, &models.OrderEvent{
		OrderID:    order.ID,
		ProfileID:  order.ProfileID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
	}); err != nil {
		c.logger.Error("Failed to publish checkout event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

func (c *CheckoutCoordinator) checkout(ctx context.Context, actor models.Actor, orderID int64, req CheckoutRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	order, err := c.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(order, actor); err != nil {
		return nil, err
	}
	if err := requireStatus(order, models.OrderStatusPending, models.OrderStatusCheckoutReady); err != nil {
		return nil, err
	}

	if err := requireNoOpenPayment(ctx, c.store, orderID); err != nil {
		return nil, err
	}
	count, err := itemCount(ctx, c.store, orderID)
	if err != nil {
		return nil, err
	}

	cost, err := c.quoter.Quote(ctx, shipping.ShipmentDetail{
		Receiver: shipping.Destination{
			AddressLine: req.DeliveryAddress,
			City:        req.City,
			Zip:         req.Zip,
			Country:     req.Country,
		},
		ItemCount: count,
	})
	if err != nil {
		return nil, fmt.Errorf("shipping quote for order %d: %w", orderID, asUpstream(err))
	}
	if cost.IsNegative() {
		return nil, fmt.Errorf("shipping quote for order %d is negative: %w", orderID, models.ErrUpstreamUnavailable)
	}

	err = c.store.WithTx(ctx, func(tx store.Repository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(current, models.OrderStatusPending, models.OrderStatusCheckoutReady); err != nil {
			return err
		}
		if err := requireNoOpenPayment(ctx, tx, orderID); err != nil {
			return err
		}
		n, err := itemCount(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if n != count {
			return fmt.Errorf("order %d changed while quoting (%d items quoted, %d now): %w",
				orderID, count, n, models.ErrInvalidStateTransition)
		}

		current.DeliveryAddress = &req.DeliveryAddress
		current.City = &req.City
		current.Zip = &req.Zip
		current.Country = &req.Country
		current.ReferralCode = nil
		if code := strings.TrimSpace(req.ReferralCode); code != "" {
			current.ReferralCode = &code
		}
		current.ShippingCost = decimal.NullDecimal{Decimal: cost, Valid: true}
		current.Status = models.OrderStatusCheckoutReady

		if err := tx.SaveCheckout(ctx, current); err != nil {
			return fmt.Errorf("failed to save checkout: %w", err)
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// itemCount totals the units on an order. An order without items cannot be checked out.
func itemCount(ctx context.Context, repo store.Repository, orderID int64) (int, error) {
	items, err := repo.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to load order items: %w", err)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("order %d has no items: %w", orderID, models.ErrInvalidArgument)
	}
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return count, nil
}

// requireNoOpenPayment keeps the amount due fixed once a payment was initiated
func requireNoOpenPayment(ctx context.Context, repo store.Repository, orderID int64) error {
	open, err := repo.HasInitiatedPayment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load payments: %w", err)
	}
	if open {
		return fmt.Errorf("order %d has a payment in progress: %w", orderID, models.ErrInvalidStateTransition)
	}
	return nil
}
