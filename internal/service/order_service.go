package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles the order aggregate: the open cart, its line items and cancellation
type OrderService struct {
	store     store.Transactor
	inventory *InventoryLedger
	locker    Locker
	events    EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewOrderService creates a new order service. locker may be nil, in which
// case the database constraint alone keeps one open order per profile.
func NewOrderService(
	store store.Transactor,
	inventory *InventoryLedger,
	locker Locker,
	events EventPublisher,
	lockTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:     store,
		inventory: inventory,
		locker:    locker,
		events:    events,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// AddItemRequest represents a request to add a listing to an order
type AddItemRequest struct {
	ListingID int64 `json:"listing_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// OrderDetails is an order with its line items and shipment
type OrderDetails struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Shipment *models.Shipment   `json:"shipment,omitempty"`
}

// GetOrCreateOpenOrder returns the profile's PENDING order, creating one if there is none
func (s *OrderService) GetOrCreateOpenOrder(ctx context.Context, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrCreateOpenOrder",
		attribute.String("profile_id", actor.ProfileID))
	defer span.End()

	if actor.ProfileID == "" {
		return nil, fmt.Errorf("missing profile: %w", models.ErrInvalidArgument)
	}

	order, err := s.store.GetPendingOrderByProfile(ctx, actor.ProfileID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to look up open order: %w", err)
	}
	if order != nil {
		return order, nil
	}

	var created bool
	ran := false
	create := func(ctx context.Context) error {
		ran = true
		order, created, err = s.createOpenOrder(ctx, actor.ProfileID)
		return err
	}

	if s.locker == nil {
		err = create(ctx)
	} else {
		err = s.locker.WithLock(ctx, "open-order:"+actor.ProfileID, s.lockTTL, create)
		if err != nil && !ran {
			s.logger.Warn("Open order lock unavailable, relying on database constraint",
				zap.String("profile_id", actor.ProfileID),
				zap.Error(err))
			err = create(ctx)
		}
	}
	if err != nil {
		util.FailSpan(span, err)
		util.OrderOperationsFailed.WithLabelValues("create_order", failureReason(err)).Inc()
		s.logger.Error("Failed to get or create open order",
			zap.String("profile_id", actor.ProfileID),
			zap.String("op", "create_order"),
			zap.Error(err))
		return nil, err
	}

	if created {
		util.OrdersCreatedTotal.Inc()
		s.logger.Info("Order created",
			zap.Int64("order_id", order.ID),
			zap.String("profile_id", order.ProfileID))
		s.publish(ctx, models.EventTypeOrderCreated, &models.OrderEvent{
			OrderID:    order.ID,
			ProfileID:  order.ProfileID,
			Status:     order.Status,
			TotalPrice: order.TotalPrice,
		})
	}
	return order, nil
}

func (s *OrderService) createOpenOrder(ctx context.Context, profileID string) (*models.Order, bool, error) {
	existing, err := s.store.GetPendingOrderByProfile(ctx, profileID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up open order: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	order := &models.Order{
		ProfileID:  profileID,
		Status:     models.OrderStatusPending,
		TotalPrice: decimal.Zero,
	}
	err = s.store.CreateOrder(ctx, order)
	if errors.Is(err, store.ErrDuplicate) {
		// lost the race to another instance
		existing, err = s.store.GetPendingOrderByProfile(ctx, profileID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read open order: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("open order for profile %s vanished after conflict", profileID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}
	return order, true, nil
}

// AddItem reserves stock and adds a line item priced at unit price × quantity
func (s *OrderService) AddItem(ctx context.Context, actor models.Actor, orderID int64, req AddItemRequest) (*models.Order, *models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddItem",
		attribute.Int64("order_id", orderID),
		attribute.Int64("listing_id", req.ListingID))
	defer span.End()

	if req.Quantity <= 0 {
		return nil, nil, fmt.Errorf("quantity must be positive: %w", models.ErrInvalidArgument)
	}

	var (
		order *models.Order
		item  *models.OrderItem
	)
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(order, actor); err != nil {
			return err
		}
		if err := requireStatus(order, models.OrderStatusPending); err != nil {
			return err
		}

		listing, err := tx.GetListing(ctx, req.ListingID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.Reserve(ctx, tx, listing.ID, req.Quantity); err != nil {
			return err
		}

		item = &models.OrderItem{
			OrderID:   order.ID,
			ListingID: listing.ID,
			Quantity:  req.Quantity,
			Price:     listing.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		}
		if err := tx.CreateOrderItem(ctx, item); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}

		total, err := tx.RecalculateOrderTotal(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order total: %w", err)
		}
		order.TotalPrice = total
		return nil
	})
	if err != nil {
		util.FailSpan(span, err)
		s.logFailure("add_item", actor, orderID, err)
		return nil, nil, err
	}

	util.OrderItemsAddedTotal.Inc()
	s.logger.Info("Item added to order",
		zap.Int64("order_id", order.ID),
		zap.Int64("listing_id", item.ListingID),
		zap.Int("quantity", item.Quantity),
		zap.String("total_price", order.TotalPrice.String()))

	s.publish(ctx, models.EventTypeOrderItemAdded, &models.OrderEvent{
		OrderID:    order.ID,
		ProfileID:  order.ProfileID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		ItemID:     item.ID,
		ListingID:  item.ListingID,
		Quantity:   item.Quantity,
	})
	return order, item, nil
}

// RemoveItem deletes a line item and returns its reserved stock
func (s *OrderService) RemoveItem(ctx context.Context, actor models.Actor, itemID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RemoveItem",
		attribute.Int64("item_id", itemID))
	defer span.End()

	var (
		order *models.Order
		item  *models.OrderItem
	)
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		item, err = tx.GetOrderItem(ctx, itemID)
		if err != nil {
			return err
		}
		order, err = tx.GetOrderForUpdate(ctx, item.OrderID)
		if err != nil {
			return err
		}
		if err := requireOwner(order, actor); err != nil {
			return err
		}
		if err := requireStatus(order, models.OrderStatusPending); err != nil {
			return err
		}

		if err := s.inventory.Release(ctx, tx, item.ListingID, item.Quantity); err != nil {
			return err
		}
		if err := tx.DeleteOrderItem(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to delete order item: %w", err)
		}

		total, err := tx.RecalculateOrderTotal(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order total: %w", err)
		}
		order.TotalPrice = total
		return nil
	})
	if err != nil {
		util.FailSpan(span, err)
		var orderID int64
		if order != nil {
			orderID = order.ID
		}
		s.logFailure("remove_item", actor, orderID, err, zap.Int64("item_id", itemID))
		return nil, err
	}

	util.OrderItemsRemovedTotal.Inc()
	s.logger.Info("Item removed from order",
		zap.Int64("order_id", order.ID),
		zap.Int64("item_id", item.ID),
		zap.String("total_price", order.TotalPrice.String()))

	s.publish(ctx, models.EventTypeOrderItemRemoved, &models.OrderEvent{
		OrderID:    order.ID,
		ProfileID:  order.ProfileID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		ItemID:     item.ID,
		ListingID:  item.ListingID,
		Quantity:   item.Quantity,
	})
	return order, nil
}

// Cancel moves a PENDING or CHECKOUT_READY order to CANCELED and restocks its items.
// The items stay on the order as a record of what was in it.
func (s *OrderService) Cancel(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel",
		attribute.Int64("order_id", orderID))
	defer span.End()

	var order *models.Order
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(order, actor); err != nil {
			return err
		}
		if err := requireStatus(order, models.OrderStatusPending, models.OrderStatusCheckoutReady); err != nil {
			return err
		}

		items, err := tx.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		for _, it := range items {
			if err := s.inventory.Release(ctx, tx, it.ListingID, it.Quantity); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCanceled); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		order.Status = models.OrderStatusCanceled
		return nil
	})
	if err != nil {
		util.FailSpan(span, err)
		s.logFailure("cancel", actor, orderID, err)
		return nil, err
	}

	util.OrdersCanceledTotal.Inc()
	s.logger.Info("Order canceled", zap.Int64("order_id", order.ID))

	s.publish(ctx, models.EventTypeOrderCanceled, &models.OrderEvent{
		OrderID:    order.ID,
		ProfileID:  order.ProfileID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
	})
	return order, nil
}

// GetOrder returns an order with its items and shipment to its owner or an admin
func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder",
		attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	if !actor.IsAdmin() {
		if err := requireOwner(order, actor); err != nil {
			return nil, err
		}
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	shipment, err := s.store.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}

	if items == nil {
		items = []models.OrderItem{}
	}
	return &OrderDetails{Order: order, Items: items, Shipment: shipment}, nil
}

// ListOrders returns the acting profile's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if actor.ProfileID == "" {
		return nil, fmt.Errorf("missing profile: %w", models.ErrInvalidArgument)
	}
	orders, err := s.store.GetOrdersByProfile(ctx, actor.ProfileID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, event *models.OrderEvent) {
	if err := s.events.PublishOrderEvent(ctx, eventType, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}
}

func (s *OrderService) logFailure(op string, actor models.Actor, orderID int64, err error, fields ...zap.Field) {
	reason := failureReason(err)
	util.OrderOperationsFailed.WithLabelValues(op, reason).Inc()

	fields = append(fields,
		zap.String("op", op),
		zap.Int64("order_id", orderID),
		zap.String("profile_id", actor.ProfileID),
		zap.String("reason", reason),
		zap.Error(err))
	if reason == "internal" {
		s.logger.Error("Order operation failed", fields...)
		return
	}
	s.logger.Warn("Order operation rejected", fields...)
}
