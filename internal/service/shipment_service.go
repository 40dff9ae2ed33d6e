package service

import (
	"context"
	"fmt"
	"strings"

	"artwork-orders/internal/models"
	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ShipOrderRequest identifies the carrier shipment booked for a paid order
type ShipOrderRequest struct {
	CarrierShipmentID string `json:"carrier_shipment_id" binding:"required"`
	TrackingID        string `json:"tracking_id" binding:"required"`
}

// ShipmentService moves paid orders to SHIPPED once the carrier is paid
type ShipmentService struct {
	store    store.Transactor
	carrier  CarrierPayer
	notifier Notifier
	events   EventPublisher
	logger   *zap.Logger
}

// NewShipmentService creates a new shipment service
func NewShipmentService(store store.Transactor, carrier CarrierPayer, notifier Notifier, events EventPublisher) *ShipmentService {
	return &ShipmentService{
		store:    store,
		carrier:  carrier,
		notifier: notifier,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// ShipOrder pays the carrier and marks the order SHIPPED. Only admins may ship.
// If the carrier payment fails nothing is written.
func (s *ShipmentService) ShipOrder(ctx context.Context, actor models.Actor, orderID int64, req ShipOrderRequest) (*models.Shipment, error) {
	ctx, span := util.StartSpan(ctx, "ShipmentService.ShipOrder",
		attribute.Int64("order_id", orderID))
	defer span.End()

	order, shipment, err := s.ship(ctx, actor, orderID, req)
	if err != nil {
		util.FailSpan(span, err)
		reason := failureReason(err)
		util.OrderOperationsFailed.WithLabelValues("ship", reason).Inc()
		s.logger.Warn("Ship order failed",
			zap.String("op", "ship"),
			zap.Int64("order_id", orderID),
			zap.String("user_id", actor.UserID),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, err
	}

	util.OrdersShippedTotal.Inc()
	s.logger.Info("Order shipped",
		zap.Int64("order_id", order.ID),
		zap.String("tracking_id", shipment.TrackingID))

	if payment, err := s.store.GetCompletedPaymentByOrderID(ctx, order.ID); err != nil {
		s.logger.Warn("No payee to notify of shipment", zap.Int64("order_id", order.ID), zap.Error(err))
	} else if err := s.notifier.NotifyOrderShipped(ctx, payment.PayeeEmail, order.ID, shipment.TrackingID); err != nil {
		s.logger.Error("Failed to notify customer of shipment", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	if err := s.events.PublishOrderEvent(ctx, models.EventTypeOrderShipped, &models.OrderEvent{
		OrderID:    order.ID,
		ProfileID:  order.ProfileID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
	}); err != nil {
		s.logger.Error("Failed to publish OrderShipped event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return shipment, nil
}

func (s *ShipmentService) ship(ctx context.Context, actor models.Actor, orderID int64, req ShipOrderRequest) (*models.Order, *models.Shipment, error) {
	if !actor.IsAdmin() {
		return nil, nil, fmt.Errorf("user %q may not ship orders: %w", actor.UserID, models.ErrUnauthorized)
	}
	req.CarrierShipmentID = strings.TrimSpace(req.CarrierShipmentID)
	req.TrackingID = strings.TrimSpace(req.TrackingID)
	if req.CarrierShipmentID == "" || req.TrackingID == "" {
		return nil, nil, fmt.Errorf("carrier shipment id and tracking id are required: %w", models.ErrInvalidArgument)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireStatus(order, models.OrderStatusPaid); err != nil {
		return nil, nil, err
	}

	if err := s.carrier.PayFromWallet(ctx, req.CarrierShipmentID); err != nil {
		return nil, nil, fmt.Errorf("carrier payment for order %d: %w", orderID, asUpstream(err))
	}

	shipment := &models.Shipment{
		OrderID:           orderID,
		CarrierShipmentID: req.CarrierShipmentID,
		TrackingID:        req.TrackingID,
	}
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(current, models.OrderStatusPaid); err != nil {
			return err
		}
		if err := tx.UpsertShipment(ctx, shipment); err != nil {
			return fmt.Errorf("failed to record shipment: %w", err)
		}
		if err := tx.MarkShipmentPaid(ctx, shipment.ID); err != nil {
			return fmt.Errorf("failed to mark shipment paid: %w", err)
		}
		shipment.IsPaid = true
		if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderStatusShipped); err != nil {
			return fmt.Errorf("failed to mark order shipped: %w", err)
		}
		current.Status = models.OrderStatusShipped
		order = current
		return nil
	})
	if err != nil {
		s.logger.Error("Carrier paid but shipment was not recorded",
			zap.Int64("order_id", orderID),
			zap.String("carrier_shipment_id", req.CarrierShipmentID),
			zap.Error(err))
		return nil, nil, err
	}
	return order, shipment, nil
}
