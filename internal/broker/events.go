package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func newBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// EventPublisher publishes order lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order lifecycle event of the given type
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, eventType string, event *models.OrderEvent) error {
	event.BaseEvent = newBase(eventType)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentEvent publishes PaymentInitiated / OrderPaid
func (ep *EventPublisher) PublishPaymentEvent(ctx context.Context, eventType string, event *models.PaymentEvent) error {
	event.BaseEvent = newBase(eventType)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishReferralCredited publishes ReferralCredited
func (ep *EventPublisher) PublishReferralCredited(ctx context.Context, event *models.ReferralCreditedEvent) error {
	event.BaseEvent = newBase(models.EventTypeReferralCredited)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// Notifier hands notifications to the external notification service via Kafka
type Notifier struct {
	producer *Producer
}

func NewNotifier(producer *Producer) *Notifier {
	return &Notifier{producer: producer}
}

// NotifyOrderShipped tells the customer their order is on the way
func (n *Notifier) NotifyOrderShipped(ctx context.Context, email string, orderID int64, trackingID string) error {
	return n.send(ctx, &models.Notification{
		BaseEvent:  newBase(models.NotificationOrderShipped),
		Kind:       models.NotificationOrderShipped,
		Email:      email,
		OrderID:    orderID,
		TrackingID: trackingID,
	})
}

// NotifyAdminPaymentComplete tells operators an order has been paid
func (n *Notifier) NotifyAdminPaymentComplete(ctx context.Context, orderID int64) error {
	return n.send(ctx, &models.Notification{
		BaseEvent: newBase(models.NotificationAdminPaymentComplete),
		Kind:      models.NotificationAdminPaymentComplete,
		OrderID:   orderID,
	})
}

// NotifyPaymentReceived tells the customer their payment was received
func (n *Notifier) NotifyPaymentReceived(ctx context.Context, email string, orderID int64) error {
	return n.send(ctx, &models.Notification{
		BaseEvent: newBase(models.NotificationCustomerPaymentReceived),
		Kind:      models.NotificationCustomerPaymentReceived,
		Email:     email,
		OrderID:   orderID,
	})
}

func (n *Notifier) send(ctx context.Context, notification *models.Notification) error {
	return n.producer.PublishEvent(ctx, orderKey(notification.OrderID), notification)
}

// WebhookQueue buffers raw gateway webhooks so the HTTP edge can acknowledge fast
type WebhookQueue struct {
	producer *Producer
}

func NewWebhookQueue(producer *Producer) *WebhookQueue {
	return &WebhookQueue{producer: producer}
}

// Enqueue stores the payload keyed by transaction reference
func (q *WebhookQueue) Enqueue(ctx context.Context, payload *models.WebhookPayload) error {
	return q.producer.PublishEvent(ctx, payload.Data.Reference, payload)
}

// WebhookHandler decodes queued webhooks and passes them to fn
func WebhookHandler(fn func(context.Context, *models.WebhookPayload) error) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload models.WebhookPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			util.GetLogger().Error("Dropping undecodable webhook",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		return fn(ctx, &payload)
	}
}
