package worker

import (
	"context"
	"errors"

	"artwork-orders/internal/broker"
	"artwork-orders/internal/models"
	"artwork-orders/internal/util"

	"go.uber.org/zap"
)

// Reconciler settles gateway webhooks
type Reconciler interface {
	Reconcile(ctx context.Context, payload *models.WebhookPayload) error
}

// WebhookWorker settles queued gateway webhooks in the background
type WebhookWorker struct {
	consumer   *broker.Consumer
	reconciler Reconciler
	logger     *zap.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(consumer *broker.Consumer, reconciler Reconciler) *WebhookWorker {
	return &WebhookWorker{
		consumer:   consumer,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}
}

// Start consumes until ctx is canceled
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook worker")
	return w.consumer.StartConsuming(ctx, broker.WebhookHandler(w.Handle))
}

// Handle settles one webhook. Errors that a retry cannot fix are logged and
// swallowed so the message is committed; anything else is returned for retry.
func (w *WebhookWorker) Handle(ctx context.Context, payload *models.WebhookPayload) error {
	err := w.reconciler.Reconcile(ctx, payload)
	if err == nil {
		return nil
	}
	if permanent(err) {
		w.logger.Warn("Dropping webhook that cannot be settled",
			zap.String("event", payload.Event),
			zap.String("reference", payload.Data.Reference),
			zap.Error(err))
		return nil
	}
	w.logger.Error("Webhook settlement failed, will retry",
		zap.String("reference", payload.Data.Reference),
		zap.Error(err))
	return err
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	w.logger.Info("Stopping webhook worker")
	return w.consumer.Close()
}

func permanent(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidArgument) ||
		errors.Is(err, models.ErrInvalidStateTransition)
}
