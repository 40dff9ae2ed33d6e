package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artwork-orders/internal/gateway"
	"artwork-orders/internal/models"
	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const settledKeyTTL = 24 * time.Hour

var minorUnitsPerMajor = decimal.NewFromInt(100)

// PaymentService drives payment initiation and settlement of gateway callbacks
type PaymentService struct {
	store          store.Transactor
	gateway        PaymentGateway
	referrals      *ReferralLedger
	notifier       Notifier
	events         EventPublisher
	settled        IdempotencyCache
	currency       string
	verifyWebhooks bool
	logger         *zap.Logger
}

// PaymentOptions tunes settlement
type PaymentOptions struct {
	Currency string
	// VerifyWebhooks re-checks every charge.success with the gateway before settling
	VerifyWebhooks bool
	// Settled is an optional fast path for redelivered webhooks
	Settled IdempotencyCache
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store store.Transactor,
	gateway PaymentGateway,
	referrals *ReferralLedger,
	notifier Notifier,
	events EventPublisher,
	opts PaymentOptions,
) *PaymentService {
	return &PaymentService{
		store:          store,
		gateway:        gateway,
		referrals:      referrals,
		notifier:       notifier,
		events:         events,
		settled:        opts.Settled,
		currency:       opts.Currency,
		verifyWebhooks: opts.VerifyWebhooks,
		logger:         util.GetLogger(),
	}
}

// InitiatePaymentRequest represents a request to start paying for an order
type InitiatePaymentRequest struct {
	OrderID int64           `json:"order_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// InitiatePaymentResponse tells the client where to complete payment
type InitiatePaymentResponse struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	Amount           decimal.Decimal `json:"amount"`
}

// Initiate opens a gateway transaction for a CHECKOUT_READY order. amount must
// cover items plus shipping; anything above that is accepted as is.
func (s *PaymentService) Initiate(ctx context.Context, actor models.Actor, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Initiate",
		attribute.Int64("order_id", req.OrderID))
	defer span.End()

	resp, err := s.initiate(ctx, actor, req)
	if err != nil {
		util.FailSpan(span, err)
		reason := failureReason(err)
		util.OrderOperationsFailed.WithLabelValues("initiate_payment", reason).Inc()
		s.logger.Warn("Payment initiation failed",
			zap.String("op", "initiate_payment"),
			zap.Int64("order_id", req.OrderID),
			zap.String("profile_id", actor.ProfileID),
			zap.String("amount", req.Amount.String()),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (s *PaymentService) initiate(ctx context.Context, actor models.Actor, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", models.ErrInvalidArgument)
	}
	if strings.TrimSpace(actor.Email) == "" {
		return nil, fmt.Errorf("payer email is required: %w", models.ErrInvalidArgument)
	}

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(order, actor); err != nil {
		return nil, err
	}
	if err := requireStatus(order, models.OrderStatusCheckoutReady); err != nil {
		return nil, err
	}

	due := order.AmountDue()
	if req.Amount.LessThan(due) {
		return nil, fmt.Errorf("amount %s is below %s due for order %d: %w",
			req.Amount, due, order.ID, models.ErrAmountMismatch)
	}

	minor := req.Amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
	tx, err := s.gateway.InitializeTransaction(ctx, actor.Email, minor, s.currency)
	if err != nil {
		return nil, fmt.Errorf("initialize transaction for order %d: %w", order.ID, asUpstream(err))
	}
	if tx.Reference == "" {
		return nil, fmt.Errorf("gateway returned no reference: %w", models.ErrUpstreamUnavailable)
	}

	payment := &models.Payment{
		OrderID:              order.ID,
		TransactionReference: tx.Reference,
		PayeeEmail:           actor.Email,
		Amount:               req.Amount,
		Status:               models.PaymentStatusInitiated,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	util.PaymentsInitiatedTotal.Inc()
	s.logger.Info("Payment initiated",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("reference", payment.TransactionReference),
		zap.String("amount", payment.Amount.String()))

	if err := s.events.PublishPaymentEvent(ctx, models.EventTypePaymentInitiated, &models.PaymentEvent{
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Reference: payment.TransactionReference,
		Amount:    payment.Amount,
	}); err != nil {
		s.logger.Error("Failed to publish PaymentInitiated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return &InitiatePaymentResponse{
		Reference:        tx.Reference,
		AuthorizationURL: tx.AuthorizationURL,
		Amount:           req.Amount,
	}, nil
}

// settlement is what a first delivery changed, for the after-commit side effects
type settlement struct {
	payment        *models.Payment
	order          *models.Order
	orderPaid      bool
	referralCode   string
	referralAmount decimal.Decimal
}

// Reconcile settles a gateway webhook. Only charge.success is acted on.
// Redelivery of an already settled reference is a no-op.
func (s *PaymentService) Reconcile(ctx context.Context, payload *models.WebhookPayload) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.Reconcile",
		attribute.String("event", payload.Event),
		attribute.String("reference", payload.Data.Reference))
	defer span.End()

	if payload.Event != models.WebhookEventChargeSuccess {
		util.PaymentWebhooksTotal.WithLabelValues("ignored").Inc()
		s.logger.Debug("Ignoring webhook event", zap.String("event", payload.Event))
		return nil
	}

	ref := strings.TrimSpace(payload.Data.Reference)
	if ref == "" {
		util.PaymentWebhooksTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("webhook without reference: %w", models.ErrInvalidArgument)
	}

	if s.verifyWebhooks {
		v, err := s.gateway.VerifyTransaction(ctx, ref)
		if err != nil {
			util.FailSpan(span, err)
			util.PaymentWebhooksTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("verify %s: %w", ref, asUpstream(err))
		}
		if !v.Succeeded() {
			util.PaymentWebhooksTotal.WithLabelValues("unverified").Inc()
			s.logger.Warn("Gateway does not confirm charge, ignoring webhook",
				zap.String("reference", ref),
				zap.String("gateway_status", v.Status))
			return nil
		}
	}

	if err := s.settle(ctx, ref); err != nil {
		util.FailSpan(span, err)
		return err
	}
	return nil
}

// VerifyTransaction asks the gateway for the state of a reference and settles
// it when the gateway reports success.
func (s *PaymentService) VerifyTransaction(ctx context.Context, reference string) (*gateway.Verification, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyTransaction",
		attribute.String("reference", reference))
	defer span.End()

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("reference is required: %w", models.ErrInvalidArgument)
	}

	v, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("verify %s: %w", reference, asUpstream(err))
	}
	if v.Succeeded() {
		if err := s.settle(ctx, reference); err != nil {
			util.FailSpan(span, err)
			return nil, err
		}
	}
	return v, nil
}

func (s *PaymentService) settle(ctx context.Context, ref string) error {
	key := "settled:" + ref
	if s.settled != nil {
		done, err := s.settled.CheckIdempotencyKey(ctx, key)
		if err != nil {
			s.logger.Warn("Settlement cache unavailable", zap.String("reference", ref), zap.Error(err))
		} else if done {
			util.PaymentWebhooksTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	var st *settlement
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		payment, err := tx.GetPaymentByReferenceForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusCompleted {
			return nil
		}

		order, err := tx.GetOrderForUpdate(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if err := tx.MarkPaymentCompleted(ctx, payment.ID); err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		payment.Status = models.PaymentStatusCompleted

		result := &settlement{payment: payment, order: order}
		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusCheckoutReady {
			s.logger.Warn("Payment settled for an order that cannot be paid",
				zap.Int64("order_id", order.ID),
				zap.String("status", order.Status),
				zap.String("reference", ref))
			st = result
			return nil
		}

		if due := order.AmountDue(); payment.Amount.LessThan(due) {
			s.logger.Warn("Payment settled below the amount due, order left unpaid",
				zap.Int64("order_id", order.ID),
				zap.String("paid", payment.Amount.String()),
				zap.String("due", due.String()),
				zap.String("reference", ref))
			st = result
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPaid); err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		order.Status = models.OrderStatusPaid
		result.orderPaid = true

		if order.ReferralCode != nil && *order.ReferralCode != "" {
			amount := s.referrals.Commission(order.TotalPrice)
			credited, err := s.referrals.Credit(ctx, tx, *order.ReferralCode, amount)
			if err != nil {
				return fmt.Errorf("failed to credit referral: %w", err)
			}
			if credited {
				result.referralCode = *order.ReferralCode
				result.referralAmount = amount
			}
		}
		st = result
		return nil
	})
	if err != nil {
		util.PaymentWebhooksTotal.WithLabelValues("error").Inc()
		s.logger.Error("Payment settlement failed",
			zap.String("op", "reconcile"),
			zap.String("reference", ref),
			zap.Error(err))
		return err
	}

	if s.settled != nil {
		if err := s.settled.SetIdempotencyKey(ctx, key, "1", settledKeyTTL); err != nil {
			s.logger.Warn("Failed to cache settlement", zap.String("reference", ref), zap.Error(err))
		}
	}

	if st == nil {
		util.PaymentWebhooksTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Payment already settled", zap.String("reference", ref))
		return nil
	}

	util.PaymentWebhooksTotal.WithLabelValues("settled").Inc()
	s.afterSettlement(ctx, st)
	return nil
}

// afterSettlement runs the best-effort side effects of a committed settlement
func (s *PaymentService) afterSettlement(ctx context.Context, st *settlement) {
	if !st.orderPaid {
		return
	}

	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order paid",
		zap.Int64("order_id", st.order.ID),
		zap.String("reference", st.payment.TransactionReference),
		zap.String("amount", st.payment.Amount.String()))

	if err := s.notifier.NotifyAdminPaymentComplete(ctx, st.order.ID); err != nil {
		s.logger.Error("Failed to notify admin of payment", zap.Int64("order_id", st.order.ID), zap.Error(err))
	}
	if err := s.notifier.NotifyPaymentReceived(ctx, st.payment.PayeeEmail, st.order.ID); err != nil {
		s.logger.Error("Failed to notify customer of payment", zap.Int64("order_id", st.order.ID), zap.Error(err))
	}

	if err := s.events.PublishPaymentEvent(ctx, models.EventTypeOrderPaid, &models.PaymentEvent{
		OrderID:   st.order.ID,
		PaymentID: st.payment.ID,
		Reference: st.payment.TransactionReference,
		Amount:    st.payment.Amount,
	}); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Int64("order_id", st.order.ID), zap.Error(err))
	}

	if st.referralCode != "" {
		s.logger.Info("Referral credited",
			zap.Int64("order_id", st.order.ID),
			zap.String("code", st.referralCode),
			zap.String("amount", st.referralAmount.String()))
		if err := s.events.PublishReferralCredited(ctx, &models.ReferralCreditedEvent{
			OrderID: st.order.ID,
			Code:    st.referralCode,
			Amount:  st.referralAmount,
		}); err != nil {
			s.logger.Error("Failed to publish ReferralCredited event", zap.Int64("order_id", st.order.ID), zap.Error(err))
		}
	}
}
