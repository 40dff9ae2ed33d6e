package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"artwork-orders/internal/models"
	"artwork-orders/internal/service"
	"artwork-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const signatureHeader = "x-paystack-signature"

// WebhookQueue hands webhooks to the background worker
type WebhookQueue interface {
	Enqueue(ctx context.Context, payload *models.WebhookPayload) error
}

// SignatureVerifier authenticates raw webhook bodies
type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	checkout  *service.CheckoutCoordinator
	payments  *service.PaymentService
	shipments *service.ShipmentService

	queue    WebhookQueue
	verifier SignatureVerifier
	checks   []readinessCheck
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	checkout *service.CheckoutCoordinator,
	payments *service.PaymentService,
	shipments *service.ShipmentService,
) *Handler {
	return &Handler{
		orders:    orders,
		checkout:  checkout,
		payments:  payments,
		shipments: shipments,
		logger:    util.GetLogger(),
	}
}

// WithWebhookQueue makes the webhook endpoint enqueue instead of settling inline
func (h *Handler) WithWebhookQueue(q WebhookQueue) *Handler {
	h.queue = q
	return h
}

// WithSignatureVerifier rejects webhooks whose signature does not match
func (h *Handler) WithSignatureVerifier(v SignatureVerifier) *Handler {
	h.verifier = v
	return h
}

// WithReadinessCheck adds a dependency probed by /ready
func (h *Handler) WithReadinessCheck(name string, check func(ctx context.Context) error) *Handler {
	h.checks = append(h.checks, readinessCheck{name: name, check: check})
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/payments/webhook", h.paymentWebhook)

	authed := v1.Group("", actorMiddleware())
	{
		authed.POST("/orders", h.openOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/orders/:id/items", h.addItem)
		authed.DELETE("/order-items/:itemId", h.removeItem)
		authed.PATCH("/orders/:id/cancel", h.cancelOrder)
		authed.PATCH("/orders/:id/checkout", h.checkoutOrder)
		authed.POST("/orders/:id/ship", h.shipOrder)

		authed.POST("/payments", h.initiatePayment)
		authed.GET("/payments/verify/:reference", h.verifyPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, rc := range h.checks {
		if err := rc.check(ctx); err != nil {
			failed[rc.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// openOrder returns the caller's open order, creating it if needed
func (h *Handler) openOrder(c *gin.Context) {
	order, err := h.orders.GetOrCreateOpenOrder(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) addItem(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}

	order, item, err := h.orders.AddItem(c.Request.Context(), actorFrom(c), orderID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order": order,
		"item":  item,
	})
}

func (h *Handler) removeItem(c *gin.Context) {
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return
	}

	order, err := h.orders.RemoveItem(c.Request.Context(), actorFrom(c), itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) checkoutOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.checkout.Checkout(c.Request.Context(), actorFrom(c), orderID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) shipOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.ShipOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	shipment, err := h.shipments.ShipOrder(c.Request.Context(), actorFrom(c), orderID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.payments.Initiate(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	v, err := h.payments.VerifyTransaction(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// paymentWebhook accepts gateway callbacks. With a queue configured the body
// is acknowledged as soon as it is enqueued.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if h.verifier != nil && !h.verifier.VerifySignature(body, c.GetHeader(signatureHeader)) {
		util.PaymentWebhooksTotal.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("Rejected webhook with bad signature", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if h.queue != nil {
		if err := h.queue.Enqueue(c.Request.Context(), &payload); err != nil {
			h.logger.Error("Failed to enqueue webhook",
				zap.String("reference", payload.Data.Reference),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook not accepted"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
		return
	}

	if err := h.payments.Reconcile(c.Request.Context(), &payload); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + param,
		})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger logs one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("profile_id", c.GetHeader(headerProfileID)))
	}
}
