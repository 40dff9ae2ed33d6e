package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of open orders created",
	})

	OrderItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_items_added_total",
		Help: "Total number of line items added to orders",
	})

	OrderItemsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_items_removed_total",
		Help: "Total number of line items removed from orders",
	})

	OrdersCheckedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_checked_out_total",
		Help: "Total number of orders that reached CHECKOUT_READY",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders successfully paid",
	})

	OrdersShippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_shipped_total",
		Help: "Total number of orders shipped",
	})

	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_canceled_total",
		Help: "Total number of canceled orders",
	})

	OrderOperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_operations_failed_total",
		Help: "Total number of failed order operations",
	}, []string{"operation", "reason"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	PaymentsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payments initiated with the gateway",
	})

	PaymentWebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Gateway webhooks by outcome",
	}, []string{"outcome"})

	ReferralCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_credits_total",
		Help: "Referral credit attempts by outcome",
	}, []string{"outcome"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Latency of outbound calls to external collaborators",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream", "operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
