package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artwork-orders/config"
	"artwork-orders/internal/api"
	"artwork-orders/internal/broker"
	"artwork-orders/internal/gateway"
	"artwork-orders/internal/redisclient"
	"artwork-orders/internal/service"
	"artwork-orders/internal/shipping"
	"artwork-orders/internal/store"
	"artwork-orders/internal/store/memory"
	"artwork-orders/internal/util"
	"artwork-orders/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is the persistence layer selected by STORE_DRIVER
type backend interface {
	store.Transactor
	Ping(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "postgres":
		db, err := store.NewStore(cfg.URL)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting artwork order service")

	tp, err := util.InitTracer("artwork-orders", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	logger.Info("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer)
	notifier := broker.NewNotifier(notificationProducer)

	paystack := gateway.NewPaystackClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	topship := shipping.NewTopshipClient(cfg.Shipping.BaseURL, cfg.Shipping.APIKey, cfg.Shipping.Timeout, cfg.Shipping.QuoteTTL)

	orderService := service.NewOrderService(db, service.NewInventoryLedger(), redisClient, eventPublisher, cfg.Business.OpenOrderLockTTL)
	checkoutCoordinator := service.NewCheckoutCoordinator(db, topship, eventPublisher)
	paymentService := service.NewPaymentService(db, paystack, service.NewReferralLedger(cfg.Business.ReferralPercentage),
		notifier, eventPublisher, service.PaymentOptions{
			Currency:       cfg.Business.Currency,
			VerifyWebhooks: cfg.Business.VerifyWebhooks,
			Settled:        redisClient,
		})
	shipmentService := service.NewShipmentService(db, topship, notifier, eventPublisher)

	handler := api.NewHandler(orderService, checkoutCoordinator, paymentService, shipmentService).
		WithSignatureVerifier(paystack).
		WithReadinessCheck("store", db.Ping).
		WithReadinessCheck("redis", redisClient.Ping)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var webhookWorker *worker.WebhookWorker
	if cfg.Business.WebhookAsync {
		webhookProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentWebhook)
		defer webhookProducer.Close()
		handler.WithWebhookQueue(broker.NewWebhookQueue(webhookProducer))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentWebhook, cfg.Kafka.ConsumerGroup)
		webhookWorker = worker.NewWebhookWorker(consumer, paymentService)
		go func() {
			if err := webhookWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Webhook worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if webhookWorker != nil {
		if err := webhookWorker.Stop(); err != nil {
			logger.Error("Error stopping webhook worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
