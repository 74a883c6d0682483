package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/transkenya/config"
	"github.com/Domenick1991/transkenya/internal/bootstrap"
	"github.com/Domenick1991/transkenya/internal/cache"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/logging"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/Domenick1991/transkenya/internal/notify"
	"github.com/Domenick1991/transkenya/internal/service/payment"
	"github.com/Domenick1991/transkenya/internal/service/routes"
	"github.com/Domenick1991/transkenya/internal/telemetry"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "transkenya-worker")
	if err != nil {
		logger.Error("telemetry setup failed", slog.Any("error", err))
	} else {
		defer func() {
			if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	client := mpesa.NewClient(cfg.Mpesa)
	opts := []payment.PaymentServiceOption{
		payment.WithLogger(logger),
		payment.WithStoreTimeout(cfg.Booking.StoreTimeout()),
	}

	var tokenCache mpesa.TokenCache
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis)
		defer redisCache.Close()
		tokenCache = redisCache
		opts = append(opts, payment.WithSeatHolds(redisCache, cfg.Booking.SeatHold()))
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.PaymentEventsTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		opts = append(opts, payment.WithEvents(producer, cfg.Kafka.PaymentEventsTopic))

		consumer := kafka.NewEventConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentEventsTopic, logger)
		defer consumer.Close()

		sender := notify.NewSender(logger)
		go func() {
			if err := consumer.Run(ctx, sender.Send); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", slog.Any("error", err))
			}
		}()
	} else {
		logger.Warn("no kafka configured, notifications are disabled")
	}

	paymentService := payment.NewPaymentService(
		store.Bookings,
		store.Payments,
		routes.NewCatalog(cfg.Routes),
		mpesa.NewTokenSource(client, tokenCache, cfg.Mpesa.ConsumerKey),
		client,
		opts...,
	)

	reconcileAfter := time.Duration(cfg.Worker.ReconcileAfterMinutes) * time.Minute
	ticker := time.NewTicker(time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute)
	defer ticker.Stop()

	logger.Info("worker started",
		slog.Int("sweep_minutes", cfg.Worker.ReconcileSweepMinutes),
		slog.Int("reconcile_after_minutes", cfg.Worker.ReconcileAfterMinutes))

	for {
		select {
		case <-ticker.C:
			if _, err := paymentService.Reconcile(ctx, reconcileAfter); err != nil {
				logger.Error("reconcile payments", slog.Any("error", err))
			}
		case <-ctx.Done():
			logger.Info("shutting down worker")
			return
		}
	}
}
