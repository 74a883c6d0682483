package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/transkenya/api"
	"github.com/Domenick1991/transkenya/config"
	"github.com/Domenick1991/transkenya/internal/bootstrap"
	"github.com/Domenick1991/transkenya/internal/cache"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/logging"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/Domenick1991/transkenya/internal/service/booking"
	"github.com/Domenick1991/transkenya/internal/service/payment"
	"github.com/Domenick1991/transkenya/internal/service/routes"
	"github.com/Domenick1991/transkenya/internal/service/seats"
	"github.com/Domenick1991/transkenya/internal/telemetry"
	"github.com/gin-gonic/gin"
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
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "transkenya-api")
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

	checks := map[string]api.HealthCheck{"store": store.Ping}

	catalog := routes.NewCatalog(cfg.Routes)
	client := mpesa.NewClient(cfg.Mpesa)

	paymentOpts := []payment.PaymentServiceOption{
		payment.WithLogger(logger),
		payment.WithStoreTimeout(cfg.Booking.StoreTimeout()),
	}
	bookingOpts := []booking.BookingServiceOption{
		booking.WithLogger(logger),
		booking.WithStoreTimeout(cfg.Booking.StoreTimeout()),
	}

	var tokens *mpesa.TokenSource
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis)
		defer redisCache.Close()
		checks["redis"] = redisCache.Ping
		tokens = mpesa.NewTokenSource(client, redisCache, cfg.Mpesa.ConsumerKey)
		paymentOpts = append(paymentOpts, payment.WithSeatHolds(redisCache, cfg.Booking.SeatHold()))
		bookingOpts = append(bookingOpts, booking.WithCache(redisCache))
	} else {
		logger.Warn("no redis configured, gateway tokens are not cached and seat holds are off")
		tokens = mpesa.NewTokenSource(client, nil, cfg.Mpesa.ConsumerKey)
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.PaymentEventsTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		checks["kafka"] = producer.CheckConnection
		paymentOpts = append(paymentOpts, payment.WithEvents(producer, cfg.Kafka.PaymentEventsTopic))
		bookingOpts = append(bookingOpts, booking.WithEvents(producer, cfg.Kafka.PaymentEventsTopic))
	}

	paymentService := payment.NewPaymentService(store.Bookings, store.Payments, catalog, tokens, client, paymentOpts...)
	bookingService := booking.NewBookingService(store.Bookings, catalog.Len(), bookingOpts...)
	seatService := seats.NewSeatService(store.Bookings, catalog, cfg.Booking.StoreTimeout())

	router := api.NewRouter(
		api.RouterConfig{
			JWTSecret:  cfg.Auth.JWTSecret,
			SwaggerDir: cfg.HTTP.SwaggerDir,
			Checks:     checks,
			Logger:     logger,
		},
		api.NewRouteHandler(catalog, seatService, logger),
		api.NewPaymentHandler(paymentService, logger),
		api.NewBookingHandler(bookingService, logger),
	)

	if err := bootstrap.Run(ctx, bootstrap.NewServer(cfg.HTTP.Address, router), logger); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
