package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gigabittech/WestRowKitchen-sub000/internal/cart"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/checkout"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/config"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/coupon"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/db"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/dedup"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/delivery"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/events"
	httpapi "github.com/gigabittech/WestRowKitchen-sub000/internal/http"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/http/handlers"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/logging"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/order"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/payment"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/restaurant"
	"github.com/gigabittech/WestRowKitchen-sub000/internal/sequence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("checkout service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- DB ---
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	sqlDB, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cart db connect: %w", err)
	}
	defer sqlDB.Close()

	coupons := coupon.NewPostgresRepository(pool)
	orders := order.NewPostgresRepository(pool)
	restaurants := restaurant.NewPostgresRepository(pool)
	carts := cart.NewRepository(sqlDB)

	probes := []handlers.Probe{
		{Name: "postgres", Check: pool.Ping},
		{Name: "cart-db", Check: sqlDB.PingContext},
	}

	// --- AMQP ---
	var (
		conn      *amqp.Connection
		publisher order.Publisher
	)
	if cfg.PublishEvents {
		conn, err = events.Dial(cfg.RabbitURL)
		if err != nil {
			return fmt.Errorf("rabbitmq connect: %w", err)
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, sequence.NewCounter(pool), logger)
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		defer pub.Close()
		publisher = pub

		probes = append(probes, handlers.Probe{Name: "rabbitmq", Check: func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}

	orderService := order.NewService(orders, coupons, restaurants, publisher, cfg.Pricing, logger)

	var payments checkout.PaymentProvider
	if cfg.StripeEnabled() {
		stripe := payment.NewStripe(cfg.StripeSecretKey, cfg.StripeCurrency)
		orderService.WithPaymentVerifier(stripe)
		payments = stripe
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	}

	if cfg.DoorDashEnabled() {
		if conn == nil {
			logger.Warn("delivery dispatch needs PUBLISH_EVENTS, skipping")
		} else {
			drive, err := delivery.NewClient(cfg.DoorDashBaseURL, delivery.Credentials{
				DeveloperID:   cfg.DoorDashDeveloperID,
				KeyID:         cfg.DoorDashKeyID,
				SigningSecret: cfg.DoorDashSigningSecret,
			}, &http.Client{Timeout: cfg.CallTimeout})
			if err != nil {
				return fmt.Errorf("doordash client: %w", err)
			}
			dispatcher := delivery.NewDispatcher(orders, restaurants, dedup.NewCheckpoints(pool), drive, logger)
			consumer, err := events.StartConsumer(ctx, conn, events.OrderCreatedRoutingKey, delivery.ConsumerName, dispatcher.Handle, logger)
			if err != nil {
				return fmt.Errorf("start delivery consumer: %w", err)
			}
			defer consumer.Close()
		}
	}

	machine := checkout.NewMachine(checkout.Deps{
		Sessions:    checkout.NewPostgresStore(pool),
		Cart:        carts,
		Restaurants: restaurants,
		Coupons:     coupon.NewValidator(coupons, logger),
		Payments:    payments,
		Orders:      orderService,
	}, cfg.Pricing, checkout.Config{
		CallTimeout:    cfg.CallTimeout,
		SupportContact: cfg.SupportContact,
	}, logger)

	// --- HTTP ---
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:           logger,
		JWTSecret:        []byte(cfg.JWTSecret),
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RequestTimeout:   cfg.WriteTimeout,
		Coupons:          coupon.NewValidator(coupons, logger),
		CouponAdmin:      coupons,
		Orders:           orderService,
		OrderStore:       orders,
		Cart:             carts,
		Restaurants:      restaurants,
		Checkout:         machine,
		HealthProbes:     probes,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("http server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("shutdown complete")
	return runErr
}
