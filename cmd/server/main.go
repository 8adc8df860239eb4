package main // Entry point of the booking API server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/database"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/router"
	"github.com/iliyamo/showtime-booking/internal/service"
	"github.com/iliyamo/showtime-booking/internal/worker"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		ServiceName: "showtime-booking",
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]handler.Pinger{}

	// Storage and catalog
	var store repository.Store
	var catalog repository.Catalog
	switch cfg.StoreDriver {
	case "mysql":
		db := openDatabase(ctx, cfg, appLog)
		defer db.Close()
		store = repository.NewMySQLStore(db)
		catalog = repository.NewShowRepo(db)
		ready["mysql"] = db
	default:
		appLog.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
		catalog = repository.NewStaticCatalog(cfg.Booking.DefaultPriceCents)
	}

	gateway := newGateway(cfg, appLog)

	opts := []service.Option{service.WithLogger(appLog)}
	if cfg.Messaging.NotifierEnabled {
		pub := queue.NewPublisher(cfg.Messaging.URL, appLog)
		defer pub.Close()
		opts = append(opts, service.WithNotifier(pub))
	}
	engine := service.NewEngine(store, catalog, gateway, service.Config{
		HoldTTL:      cfg.Booking.HoldTTL,
		LockTimeout:  cfg.Booking.LockTimeout,
		CancelCutoff: cfg.Booking.CancelCutoff,
		Currency:     cfg.Booking.Currency,
		SuccessURL:   cfg.Payment.SuccessURL,
		CancelURL:    cfg.Payment.CancelURL,
	}, opts...)

	// Redis backs the rate limiter and the layout cache; both degrade to
	// pass-through when it is unreachable.
	rdb := config.NewRedisClient(appLog)
	if rdb != nil {
		defer rdb.Close()
		ready["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()

	// Background workers
	if cfg.Sweeper.Enabled {
		sweeper := worker.NewHoldSweeper(engine, &worker.HoldSweeperConfig{
			Interval:    cfg.Sweeper.Interval,
			Concurrency: cfg.Sweeper.Concurrency,
		}, appLog)
		if err := sweeper.Start(ctx); err != nil {
			appLog.Fatal("failed to start hold sweeper", zap.Error(err))
		}
		defer sweeper.Stop()
	}
	if cfg.Messaging.TicketConsumerEnabled {
		go func() {
			if err := queue.StartTicketConsumer(ctx, cfg.Messaging.URL, appLog); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("ticket consumer stopped", zap.Error(err))
			}
		}()
	}

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(appLog))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, ready)
	router.RegisterPublic(e,
		handler.NewShowtimeHandler(engine, appLog),
		middleware.NewTokenBucket(rateCfg, rdb, appLog),
		middleware.NewRedisCache(cacheCfg, rdb, appLog),
	)
	router.RegisterCustomer(e, handler.NewBookingHandler(engine, appLog), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(engine, layoutPurger(rdb, cacheCfg.Prefix), appLog), cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewPaymentHandler(engine, cfg.Payment.StripeWebhookSecret, appLog), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		appLog.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("payments", gateway.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLog.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openDatabase(ctx context.Context, cfg config.Config, appLog *zap.Logger) *sql.DB {
	db, err := database.Open(database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		LockWaitTimeout: cfg.Booking.LockTimeout,
	})
	if err != nil {
		appLog.Fatal("failed to connect to mysql", zap.Error(err))
	}
	if err := database.Migrate(ctx, db); err != nil {
		appLog.Fatal("failed to migrate schema", zap.Error(err))
	}
	return db
}

func newGateway(cfg config.Config, appLog *zap.Logger) payment.Gateway {
	if cfg.Payment.Provider != "stripe" {
		appLog.Warn("using mock payment gateway")
		return payment.NewMockGateway(nil)
	}
	gw, err := payment.NewStripeGateway(&payment.StripeGatewayConfig{
		SecretKey:       cfg.Payment.StripeSecretKey,
		WebhookSecret:   cfg.Payment.StripeWebhookSecret,
		SessionLifetime: cfg.Booking.HoldTTL,
	})
	if err != nil {
		appLog.Fatal("failed to configure stripe", zap.Error(err))
	}
	if cfg.Payment.StripeWebhookSecret == "" {
		appLog.Warn("STRIPE_WEBHOOK_SECRET is empty; the stripe webhook endpoint is disabled")
	}
	return gw
}

func layoutPurger(rdb *redis.Client, prefix string) handler.LayoutPurger {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context, showtimeID string) error {
		return middleware.PurgeCache(ctx, rdb, prefix, "/v1/showtimes/"+showtimeID+"/layout")
	}
}
