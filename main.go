package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ms-ledger/internal/analytics"
	analytics_api "ms-ledger/internal/analytics/api"
	"ms-ledger/internal/auth"
	"ms-ledger/internal/config"
	"ms-ledger/internal/database/migrations"
	"ms-ledger/internal/kafka"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/monitoring"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db"
	orderkafka "ms-ledger/internal/order/kafka"
	"ms-ledger/internal/order/order_api"
	rediswrap "ms-ledger/internal/order/redis"
	"ms-ledger/internal/payment"
	handlers "ms-ledger/internal/payment/handler"
	"ms-ledger/internal/payment/services"
	"ms-ledger/internal/sse"
	"ms-ledger/internal/tickets"
	qr "ms-ledger/internal/tickets/qr_genrator"
	"ms-ledger/internal/tickets/ticket_api"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, client.Options().DB))
	return client
}

// ledgerEvents wires the publisher: Kafka when enabled, and always the live
// SSE fan-out.
func ledgerEvents(cfg config.KafkaConfig, emitter *sse.LedgerEmitter, log *logger.Logger) (*orderkafka.LedgerPublisher, *kafka.Producer) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, ledger events only reach SSE subscribers")
		return orderkafka.NewLedgerPublisher(nil, emitter, cfg.Topics, log), nil
	}

	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	if err := kafka.EnsureTopicsExist(cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}
	return orderkafka.NewLedgerPublisher(producer, emitter, cfg.Topics, log), producer
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Ledger Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer store.Bun.Close()

	if cfg.Migrations.Auto {
		runner := migrations.NewRunner(store.Bun, migrations.MigrateOptions{
			MigrationsDir: cfg.Migrations.Dir,
			AutoMigrate:   true,
			SeedData:      cfg.Migrations.SeedData,
		}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		runner.Close()
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()
	locks := rediswrap.NewRedis(redisClient, log, rediswrap.Options{
		LockTTL:    cfg.Redis.LockTTL,
		LockWait:   cfg.Redis.LockWait,
		SessionTTL: cfg.Redis.SessionTTL,
	})

	emitter := sse.NewLedgerEmitter()
	publisher, producer := ledgerEvents(cfg.Kafka, emitter, log)
	if producer != nil {
		defer producer.Close()
	}

	orders := order.NewOrderService(store, locks, publisher, log, order.Options{
		CodeRetries:        cfg.Ledger.OrderCodeRetries,
		DefaultCartTimeout: cfg.Ledger.DefaultCartTimeout,
	})
	catalog := order.NewCatalogService(store, orders.Now)
	summaries := analytics.NewSummaryService(store, orders)
	processorTimeout := cfg.Ledger.ProcessorTimeout
	if processorTimeout >= locks.LockTTL() {
		processorTimeout = locks.LockTTL() * 2 / 3
		log.Warn("LEDGER", fmt.Sprintf("PROCESSOR_TIMEOUT must stay below LOCK_TTL, using %s", processorTimeout))
	}
	ledger := payment.NewLedgerService(store, orders, locks, publisher, log, payment.Options{ProcessorTimeout: processorTimeout})

	if cfg.Stripe.SecretKey != "" {
		stripeSvc, err := services.NewStripeService(cfg.Stripe.SecretKey, nil, log)
		if err != nil {
			log.Fatal("STRIPE", err.Error())
		}
		ledger.RegisterProcessor(models.MethodStripe, stripeSvc)
		log.Info("STRIPE", "Stripe processor registered")
	} else {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, card payments disabled")
	}
	if cfg.Ledger.FakeProcessor {
		ledger.RegisterProcessor(models.MethodFake, services.NewFakeProcessor())
		log.Warn("LEDGER", "Fake processor enabled")
	}

	if cfg.Kafka.Enabled {
		checks := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CheckReceived, cfg.Kafka.GroupID, log)
		defer checks.Close()
		go checks.Start(ctx, ledger.HandleCheckReceived)
	}

	go orders.RunCartSweeper(ctx, cfg.Ledger.SweepInterval)
	go monitoring.NewMonitor(redisClient, 15*time.Second).Run(ctx)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	organizers := auth.NewOrganizerVerifier(cfg.Auth, httpClient, auth.NewRedisTokenCache(redisClient), log)

	passes := tickets.NewPassService(store, qr.NewQRGenerator(cfg.Ledger.QRSecret), log, orders.Now)

	gin.SetMode(gin.ReleaseMode)
	payments := gin.New()
	payments.Use(gin.Recovery())
	handlers.NewLedgerHandler(ledger, organizers, log).Register(payments)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(monitoring.HTTPMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.SessionHeader},
		ExposedHeaders:   []string{auth.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalMiddleware(verifier))
		log.Info("AUTH", "Token middleware applied to ledger routes")

		order_api.NewHandler(orders, catalog, summaries, organizers, log, cfg.Redis.SessionTTL).RegisterRoutes(r)
		order_api.NewSSEHandler(log, emitter, store, organizers).RegisterRoutes(r)
		analytics_api.NewHandler(analytics.NewService(store), organizers, log).RegisterRoutes(r)
		ticket_api.NewHandler(passes, orders, organizers, log).RegisterRoutes(r)
		r.Mount("/api/payment", payments)
		log.Info("ROUTER", "Ledger routes registered under /api/ledger and /api/payment")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Ledger Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Ledger Service shutdown complete")
	}
}
