/**
 * @description
 * This file is the main entry point for the reseller-service. It wires the
 * whole application together: configuration, structured logging, the
 * PostgreSQL pool and schema migrations, the optional RabbitMQ producer and
 * Redis rate limiter, the lifecycle notifier, the HTTP API and the cron
 * expiry sweep. Shutdown is graceful: in-flight requests get a drain window
 * and running sweep jobs finish before the process exits.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - github.com/prometheus/client_golang/prometheus: Metrics registry.
 * - github.com/redis/go-redis/v9: Rate limiter backend.
 */
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/painelpro/reseller-service/internal/api"
	"github.com/painelpro/reseller-service/internal/app"
	"github.com/painelpro/reseller-service/internal/config"
	"github.com/painelpro/reseller-service/internal/metrics"
	"github.com/painelpro/reseller-service/internal/store"
	"github.com/painelpro/reseller-service/pkg/rabbitmq"
	"github.com/painelpro/reseller-service/pkg/webhookclient"
)

func main() {
	// Load .env file for local development. In production, env vars are set
	// directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool compatible with transaction poolers
	// like PgBouncer.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := dbpool.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Error("database is unreachable", "error", err)
		os.Exit(1)
	}
	pingCancel()
	logger.Info("database connection established")

	if err := store.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// RabbitMQ is optional: without it the service still runs, only the
	// broker fan-out is skipped.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, account events will not be published", "error", err)
			producer = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			producer = eventProducer
		}
	} else {
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	defer producer.Close()

	// Redis is optional: without it rate limiting is disabled.
	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, rate limiting disabled", "error", err)
		} else {
			client := redis.NewClient(opts)
			redisPingCtx, redisPingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.Ping(redisPingCtx).Err(); err != nil {
				logger.Warn("redis unreachable, rate limiting disabled", "error", err)
			} else {
				redisClient = client
			}
			redisPingCancel()
		}
	}
	limiter := app.NewRedisRateLimiter(redisClient)

	repo := store.NewPostgresRepository(dbpool)
	resolver := app.NewRoleResolver(repo)

	webhookTimeout := time.Duration(cfg.WebhookTimeoutSeconds) * time.Second
	notifier := app.NewNotifier(repo, webhookclient.NewClient(webhookTimeout), logger, collector, webhookTimeout)

	service := app.NewService(repo, resolver, notifier, producer, collector, logger)

	scheduler := app.NewScheduler(service, logger, cfg.ExpirySweepSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start expiry sweep scheduler", "error", err)
		os.Exit(1)
	}

	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	handlers := api.NewHandlers(service, limiter, logger, cfg.CreateRateLimitPerMinute, cfg.TransferRateLimitPerMinute)
	router := api.NewRouter(handlers, cfg.JWTSecret, allowedOrigins, collector, registry)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.Info("starting reseller-service", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	// Wait for any running sweep to finish.
	<-scheduler.Stop().Done()
	logger.Info("server exited")
}
