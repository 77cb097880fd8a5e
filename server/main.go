package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tixly/api/routes"
	"tixly/internal/checkout"
	"tixly/internal/finalizer"
	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/internal/shared/database"
	"tixly/pkg/logger"
	"tixly/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	// Load config
	cfg := config.Load()

	// Set Gin mode (debug/release)
	gin.SetMode(cfg.GinMode)

	// Initialize DB
	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Run schema migrations and partial-index constraints
	if err := database.Migrate(db.GetPostgreSQL()); err != nil {
		appLogger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := database.MigrateConstraints(db.GetPostgreSQL()); err != nil {
		appLogger.Error("constraint migration failed", slog.Any("error", err))
	}

	// Initialize Redis Lua scripts for atomic hold operations
	store := inventory.NewAtomicHoldStore(db.GetRedisClient())
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.PreloadScripts(ctx); err != nil {
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
			// Scripts load lazily on first use, keep going
		} else {
			appLogger.Info("Redis Lua scripts preloaded for atomic hold operations")
		}
		cancel()
	}

	holdService := inventory.NewService(store, cfg.Hold, appLogger)

	// Initialize Rate Limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiterConfig := &ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			WindowDuration:   cfg.RateLimit.WindowDuration,
			DefaultRequests:  cfg.RateLimit.DefaultRequests,
			PublicRequests:   cfg.RateLimit.PublicRequests,
			HoldRequests:     cfg.RateLimit.HoldRequests,
			CheckoutRequests: cfg.RateLimit.CheckoutRequests,
			QueueRequests:    cfg.RateLimit.QueueRequests,
			HealthRequests:   cfg.RateLimit.HealthRequests,
			WhitelistedIPs:   cfg.RateLimit.WhitelistedIPs,
		}

		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), rateLimiterConfig)
		appLogger.Info("Rate limiter initialized",
			slog.Bool("enabled", cfg.RateLimit.Enabled),
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Finalization transport: Kafka in deployments, an in-process bus for
	// single-node setups. The in-process bus also runs the order processor
	// inside this binary; with Kafka the cmd/finalizer worker consumes.
	finalizerCtx, finalizerCancel := context.WithCancel(context.Background())
	defer finalizerCancel()

	var publisher checkout.FinalizationPublisher
	if cfg.Kafka.InMemoryBus {
		bus := finalizer.NewInMemoryBus(cfg.Kafka.InMemoryBusSize, cfg.Kafka.MaxRetries, appLogger)
		processor := finalizer.NewProcessor(db.GetPostgreSQL(), holdService, appLogger)
		bus.Start(finalizerCtx, processor)
		defer bus.Close()
		publisher = bus
		appLogger.Info("In-process finalization bus started",
			slog.Int("buffer", cfg.Kafka.InMemoryBusSize),
			slog.Int("max_retries", cfg.Kafka.MaxRetries),
		)
	} else {
		transport, err := finalizer.NewKafkaTransport(cfg.Kafka, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize Kafka producer", slog.Any("error", err))
			os.Exit(1)
		}
		defer transport.Close()
		publisher = transport
		appLogger.Info("Kafka finalization producer initialized",
			slog.Any("brokers", cfg.Kafka.Brokers),
			slog.String("topic", cfg.Kafka.FinalizeTopic),
		)
	}

	// Background sweeper returns expired holds to available inventory.
	// Disabled when the standalone cmd/sweeper worker owns the scan.
	if cfg.Sweeper.Enabled {
		sweeper := inventory.NewSweeper(store, holdService, &inventory.SweeperConfig{
			Interval:  cfg.Sweeper.Interval,
			BatchSize: cfg.Sweeper.BatchSize,
		}, appLogger)
		sweeper.Start(finalizerCtx)
		defer sweeper.Stop()
	}

	// Setup router with rate limiter
	router := setupRouter(cfg, db, holdService, publisher, rateLimiter)

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_status", fmt.Sprintf("http://localhost:%s%s/status", cfg.Port, cfg.GetAPIBasePath())),
			slog.String("version", cfg.APIVersion),
			slog.Bool("in_memory_bus", cfg.Kafka.InMemoryBus),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, holds inventory.Service, publisher checkout.FinalizationPublisher, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Idempotency-Key", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Global rate limiting middleware (applied to all routes)
	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
		appLogger.Info("Rate limiting middleware applied to all routes")
	}

	// Initialize and setup routes
	appRouter := routes.NewRouter(cfg, db, holds, publisher, appLogger)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
