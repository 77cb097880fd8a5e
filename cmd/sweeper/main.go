package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/internal/shared/database"
	"tixly/pkg/logger"

	"github.com/joho/godotenv"
)

// Standalone expiration sweeper. Returns expired holds to available inventory
// on a ticker. The API server runs the same loop inline; deployments that
// scale the API horizontally run this single worker instead so only one
// sweeper scans the expiration index.
func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		appLogger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := inventory.NewAtomicHoldStore(db.GetRedisClient())
	{
		ctx, cancel := context.WithCancel(context.Background())
		if err := store.PreloadScripts(ctx); err != nil {
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
		}
		cancel()
	}

	holdService := inventory.NewService(store, cfg.Hold, appLogger)

	sweeper := inventory.NewSweeper(store, holdService, &inventory.SweeperConfig{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
	}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	appLogger.Info("Expiration sweeper running",
		slog.Duration("interval", cfg.Sweeper.Interval),
		slog.Int("batch_size", cfg.Sweeper.BatchSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down sweeper...")

	cancel()
	sweeper.Stop()

	appLogger.Info("Sweeper exited gracefully")
}
