package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tixly/internal/finalizer"
	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/internal/shared/database"
	"tixly/pkg/logger"

	"github.com/joho/godotenv"
)

// Standalone finalization worker. Consumes committed checkouts from Kafka,
// confirms orders, mints tickets and settles the Redis hold ledger. The API
// server runs this inline instead when KAFKA_IN_MEMORY_BUS is set.
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
	holdService := inventory.NewService(store, cfg.Hold, appLogger)
	processor := finalizer.NewProcessor(db.GetPostgreSQL(), holdService, appLogger)

	// The transport doubles as the requeue and dead-letter producer
	transport, err := finalizer.NewKafkaTransport(cfg.Kafka, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize Kafka producer", slog.Any("error", err))
		os.Exit(1)
	}
	defer transport.Close()

	consumer, err := finalizer.NewConsumer(cfg.Kafka, transport, processor, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize Kafka consumer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)

	appLogger.Info("Finalization worker running",
		slog.Any("brokers", cfg.Kafka.Brokers),
		slog.String("topic", cfg.Kafka.FinalizeTopic),
		slog.String("group", cfg.Kafka.ConsumerGroup),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down finalization worker...")

	cancel()
	if err := consumer.Stop(); err != nil {
		appLogger.Error("Error stopping consumer", slog.Any("error", err))
	}

	appLogger.Info("Finalization worker exited gracefully")
}
