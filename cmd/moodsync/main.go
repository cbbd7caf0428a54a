package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"moodledger/internal/appinfo"
	"moodledger/internal/config"
	"moodledger/internal/events"
	"moodledger/internal/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := initLogger(nil)
	if err != nil {
		panic(err)
	}
	info := appinfo.Read("moodsync")
	logger.Info("Starting moodsync agent",
		zap.String("version", info.Version),
		zap.String("revision", info.Revision),
		zap.String("environment", info.Environment),
		zap.String("go_version", info.GoVersion),
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild with the configured level and format
	if configured, err := initLogger(&cfg.Logging); err != nil {
		logger.Warn("Invalid logging configuration, keeping defaults", zap.Error(err))
	} else {
		_ = logger.Sync()
		logger = configured
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.App.Environment),
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Bool("mirror_enabled", cfg.Mirror.Enabled),
	)

	collection, err := services.NewServiceCollection(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Produced records go to the log; a UI would subscribe here instead
	if err := collection.EventBus.SubscribePattern("*", events.EventHandlerFunc{
		ID:   "event-logger",
		Func: logEvent(logger),
	}); err != nil {
		logger.Fatal("Failed to subscribe event logger", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := collection.Start(ctx); err != nil {
		logger.Fatal("Failed to start services", zap.Error(err))
	}

	health := collection.HealthCheck(ctx)
	logger.Info("Agent started",
		zap.String("health", health.Status),
		zap.Strings("issues", health.Issues),
	)

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("Shutting down agent...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	status := collection.Tracker.SyncStatus(shutdownCtx)
	if collection.DBManager != nil {
		metrics := collection.DBManager.Metrics()
		logger.Info("Final mirror metrics",
			zap.Int64("total_queries", metrics.QueryCount),
			zap.Int64("total_errors", metrics.ErrorCount),
			zap.Int64("slow_queries", metrics.SlowQueryCount),
		)
	}

	if err := collection.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
	}

	logger.Info("Agent shutdown completed",
		zap.Int("pending_actions", status.Pending),
		zap.Int("dropped_actions", len(status.DeadLetters)),
	)
}

func logEvent(logger *zap.Logger) func(ctx context.Context, event events.Event) error {
	return func(ctx context.Context, event events.Event) error {
		fields := []zap.Field{
			zap.String("event_id", event.GetEventID()),
			zap.String("event_type", event.GetEventType()),
			zap.Time("timestamp", event.GetTimestamp()),
		}
		switch e := event.(type) {
		case *events.BadgeEvent:
			fields = append(fields,
				zap.String("badge", e.Change.Badge.ID),
				zap.Int("progress", e.Change.Progress))
		case *events.PointsAwardedEvent:
			fields = append(fields,
				zap.Int("points", e.Points),
				zap.Int("total_points", e.TotalPoints))
		case *events.LevelChangedEvent:
			fields = append(fields, zap.String("from", e.From), zap.String("to", e.To))
		case *events.SyncFailedEvent:
			logger.Warn("Action dropped after exhausting retries", fields...)
			return nil
		}
		logger.Info("Event", fields...)
		return nil
	}
}

// initLogger initializes the structured logger based on environment.
// A non-nil logging config overrides the environment's level and encoding.
func initLogger(logging *config.LoggingConfig) (*zap.Logger, error) {
	env := os.Getenv("GO_ENV")
	var config zap.Config

	switch env {
	case "production":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "staging":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	if logging != nil {
		if logging.Level != "" {
			level, err := zap.ParseAtomicLevel(logging.Level)
			if err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", logging.Level, err)
			}
			config.Level = level
		}
		if logging.Format != "" {
			config.Encoding = logging.Format
		}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
