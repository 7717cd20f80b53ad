package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/challenges"
	"github.com/agent-arena/agent-arena/internal/config"
	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/metrics"
	"github.com/agent-arena/agent-arena/internal/models"
	"github.com/agent-arena/agent-arena/internal/router"
	"github.com/agent-arena/agent-arena/internal/sandbox"
	"github.com/agent-arena/agent-arena/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Arena failed to start")
	}
}

func run() error {
	// .env is optional; deployments usually set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Debug("Could not load .env file")
	}

	cfg := config.Load()
	logger := newLogger(cfg.Log)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx := context.Background()

	store, err := database.Open(ctx, cfg.Storage.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	executor := sandbox.NewExecutor(cfg.Sandbox, logger)

	registry := challenges.NewRegistry()
	registry.Register(challenges.NewCompressionChallenge(
		filepath.Join(cfg.Storage.ChallengeDir(challenges.CompressionChallengeID), "input.bin"),
		executor,
		logger,
	))

	if err := seedChallenges(ctx, store, registry, logger); err != nil {
		return fmt.Errorf("seed challenges: %w", err)
	}

	collector := metrics.NewCollector()

	sched := scheduler.New(store, registry, collector, *cfg, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	engine := router.SetupRouter(router.Dependencies{
		Store:     store,
		Scheduler: sched,
		Registry:  registry,
		Metrics:   collector,
		Logger:    logger,
	})
	server := router.NewServer(engine, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		sched.Stop()
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	sched.Stop()

	logger.Info("Shutdown complete")
	return nil
}

// seedChallenges makes sure every registered challenge has a catalog row,
// loading (or generating) its reference input along the way.
func seedChallenges(ctx context.Context, store *database.Store, registry *challenges.Registry, logger *logrus.Logger) error {
	for _, ch := range registry.List() {
		input, err := ch.InputData()
		if err != nil {
			return fmt.Errorf("load input for %s: %w", ch.ID(), err)
		}
		hash, err := ch.InputHash()
		if err != nil {
			return fmt.Errorf("hash input for %s: %w", ch.ID(), err)
		}

		row := &models.Challenge{
			ID:                 ch.ID(),
			Title:              ch.Title(),
			Description:        ch.Description(),
			ScoringDescription: ch.ScoringDescription(),
			InputHash:          hash,
			InputSizeBytes:     int64(len(input)),
			IsActive:           true,
		}
		if err := store.UpsertChallenge(ctx, row); err != nil {
			return fmt.Errorf("upsert challenge %s: %w", ch.ID(), err)
		}

		logger.WithFields(logrus.Fields{
			"challenge_id": ch.ID(),
			"input_bytes":  len(input),
			"input_hash":   hash[:16],
		}).Info("Challenge ready")
	}
	return nil
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
