package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/config"
	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/database"
	"decryptrecovery/internal/events"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/placeholder"
	"decryptrecovery/internal/retry"
	"decryptrecovery/internal/service"
	"decryptrecovery/internal/tracing"
	"decryptrecovery/pkg/circuitbreaker"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("decryptrecovery %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting decryptrecovery")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = Version
	}
	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	clk := clock.Real{}
	hub := events.NewHub(logger)
	threads := service.NewThreadDirectory(db)

	manager, err := placeholder.NewManager(db, threads, cfg.Recovery.Window(), logger,
		placeholder.WithClock(clk),
		placeholder.WithNotifier(hub),
		placeholder.WithSweepBatchSize(cfg.Recovery.SweepBatchSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create placeholder manager: %w", err)
	}
	logger.WithField("window", manager.Window().String()).Info("Placeholder recovery window configured")

	pipeline := service.NewDecryptionPipeline(manager, threads, db, hub, clk, logger)
	timeline := service.NewTimelineService(db, clk, logger)

	sweepBreaker := circuitbreaker.New("placeholder-sweep",
		constants.DefaultSweepBreakerFailures,
		time.Duration(constants.DefaultSweepBreakerCooldownSec)*time.Second,
		circuitbreaker.WithClock(clk),
		circuitbreaker.WithLogger(logger),
	)
	sweeper := service.NewSweeper(manager, db, cfg.Recovery, clk, logger).
		WithRetry(cfg.Retry).
		WithCircuitBreaker(sweepBreaker)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(updated *models.Config) {
		applyLogLevel(logger, updated.LogLevel, *verbose)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	server := NewServer(cfg, Services{
		Pipeline:     pipeline,
		Placeholders: manager,
		Timeline:     timeline,
		Sweeper:      sweeper,
		Health:       db,
		Events:       hub,
		Clock:        clk,
	}, logger, *verbose)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase opens the timeline store, retrying with the configured
// backoff while the file is locked or the volume is not yet mounted.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.FromRetryConfig(cfg.Retry))

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// applyLogLevel sets the level from config. Debug output may contain
// sensitive data and is only enabled through -verbose.
func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
