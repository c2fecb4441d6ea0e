package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportbridge/internal/config"
	"supportbridge/internal/constants"
	"supportbridge/internal/database"
	"supportbridge/internal/retry"
	"supportbridge/internal/service"
	"supportbridge/internal/tracing"
	"supportbridge/pkg/transport"
	transporttypes "supportbridge/pkg/transport/types"

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
		fmt.Printf("SupportBridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Optional; deployments without a .env file just use the environment.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting SupportBridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	// A crash mid-import leaves running jobs behind; fail them so new
	// imports are not blocked.
	if failed, err := db.FailStaleSyncJobs(ctx, "interrupted by restart"); err != nil {
		logger.Warnf("Failed to clean up stale sync jobs: %v", err)
	} else if failed > 0 {
		logger.WithField("count", failed).Warn("Marked stale sync jobs as failed")
	}

	apiKey := cfg.Transport.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("TRANSPORT_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("TRANSPORT_API_KEY environment variable is required")
	}

	transportClient := transport.NewClient(transporttypes.ClientConfig{
		BaseURL:     cfg.Transport.APIBaseURL,
		APIKey:      apiKey,
		SessionName: cfg.Transport.SessionName,
		Timeout:     cfg.Transport.Timeout,
	})

	registry := service.NewPlatformRegistry()
	contactCache := service.NewContactCache(transportClient, constants.DefaultContactCacheHours, logger)
	resolver := service.NewResolver(db, registry, logger)
	syncer := service.NewMessageSyncer(db, resolver, registry, contactCache, logger)

	importSvc := service.NewImportService(db, transportClient, syncer, registry,
		cfg.Import.BatchSize, cfg.Import.RatePerSec, logger)

	dispatcher := service.NewDispatcher(db, service.DispatcherOptions{
		WorkersPerSubscription: cfg.Dispatch.WorkersPerSubscription,
		QueueSize:              cfg.Dispatch.QueueSize,
		DeliveryTimeoutSec:     cfg.Dispatch.DeliveryTimeoutSec,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Jitter:       true,
		},
	}, logger)
	defer dispatcher.Stop()

	ingest := service.NewIngestService(db, syncer, resolver, dispatcher, registry, contactCache, transportClient, logger)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)

	adminToken := os.Getenv("SUPPORTBRIDGE_ADMIN_TOKEN")
	if adminToken == "" {
		logger.Warn("SUPPORTBRIDGE_ADMIN_TOKEN is not set, admin API is unauthenticated")
	}

	server := NewServer(cfg, db, ingest, importSvc, resolver, registry, transportClient, adminToken, logger)
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
