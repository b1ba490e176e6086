package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/api"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/ponto/internal/capture"
	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/dedup"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/metrics"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/ponto/internal/roster"
	"github.com/saturnino-fabrica-de-software/ponto/internal/service"
	"github.com/saturnino-fabrica-de-software/ponto/internal/store"
	"github.com/saturnino-fabrica-de-software/ponto/internal/syncer"
	"github.com/saturnino-fabrica-de-software/ponto/internal/threshold"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(os.Stdout, cfg.Environment, "terminal")
	slog.SetDefault(logger)

	tier := cfg.Tier()
	logger.Info("starting Ponto terminal",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("tier", string(tier)),
		slog.Bool("sync_configured", cfg.SyncConfigured()),
	)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	events, err := store.Open(cfg.EventStorePath())
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer func() { _ = events.Close() }()

	rosterCache, err := roster.Open(cfg.RosterCachePath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open roster cache: %w", err)
	}
	defer func() { _ = rosterCache.Close() }()

	// Authority client and sync worker
	client := syncer.NewClient(syncer.ClientConfig{
		BaseURL:  cfg.AuthorityURL,
		SiteID:   cfg.SiteID,
		SyncCode: cfg.SyncCode,
		DeviceID: cfg.DeviceID,
		Timeout:  cfg.SyncTimeout,
	})
	detector := dedup.New(events, cfg.DedupWindow, logger)
	reconciler := syncer.NewReconciler(events, detector, client, cfg.SyncTimeout, logger).
		WithDeviceID(cfg.DeviceID)
	refresher := syncer.NewRosterRefresher(client, rosterCache, cfg.RosterMaxAge, logger)
	worker := syncer.NewWorker(reconciler, events, syncer.WorkerConfig{
		Interval:      cfg.SyncInterval,
		RetentionDays: cfg.RetentionDays,
	}, logger).WithRosterRefresher(refresher)

	// Capture pipeline
	recorder := service.NewAttendanceService(events, detector, logger).OnRecorded(worker.Trigger)

	m := matcher.New(threshold.ForTier(tier), logger).WithTruncation(cfg.AllowTruncation)

	checks := map[string]handler.Pinger{"store": events}

	var embedder provider.Embedder
	switch {
	case cfg.ProviderType == "mock":
		logger.Warn("using mock embedder, not for production")
		embedder = mock.New()
	case cfg.ProviderType == "deepface" && cfg.DeepFaceURL != "":
		dfConfig := deepface.DefaultConfig()
		dfConfig.BaseURL = cfg.DeepFaceURL
		dfConfig.Timeout = cfg.DeepFaceTimeout
		df := deepface.NewProvider(dfConfig)
		embedder = df
		checks["embedder"] = df
	default:
		logger.Warn("no embedder configured, probes must carry an embedding",
			slog.String("provider_type", cfg.ProviderType))
	}

	pipelineConfig := capture.DefaultConfig()
	pipelineConfig.Confirm.RequiredMatches = cfg.RequiredMatches
	pipeline := capture.NewPipeline(m, embedder, rosterCache, recorder, pipelineConfig, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)

	aggregator := metrics.NewAggregator(events, rosterCache, logger, 30*time.Second)
	go aggregator.Start(ctx)

	router := api.NewRouter(logger, "Ponto Terminal")
	router.SetupTerminal(api.TerminalDependencies{
		Capture: pipeline,
		Events:  events,
		Roster:  rosterCache,
		Sync:    reconciler,
		Trigger: worker,
		Checks:  checks,

		SyncConfigured: cfg.SyncConfigured(),
	})

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down terminal...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}
	worker.Stop()
	aggregator.Stop()

	logger.Info("terminal stopped")
	return nil
}
