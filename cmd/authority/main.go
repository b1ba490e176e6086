package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/saturnino-fabrica-de-software/ponto/internal/api"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/database"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
	"github.com/saturnino-fabrica-de-software/ponto/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAuthority()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(os.Stdout, cfg.Environment, "authority")
	slog.SetDefault(logger)

	logger.Info("starting Ponto authority",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.Int("max_batch_size", cfg.MaxBatchSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := checkSchema(ctx, cfg, logger); err != nil {
		return err
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	sites := repository.NewSiteRepository(pool)
	identities := repository.NewIdentityRepository(pool)
	records := repository.NewAttendanceRepository(pool)

	siteSeen := middleware.NewSiteSeenWorker(sites, logger, middleware.DefaultSiteSeenWorkerConfig())
	siteSeen.Start()

	router := api.NewRouter(logger, "Ponto Authority")
	router.SetupAuthority(api.AuthorityDependencies{
		Sites:    sites,
		SiteSeen: siteSeen,
		Batches:  service.NewBatchService(records, logger).WithMaxBatchSize(cfg.MaxBatchSize),
		Records:  records,
		Roster:   service.NewRosterService(identities),
		Checks:   map[string]handler.Pinger{"database": pool},
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
		siteSeen.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}
	siteSeen.Stop()

	logger.Info("server stopped")
	return nil
}

// checkSchema applies pending migrations when AUTO_MIGRATE is set and
// otherwise only warns: the migrate command owns schema changes.
func checkSchema(ctx context.Context, cfg *config.AuthorityConfig, logger *slog.Logger) error {
	db, err := database.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator, err := database.NewMigrator(db, cfg.DatabaseName, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	if cfg.AutoMigrate {
		if err := migrator.Up(); err != nil {
			return err
		}
	}

	status, err := migrator.Status()
	if err != nil {
		return err
	}
	if !status.Current() {
		logger.Warn("database schema is behind",
			slog.Uint64("version", uint64(status.Version)),
			slog.Uint64("latest", uint64(status.Latest)),
			slog.Bool("dirty", status.Dirty),
		)
	}
	return nil
}
