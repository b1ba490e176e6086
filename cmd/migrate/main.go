package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, status, force")
	steps := flag.Int("steps", 1, "Migrations to roll back (down)")
	version := flag.Int("version", -1, "Version to record as applied (force)")
	flag.Parse()

	cfg, err := config.LoadAuthority()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.Environment, "migrate")

	// golang-migrate works on database/sql, not on the pgx pool
	db, err := database.OpenSQL(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}

	migrator, err := database.NewMigrator(db, cfg.DatabaseName, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}

	case "down":
		if cfg.IsProduction() {
			return fmt.Errorf("down is disabled in production")
		}
		logger.Warn("rolling back migrations", slog.Int("steps", *steps))
		if err := migrator.Down(*steps); err != nil {
			return err
		}

	case "status":
		// reported below

	case "force":
		if *version < 0 {
			return fmt.Errorf("version flag is required for force")
		}
		logger.Warn("forcing migration version", slog.Int("version", *version))
		if err := migrator.Force(*version); err != nil {
			return err
		}

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, status, force)", *action)
	}

	status, err := migrator.Status()
	if err != nil {
		return err
	}
	logger.Info("schema status",
		slog.String("database", cfg.DatabaseName),
		slog.Uint64("version", uint64(status.Version)),
		slog.Uint64("latest", uint64(status.Latest)),
		slog.Bool("dirty", status.Dirty),
	)
	return nil
}
