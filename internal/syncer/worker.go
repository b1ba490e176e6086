package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retainer prunes synced events older than a cutoff.
type Retainer interface {
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cycler runs one single-flight sync cycle.
type Cycler interface {
	TryRunCycle(ctx context.Context) (*CycleResult, error)
}

// WorkerConfig controls the background schedule.
type WorkerConfig struct {
	Interval          time.Duration
	RetentionDays     int
	RetentionInterval time.Duration
}

// Worker drives sync cycles on a ticker and on demand, and applies the
// retention policy once a day.
type Worker struct {
	cycler   Cycler
	retainer Retainer
	refresh  *RosterRefresher
	config   WorkerConfig
	logger   *slog.Logger
	trigger  chan struct{}
	stopCh   chan struct{}
	now      func() time.Time
}

func NewWorker(cycler Cycler, retainer Retainer, config WorkerConfig, logger *slog.Logger) *Worker {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.RetentionInterval <= 0 {
		config.RetentionInterval = 24 * time.Hour
	}
	return &Worker{
		cycler:   cycler,
		retainer: retainer,
		config:   config,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// WithRosterRefresher makes the worker refresh the roster after each
// successful cycle that reached the authority.
func (w *Worker) WithRosterRefresher(r *RosterRefresher) *Worker {
	w.refresh = r
	return w
}

// runningReporter is implemented by cyclers that can tell whether a cycle
// is in flight right now.
type runningReporter interface {
	Running() bool
}

// Trigger asks for a cycle as soon as possible. It never blocks; requests
// made while one is already queued collapse into it, and requests made
// while a cycle is in flight are dropped.
func (w *Worker) Trigger() {
	if r, ok := w.cycler.(runningReporter); ok && r.Running() {
		w.logger.Debug("sync trigger ignored, cycle in flight")
		return
	}
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	retention := time.NewTicker(w.config.RetentionInterval)
	defer retention.Stop()

	w.logger.Info("sync worker started",
		"interval", w.config.Interval,
		"retention_days", w.config.RetentionDays,
	)

	w.runCycle(ctx)
	w.applyRetention(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		case <-w.trigger:
			w.runCycle(ctx)
		case <-retention.C:
			w.applyRetention(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) runCycle(ctx context.Context) {
	result, err := w.cycler.TryRunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInFlight):
		w.logger.Debug("sync cycle coalesced")
		return
	case errors.Is(err, ErrNotConfigured):
		w.logger.Debug("sync skipped, authority not configured")
		return
	case err != nil:
		w.logger.Warn("sync cycle failed", "error", err)
		return
	}

	if result.Uploaded > 0 || result.Repaired > 0 {
		w.logger.Info("sync cycle completed",
			"outcome", result.Outcome,
			"uploaded", result.Uploaded,
			"synced", result.Synced,
			"repaired", result.Repaired,
			"duration", result.Duration,
		)
	}

	if w.refresh != nil {
		if err := w.refresh.RefreshIfStale(ctx); err != nil {
			w.logger.Warn("roster refresh failed", "error", err)
		}
	}
}

func (w *Worker) applyRetention(ctx context.Context) {
	if w.config.RetentionDays <= 0 || w.retainer == nil {
		return
	}

	cutoff := w.now().AddDate(0, 0, -w.config.RetentionDays)
	deleted, err := w.retainer.DeleteSyncedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to apply retention", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("pruned synced events", "count", deleted, "cutoff", cutoff)
	}
}
