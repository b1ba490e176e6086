package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// StateCounter reports how many local events sit in each sync state.
type StateCounter interface {
	CountByState(ctx context.Context) (map[domain.SyncState]int, error)
}

// RosterCounter reports the size of the local roster cache.
type RosterCounter interface {
	Count() (int, error)
}

// Aggregator periodically samples the local stores into gauges.
type Aggregator struct {
	events   StateCounter
	roster   RosterCounter
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

// NewAggregator creates a new gauge sampler. roster may be nil.
func NewAggregator(events StateCounter, roster RosterCounter, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 15 * time.Second
	}

	return &Aggregator{
		events:   events,
		roster:   roster,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sampling loop
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.Sample(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.Sample(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

// Sample refreshes the gauges once.
func (a *Aggregator) Sample(ctx context.Context) {
	counts, err := a.events.CountByState(ctx)
	if err != nil {
		a.logger.Error("failed to count events", "error", err)
	} else {
		for state, n := range counts {
			EventsByState.WithLabelValues(string(state)).Set(float64(n))
		}
	}

	if a.roster == nil {
		return
	}
	n, err := a.roster.Count()
	if err != nil {
		a.logger.Error("failed to count roster", "error", err)
		return
	}
	RosterSize.Set(float64(n))
}
