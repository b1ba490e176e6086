package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SiteTouchRepository stamps a site's last sync time.
type SiteTouchRepository interface {
	TouchLastSync(ctx context.Context, siteID uuid.UUID) error
}

// SiteSeenWorker records sites.last_sync_at off the request path. Updates
// for the same site are debounced and flushed in batches.
type SiteSeenWorker struct {
	sites  SiteTouchRepository
	logger *slog.Logger

	updateCh chan uuid.UUID

	recentlyTouched map[uuid.UUID]time.Time
	mu              sync.RWMutex

	debounceInterval time.Duration
	batchInterval    time.Duration
	maxBatchSize     int

	done chan struct{}
	wg   sync.WaitGroup
}

// SiteSeenWorkerConfig holds configuration for the worker
type SiteSeenWorkerConfig struct {
	BufferSize       int           // Channel buffer size (default: 256)
	DebounceInterval time.Duration // Min interval between touches of one site (default: 30s)
	BatchInterval    time.Duration // Flush interval (default: 5s)
	MaxBatchSize     int           // Max sites per flush (default: 50)
}

// DefaultSiteSeenWorkerConfig returns default configuration
func DefaultSiteSeenWorkerConfig() SiteSeenWorkerConfig {
	return SiteSeenWorkerConfig{
		BufferSize:       256,
		DebounceInterval: 30 * time.Second,
		BatchInterval:    5 * time.Second,
		MaxBatchSize:     50,
	}
}

// NewSiteSeenWorker creates a new worker
func NewSiteSeenWorker(sites SiteTouchRepository, logger *slog.Logger, config SiteSeenWorkerConfig) *SiteSeenWorker {
	defaults := DefaultSiteSeenWorkerConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = defaults.BatchInterval
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}

	return &SiteSeenWorker{
		sites:            sites,
		logger:           logger,
		updateCh:         make(chan uuid.UUID, config.BufferSize),
		recentlyTouched:  make(map[uuid.UUID]time.Time),
		debounceInterval: config.DebounceInterval,
		batchInterval:    config.BatchInterval,
		maxBatchSize:     config.MaxBatchSize,
		done:             make(chan struct{}),
	}
}

// Start begins the background worker
func (w *SiteSeenWorker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("site seen worker started",
		"buffer_size", cap(w.updateCh),
		"debounce_interval", w.debounceInterval,
	)
}

// Stop flushes pending touches and waits for the worker to exit.
func (w *SiteSeenWorker) Stop() {
	close(w.done)
	w.wg.Wait()
	w.logger.Info("site seen worker stopped")
}

// Enqueue schedules a touch for siteID. It never blocks: when the buffer is
// full the touch is dropped.
func (w *SiteSeenWorker) Enqueue(siteID uuid.UUID) {
	w.mu.RLock()
	last, ok := w.recentlyTouched[siteID]
	w.mu.RUnlock()

	if ok && time.Since(last) < w.debounceInterval {
		return
	}

	select {
	case w.updateCh <- siteID:
	default:
		w.logger.Debug("site seen update dropped, buffer full", "site_id", siteID)
	}
}

func (w *SiteSeenWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.batchInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(5 * time.Minute)
	defer cleanupTicker.Stop()

	var batch []uuid.UUID

	for {
		select {
		case <-w.done:
			// Drain whatever is already buffered
			for {
				select {
				case id := <-w.updateCh:
					batch = append(batch, id)
				default:
					w.flush(batch)
					return
				}
			}

		case id := <-w.updateCh:
			batch = append(batch, id)
			if len(batch) >= w.maxBatchSize {
				w.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			w.flush(batch)
			batch = nil

		case <-cleanupTicker.C:
			w.cleanupDebounceMap()
		}
	}
}

func (w *SiteSeenWorker) flush(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var touched int
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := w.sites.TouchLastSync(ctx, id); err != nil {
			w.logger.Error("failed to touch site", "site_id", id, "error", err)
			continue
		}

		w.mu.Lock()
		w.recentlyTouched[id] = time.Now()
		w.mu.Unlock()
		touched++
	}

	if touched > 0 {
		w.logger.Debug("sites touched", "count", touched)
	}
}

func (w *SiteSeenWorker) cleanupDebounceMap() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for id, last := range w.recentlyTouched {
		if now.Sub(last) > 2*w.debounceInterval {
			delete(w.recentlyTouched, id)
		}
	}
}
