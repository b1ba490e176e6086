package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/metrics"
)

type EventStore interface {
	ListPending(ctx context.Context) ([]domain.AttendanceEvent, error)
	MarkSyncedBatch(ctx context.Context, ids []int64, syncedAt time.Time) error
	MarkFailedPermanent(ctx context.Context, id int64, reason string) error
	RecordError(ctx context.Context, ids []int64, reason string) error
}

type PendingRepairer interface {
	ReconcilePending(ctx context.Context, pending []domain.AttendanceEvent) ([]int64, []domain.AttendanceEvent, error)
}

type Uploader interface {
	SubmitBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error)
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	BatchID  string
	Pending  int
	Repaired int
	Uploaded int
	Synced   int
	Failed   int
	Outcome  string
	Duration time.Duration
	Fallback bool
}

// Reconciler moves PENDING events to the authority. Every state transition
// happens only after the authority answered, so a cycle cut short leaves
// the log untouched.
type Reconciler struct {
	store    EventStore
	repairer PendingRepairer
	uploader Uploader
	timeout  time.Duration
	deviceID string
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

func NewReconciler(store EventStore, repairer PendingRepairer, uploader Uploader, timeout time.Duration, logger *slog.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{
		store:    store,
		repairer: repairer,
		uploader: uploader,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// WithDeviceID tags uploaded batches with the terminal id.
func (r *Reconciler) WithDeviceID(id string) *Reconciler {
	r.deviceID = id
	return r
}

// WithClock overrides the time source used for synced_at.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// TryRunCycle runs a cycle unless one is already running, in which case it
// returns ErrCycleInFlight at once.
func (r *Reconciler) TryRunCycle(ctx context.Context) (*CycleResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrCycleInFlight
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	return r.RunCycle(ctx)
}

// Running reports whether a cycle is in progress.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunCycle performs one reconciliation pass. Callers wanting single-flight
// semantics use TryRunCycle.
func (r *Reconciler) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{}
	defer func() {
		result.Duration = time.Since(start)
		metrics.SyncDuration.Observe(result.Duration.Seconds())
		metrics.SyncCycles.WithLabelValues(result.Outcome).Inc()
	}()

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		result.Outcome = metrics.OutcomeLocalError
		return result, fmt.Errorf("list pending: %w", err)
	}
	result.Pending = len(pending)

	repaired, remaining, err := r.repairer.ReconcilePending(ctx, pending)
	if err != nil {
		result.Outcome = metrics.OutcomeLocalError
		return result, fmt.Errorf("repair pending: %w", err)
	}
	result.Repaired = len(repaired)
	if len(repaired) > 0 {
		metrics.SyncedEvents.WithLabelValues("twin").Add(float64(len(repaired)))
	}

	if len(remaining) == 0 {
		result.Outcome = metrics.OutcomeEmpty
		return result, nil
	}

	req := domain.BatchRequest{
		BatchID:  uuid.NewString(),
		DeviceID: r.deviceID,
		Records:  make([]domain.BatchRecord, 0, len(remaining)),
	}
	ids := make([]int64, 0, len(remaining))
	for _, e := range remaining {
		req.Records = append(req.Records, domain.BatchRecordFrom(e))
		ids = append(ids, e.ID)
	}
	result.BatchID = req.BatchID
	result.Uploaded = len(req.Records)

	log := r.logger.With("batch_id", req.BatchID, "records", len(req.Records))

	uploadCtx, cancel := context.WithTimeout(ctx, r.timeout)
	resp, err := r.uploader.SubmitBatch(uploadCtx, req)
	cancel()

	if err != nil {
		return result, r.handleFailure(ctx, log, req, ids, err, result)
	}

	// a shutdown that raced the response must not mark anything
	if ctx.Err() != nil {
		result.Outcome = metrics.OutcomeTransient
		return result, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}

	return result, r.applyResponse(ctx, log, ids, resp, result)
}

func (r *Reconciler) applyResponse(ctx context.Context, log *slog.Logger, ids []int64, resp *domain.BatchResponse, result *CycleResult) error {
	rejected := make(map[int64]struct{}, len(resp.Rejected))
	for _, rej := range resp.Rejected {
		// a rejected event is never marked synced; unless the failure is
		// recorded below it stays PENDING for the next cycle
		rejected[rej.LocalID] = struct{}{}
		if !rej.Permanent {
			continue
		}
		if err := r.store.MarkFailedPermanent(ctx, rej.LocalID, rej.Reason); err != nil {
			log.Error("failed to mark event as permanently failed", "event_id", rej.LocalID, "error", err)
			continue
		}
		result.Failed++
		log.Warn("event rejected by authority", "event_id", rej.LocalID, "reason", rej.Reason)
	}

	accepted := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := rejected[id]; !ok {
			accepted = append(accepted, id)
		}
	}

	if err := r.store.MarkSyncedBatch(ctx, accepted, r.now()); err != nil {
		result.Outcome = metrics.OutcomeLocalError
		return fmt.Errorf("mark batch synced: %w", err)
	}

	result.Synced = len(accepted)
	result.Outcome = metrics.OutcomeSuccess
	metrics.SyncedEvents.WithLabelValues("uploaded").Add(float64(len(accepted)))
	if result.Failed > 0 {
		metrics.SyncedEvents.WithLabelValues("rejected").Add(float64(result.Failed))
	}

	log.Info("batch synced", "synced", result.Synced, "failed", result.Failed)
	return nil
}

func (r *Reconciler) handleFailure(ctx context.Context, log *slog.Logger, req domain.BatchRequest, ids []int64, err error, result *CycleResult) error {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		return r.handleConflict(ctx, log, req, ids, conflict, result)

	case errors.Is(err, ErrTransient):
		result.Outcome = metrics.OutcomeTransient
		log.Warn("sync attempt failed, will retry", "error", err)
		return err

	case errors.Is(err, ErrNotConfigured):
		result.Outcome = metrics.OutcomeNotConfigured

	default:
		result.Outcome = metrics.OutcomePermanent
	}

	log.Error("sync rejected", "error", err)
	if recErr := r.store.RecordError(ctx, ids, err.Error()); recErr != nil {
		log.Error("failed to record sync error", "error", recErr)
	}
	return err
}

// handleConflict resolves a duplicate-record answer. When the authority
// names the record only that event is marked; otherwise the whole batch is
// treated as already present.
func (r *Reconciler) handleConflict(ctx context.Context, log *slog.Logger, req domain.BatchRequest, ids []int64, conflict *ConflictError, result *CycleResult) error {
	var targets []int64
	if conflict.Identified() {
		targets = matchConflict(req.Records, conflict.Record)
	}

	if len(targets) > 0 {
		if err := r.store.MarkSyncedBatch(ctx, targets, r.now()); err != nil {
			result.Outcome = metrics.OutcomeLocalError
			return fmt.Errorf("mark conflicting event synced: %w", err)
		}
		result.Synced = len(targets)
		result.Outcome = metrics.OutcomeConflict
		metrics.SyncedEvents.WithLabelValues("conflict").Add(float64(len(targets)))
		log.Info("conflicting event already on authority",
			"event_ids", targets,
			"identity_code", conflict.Record.IdentityCode,
			"timestamp", conflict.Record.Timestamp,
		)
		return nil
	}

	if err := r.store.MarkSyncedBatch(ctx, ids, r.now()); err != nil {
		result.Outcome = metrics.OutcomeLocalError
		return fmt.Errorf("mark conflicting batch synced: %w", err)
	}
	result.Synced = len(ids)
	result.Fallback = true
	result.Outcome = metrics.OutcomeConflictWhole
	metrics.SyncedEvents.WithLabelValues("conflict_whole_batch").Add(float64(len(ids)))
	log.Warn("unidentified conflict, marking whole batch synced",
		"status", conflict.StatusCode,
		"body", truncate(conflict.Body, 256),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
