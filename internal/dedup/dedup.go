package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/store"
)

// DefaultWindow is the span inside which two punches of the same identity
// and type are treated as one.
const DefaultWindow = 5 * time.Minute

// EventStore is the subset of the event log the detector needs.
type EventStore interface {
	AppendUnlessNear(ctx context.Context, event *domain.AttendanceEvent, window time.Duration) (*domain.AttendanceEvent, bool, error)
	FindNear(ctx context.Context, identityCode string, eventType domain.EventType, ts int64, window time.Duration, state *domain.SyncState) (*domain.AttendanceEvent, error)
	MarkSyncedBatch(ctx context.Context, ids []int64, syncedAt time.Time) error
}

// Detector keeps the event log free of near-duplicate punches, both before
// an event is appended and before pending events are uploaded.
type Detector struct {
	store  EventStore
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(store EventStore, window time.Duration, logger *slog.Logger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{
		store:  store,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Window returns the configured duplicate window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Gate appends event unless a twin in any sync state already exists within
// the window. It returns the stored event and whether it was created.
func (d *Detector) Gate(ctx context.Context, event *domain.AttendanceEvent) (*domain.AttendanceEvent, bool, error) {
	stored, created, err := d.store.AppendUnlessNear(ctx, event, d.window)
	if err != nil {
		return nil, false, fmt.Errorf("dedup gate: %w", err)
	}

	if !created {
		d.logger.Info("duplicate punch suppressed",
			"identity_code", event.IdentityCode,
			"type", event.Type,
			"existing_event_id", stored.ID,
		)
	}

	return stored, created, nil
}

// ReconcilePending marks as SYNCED every pending event whose twin was
// already synced, so it is never uploaded twice. It returns the repaired
// ids and the events that still need uploading.
func (d *Detector) ReconcilePending(ctx context.Context, pending []domain.AttendanceEvent) ([]int64, []domain.AttendanceEvent, error) {
	synced := domain.SyncSynced

	var repaired []int64
	remaining := make([]domain.AttendanceEvent, 0, len(pending))

	for _, event := range pending {
		twin, err := d.store.FindNear(ctx, event.IdentityCode, event.Type, event.Timestamp, d.window, &synced)
		if errors.Is(err, store.ErrEventNotFound) {
			remaining = append(remaining, event)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("dedup reconcile: %w", err)
		}

		d.logger.Info("pending event already synced by twin",
			"event_id", event.ID,
			"twin_event_id", twin.ID,
			"identity_code", event.IdentityCode,
		)
		repaired = append(repaired, event.ID)
	}

	if len(repaired) > 0 {
		if err := d.store.MarkSyncedBatch(ctx, repaired, d.now()); err != nil {
			return nil, nil, fmt.Errorf("dedup reconcile: %w", err)
		}
	}

	return repaired, remaining, nil
}
