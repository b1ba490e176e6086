package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/store"
)

type EventHistory interface {
	LastEventFor(ctx context.Context, identityCode string) (*domain.AttendanceEvent, error)
}

type DuplicateGate interface {
	Gate(ctx context.Context, event *domain.AttendanceEvent) (*domain.AttendanceEvent, bool, error)
	Window() time.Duration
}

// Punch is what the capture side knows when an identity is confirmed.
type Punch struct {
	Identity  domain.Identity
	At        time.Time
	Latitude  *float64
	Longitude *float64
	PhotoRef  *string
}

// Recording is the result of a punch. Created is false when the punch was
// absorbed by an existing event inside the duplicate window.
type Recording struct {
	Event   *domain.AttendanceEvent
	Created bool
}

type AttendanceService struct {
	history EventHistory
	gate    DuplicateGate
	logger  *slog.Logger
	notify  func()
}

func NewAttendanceService(history EventHistory, gate DuplicateGate, logger *slog.Logger) *AttendanceService {
	return &AttendanceService{
		history: history,
		gate:    gate,
		logger:  logger,
	}
}

// OnRecorded registers fn to run after every newly created event, e.g. to
// nudge the sync worker.
func (s *AttendanceService) OnRecorded(fn func()) *AttendanceService {
	s.notify = fn
	return s
}

// Record turns a confirmed identity into an attendance event. The first
// punch of an identity is IN; after that punches alternate. A punch inside
// the duplicate window of the previous one keeps its type, so the gate
// absorbs it instead of flipping IN to OUT.
func (s *AttendanceService) Record(ctx context.Context, p Punch) (*Recording, error) {
	if p.Identity.Code == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("identity code is required"))
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}

	eventType, err := s.nextType(ctx, p.Identity.Code, p.At)
	if err != nil {
		return nil, err
	}

	event := &domain.AttendanceEvent{
		IdentityCode: p.Identity.Code,
		DisplayName:  p.Identity.DisplayName,
		Type:         eventType,
		Timestamp:    p.At.UnixMilli(),
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		PhotoRef:     p.PhotoRef,
	}

	stored, created, err := s.gate.Gate(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("identity %s: record punch: %w", p.Identity.Code, err)
	}

	if created {
		s.logger.Info("attendance recorded",
			"event_id", stored.ID,
			"identity_code", stored.IdentityCode,
			"type", stored.Type,
		)
		if s.notify != nil {
			s.notify()
		}
	}

	return &Recording{Event: stored, Created: created}, nil
}

func (s *AttendanceService) nextType(ctx context.Context, identityCode string, at time.Time) (domain.EventType, error) {
	last, err := s.history.LastEventFor(ctx, identityCode)
	if errors.Is(err, store.ErrEventNotFound) {
		return domain.EventIn, nil
	}
	if err != nil {
		return "", fmt.Errorf("identity %s: last event: %w", identityCode, err)
	}
	if d := at.Sub(last.Time()); d >= -s.gate.Window() && d <= s.gate.Window() {
		return last.Type, nil
	}
	return last.Type.Next(), nil
}
