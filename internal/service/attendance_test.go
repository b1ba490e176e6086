package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/dedup"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/store"
)

type MockEventHistory struct {
	mock.Mock
}

func (m *MockEventHistory) LastEventFor(ctx context.Context, identityCode string) (*domain.AttendanceEvent, error) {
	args := m.Called(ctx, identityCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AttendanceEvent), args.Error(1)
}

type MockDuplicateGate struct {
	mock.Mock
}

func (m *MockDuplicateGate) Gate(ctx context.Context, event *domain.AttendanceEvent) (*domain.AttendanceEvent, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.AttendanceEvent), args.Bool(1), args.Error(2)
}

func (m *MockDuplicateGate) Window() time.Duration {
	return 5 * time.Minute
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAttendanceService_RecordInfersType(t *testing.T) {
	at := time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	worker := domain.Identity{Code: "E001", DisplayName: "Ana"}

	tests := []struct {
		name     string
		last     *domain.AttendanceEvent
		lastErr  error
		wantType domain.EventType
	}{
		{
			name:     "first punch is IN",
			lastErr:  store.ErrEventNotFound,
			wantType: domain.EventIn,
		},
		{
			name:     "after IN comes OUT",
			last:     &domain.AttendanceEvent{Type: domain.EventIn, Timestamp: at.Add(-8 * time.Hour).UnixMilli()},
			wantType: domain.EventOut,
		},
		{
			name:     "after OUT comes IN",
			last:     &domain.AttendanceEvent{Type: domain.EventOut, Timestamp: at.Add(-time.Hour).UnixMilli()},
			wantType: domain.EventIn,
		},
		{
			name:     "repeat inside window keeps type",
			last:     &domain.AttendanceEvent{Type: domain.EventIn, Timestamp: at.Add(-2 * time.Minute).UnixMilli()},
			wantType: domain.EventIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := new(MockEventHistory)
			gate := new(MockDuplicateGate)

			history.On("LastEventFor", mock.Anything, "E001").Return(tt.last, tt.lastErr)
			gate.On("Gate", mock.Anything, mock.MatchedBy(func(e *domain.AttendanceEvent) bool {
				return e.Type == tt.wantType && e.Timestamp == at.UnixMilli() && e.DisplayName == "Ana"
			})).Return(&domain.AttendanceEvent{ID: 1, IdentityCode: "E001", Type: tt.wantType}, true, nil)

			svc := NewAttendanceService(history, gate, discardLogger())
			rec, err := svc.Record(context.Background(), Punch{Identity: worker, At: at})

			require.NoError(t, err)
			assert.True(t, rec.Created)
			assert.Equal(t, tt.wantType, rec.Event.Type)
			history.AssertExpectations(t)
			gate.AssertExpectations(t)
		})
	}
}

func TestAttendanceService_RecordErrors(t *testing.T) {
	t.Run("missing identity", func(t *testing.T) {
		svc := NewAttendanceService(new(MockEventHistory), new(MockDuplicateGate), discardLogger())
		_, err := svc.Record(context.Background(), Punch{})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})

	t.Run("history failure", func(t *testing.T) {
		history := new(MockEventHistory)
		history.On("LastEventFor", mock.Anything, "E001").Return(nil, errors.New("disk I/O error"))

		svc := NewAttendanceService(history, new(MockDuplicateGate), discardLogger())
		_, err := svc.Record(context.Background(), Punch{Identity: domain.Identity{Code: "E001"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk I/O error")
	})

	t.Run("gate failure", func(t *testing.T) {
		history := new(MockEventHistory)
		gate := new(MockDuplicateGate)
		history.On("LastEventFor", mock.Anything, "E001").Return(nil, store.ErrEventNotFound)
		gate.On("Gate", mock.Anything, mock.Anything).Return(nil, false, errors.New("database is locked"))

		svc := NewAttendanceService(history, gate, discardLogger())
		_, err := svc.Record(context.Background(), Punch{Identity: domain.Identity{Code: "E001"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record punch")
	})
}

func TestAttendanceService_NotifiesOnlyNewEvents(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	notified := 0
	svc := NewAttendanceService(s, dedup.New(s, 5*time.Minute, discardLogger()), discardLogger()).
		OnRecorded(func() { notified++ })

	ctx := context.Background()
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	worker := domain.Identity{Code: "E001"}

	first, err := svc.Record(ctx, Punch{Identity: worker, At: at})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, domain.EventIn, first.Event.Type)

	again, err := svc.Record(ctx, Punch{Identity: worker, At: at.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Event.ID, again.Event.ID)

	out, err := svc.Record(ctx, Punch{Identity: worker, At: at.Add(8 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, domain.EventOut, out.Event.Type)

	assert.Equal(t, 2, notified)
}
