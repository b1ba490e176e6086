package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// SiteRepository Tests

func TestSiteRepository_GetByCredential(t *testing.T) {
	siteID := uuid.New()
	now := time.Now()
	hash := domain.HashSyncCode("ps_valid")

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      *domain.Site
		wantErr   error
	}{
		{
			name: "successful retrieval",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"id", "slug", "name", "sync_code_hash", "is_active", "last_sync_at", "created_at", "updated_at",
				}).AddRow(siteID, "plant-north", "North plant", hash, true, nil, now, now)

				mock.ExpectQuery(`SELECT id, slug, name, sync_code_hash, is_active, last_sync_at, created_at, updated_at FROM sites WHERE slug = \$1 AND sync_code_hash = \$2 AND is_active = true`).
					WithArgs("plant-north", hash).
					WillReturnRows(rows)
			},
			want: &domain.Site{
				ID:           siteID,
				Slug:         "plant-north",
				Name:         "North plant",
				SyncCodeHash: hash,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		},
		{
			name: "site not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM sites WHERE slug = \$1 AND sync_code_hash = \$2`).
					WithArgs("plant-north", hash).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrSiteNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM sites WHERE slug = \$1 AND sync_code_hash = \$2`).
					WithArgs("plant-north", hash).
					WillReturnError(errors.New("database connection error"))
			},
			wantErr: errors.New("get site by credential: database connection error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewSiteRepository(mock)
			got, err := repo.GetByCredential(context.Background(), "plant-north", hash)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, domain.ErrSiteNotFound) {
					assert.ErrorIs(t, err, domain.ErrSiteNotFound)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSiteRepository_Create(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		site      *domain.Site
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful creation",
			site: &domain.Site{Slug: "plant-north", Name: "North plant", SyncCodeHash: "hash", IsActive: true},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO sites`).
					WithArgs(pgxmock.AnyArg(), "plant-north", "North plant", "hash", true).
					WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
			},
		},
		{
			name: "duplicate slug",
			site: &domain.Site{Slug: "plant-north", Name: "North plant", SyncCodeHash: "hash", IsActive: true},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO sites`).
					WithArgs(pgxmock.AnyArg(), "plant-north", "North plant", "hash", true).
					WillReturnError(errors.New(`duplicate key value violates unique constraint "idx_sites_slug"`))
			},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name: "sync code collision",
			site: &domain.Site{Slug: "plant-south", Name: "South plant", SyncCodeHash: "hash", IsActive: true},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO sites`).
					WithArgs(pgxmock.AnyArg(), "plant-south", "South plant", "hash", true).
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_sites_sync_code_hash"})
			},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name:      "invalid slug never reaches the database",
			site:      &domain.Site{Slug: "North Plant", Name: "North plant", SyncCodeHash: "hash"},
			mockSetup: func(mock pgxmock.PgxPoolIface) {},
			wantErr:   domain.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			err = NewSiteRepository(mock).Create(context.Background(), tt.site)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, tt.site.ID)
				assert.Equal(t, now, tt.site.CreatedAt)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSiteRepository_TouchLastSync(t *testing.T) {
	siteID := uuid.New()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "updated",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE sites SET last_sync_at = NOW\(\) WHERE id = \$1`).
					WithArgs(siteID).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "unknown site",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE sites SET last_sync_at`).
					WithArgs(siteID).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr: domain.ErrSiteNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			err = NewSiteRepository(mock).TouchLastSync(context.Background(), siteID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSiteRepository_RotateSyncCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	siteID := uuid.New()
	mock.ExpectExec(`UPDATE sites SET sync_code_hash = \$2`).
		WithArgs(siteID, "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewSiteRepository(mock).RotateSyncCode(context.Background(), siteID, "new-hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// IdentityRepository Tests

func TestIdentityRepository_ListActive(t *testing.T) {
	siteID := uuid.New()
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      []domain.Identity
		wantErr   string
	}{
		{
			name: "returns identities with embeddings",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				e1 := pgvector.NewVector([]float32{1, 0, 0})
				e2 := pgvector.NewVector([]float32{0, 1, 0})
				rows := pgxmock.NewRows([]string{"code", "display_name", "active", "embedding", "updated_at"}).
					AddRow("E1", "Ana", true, &e1, now).
					AddRow("E2", "Bruno", true, &e2, now)

				mock.ExpectQuery(`SELECT code, display_name, active, embedding, updated_at FROM identities WHERE site_id = \$1 AND active = true AND embedding IS NOT NULL ORDER BY code`).
					WithArgs(siteID).
					WillReturnRows(rows)
			},
			want: []domain.Identity{
				{Code: "E1", DisplayName: "Ana", Active: true, Embedding: domain.Embedding{1, 0, 0}, UpdatedAt: now},
				{Code: "E2", DisplayName: "Bruno", Active: true, Embedding: domain.Embedding{0, 1, 0}, UpdatedAt: now},
			},
		},
		{
			name: "empty roster",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM identities`).
					WithArgs(siteID).
					WillReturnRows(pgxmock.NewRows([]string{"code", "display_name", "active", "embedding", "updated_at"}))
			},
			want: []domain.Identity{},
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM identities`).
					WithArgs(siteID).
					WillReturnError(errors.New("timeout"))
			},
			wantErr: "list identities: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewIdentityRepository(mock).ListActive(context.Background(), siteID)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_Upsert(t *testing.T) {
	siteID := uuid.New()
	now := time.Now()

	t.Run("stores embedding as vector", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO identities .+ ON CONFLICT \(site_id, code\) DO UPDATE`).
			WithArgs(siteID, "E1", "Ana", true, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))

		identity := &domain.Identity{Code: "E1", DisplayName: "Ana", Active: true, Embedding: domain.Embedding{1, 0, 0}}
		require.NoError(t, NewIdentityRepository(mock).Upsert(context.Background(), siteID, identity))

		assert.Equal(t, now, identity.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects degenerate embedding", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		identity := &domain.Identity{Code: "E1", Active: true, Embedding: domain.Embedding{0, 0, 0}}
		err = NewIdentityRepository(mock).Upsert(context.Background(), siteID, identity)

		assert.ErrorIs(t, err, domain.ErrInvalidEmbedding)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires a code", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = NewIdentityRepository(mock).Upsert(context.Background(), siteID, &domain.Identity{})

		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})
}

func TestIdentityRepository_Deactivate(t *testing.T) {
	siteID := uuid.New()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"deactivated", 1, nil},
		{"unknown identity", 0, domain.ErrIdentityNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE identities SET active = false`).
				WithArgs(siteID, "E1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err = NewIdentityRepository(mock).Deactivate(context.Background(), siteID, "E1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// AttendanceRepository Tests

func testRecords(siteID uuid.UUID) []domain.AttendanceRecord {
	return []domain.AttendanceRecord{
		{SiteID: siteID, IdentityCode: "E1", DisplayName: "Ana", Type: domain.EventIn, Timestamp: 1700000000000, BatchID: "b-1", LocalID: 1},
		{SiteID: siteID, IdentityCode: "E2", Type: domain.EventIn, Timestamp: 1700000060000, BatchID: "b-1", LocalID: 2},
	}
}

func TestAttendanceRepository_InsertBatch(t *testing.T) {
	siteID := uuid.New()

	tests := []struct {
		name         string
		mockSetup    func(mock pgxmock.PgxPoolIface)
		wantInserted int
		wantErr      error
		wantConflict *domain.ConflictDetail
	}{
		{
			name: "all records inserted in one transaction",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO attendance_records`).
					WithArgs(pgxmock.AnyArg(), siteID, "E1", "IN", int64(1700000000000),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "", "b-1", int64(1), "Ana").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO attendance_records`).
					WithArgs(pgxmock.AnyArg(), siteID, "E2", "IN", int64(1700000060000),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "", "b-1", int64(2), "").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
			wantInserted: 2,
		},
		{
			name: "unique violation aborts with the conflicting record",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO attendance_records`).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO attendance_records`).
					WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "uq_attendance_records_natural_key" (SQLSTATE 23505)`))
				mock.ExpectRollback()
			},
			wantErr:      domain.ErrDuplicateRecord,
			wantConflict: &domain.ConflictDetail{IdentityCode: "E2", Timestamp: 1700000060000, Type: domain.EventIn},
		},
		{
			name: "other errors roll back",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO attendance_records`).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			wantErr: errors.New("insert attendance record: connection reset"),
		},
		{
			name: "begin fails",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin().WillReturnError(errors.New("pool closed"))
			},
			wantErr: errors.New("begin batch: pool closed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			n, err := NewAttendanceRepository(mock).InsertBatch(context.Background(), testRecords(siteID))

			switch {
			case tt.wantConflict != nil:
				require.ErrorIs(t, err, tt.wantErr)
				var appErr *domain.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, tt.wantConflict, appErr.Conflict)
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantInserted, n)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAttendanceRepository_InsertBatchEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := NewAttendanceRepository(mock).InsertBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_CountBySite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	siteID := uuid.New()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance_records WHERE site_id = \$1`).
		WithArgs(siteID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := NewAttendanceRepository(mock).CountBySite(context.Background(), siteID)

	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		want           bool
		wantConstraint string
	}{
		{name: "nil", err: nil},
		{
			name:           "pg error",
			err:            fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_attendance_records_natural_key"}),
			want:           true,
			wantConstraint: "uq_attendance_records_natural_key",
		},
		{name: "other pg error", err: &pgconn.PgError{Code: "23503"}},
		{name: "flattened text", err: errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"), want: true},
		{name: "unrelated", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
			assert.Equal(t, tt.wantConstraint, violatedConstraint(tt.err))
		})
	}
}
