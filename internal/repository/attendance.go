package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type AttendanceRepository struct {
	pool PgxPool
}

func NewAttendanceRepository(pool PgxPool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertBatch stores records in one transaction. The first record that
// collides with an existing (site, identity, timestamp, type) aborts the
// batch with domain.ErrDuplicateRecord carrying that record as the conflict.
func (r *AttendanceRepository) InsertBatch(ctx context.Context, records []domain.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}

	query := `
		INSERT INTO attendance_records (id, site_id, identity_code, event_type, punched_at,
			latitude, longitude, photo_ref, device_id, batch_id, local_id, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for i := range records {
		rec := &records[i]
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}

		_, err := tx.Exec(ctx, query,
			rec.ID,
			rec.SiteID,
			rec.IdentityCode,
			string(rec.Type),
			rec.Timestamp,
			rec.Latitude,
			rec.Longitude,
			rec.PhotoRef,
			rec.DeviceID,
			rec.BatchID,
			rec.LocalID,
			rec.DisplayName,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			if isUniqueViolation(err) && violatedConstraint(err) != constraintRecordPK {
				return 0, domain.ErrDuplicateRecord.WithConflict(rec.Conflict()).WithError(err)
			}
			return 0, fmt.Errorf("insert attendance record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return len(records), nil
}

// CountBySite returns how many records a site has uploaded.
func (r *AttendanceRepository) CountBySite(ctx context.Context, siteID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM attendance_records
		WHERE site_id = $1
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, siteID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance records: %w", err)
	}

	return count, nil
}
