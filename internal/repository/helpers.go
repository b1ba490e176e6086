package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation = "23505"

	constraintSyncCodeHash = "idx_sites_sync_code_hash"
	constraintRecordPK     = "attendance_records_pkey"
)

// isUniqueViolation reports a unique constraint violation. pgx returns a
// *pgconn.PgError; the message check covers errors that were flattened to
// text on the way up.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, sqlStateUniqueViolation) || strings.Contains(msg, "duplicate key")
}

// violatedConstraint names the constraint behind a unique violation, if pgx
// reported one.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
