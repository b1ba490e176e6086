package syncer

import (
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

var (
	// ErrTransient covers failures worth retrying next cycle: timeouts,
	// connection errors, 5xx and 429 responses.
	ErrTransient = errors.New("transient sync failure")

	// ErrPermanent covers rejections that will not succeed on retry.
	ErrPermanent = errors.New("permanent sync failure")

	// ErrNotConfigured means the terminal has no authority URL or credentials.
	ErrNotConfigured = errors.New("sync not configured")

	// ErrCycleInFlight is returned when a cycle is requested while one runs.
	ErrCycleInFlight = errors.New("sync cycle already in flight")
)

// ConflictError reports that the authority already holds a record of the
// batch. Record is nil when the response did not identify which one.
type ConflictError struct {
	StatusCode int
	Record     *domain.ConflictDetail
	Body       string
}

func (e *ConflictError) Error() string {
	if e.Record != nil {
		return fmt.Sprintf("duplicate record on authority: identity %s at %d", e.Record.IdentityCode, e.Record.Timestamp)
	}
	return fmt.Sprintf("duplicate record on authority (status %d)", e.StatusCode)
}

// Identified reports whether the conflicting record is known.
func (e *ConflictError) Identified() bool {
	return e.Record != nil && e.Record.IdentityCode != ""
}

// StatusError is a non-2xx response that is not a conflict.
type StatusError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authority returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}
