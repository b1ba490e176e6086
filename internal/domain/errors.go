package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`

	// Conflict is set on duplicate-record errors and rendered in the body.
	Conflict *ConflictDetail `json:"conflict,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so errors.Is(err, ErrX)
// holds for values produced by ErrX.WithError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
		Conflict:   e.Conflict,
	}
}

// WithConflict attaches the record that already exists.
func (e *AppError) WithConflict(c *ConflictDetail) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        e.Err,
		Conflict:   c,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing sync credential",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Biometric errors
	ErrInvalidEmbedding = &AppError{
		Code:       "INVALID_EMBEDDING",
		Message:    "Embedding is malformed or degenerate",
		StatusCode: 422,
	}

	ErrLowQualityImage = &AppError{
		Code:       "LOW_QUALITY_IMAGE",
		Message:    "Image quality too low for reliable recognition",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not enrolled",
		StatusCode: 404,
	}

	ErrEmbedderUnavailable = &AppError{
		Code:       "EMBEDDER_UNAVAILABLE",
		Message:    "Embedding model temporarily unavailable",
		StatusCode: 503,
	}

	// Capture pipeline errors
	ErrFrameDropped = &AppError{
		Code:       "FRAME_DROPPED",
		Message:    "A frame for this session is still being processed",
		StatusCode: 429,
	}

	// Sync errors
	ErrDuplicateRecord = &AppError{
		Code:       "DUPLICATE_RECORD",
		Message:    "Attendance record already exists",
		StatusCode: 409,
	}

	ErrSyncInFlight = &AppError{
		Code:       "SYNC_IN_FLIGHT",
		Message:    "A sync cycle is already running",
		StatusCode: 409,
	}

	ErrSiteNotFound = &AppError{
		Code:       "SITE_NOT_FOUND",
		Message:    "Site not found",
		StatusCode: 404,
	}

	ErrBatchTooLarge = &AppError{
		Code:       "BATCH_TOO_LARGE",
		Message:    "Batch exceeds the maximum number of records",
		StatusCode: 413,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests",
		StatusCode: 429,
	}

	ErrSiteNotConfigured = &AppError{
		Code:       "SITE_NOT_CONFIGURED",
		Message:    "Terminal has no site credentials for the authority",
		StatusCode: 403,
	}
)
