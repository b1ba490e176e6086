package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "error without wrapped error",
			appErr:   ErrIdentityNotFound,
			expected: "Identity not enrolled",
		},
		{
			name: "error with wrapped error",
			appErr: &AppError{
				Code:       "TEST_ERROR",
				Message:    "Test message",
				StatusCode: 500,
				Err:        errors.New("underlying error"),
			},
			expected: "Test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	appErr := &AppError{
		Code:       "TEST",
		Message:    "test",
		StatusCode: 500,
		Err:        underlying,
	}

	if got := appErr.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	// Test with nil error
	appErrNoWrap := ErrIdentityNotFound
	if got := appErrNoWrap.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestAppError_WithError(t *testing.T) {
	underlying := errors.New("db connection failed")
	newErr := ErrInternal.WithError(underlying)

	if newErr.Code != ErrInternal.Code {
		t.Errorf("Code = %v, want %v", newErr.Code, ErrInternal.Code)
	}

	if newErr.StatusCode != ErrInternal.StatusCode {
		t.Errorf("StatusCode = %v, want %v", newErr.StatusCode, ErrInternal.StatusCode)
	}

	if newErr.Err != underlying {
		t.Errorf("Err = %v, want %v", newErr.Err, underlying)
	}

	// Check errors.Is still works
	if !errors.Is(newErr, underlying) {
		t.Errorf("errors.Is should return true for wrapped error")
	}
}

func TestErrorsIs(t *testing.T) {
	// Test that errors.As works with AppError
	err := ErrIdentityNotFound.WithError(errors.New("not in roster"))

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Errorf("errors.As should match AppError")
	}

	if appErr.Code != "IDENTITY_NOT_FOUND" {
		t.Errorf("Code = %v, want IDENTITY_NOT_FOUND", appErr.Code)
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *AppError
		code       string
		statusCode int
	}{
		{ErrInternal, "INTERNAL_ERROR", 500},
		{ErrBadRequest, "BAD_REQUEST", 400},
		{ErrUnauthorized, "UNAUTHORIZED", 401},
		{ErrNotFound, "NOT_FOUND", 404},
		{ErrValidationFailed, "VALIDATION_FAILED", 422},
		{ErrInvalidEmbedding, "INVALID_EMBEDDING", 422},
		{ErrLowQualityImage, "LOW_QUALITY_IMAGE", 422},
		{ErrNoFaceDetected, "NO_FACE_DETECTED", 422},
		{ErrIdentityNotFound, "IDENTITY_NOT_FOUND", 404},
		{ErrEmbedderUnavailable, "EMBEDDER_UNAVAILABLE", 503},
		{ErrFrameDropped, "FRAME_DROPPED", 429},
		{ErrDuplicateRecord, "DUPLICATE_RECORD", 409},
		{ErrSyncInFlight, "SYNC_IN_FLIGHT", 409},
		{ErrSiteNotConfigured, "SITE_NOT_CONFIGURED", 403},
		{ErrSiteNotFound, "SITE_NOT_FOUND", 404},
		{ErrBatchTooLarge, "BATCH_TOO_LARGE", 413},
		{ErrRateLimitExceeded, "RATE_LIMIT_EXCEEDED", 429},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.statusCode)
			}
		})
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("store roster: %w", ErrInvalidEmbedding.WithError(errors.New("all-zero embedding")))

	if !errors.Is(err, ErrInvalidEmbedding) {
		t.Errorf("errors.Is should match AppError by code through wrapping")
	}
	if errors.Is(err, ErrLowQualityImage) {
		t.Errorf("errors.Is should not match a different code")
	}
}

func TestAppError_WithConflict(t *testing.T) {
	detail := &ConflictDetail{IdentityCode: "E1", Timestamp: 1700000000000, Type: EventIn}

	err := ErrDuplicateRecord.WithConflict(detail).WithError(errors.New("unique violation"))

	if err.Conflict != detail {
		t.Errorf("Conflict = %v, want %v", err.Conflict, detail)
	}
	if ErrDuplicateRecord.Conflict != nil {
		t.Errorf("WithConflict must not mutate the predefined error")
	}
	if !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("errors.Is should match ErrDuplicateRecord")
	}
}
