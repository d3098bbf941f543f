package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeDatabaseConnection,
				Message: "failed to connect to database",
				Cause:   errors.New("connection refused"),
			},
			expected: "DATABASE_CONNECTION: failed to connect to database: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "sender").WithContext("value", "nobody")

	assert.Same(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "sender", err.Context["field"])
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	stale := NewStaleTransitionError("ph-1", "replace")
	wrapped := fmt.Errorf("try replace: %w", stale)

	assert.True(t, errors.Is(wrapped, New(ErrCodeStaleTransition, "")))
	assert.False(t, errors.Is(wrapped, New(ErrCodeMalformedEnvelope, "")))
	assert.True(t, HasCode(wrapped, ErrCodeStaleTransition))
	assert.False(t, HasCode(nil, ErrCodeStaleTransition))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeMalformedEnvelope, GetCode(NewMalformedEnvelopeError("missing sender", nil)))
	assert.Equal(t, ErrCodeMalformedEnvelope, GetCode(fmt.Errorf("outer: %w", NewMalformedEnvelopeError("missing sender", nil))))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(errors.New("database is locked"), ErrCodeDatabaseQuery, "update failed")))
	assert.False(t, IsRetryable(Wrap(errors.New("constraint"), ErrCodeDatabaseQuery, "insert failed")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestAsAppError(t *testing.T) {
	appErr, ok := AsAppError(fmt.Errorf("wrapped: %w", NewNotFoundError("placeholder", "abc")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, appErr.Code)

	_, ok = AsAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "placeholder not found", GetUserMessage(NewNotFoundError("placeholder", "abc")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("boom")))
}
