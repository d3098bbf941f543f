package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/retry"

	"github.com/mattn/go-sqlite3"
)

// retryableDBOperationNoReturn executes a database operation that returns only an error with retry logic
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	_, err := retryableDBOperation(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// dbBackoff retries SQLite lock contention briefly; the busy timeout
// already absorbs most of it.
var dbBackoff = retry.NewBackoff(retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultDatabaseRetryBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultDatabaseMaxBackoffMs) * time.Millisecond,
	Multiplier:   2.0,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
})

// retryableDBOperation retries operation while SQLite reports lock contention.
func retryableDBOperation[T any](ctx context.Context, operation func() (T, error), operationName string) (T, error) {
	result, err := retry.Do(ctx, dbBackoff, operation, isRetryableDBError)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return result, err
	case !isRetryableDBError(err):
		return result, fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	default:
		return result, fmt.Errorf("%s failed after %d attempts: %w", operationName, dbBackoff.MaxAttempts(), err)
	}
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		case sqlite3.ErrIoErr:
			return true
		default:
			return false
		}
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked") {
		return true
	}

	// Disk I/O errors might be transient
	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	return false
}
