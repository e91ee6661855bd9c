package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/resilix/errors"
)

// DriverError is a backend failure as the driver reported it: SQLSTATE,
// driver-specific numeric code, message and any extra diagnostics.
type DriverError struct {
	Dialect  Dialect
	SQLState string
	Code     int
	Message  string
	Info     map[string]any
	Err      error
}

func (e *DriverError) Error() string {
	switch {
	case e.Code != 0 && e.SQLState != "":
		return fmt.Sprintf("driver error %d (%s): %s", e.Code, e.SQLState, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("driver error %d: %s", e.Code, e.Message)
	case e.SQLState != "":
		return fmt.Sprintf("driver error %s: %s", e.SQLState, e.Message)
	default:
		return "driver error: " + e.Message
	}
}

func (e *DriverError) Unwrap() error { return e.Err }

// ConnectionError reports a failed reconnect.
type ConnectionError struct {
	Addr  string
	Round uint64
	Err   error
}

func (e *ConnectionError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("reconnect %s (round %d): %v", e.Addr, e.Round, e.Err)
	}
	return fmt.Sprintf("reconnect (round %d): %v", e.Round, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AsDriverError extracts a *DriverError from err's chain.
func AsDriverError(err error) (*DriverError, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsConnectionError reports whether err is a failed reconnect.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FromDatabase converts a database error to an AppError for callers that
// report failures across a service boundary.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	if IsNotFoundError(err) {
		return apperrors.NotFound(resource, "")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.AlreadyExists(resource).WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(resource).WithCause(err)
	}

	var ce *ConnectionError
	if errors.As(err, &ce) {
		appErr := apperrors.ConnectionFailed("database").WithCause(err)
		if ce.Addr != "" {
			appErr = appErr.WithDetail("address", ce.Addr)
		}
		return appErr
	}

	appErr := apperrors.DatabaseError(err).WithDetail("resource", resource)
	if de, ok := AsDriverError(err); ok {
		appErr.Retryable = ClassifierFor(de.Dialect).IsTransient(de)
		if de.Code != 0 {
			appErr = appErr.WithDetail("code", de.Code)
		}
		if de.SQLState != "" {
			appErr = appErr.WithDetail("sql_state", de.SQLState)
		}
	}
	return appErr
}
