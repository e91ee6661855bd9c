package errors

// ErrorCode is the machine-readable kind of an AppError.
type ErrorCode string

// Endpoint availability. These are retryable.
const (
	// ErrCodeServiceUnavailable means no endpoint of a resolved service answered.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed means a connect, reconnect or host lookup failed.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout means the caller's deadline passed first.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Resources.
const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// ErrCodeInvalidInput covers bad configuration and malformed arguments.
const ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

// Failures inside a dependency.
const (
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

// IsRetryableCode reports whether errors with code are worth retrying.
func IsRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeConnectionFailed, ErrCodeTimeout:
		return true
	default:
		return false
	}
}
