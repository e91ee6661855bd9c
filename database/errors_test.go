package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/resilix/errors"
)

func TestFromDatabase(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      apperrors.ErrorCode
		wantRetryable bool
	}{
		{"record not found", gorm.ErrRecordNotFound, apperrors.ErrCodeNotFound, false},
		{"duplicated key", gorm.ErrDuplicatedKey, apperrors.ErrCodeAlreadyExists, false},
		{"reconnect failed", &ConnectionError{Addr: "10.0.0.5:3306", Err: errors.New("refused")}, apperrors.ErrCodeConnectionFailed, true},
		{"transient driver error", &DriverError{Dialect: DialectMySQL, Code: 2006}, apperrors.ErrCodeDatabaseError, true},
		{"permanent driver error", &DriverError{Dialect: DialectPostgres, SQLState: "23505"}, apperrors.ErrCodeDatabaseError, false},
		{"plain error", errors.New("boom"), apperrors.ErrCodeDatabaseError, false},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), apperrors.ErrCodeTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDatabase(tt.err, "user")
			if got == nil {
				t.Fatal("FromDatabase() = nil")
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestFromDatabase_Details(t *testing.T) {
	got := FromDatabase(&DriverError{Dialect: DialectMySQL, Code: 1062, SQLState: "23000"}, "order")
	if got.Details["code"] != 1062 {
		t.Errorf("code detail = %v, want 1062", got.Details["code"])
	}
	if got.Details["sql_state"] != "23000" {
		t.Errorf("sql_state detail = %v, want 23000", got.Details["sql_state"])
	}

	ce := FromDatabase(&ConnectionError{Addr: "db:5432", Err: errors.New("refused")}, "order")
	if ce.Details["address"] != "db:5432" {
		t.Errorf("address detail = %v, want db:5432", ce.Details["address"])
	}

	if FromDatabase(nil, "order") != nil {
		t.Error("FromDatabase(nil) should be nil")
	}
}

func TestDriverError_Error(t *testing.T) {
	tests := []struct {
		err  *DriverError
		want string
	}{
		{&DriverError{Code: 2006, SQLState: "HY000", Message: "gone"}, "driver error 2006 (HY000): gone"},
		{&DriverError{Code: 2006, Message: "gone"}, "driver error 2006: gone"},
		{&DriverError{SQLState: "57P01", Message: "shutdown"}, "driver error 57P01: shutdown"},
		{&DriverError{Message: "boom"}, "driver error: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
