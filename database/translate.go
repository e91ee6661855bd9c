package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// MySQL client error numbers for a lost or unusable connection.
const (
	mysqlConnectionError = 2002 // CR_CONNECTION_ERROR
	mysqlConnHostError   = 2003 // CR_CONN_HOST_ERROR
	mysqlServerGone      = 2006 // CR_SERVER_GONE_ERROR
	mysqlServerLost      = 2013 // CR_SERVER_LOST
	mysqlServerLostExt   = 2055 // CR_SERVER_LOST_EXTENDED
)

// SQLSTATE values used for synthesized connection failures.
const (
	stateConnectionFailure = "08006"
	stateUnableToConnect   = "08001"
	stateCommLinkFailure   = "08S01"
)

// TranslateError converts a driver error into a *DriverError carrying the
// backend's code, SQLSTATE and diagnostics. Context errors, nil, and errors
// that are already *DriverError or *ConnectionError are returned as is.
func TranslateError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &DriverError{
			Dialect:  DialectMySQL,
			Code:     int(myErr.Number),
			SQLState: sqlState(myErr.SQLState),
			Message:  myErr.Message,
			Err:      err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Dialect:  DialectPostgres,
			SQLState: string(pqErr.Code),
			Message:  pqErr.Message,
			Info: diagnostics(
				"severity", pqErr.Severity,
				"detail", pqErr.Detail,
				"hint", pqErr.Hint,
				"schema", pqErr.Schema,
				"table", pqErr.Table,
				"column", pqErr.Column,
				"constraint", pqErr.Constraint,
			),
			Err: err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &DriverError{
			Dialect:  DialectPostgres,
			SQLState: pgErr.Code,
			Message:  pgErr.Message,
			Info: diagnostics(
				"severity", pgErr.Severity,
				"detail", pgErr.Detail,
				"hint", pgErr.Hint,
				"schema", pgErr.SchemaName,
				"table", pgErr.TableName,
				"column", pgErr.ColumnName,
				"constraint", pgErr.ConstraintName,
			),
			Err: err,
		}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &DriverError{
			Dialect:  DialectPostgres,
			SQLState: stateUnableToConnect,
			Message:  connectErr.Error(),
			Err:      err,
		}
	}

	if isLostConnection(err) {
		return lostConnection(dialect, err)
	}

	return &DriverError{Dialect: dialect, Message: err.Error(), Err: err}
}

// isLostConnection matches the sentinel and network errors drivers return
// when the physical connection is gone.
func isLostConnection(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func lostConnection(dialect Dialect, err error) *DriverError {
	de := &DriverError{Dialect: dialect, Message: err.Error(), Err: err}
	switch dialect {
	case DialectMySQL:
		de.Code = mysqlServerLost
		de.SQLState = stateCommLinkFailure
	default:
		de.SQLState = stateConnectionFailure
	}
	return de
}

func sqlState(raw [5]byte) string {
	if raw == [5]byte{} {
		return ""
	}
	return string(raw[:])
}

// diagnostics builds an info map from key/value pairs, skipping empty values.
func diagnostics(kvs ...string) map[string]any {
	info := make(map[string]any)
	for i := 0; i+1 < len(kvs); i += 2 {
		if kvs[i+1] != "" {
			info[kvs[i]] = kvs[i+1]
		}
	}
	if len(info) == 0 {
		return nil
	}
	return info
}
