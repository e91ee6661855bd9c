package database

import (
	"context"
	"database/sql"
)

// Statement is a prepared statement bound to the connection round it was
// prepared in. Failures are reported as *DriverError.
type Statement interface {
	Exec(ctx context.Context, args ...any) (sql.Result, error)
	Query(ctx context.Context, args ...any) (*sql.Rows, error)
	// SQL returns the original query text.
	SQL() string
	Close() error
}

// Connection is a reconnectable session that prepares statements.
type Connection interface {
	// Round identifies the current physical connection. It increases by
	// exactly one on every successful Reconnect.
	Round() uint64
	// Reconnect replaces the physical connection. Failures are *ConnectionError.
	Reconnect(ctx context.Context) error
	// Prepare prepares query on the current physical connection.
	Prepare(ctx context.Context, query string) (Statement, error)
}

// Dialect names the SQL backend family, which decides how driver errors are
// translated and which codes are transient by default.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectUnknown  Dialect = ""
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case "mysql":
		return DialectMySQL
	case "postgres", "pgx", "pgx/v5":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return DialectUnknown
	}
}
