package database

// Drivers registered with database/sql: "mysql", "postgres" (lib/pq),
// "pgx" (pgx stdlib) and "sqlite3" (through the GORM sqlite driver).
import (
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)
