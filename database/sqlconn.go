package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/resilix/logger"
)

// ErrConnClosed is returned when using a closed SQLConn.
var ErrConnClosed = errors.New("database: connection is closed")

// Connector opens a new physical connection.
type Connector interface {
	Connect(ctx context.Context) (*sql.Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*sql.Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (*sql.Conn, error) { return f(ctx) }

// FromDB returns a Connector that checks connections out of db's pool.
func FromDB(db *sql.DB) Connector {
	return ConnectorFunc(db.Conn)
}

// SQLConn is a Connection holding one dedicated *sql.Conn. Concurrent
// Reconnect calls for the same round share a single reconnect.
type SQLConn struct {
	connector Connector
	dialect   Dialect
	addr      string
	log       *logger.Logger

	round atomic.Uint64
	group singleflight.Group

	mu     sync.RWMutex
	conn   *sql.Conn
	closed bool
}

// SQLConnOption configures a SQLConn.
type SQLConnOption func(*SQLConn)

// WithConnDialect sets the dialect used to translate driver errors.
func WithConnDialect(d Dialect) SQLConnOption {
	return func(c *SQLConn) { c.dialect = d }
}

// WithConnAddr labels the connection in errors and logs.
func WithConnAddr(addr string) SQLConnOption {
	return func(c *SQLConn) { c.addr = addr }
}

// WithConnLogger sets the logger.
func WithConnLogger(l *logger.Logger) SQLConnOption {
	return func(c *SQLConn) { c.log = l }
}

// NewSQLConn opens the first physical connection through connector.
func NewSQLConn(ctx context.Context, connector Connector, opts ...SQLConnOption) (*SQLConn, error) {
	c := &SQLConn{connector: connector}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log).WithComponent("connection")

	conn, err := c.open(ctx)
	if err != nil {
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}
	c.conn = conn
	return c, nil
}

// Round returns the current connection round.
func (c *SQLConn) Round() uint64 { return c.round.Load() }

// Dialect returns the configured dialect.
func (c *SQLConn) Dialect() Dialect { return c.dialect }

// Reconnect replaces the physical connection and advances the round.
func (c *SQLConn) Reconnect(ctx context.Context) error {
	return c.ReconnectAt(ctx, c.round.Load())
}

// ReconnectAt reconnects only while the connection is still in round seen.
// Concurrent calls for the same round share one reconnect; a call for a
// round that has already advanced is a no-op.
func (c *SQLConn) ReconnectAt(ctx context.Context, seen uint64) error {
	_, err, shared := c.group.Do(strconv.FormatUint(seen, 10), func() (any, error) {
		return nil, c.reconnect(ctx, seen)
	})
	if shared {
		c.log.Debug("reconnect shared with concurrent caller", logger.Fields(logger.FieldRound, seen))
	}
	return err
}

func (c *SQLConn) reconnect(ctx context.Context, seen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &ConnectionError{Addr: c.addr, Round: seen, Err: ErrConnClosed}
	}
	if c.round.Load() != seen {
		return nil
	}

	conn, err := c.open(ctx)
	if err != nil {
		c.log.Warn("reconnect failed", logger.Fields(
			logger.FieldAddress, c.addr,
			logger.FieldRound, seen,
			logger.FieldError, err.Error(),
		))
		return &ConnectionError{Addr: c.addr, Round: seen, Err: err}
	}

	old := c.conn
	c.conn = conn
	round := c.round.Add(1)
	if old != nil {
		// database/sql discards the physical connection if the driver
		// already flagged it bad.
		_ = old.Close()
	}

	c.log.Info("connection replaced", logger.Fields(
		logger.FieldAddress, c.addr,
		logger.FieldRound, round,
	))
	return nil
}

func (c *SQLConn) open(ctx context.Context) (*sql.Conn, error) {
	conn, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, TranslateError(c.dialect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, TranslateError(c.dialect, err)
	}
	return conn, nil
}

// Prepare prepares query on the current physical connection.
func (c *SQLConn) Prepare(ctx context.Context, query string) (Statement, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, TranslateError(c.dialect, err)
	}
	return &sqlStatement{stmt: stmt, query: query, dialect: c.dialect}, nil
}

// Ping checks the current physical connection.
func (c *SQLConn) Ping(ctx context.Context) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return TranslateError(c.dialect, conn.PingContext(ctx))
}

// Close releases the physical connection. Further use fails with ErrConnClosed.
func (c *SQLConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *SQLConn) current() (*sql.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnClosed
	}
	return c.conn, nil
}

// sqlStatement adapts *sql.Stmt to Statement, translating driver errors.
type sqlStatement struct {
	stmt    *sql.Stmt
	query   string
	dialect Dialect
}

func (s *sqlStatement) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, TranslateError(s.dialect, err)
	}
	return res, nil
}

func (s *sqlStatement) Query(ctx context.Context, args ...any) (*sql.Rows, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, TranslateError(s.dialect, err)
	}
	return rows, nil
}

func (s *sqlStatement) SQL() string { return s.query }

func (s *sqlStatement) Close() error { return s.stmt.Close() }
