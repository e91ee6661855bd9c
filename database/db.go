package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/observability"
	"github.com/kbukum/resilix/resilience"
)

// ErrNoORM is returned by ORM helpers when the DB was opened without a GORM driver.
var ErrNoORM = errors.New("database: no gorm driver for this dialect")

// DriverFunc builds a GORM dialector from a DSN, e.g. sqlite.Open.
type DriverFunc func(dsn string) gorm.Dialector

// DB is a connection pool with an optional GORM handle and a reconnecting
// session that hands out statement proxies.
type DB struct {
	GormDB  *gorm.DB
	sqlDB   *sql.DB
	log     *logger.Logger
	cfg     Config
	dialect Dialect
	metrics *observability.Metrics

	connector Connector

	mu      sync.Mutex
	session *SQLConn
	closed  bool
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	driver    DriverFunc
	sqlDB     *sql.DB
	connector Connector
	metrics   *observability.Metrics
}

// WithDriver sets the GORM driver. SQLite uses sqlite.Open by default; other
// dialects run without GORM unless a driver is given.
func WithDriver(fn DriverFunc) Option {
	return func(o *openOptions) { o.driver = fn }
}

// WithSQLDB uses an existing pool instead of opening one from the DSN.
func WithSQLDB(db *sql.DB) Option {
	return func(o *openOptions) { o.sqlDB = db }
}

// WithConnector makes sessions dial through c instead of borrowing from the
// pool, e.g. a discovery-backed *Dialer.
func WithConnector(c Connector) Option {
	return func(o *openOptions) { o.connector = c }
}

// WithDBMetrics records statement and reconnect metrics.
func WithDBMetrics(m *observability.Metrics) Option {
	return func(o *openOptions) { o.metrics = m }
}

// Open opens the pool with retry and connection limits.
func Open(ctx context.Context, cfg Config, log *logger.Logger, opts ...Option) (*DB, error) {
	cfg.ApplyDefaults()
	log = logger.OrNop(log)

	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialect := cfg.DialectName()
	if o.driver == nil && o.sqlDB == nil && dialect == DialectSQLite {
		o.driver = sqlite.Open
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		RetryIf:        resilience.DefaultRetryIf,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			log.Warn("Database connection attempt failed, retrying", logger.Fields(
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
				"backoff", backoff.String(),
			))
		},
	}

	db, err := resilience.Retry(ctx, retry, func() (*DB, error) {
		return connect(ctx, cfg, log, dialect, o)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.MaxRetries, err)
	}

	db.sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	db.sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if lifetime := parseDuration(cfg.ConnMaxLifetime); lifetime > 0 {
		db.sqlDB.SetConnMaxLifetime(lifetime)
	}
	if idle := parseDuration(cfg.ConnMaxIdleTime); idle > 0 {
		db.sqlDB.SetConnMaxIdleTime(idle)
	}

	log.Info("Database connection established", logger.Fields("driver", cfg.Driver, "dialect", string(dialect)))
	return db, nil
}

func connect(ctx context.Context, cfg Config, log *logger.Logger, dialect Dialect, o openOptions) (*DB, error) {
	db := &DB{
		log:       log,
		cfg:       cfg,
		dialect:   dialect,
		metrics:   o.metrics,
		connector: o.connector,
		sqlDB:     o.sqlDB,
	}

	if o.driver != nil {
		gormCfg := &gorm.Config{
			Logger: newGormLogger(log, parseDuration(cfg.SlowQueryThreshold), parseLogLevel(cfg.LogLevel)),
		}
		gdb, err := gorm.Open(o.driver(cfg.DSN), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		db.GormDB = gdb
		db.sqlDB = sqlDB
	} else if db.sqlDB == nil {
		sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		db.sqlDB = sqlDB
	}

	if err := db.sqlDB.PingContext(ctx); err != nil {
		if o.sqlDB == nil {
			_ = db.sqlDB.Close()
		}
		return nil, TranslateError(dialect, err)
	}
	return db, nil
}

// SQL returns the underlying pool.
func (d *DB) SQL() *sql.DB { return d.sqlDB }

// Dialect returns the dialect the DB translates errors for.
func (d *DB) Dialect() Dialect { return d.dialect }

// Close closes the session and the pool. Safe to call multiple times.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.log.Info("Closing database connection")

	var errs []error
	if d.session != nil {
		errs = append(errs, d.session.Close())
		d.session = nil
	}
	errs = append(errs, d.sqlDB.Close())
	return errors.Join(errs...)
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.sqlDB.Ping()
}

// PingContext verifies the database connection is alive, respecting the context.
func (d *DB) PingContext(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Session returns the shared reconnecting session, opening it on first use.
func (d *DB) Session(ctx context.Context) (*SQLConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrConnClosed
	}
	if d.session != nil {
		return d.session, nil
	}
	s, err := d.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	d.session = s
	return s, nil
}

// NewSession opens a dedicated reconnecting session owned by the caller.
func (d *DB) NewSession(ctx context.Context) (*SQLConn, error) {
	connector := d.connector
	if connector == nil {
		connector = FromDB(d.sqlDB)
	}
	return NewSQLConn(ctx, connector,
		WithConnDialect(d.dialect),
		WithConnLogger(d.log),
	)
}

// Prepare prepares query on the shared session and returns a proxy that
// survives reconnects.
func (d *DB) Prepare(ctx context.Context, query string) (*StatementProxy, error) {
	s, err := d.Session(ctx)
	if err != nil {
		return nil, err
	}
	opts := append(d.cfg.ProxyOptions(), WithLogger(d.log), WithMetrics(d.metrics))
	return Prepare(ctx, s, query, opts...)
}

// WithContext returns a GORM session scoped to the given context, or nil
// without a GORM driver.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	if d.GormDB == nil {
		return nil
	}
	return d.GormDB.WithContext(ctx)
}

// AutoMigrate runs GORM auto-migration for the given models.
func (d *DB) AutoMigrate(models ...interface{}) error {
	if d.GormDB == nil {
		return ErrNoORM
	}
	d.log.Info("Running auto-migration", logger.Fields("models", len(models)))
	for _, model := range models {
		if err := d.GormDB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// TransactionFunc defines a function that runs within a transaction.
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction executes fn within a transaction with panic recovery.
func (d *DB) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if d.GormDB == nil {
		return ErrNoORM
	}
	tx := d.GormDB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			d.log.Error("Transaction rolled back due to panic", logger.Fields("panic", fmt.Sprintf("%v", r)))
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthStatus is a point-in-time view of the pool.
type HealthStatus struct {
	Connected  bool          `json:"connected"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
	OpenConns  int           `json:"open_connections"`
	InUseConns int           `json:"in_use_connections"`
	IdleConns  int           `json:"idle_connections"`
	Round      uint64        `json:"session_round"`
}

// CheckHealth pings the pool and reports its statistics.
func (d *DB) CheckHealth(ctx context.Context) HealthStatus {
	start := time.Now()
	if err := d.sqlDB.PingContext(ctx); err != nil {
		return HealthStatus{Connected: false, Error: err.Error(), Latency: time.Since(start)}
	}

	stats := d.sqlDB.Stats()
	status := HealthStatus{
		Connected:  true,
		Latency:    time.Since(start),
		OpenConns:  stats.OpenConnections,
		InUseConns: stats.InUse,
		IdleConns:  stats.Idle,
	}
	d.mu.Lock()
	if d.session != nil {
		status.Round = d.session.Round()
	}
	d.mu.Unlock()
	return status
}
