package database

import (
	"time"

	"github.com/kbukum/resilix/validation"
)

// Config holds database connection configuration.
type Config struct {
	// Enabled controls whether the database component is active.
	Enabled bool `mapstructure:"enabled"`

	// Driver is the database/sql driver name: "mysql", "postgres", "pgx" or "sqlite3".
	Driver string `mapstructure:"driver"`

	// DSN is the driver connection string.
	DSN string `mapstructure:"dsn"`

	// Dialect overrides the dialect derived from Driver. It selects the
	// error translation and the default transient code set.
	Dialect string `mapstructure:"dialect"`

	// MaxOpenConns sets the maximum number of open connections to the database.
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// ConnMaxLifetime is the maximum time a connection may be reused (e.g. "1h", "30m").
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum time a connection may sit idle (e.g. "5m", "10m").
	// If empty, no idle timeout is set.
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`

	// MaxRetries is the number of connection attempts before giving up.
	MaxRetries int `mapstructure:"max_retries"`

	// AutoMigrate controls whether GORM auto-migration runs on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `mapstructure:"slow_query_threshold"`

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level"`

	// Statement configures the reconnecting statement proxy.
	Statement StatementConfig `mapstructure:"statement"`
}

// StatementConfig configures how prepared statements recover from lost connections.
type StatementConfig struct {
	// MaxAttempts bounds the attempts per statement call, the first included.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Backoff is the wait before the second attempt (e.g. "50ms"). Empty retries immediately.
	Backoff string `mapstructure:"backoff"`

	// MaxBackoff caps the wait between attempts.
	MaxBackoff string `mapstructure:"max_backoff"`

	// TransientCodes are driver error codes treated as a lost connection.
	// Empty uses the dialect's built-in set.
	TransientCodes []int `mapstructure:"transient_codes"`

	// TransientStates are SQLSTATE values (or two-character classes) treated
	// as a lost connection.
	TransientStates []string `mapstructure:"transient_states"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "1h"
	}
	if c.ConnMaxIdleTime == "" {
		c.ConnMaxIdleTime = "5m"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Statement.MaxAttempts <= 0 {
		c.Statement.MaxAttempts = DefaultMaxAttempts
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := validation.New().
		Required("driver", c.Driver).
		Required("dsn", c.DSN).
		OneOf("dialect", c.Dialect, []string{string(DialectMySQL), string(DialectPostgres), string(DialectSQLite)}).
		OneOf("log_level", c.LogLevel, []string{"silent", "error", "warn", "info"}).
		Min("max_open_conns", c.MaxOpenConns, 1).
		Min("max_idle_conns", c.MaxIdleConns, 1).
		Min("max_retries", c.MaxRetries, 1).
		Range("statement.max_attempts", c.Statement.MaxAttempts, 1, 10).
		Custom(c.MaxIdleConns <= c.MaxOpenConns, "max_idle_conns", "must be <= max_open_conns")

	checkDuration(v, "conn_max_lifetime", c.ConnMaxLifetime, false)
	checkDuration(v, "conn_max_idle_time", c.ConnMaxIdleTime, true)
	checkDuration(v, "slow_query_threshold", c.SlowQueryThreshold, false)
	checkDuration(v, "statement.backoff", c.Statement.Backoff, true)
	checkDuration(v, "statement.max_backoff", c.Statement.MaxBackoff, true)

	for _, state := range c.Statement.TransientStates {
		v.Custom(len(state) == 2 || len(state) == 5, "statement.transient_states",
			"entries must be a SQLSTATE or a two-character class")
	}
	return v.Validate()
}

// DialectName returns the configured dialect, falling back to the driver's.
func (c *Config) DialectName() Dialect {
	if c.Dialect != "" {
		return Dialect(c.Dialect)
	}
	return DialectForDriver(c.Driver)
}

// Classifier returns the transient classifier for this configuration.
func (c *Config) Classifier() Classifier {
	if len(c.Statement.TransientCodes) == 0 && len(c.Statement.TransientStates) == 0 {
		return ClassifierFor(c.DialectName())
	}
	return NewCodeSet(c.Statement.TransientCodes, c.Statement.TransientStates)
}

// ProxyOptions converts the statement settings into proxy options.
func (c *Config) ProxyOptions() []ProxyOption {
	opts := []ProxyOption{
		WithDialect(c.DialectName()),
		WithClassifier(c.Classifier()),
	}
	if c.Statement.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(c.Statement.MaxAttempts))
	}
	if backoff := parseDuration(c.Statement.Backoff); backoff > 0 {
		opts = append(opts, WithRetryBackoff(backoff, parseDuration(c.Statement.MaxBackoff)))
	}
	return opts
}

func checkDuration(v *validation.Validator, field, value string, optional bool) {
	if value == "" && optional {
		return
	}
	_, err := time.ParseDuration(value)
	v.Custom(err == nil, field, "must be a duration such as 200ms or 1h")
}

// parseDuration returns zero for empty or malformed values.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
