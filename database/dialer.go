package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/resilience"
)

// DSNFunc builds the data source name for one endpoint address.
type DSNFunc func(addr string) (string, error)

// AddressDSN returns a DSNFunc that points template at each address.
// MySQL DSNs get their network address replaced, PostgreSQL URLs their host,
// PostgreSQL key/value strings get host and port appended. Any other driver
// substitutes the literal "{addr}" in template.
func AddressDSN(driver, template string) DSNFunc {
	switch DialectForDriver(driver) {
	case DialectMySQL:
		return func(addr string) (string, error) {
			cfg, err := mysql.ParseDSN(template)
			if err != nil {
				return "", fmt.Errorf("parse mysql dsn: %w", err)
			}
			cfg.Net = "tcp"
			cfg.Addr = addr
			return cfg.FormatDSN(), nil
		}
	case DialectPostgres:
		return func(addr string) (string, error) {
			if strings.Contains(template, "://") {
				u, err := url.Parse(template)
				if err != nil {
					return "", fmt.Errorf("parse postgres url: %w", err)
				}
				u.Host = addr
				return u.String(), nil
			}
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(template + " host=" + host + " port=" + port), nil
		}
	default:
		return func(addr string) (string, error) {
			return strings.ReplaceAll(template, "{addr}", addr), nil
		}
	}
}

// Dialer is a Connector that resolves a service name on every connect and
// fails over across the returned endpoints. Endpoints that keep failing are
// skipped by a per-address circuit breaker until its timeout elapses.
type Dialer struct {
	resolver discovery.Lookuper
	service  string
	driver   string
	dsn      DSNFunc
	breakers *resilience.Breakers
	pool     PoolConfig
	log      *logger.Logger

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// PoolConfig sizes the per-endpoint pools a Dialer opens.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithBreaker sets the template for per-address circuit breakers.
func WithBreaker(cfg resilience.CircuitBreakerConfig) DialerOption {
	return func(d *Dialer) { d.breakers = resilience.NewBreakers(cfg) }
}

// WithPool sets per-endpoint pool limits.
func WithPool(p PoolConfig) DialerOption {
	return func(d *Dialer) { d.pool = p }
}

// WithDialerLogger sets the logger.
func WithDialerLogger(l *logger.Logger) DialerOption {
	return func(d *Dialer) { d.log = l }
}

// NewDialer creates a Dialer for service using the given database/sql driver.
func NewDialer(resolver discovery.Lookuper, service, driver string, dsn DSNFunc, opts ...DialerOption) *Dialer {
	d := &Dialer{
		resolver: resolver,
		service:  service,
		driver:   driver,
		dsn:      dsn,
		pools:    make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breakers == nil {
		d.breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig(service))
	}
	d.log = logger.OrNop(d.log).WithComponent("dialer")
	return d
}

// Connect resolves the service and returns a pinged connection to the first
// endpoint that answers.
func (d *Dialer) Connect(ctx context.Context) (*sql.Conn, error) {
	res, err := d.resolver.Lookup(ctx, d.service)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", d.service, err)
	}

	var conn *sql.Conn
	addr, err := discovery.Failover(ctx, res, func(ctx context.Context, addr string) error {
		return d.breakers.Get(addr).Execute(func() error {
			c, err := d.dial(ctx, addr)
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.service, err)
	}

	d.log.Debug("endpoint connected", logger.Fields(
		logger.FieldService, d.service,
		logger.FieldAddress, addr,
	))
	return conn, nil
}

func (d *Dialer) dial(ctx context.Context, addr string) (*sql.Conn, error) {
	pool, err := d.poolFor(addr)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) poolFor(addr string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pool, ok := d.pools[addr]; ok {
		return pool, nil
	}
	dsn, err := d.dsn(addr)
	if err != nil {
		return nil, err
	}
	pool, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.pool.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(d.pool.MaxOpenConns)
	}
	if d.pool.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(d.pool.MaxIdleConns)
	}
	if d.pool.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(d.pool.ConnMaxLifetime)
	}
	d.pools[addr] = pool
	return pool, nil
}

// Breakers returns the circuit state of every endpoint dialed so far.
func (d *Dialer) Breakers() map[string]resilience.State {
	return d.breakers.States()
}

// Close closes every endpoint pool.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for addr, pool := range d.pools {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(d.pools, addr)
	}
	return errors.Join(errs...)
}
