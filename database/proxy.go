package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/observability"
	"github.com/kbukum/resilix/resilience"
)

// DefaultMaxAttempts bounds how many times one operation runs, counting the first.
const DefaultMaxAttempts = 3

// ErrStatementClosed is returned by operations on a closed StatementProxy.
var ErrStatementClosed = errors.New("database: statement proxy is closed")

// StatementProxy is a Statement that absorbs transient I/O failures by
// reconnecting its Connection and re-preparing the query. It never closes
// the Connection.
type StatementProxy struct {
	conn       Connection
	query      string
	dialect    Dialect
	classifier Classifier
	retry      resilience.RetryConfig
	log        *logger.Logger
	metrics    *observability.Metrics

	mu     sync.Mutex
	cur    *lease
	round  uint64
	closed bool
}

// lease tracks the calls running on one prepared statement so a replaced
// statement is closed only after the last of them returns.
type lease struct {
	stmt    Statement
	users   int
	retired bool
}

// ProxyOption configures a StatementProxy.
type ProxyOption func(*StatementProxy)

// WithDialect sets the dialect used for metrics and the default classifier.
func WithDialect(d Dialect) ProxyOption {
	return func(p *StatementProxy) { p.dialect = d }
}

// WithClassifier overrides the transient error classification.
func WithClassifier(c Classifier) ProxyOption {
	return func(p *StatementProxy) { p.classifier = c }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) ProxyOption {
	return func(p *StatementProxy) {
		if n > 0 {
			p.retry.MaxAttempts = n
		}
	}
}

// WithRetryBackoff waits between attempts, growing exponentially from
// initial up to maxBackoff. The default is to retry immediately.
func WithRetryBackoff(initial, maxBackoff time.Duration) ProxyOption {
	return func(p *StatementProxy) {
		p.retry.InitialBackoff = initial
		p.retry.MaxBackoff = maxBackoff
	}
}

// WithLogger sets the logger for reconnect and refresh events.
func WithLogger(l *logger.Logger) ProxyOption {
	return func(p *StatementProxy) { p.log = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) ProxyOption {
	return func(p *StatementProxy) { p.metrics = m }
}

// NewStatementProxy wraps stmt, which must have been prepared on conn in
// its current round.
func NewStatementProxy(conn Connection, stmt Statement, opts ...ProxyOption) *StatementProxy {
	return newStatementProxy(conn, stmt, conn.Round(), opts)
}

// Prepare prepares query on conn and wraps the result in a StatementProxy.
func Prepare(ctx context.Context, conn Connection, query string, opts ...ProxyOption) (*StatementProxy, error) {
	round := conn.Round()
	stmt, err := conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return newStatementProxy(conn, stmt, round, opts), nil
}

func newStatementProxy(conn Connection, stmt Statement, round uint64, opts []ProxyOption) *StatementProxy {
	p := &StatementProxy{
		conn:  conn,
		query: stmt.SQL(),
		cur:   &lease{stmt: stmt},
		round: round,
		retry: resilience.RetryConfig{
			MaxAttempts:   DefaultMaxAttempts,
			BackoffFactor: 2.0,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.classifier == nil {
		p.classifier = ClassifierFor(p.dialect)
	}
	p.log = logger.OrNop(p.log).WithComponent("statement")
	return p
}

// Exec runs the statement, retrying transient failures.
func (p *StatementProxy) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	return run(ctx, p, observability.SpanStatementExec, "exec", func(ctx context.Context, s Statement) (sql.Result, error) {
		return s.Exec(ctx, args...)
	})
}

// Query runs the statement, retrying transient failures. Errors raised
// while iterating the returned rows are not retried.
func (p *StatementProxy) Query(ctx context.Context, args ...any) (*sql.Rows, error) {
	return run(ctx, p, observability.SpanStatementQuery, "query", func(ctx context.Context, s Statement) (*sql.Rows, error) {
		return s.Query(ctx, args...)
	})
}

// SQL returns the original query text.
func (p *StatementProxy) SQL() string { return p.query }

// Round returns the connection round recorded when the current statement
// was acquired.
func (p *StatementProxy) Round() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.round
}

// Close closes the current statement, or marks it for closing when calls
// are still running on it. The Connection stays open.
func (p *StatementProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.retire(p.cur)
}

// acquire hands out the current statement and counts the caller as a user.
func (p *StatementProxy) acquire() (*lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrStatementClosed
	}
	p.cur.users++
	return p.cur, nil
}

func (p *StatementProxy) release(l *lease) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.users--
	if l.retired && l.users == 0 {
		if err := l.stmt.Close(); err != nil {
			p.log.Debug("closing stale statement failed", logger.ErrorFields("close", err))
		}
	}
}

// retire marks l as replaced and closes it if nobody is using it.
// Callers hold p.mu.
func (p *StatementProxy) retire(l *lease) error {
	l.retired = true
	if l.users > 0 {
		return nil
	}
	return l.stmt.Close()
}

func run[T any](ctx context.Context, p *StatementProxy, spanName, op string, call func(context.Context, Statement) (T, error)) (T, error) {
	ctx, span := observability.StartSpan(ctx, spanName)
	span.SetAttributes(
		attribute.String(observability.AttrQuery, p.query),
		attribute.String(observability.AttrDialect, string(p.dialect)),
	)
	start := time.Now()

	var (
		stale    *lease
		attempts int
		reason   = "permanent"
	)

	cfg := p.retry
	cfg.RetryIf = func(err error) bool { return IsTransient(p.classifier, err) }
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		code := ""
		if de, ok := AsDriverError(err); ok {
			code = driverCode(de)
		}
		p.metrics.RecordRetry(ctx, string(p.dialect), code)
		p.log.Debug("transient statement failure", logger.Fields(
			logger.FieldOperation, op,
			logger.FieldAttempt, attempt,
			logger.FieldCode, code,
			logger.FieldError, err.Error(),
			"backoff", backoff.String(),
		))
	}

	result, err := resilience.RetryN(ctx, cfg, func(attempt int) (T, error) {
		var zero T
		attempts = attempt

		if attempt > 1 {
			if err := p.refresh(ctx, stale, &reason); err != nil {
				return zero, resilience.Permanent(err)
			}
		}
		l, err := p.acquire()
		if err != nil {
			return zero, resilience.Permanent(err)
		}

		out, err := call(ctx, l.stmt)
		p.release(l)
		if err != nil {
			stale = l
			if attempt == cfg.MaxAttempts && cfg.RetryIf(err) {
				reason = "exhausted"
			}
			return zero, err
		}
		return out, nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordStatementFailure(ctx, string(p.dialect), reason)
	}
	p.metrics.RecordOperation(ctx, "statement", op, status, time.Since(start))
	span.SetAttributes(
		attribute.Int(observability.AttrAttempts, attempts),
		attribute.Int64(observability.AttrRound, int64(p.Round())),
	)
	observability.EndSpan(span, err)
	return result, err
}

// refresh swaps in a statement prepared on a live connection. It reconnects
// only when the connection is still in the round the failed statement was
// acquired in.
func (p *StatementProxy) refresh(ctx context.Context, stale *lease, reason *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStatementClosed
	}
	// Another caller of this proxy already replaced the failed statement.
	if p.cur != stale {
		return nil
	}

	if current := p.conn.Round(); current == p.round {
		if err := p.reconnect(ctx, current); err != nil {
			*reason = "reconnect"
			p.metrics.RecordReconnect(ctx, "failed")
			return err
		}
		p.metrics.RecordReconnect(ctx, "ok")
		p.log.Info("connection reconnected", logger.Fields(
			logger.FieldRound, p.conn.Round(),
			logger.FieldQuery, p.query,
		))
	} else {
		p.metrics.RecordReconnect(ctx, "skipped")
		p.log.Debug("connection already reconnected", logger.Fields(
			logger.FieldRound, current,
			"recorded_round", p.round,
		))
	}

	round := p.conn.Round()
	stmt, err := p.conn.Prepare(ctx, p.query)
	if err != nil {
		*reason = "prepare"
		return err
	}

	old := p.cur
	p.cur, p.round = &lease{stmt: stmt}, round
	if err := p.retire(old); err != nil {
		p.log.Debug("closing stale statement failed", logger.ErrorFields("close", err))
	}
	return nil
}

// roundReconnector is implemented by connections that can reconnect
// conditionally on the round, closing the gap between reading the round and
// reconnecting.
type roundReconnector interface {
	ReconnectAt(ctx context.Context, seen uint64) error
}

func (p *StatementProxy) reconnect(ctx context.Context, seen uint64) error {
	if rc, ok := p.conn.(roundReconnector); ok {
		return rc.ReconnectAt(ctx, seen)
	}
	return p.conn.Reconnect(ctx)
}

func driverCode(de *DriverError) string {
	if de.Code != 0 {
		return strconv.Itoa(de.Code)
	}
	return de.SQLState
}
