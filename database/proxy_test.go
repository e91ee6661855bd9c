package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
)

var (
	errServerGone = &DriverError{Dialect: DialectMySQL, Code: 2006, SQLState: "HY000", Message: "MySQL server has gone away"}
	errDuplicate  = &DriverError{Dialect: DialectMySQL, Code: 1062, SQLState: "23000", Message: "Duplicate entry '1' for key 'PRIMARY'"}
)

// fakeConn is a Connection whose statements fail with queued errors.
type fakeConn struct {
	mu         sync.Mutex
	round      uint64
	reconnects int
	prepares   int
	closed     int

	// errs is consumed by Exec/Query calls across all statements; nil entries succeed.
	errs         []error
	reconnectErr error
	prepareErr   error
}

func (c *fakeConn) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *fakeConn) Reconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectErr != nil {
		return &ConnectionError{Round: c.round, Err: c.reconnectErr}
	}
	c.reconnects++
	c.round++
	return nil
}

func (c *fakeConn) Prepare(_ context.Context, query string) (Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	c.prepares++
	return &fakeStmt{conn: c, query: query, round: c.round}, nil
}

func (c *fakeConn) next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

type fakeStmt struct {
	conn  *fakeConn
	query string
	round uint64
}

func (s *fakeStmt) Exec(ctx context.Context, _ ...any) (sql.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.conn.next(); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (s *fakeStmt) Query(ctx context.Context, _ ...any) (*sql.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, s.conn.next()
}

func (s *fakeStmt) SQL() string { return s.query }

func (s *fakeStmt) Close() error {
	s.conn.mu.Lock()
	s.conn.closed++
	s.conn.mu.Unlock()
	return nil
}

func newTestProxy(t *testing.T, conn *fakeConn) *StatementProxy {
	t.Helper()
	p, err := Prepare(context.Background(), conn, "UPDATE t SET v = ? WHERE id = ?", WithDialect(DialectMySQL))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	return p
}

func TestStatementProxy_RecoversFromTransientFailures(t *testing.T) {
	tests := []struct {
		name           string
		errs           []error
		wantReconnects int
	}{
		{"no failure", nil, 0},
		{"one transient", []error{errServerGone}, 1},
		{"two transient", []error{errServerGone, errServerGone}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{errs: tt.errs}
			p := newTestProxy(t, conn)

			res, err := p.Exec(context.Background(), 1, 2)
			if err != nil {
				t.Fatalf("Exec() error = %v", err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				t.Errorf("RowsAffected() = %d, want 1", n)
			}
			if conn.reconnects != tt.wantReconnects {
				t.Errorf("reconnects = %d, want %d", conn.reconnects, tt.wantReconnects)
			}
			if conn.prepares != 1+tt.wantReconnects {
				t.Errorf("prepares = %d, want %d", conn.prepares, 1+tt.wantReconnects)
			}
			if p.Round() != conn.Round() {
				t.Errorf("proxy round = %d, connection round = %d", p.Round(), conn.Round())
			}
		})
	}
}

func TestStatementProxy_NonTransientFailsImmediately(t *testing.T) {
	conn := &fakeConn{errs: []error{errDuplicate}}
	p := newTestProxy(t, conn)

	_, err := p.Exec(context.Background())
	if err != errDuplicate {
		t.Fatalf("Exec() error = %v, want %v", err, errDuplicate)
	}
	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", conn.reconnects)
	}
	if conn.prepares != 1 {
		t.Errorf("prepares = %d, want 1", conn.prepares)
	}
}

func TestStatementProxy_ExhaustsAttempts(t *testing.T) {
	last := &DriverError{Dialect: DialectMySQL, Code: 2013, SQLState: "HY000", Message: "Lost connection"}
	conn := &fakeConn{errs: []error{errServerGone, errServerGone, last, nil}}
	p := newTestProxy(t, conn)

	_, err := p.Exec(context.Background())
	if err != last {
		t.Fatalf("Exec() error = %v, want final attempt error %v", err, last)
	}
	de, ok := AsDriverError(err)
	if !ok || de.Code != 2013 || de.Message != "Lost connection" {
		t.Errorf("driver error = %+v, want code 2013 with message", de)
	}
	if conn.reconnects != DefaultMaxAttempts-1 {
		t.Errorf("reconnects = %d, want %d", conn.reconnects, DefaultMaxAttempts-1)
	}
}

func TestStatementProxy_SharedConnectionReconnectsOnce(t *testing.T) {
	conn := &fakeConn{}
	first := newTestProxy(t, conn)
	second := newTestProxy(t, conn)

	conn.errs = []error{errServerGone}
	if _, err := first.Exec(context.Background()); err != nil {
		t.Fatalf("first Exec() error = %v", err)
	}

	conn.errs = []error{errServerGone}
	if _, err := second.Exec(context.Background()); err != nil {
		t.Fatalf("second Exec() error = %v", err)
	}

	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", conn.reconnects)
	}
	if conn.prepares != 4 {
		t.Errorf("prepares = %d, want 4", conn.prepares)
	}
	if first.Round() != 1 || second.Round() != 1 {
		t.Errorf("rounds = %d, %d, want 1, 1", first.Round(), second.Round())
	}
}

func TestStatementProxy_ReconnectFailure(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:3306: connection refused")
	conn := &fakeConn{errs: []error{errServerGone}, reconnectErr: cause}
	p := newTestProxy(t, conn)

	_, err := p.Exec(context.Background())
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Exec() error = %T %v, want *ConnectionError", err, err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error chain lost the cause: %v", err)
	}
	if conn.prepares != 1 {
		t.Errorf("prepares = %d, want 1", conn.prepares)
	}
}

func TestStatementProxy_PrepareFailure(t *testing.T) {
	conn := &fakeConn{}
	p := newTestProxy(t, conn)

	prepareErr := &DriverError{Dialect: DialectMySQL, Code: 1146, SQLState: "42S02", Message: "Table 't' doesn't exist"}
	conn.errs = []error{errServerGone}
	conn.prepareErr = prepareErr

	_, err := p.Exec(context.Background())
	if err != prepareErr {
		t.Fatalf("Exec() error = %v, want %v", err, prepareErr)
	}
	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", conn.reconnects)
	}
}

func TestStatementProxy_Query(t *testing.T) {
	conn := &fakeConn{errs: []error{errServerGone}}
	p := newTestProxy(t, conn)

	if _, err := p.Query(context.Background()); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", conn.reconnects)
	}
}

func TestStatementProxy_Closed(t *testing.T) {
	conn := &fakeConn{}
	p := newTestProxy(t, conn)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if conn.closed != 1 {
		t.Errorf("statement closed %d times, want 1", conn.closed)
	}
	if _, err := p.Exec(context.Background()); !errors.Is(err, ErrStatementClosed) {
		t.Errorf("Exec() after Close error = %v, want ErrStatementClosed", err)
	}
}

func TestStatementProxy_ContextCanceled(t *testing.T) {
	conn := &fakeConn{}
	p := newTestProxy(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Exec(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Exec() error = %v, want context.Canceled", err)
	}
	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", conn.reconnects)
	}
}

func TestStatementProxy_CustomClassifier(t *testing.T) {
	conn := &fakeConn{errs: []error{errDuplicate}}
	p, err := Prepare(context.Background(), conn, "INSERT INTO t VALUES (?)",
		WithDialect(DialectMySQL),
		WithClassifier(NewCodeSet([]int{1062}, nil)),
	)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if _, err := p.Exec(context.Background()); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", conn.reconnects)
	}
}

func TestStatementProxy_MaxAttempts(t *testing.T) {
	conn := &fakeConn{errs: []error{errServerGone, nil}}
	p, err := Prepare(context.Background(), conn, "SELECT 1", WithDialect(DialectMySQL), WithMaxAttempts(1))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if _, err := p.Exec(context.Background()); err != errServerGone {
		t.Fatalf("Exec() error = %v, want %v", err, errServerGone)
	}
	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", conn.reconnects)
	}
}

func TestStatementProxy_ConcurrentCallers(t *testing.T) {
	conn := &fakeConn{}
	p := newTestProxy(t, conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Exec(context.Background()); err != nil {
				t.Errorf("Exec() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", conn.reconnects)
	}
}

// heldStmt is a statement whose Exec can be parked mid-call and that fails
// the way database/sql does once closed.
type heldStmt struct {
	mu     sync.Mutex
	closed bool
	fail   error

	entered chan struct{}
	resume  chan struct{}
}

func (s *heldStmt) Exec(_ context.Context, args ...any) (sql.Result, error) {
	if len(args) > 0 && args[0] == "hold" {
		close(s.entered)
		<-s.resume
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &DriverError{Dialect: DialectMySQL, Message: "sql: statement is closed"}
	}
	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (s *heldStmt) Query(context.Context, ...any) (*sql.Rows, error) { return nil, nil }

func (s *heldStmt) SQL() string { return "UPDATE t SET v = 1" }

func (s *heldStmt) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *heldStmt) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// heldConn prepares the queued statements in order.
type heldConn struct {
	mu         sync.Mutex
	round      uint64
	reconnects int
	queue      []*heldStmt
}

func (c *heldConn) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *heldConn) Reconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	c.round++
	return nil
}

func (c *heldConn) Prepare(context.Context, string) (Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.queue[0]
	c.queue = c.queue[1:]
	return s, nil
}

func TestStatementProxy_RefreshKeepsInFlightStatementOpen(t *testing.T) {
	old := &heldStmt{
		fail:    errServerGone,
		entered: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	fresh := &heldStmt{}
	conn := &heldConn{queue: []*heldStmt{old, fresh}}

	p, err := Prepare(context.Background(), conn, old.SQL(), WithDialect(DialectMySQL))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	held := make(chan error, 1)
	go func() {
		_, err := p.Exec(context.Background(), "hold")
		held <- err
	}()
	<-old.entered

	// This call hits the server-gone failure, reconnects and swaps in the
	// fresh statement while the held call is still on the old one.
	if _, err := p.Exec(context.Background()); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if old.isClosed() {
		t.Fatal("replaced statement closed while a call was still running on it")
	}

	close(old.resume)
	if err := <-held; err != nil {
		t.Fatalf("held Exec() error = %v", err)
	}
	if !old.isClosed() {
		t.Error("replaced statement not closed after its last call returned")
	}
	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", conn.reconnects)
	}
}
