package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/resilix/component"
	"github.com/kbukum/resilix/logger"
)

// ErrNotStarted is returned by SharedClient before Start or after Stop.
var ErrNotStarted = errors.New("redis: component not started")

// slowPing marks the connection degraded.
const slowPing = 250 * time.Millisecond

// Component owns the service-wide Redis client. Other components, such as
// the redis discovery backend, borrow it through SharedClient and must be
// registered after it so they stop first.
type Component struct {
	cfg Config
	log *logger.Logger

	mu     sync.RWMutex
	client *Client
}

// NewComponent creates a Redis component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg: cfg,
		log: logger.OrNop(log).WithComponent("redis"),
	}
}

// Client returns the client, or nil when the component is not running.
func (c *Component) Client() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// SharedClient returns the client for a dependent component. The caller
// must not close it.
func (c *Component) SharedClient() (*Client, error) {
	if client := c.Client(); client != nil {
		return client, nil
	}
	return nil, ErrNotStarted
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start creates the client and pings the server.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start %s: %w", c.cfg.Addr, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

// Stop closes the client. Dependents lose access through SharedClient.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	c.log.Info("closing redis client", logger.Fields(logger.FieldAddress, c.cfg.Addr))
	return client.Close()
}

// Health pings the server. A slow answer reports degraded.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}

	client := c.Client()
	if client == nil {
		h.Status = component.StatusUnhealthy
		h.Message = ErrNotStarted.Error()
		return h
	}

	start := time.Now()
	err := client.Ping(ctx)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		h.Status = component.StatusUnhealthy
		h.Message = err.Error()
	case elapsed > slowPing:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("ping took %s", elapsed.Round(time.Millisecond))
	}
	return h
}

// Describe summarizes the Redis connection.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize),
	}
}
