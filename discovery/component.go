package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/kbukum/resilix/component"
	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/observability"
)

// ProviderFactory creates a Backend from a Config.
type ProviderFactory func(cfg Config, log *logger.Logger) (Backend, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a backend factory for the given provider
// name. Backend packages call this from an init function.
func RegisterProviderFactory(name string, f ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[name] = f
}

func lookupFactory(name string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[name]
	return f, ok
}

// pinger is implemented by backends that can check their store.
type pinger interface {
	Ping(ctx context.Context) error
}

// Component builds a Resolver from Config and implements
// component.Component for lifecycle management.
type Component struct {
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics

	factory  ProviderFactory
	backend  Backend
	resolver *Resolver
	hosts    HostResolver
	joined   bool
	joinIP   string
}

// NewComponent creates a discovery Component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg: cfg,
		log: logger.OrNop(log).WithComponent("discovery"),
	}
}

// WithMetrics records lookup outcomes of the built resolver.
func (c *Component) WithMetrics(m *observability.Metrics) *Component {
	c.metrics = m
	return c
}

// WithFactory builds the backend with f instead of the factory registered
// for the configured provider.
func (c *Component) WithFactory(f ProviderFactory) *Component {
	c.factory = f
	return c
}

// WithBackend uses b instead of the configured provider.
func (c *Component) WithBackend(b Backend) *Component {
	c.backend = b
	return c
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "discovery" }

// Resolver returns the configured Resolver, or nil if not started.
func (c *Component) Resolver() *Resolver { return c.resolver }

// Backend returns the membership backend, or nil if not started.
func (c *Component) Backend() Backend { return c.backend }

// HostResolver returns the resolver used for base URL normalisation.
func (c *Component) HostResolver() HostResolver {
	if c.hosts == nil {
		return net.DefaultResolver
	}
	return c.hosts
}

// NormalizeBaseURL rewrites raw with the component's HostResolver.
func (c *Component) NormalizeBaseURL(ctx context.Context, raw string) (string, error) {
	return NormalizeBaseURL(ctx, raw, c.HostResolver())
}

// Start creates the backend, wraps it in a Resolver and joins the local
// service when registration is configured.
func (c *Component) Start(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	provider := c.cfg.Provider
	if c.backend == nil {
		f := c.factory
		if f == nil {
			var ok bool
			if f, ok = lookupFactory(provider); !ok {
				return fmt.Errorf("unsupported discovery provider %q (not registered)", provider)
			}
		}
		b, err := f(c.cfg, c.log)
		if err != nil {
			return fmt.Errorf("discovery start: %w", err)
		}
		c.backend = b
	} else {
		provider = "custom"
	}

	if c.cfg.CacheTTL > 0 {
		c.backend = NewCachedBackend(c.backend, c.cfg.CacheSize, c.cfg.CacheTTL)
	}

	c.resolver = New(c.backend,
		WithProvider(provider),
		WithLogger(c.log),
		WithMetrics(c.metrics),
	).WithFilter(c.cfg.NameFilter())

	if c.cfg.DNSServer != "" {
		c.hosts = NewDNSHostResolver(c.cfg.DNSServer, "udp", c.cfg.DNSTimeout)
	}

	if err := c.join(ctx); err != nil {
		return err
	}

	c.log.Info("discovery component started", logger.Fields(
		logger.FieldProvider, provider,
		"filtered", c.resolver.HasFilter(),
	))
	return nil
}

func (c *Component) join(ctx context.Context) error {
	reg := c.cfg.Registration
	if reg.ServiceName == "" {
		return nil
	}
	ip := reg.ServiceAddress
	if ip == "" {
		local, err := getLocalIP()
		if err != nil {
			return fmt.Errorf("discovery: resolve local IP: %w", err)
		}
		ip = local
	}

	var opts []JoinOption
	if reg.Weight > 0 {
		opts = append(opts, WithWeight(reg.Weight))
	}
	if len(reg.Tags) > 0 {
		opts = append(opts, WithTags(reg.Tags...))
	}
	for k, v := range reg.Metadata {
		opts = append(opts, WithMetadata(k, v))
	}
	if reg.ServiceID != "" {
		opts = append(opts, WithID(reg.ServiceID))
	}

	added, err := c.backend.Join(ctx, reg.ServiceName, ip, reg.ServicePort, opts...)
	if err != nil {
		return fmt.Errorf("discovery: join %s: %w", reg.ServiceName, err)
	}
	c.joined = true
	c.joinIP = ip
	c.log.Info("joined cluster", logger.Fields(
		logger.FieldService, reg.ServiceName,
		logger.FieldAddress, net.JoinHostPort(ip, fmt.Sprint(reg.ServicePort)),
		"added", added,
	))
	return nil
}

// Stop leaves the cluster if Start joined it and closes the backend.
func (c *Component) Stop(ctx context.Context) error {
	c.log.Info("discovery component stopping")

	if c.joined {
		reg := c.cfg.Registration
		if _, err := c.backend.Leave(ctx, reg.ServiceName, c.joinIP, reg.ServicePort); err != nil {
			c.log.Warn("failed to leave cluster on stop", logger.Fields(
				logger.FieldService, reg.ServiceName,
				logger.FieldError, err.Error(),
			))
		}
		c.joined = false
	}

	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Health reports unhealthy before Start and pings backends that support it.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.resolver == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "discovery not initialized",
		}
	}
	if p, ok := c.backend.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return component.Health{
				Name:    c.Name(),
				Status:  component.StatusDegraded,
				Message: err.Error(),
			}
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the bootstrap display.
func (c *Component) Describe() component.Description {
	details := fmt.Sprintf("provider=%s policy=%s", c.cfg.Provider, c.cfg.Policy)
	if c.cfg.Registration.ServiceName != "" {
		details += " service=" + c.cfg.Registration.ServiceName
	}
	return component.Description{
		Name:    "Discovery",
		Type:    "discovery",
		Details: details,
	}
}

func getLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
