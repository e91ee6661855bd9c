// Package consul provides a discovery backend on the HashiCorp Consul agent API.
package consul

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/logger"
)

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderConsul, func(cfg discovery.Config, log *logger.Logger) (discovery.Backend, error) {
		return NewProvider(cfg, log)
	})
}

// Provider implements discovery.Backend with Consul service registrations.
// Only passing instances are returned by GetCluster.
type Provider struct {
	client *api.Client
	cfg    discovery.ConsulConfig
	policy discovery.Policy
	log    *logger.Logger
}

// NewProvider creates a Provider from the given Config.
func NewProvider(cfg discovery.Config, log *logger.Logger) (*Provider, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Consul.Address
	apiCfg.Scheme = cfg.Consul.Scheme
	apiCfg.Token = cfg.Consul.Token
	apiCfg.Namespace = cfg.Consul.Namespace
	if cfg.Consul.Datacenter != "" {
		apiCfg.Datacenter = cfg.Consul.Datacenter
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	return &Provider{
		client: client,
		cfg:    cfg.Consul,
		policy: discovery.Policy(cfg.Policy),
		log:    logger.OrNop(log).WithComponent("consul"),
	}, nil
}

// ServiceID returns the registration ID used for ip:port in cluster name.
func (p *Provider) ServiceID(name, ip string, port int) string {
	return p.cfg.IDPrefix + name + "_" + net.JoinHostPort(ip, strconv.Itoa(port))
}

// Join registers ip:port under name. Re-registering an existing ID updates
// it and reports false.
func (p *Provider) Join(_ context.Context, name, ip string, port int, opts ...discovery.JoinOption) (bool, error) {
	o := discovery.ApplyJoinOptions(opts...)
	id := o.ID
	if id == "" {
		id = p.ServiceID(name, ip, port)
	}

	existed, err := p.registered(id)
	if err != nil {
		return false, err
	}

	reg := &api.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Address: ip,
		Port:    port,
		Tags:    o.Tags,
		Meta:    o.Metadata,
		Weights: &api.AgentWeights{Passing: o.Weight, Warning: 1},
	}
	if p.cfg.HealthCheckInterval > 0 {
		reg.Check = &api.AgentServiceCheck{
			TCP:                            net.JoinHostPort(ip, strconv.Itoa(port)),
			Interval:                       p.cfg.HealthCheckInterval.String(),
			Timeout:                        p.cfg.HealthCheckTimeout.String(),
			DeregisterCriticalServiceAfter: p.cfg.DeregisterAfter.String(),
		}
	}

	if err := p.client.Agent().ServiceRegister(reg); err != nil {
		p.log.Error("failed to register service", logger.Fields(
			logger.FieldService, name,
			"service_id", id,
			logger.FieldError, err.Error(),
		))
		return false, fmt.Errorf("consul register %q: %w", name, err)
	}

	p.log.Info("service registered", logger.Fields(
		logger.FieldService, name,
		"service_id", id,
		logger.FieldAddress, net.JoinHostPort(ip, strconv.Itoa(port)),
	))
	return !existed, nil
}

// Leave deregisters ip:port from name and reports whether it was registered.
func (p *Provider) Leave(_ context.Context, name, ip string, port int) (bool, error) {
	id := p.ServiceID(name, ip, port)
	existed, err := p.registered(id)
	if err != nil || !existed {
		return false, err
	}
	if err := p.client.Agent().ServiceDeregister(id); err != nil {
		return false, fmt.Errorf("consul deregister %q: %w", id, err)
	}
	p.log.Info("service deregistered", logger.Fields(logger.FieldService, name, "service_id", id))
	return true, nil
}

func (p *Provider) registered(id string) (bool, error) {
	services, err := p.client.Agent().Services()
	if err != nil {
		return false, fmt.Errorf("consul agent services: %w", err)
	}
	_, ok := services[id]
	return ok, nil
}

// GetCluster queries Consul for passing instances of name. No instances
// yields a nil cluster.
func (p *Provider) GetCluster(ctx context.Context, name string) (*discovery.Cluster, error) {
	q := (&api.QueryOptions{}).WithContext(ctx)
	entries, _, err := p.client.Health().Service(name, "", true, q)
	if err != nil {
		return nil, fmt.Errorf("consul discover %q: %w", name, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	c := discovery.NewCluster(p.policy)
	for _, e := range entries {
		c.Add(entryToNode(e))
	}
	return c, nil
}

// Ping checks that the agent can reach a cluster leader.
func (p *Provider) Ping(ctx context.Context) error {
	leader, err := p.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("consul status: %w", err)
	}
	if leader == "" {
		return fmt.Errorf("consul: no cluster leader")
	}
	return nil
}

func entryToNode(e *api.ServiceEntry) discovery.Node {
	addr := e.Service.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}
	weight := e.Service.Weights.Passing
	if weight <= 0 {
		weight = 1
	}
	var meta map[string]string
	if len(e.Service.Meta) > 0 {
		meta = make(map[string]string, len(e.Service.Meta))
		for k, v := range e.Service.Meta {
			meta[k] = v
		}
	}
	return discovery.Node{
		IP:       addr,
		Port:     e.Service.Port,
		Weight:   weight,
		Metadata: meta,
	}
}

var _ discovery.Backend = (*Provider)(nil)
