// Package static provides an in-memory discovery backend seeded from
// configuration. Useful for local development and testing.
package static

import (
	"context"
	"sync"

	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/logger"
)

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderStatic, func(cfg discovery.Config, _ *logger.Logger) (discovery.Backend, error) {
		return NewProvider(discovery.Policy(cfg.Policy), cfg.StaticEndpoints), nil
	})
}

// Provider implements discovery.Backend over an in-memory map of clusters.
type Provider struct {
	policy discovery.Policy

	mu       sync.RWMutex
	clusters map[string][]discovery.Node // keyed by cluster name, in join order
}

// NewProvider creates a Provider pre-populated from static config.
func NewProvider(policy discovery.Policy, endpoints []discovery.StaticEndpoint) *Provider {
	p := &Provider{
		policy:   policy,
		clusters: make(map[string][]discovery.Node),
	}
	for _, ep := range endpoints {
		w := ep.Weight
		if w <= 0 {
			w = 1
		}
		p.upsert(ep.Name, discovery.Node{
			IP:       ep.Address,
			Port:     ep.Port,
			Weight:   w,
			Metadata: copyMeta(ep.Metadata),
		})
	}
	return p
}

// Join adds ip:port to the cluster. Joining an existing member updates its
// weight and metadata and reports false.
func (p *Provider) Join(_ context.Context, name, ip string, port int, opts ...discovery.JoinOption) (bool, error) {
	o := discovery.ApplyJoinOptions(opts...)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upsert(name, discovery.Node{
		IP:       ip,
		Port:     port,
		Weight:   o.Weight,
		Metadata: copyMeta(o.Metadata),
	}), nil
}

func (p *Provider) upsert(name string, n discovery.Node) bool {
	nodes := p.clusters[name]
	for i := range nodes {
		if nodes[i].IP == n.IP && nodes[i].Port == n.Port {
			nodes[i] = n
			return false
		}
	}
	p.clusters[name] = append(nodes, n)
	return true
}

// Leave removes ip:port from the cluster and reports whether it was a member.
func (p *Provider) Leave(_ context.Context, name, ip string, port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes := p.clusters[name]
	for i := range nodes {
		if nodes[i].IP == ip && nodes[i].Port == port {
			nodes = append(nodes[:i], nodes[i+1:]...)
			if len(nodes) == 0 {
				delete(p.clusters, name)
			} else {
				p.clusters[name] = nodes
			}
			return true, nil
		}
	}
	return false, nil
}

// GetCluster returns a snapshot of the cluster, or nil for unknown names.
func (p *Provider) GetCluster(_ context.Context, name string) (*discovery.Cluster, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nodes, ok := p.clusters[name]
	if !ok {
		return nil, nil
	}
	c := discovery.NewCluster(p.policy)
	for _, n := range nodes {
		n.Metadata = copyMeta(n.Metadata)
		c.Add(n)
	}
	return c, nil
}

// Names returns the known cluster names.
func (p *Provider) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.clusters))
	for name := range p.clusters {
		out = append(out, name)
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ discovery.Backend = (*Provider)(nil)
