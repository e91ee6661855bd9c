// Package redis provides a discovery backend that keeps cluster membership
// in Redis sets.
//
// Each cluster is a set at "<prefix>:<name>" whose members are "ip:port".
// Per-node weight and metadata live in JSON records beside the set.
package redis

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/logger"
	rredis "github.com/kbukum/resilix/redis"
)

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderRedis, func(cfg discovery.Config, log *logger.Logger) (discovery.Backend, error) {
		conn := cfg.Redis.Connection
		conn.Enabled = true
		client, err := rredis.New(conn, log)
		if err != nil {
			return nil, err
		}
		p := NewProvider(client, cfg.Redis.KeyPrefix, discovery.Policy(cfg.Policy), log)
		p.ownsClient = true
		return p, nil
	})
}

// SharedFactory builds providers on the client of a redis component. The
// component must be started first and keeps ownership of the client.
func SharedFactory(rc *rredis.Component) discovery.ProviderFactory {
	return func(cfg discovery.Config, log *logger.Logger) (discovery.Backend, error) {
		client, err := rc.SharedClient()
		if err != nil {
			return nil, err
		}
		return NewProvider(client, cfg.Redis.KeyPrefix, discovery.Policy(cfg.Policy), log), nil
	}
}

// nodeRecord is the stored form of a member's attributes.
type nodeRecord struct {
	Weight   int               `json:"weight"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider implements discovery.Backend on a Redis client.
type Provider struct {
	client  *rredis.Client
	prefix  string
	policy  discovery.Policy
	records *rredis.TypedStore[nodeRecord]
	log     *logger.Logger

	ownsClient bool
}

// NewProvider creates a Provider storing keys under prefix.
func NewProvider(client *rredis.Client, prefix string, policy discovery.Policy, log *logger.Logger) *Provider {
	return &Provider{
		client:  client,
		prefix:  prefix,
		policy:  policy,
		records: rredis.NewTypedStore[nodeRecord](client, prefix+":node"),
		log:     logger.OrNop(log).WithComponent("redis-discovery"),
	}
}

func (p *Provider) setKey(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + ":" + name
}

func member(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

// Join adds ip:port to the cluster set and stores its attributes. It
// reports false when the node was already a member.
func (p *Provider) Join(ctx context.Context, name, ip string, port int, opts ...discovery.JoinOption) (bool, error) {
	o := discovery.ApplyJoinOptions(opts...)
	m := member(ip, port)

	rec := &nodeRecord{Weight: o.Weight, Metadata: o.Metadata}
	if err := p.records.Save(ctx, name+"/"+m, rec, 0); err != nil {
		return false, err
	}
	added, err := p.client.SAdd(ctx, p.setKey(name), m)
	if err != nil {
		return false, fmt.Errorf("redis join %q: %w", name, err)
	}
	if added > 0 {
		p.log.Debug("node joined", logger.Fields(logger.FieldService, name, logger.FieldAddress, m))
	}
	return added > 0, nil
}

// Leave removes ip:port from the cluster set and reports whether it was a member.
func (p *Provider) Leave(ctx context.Context, name, ip string, port int) (bool, error) {
	m := member(ip, port)
	removed, err := p.client.SRem(ctx, p.setKey(name), m)
	if err != nil {
		return false, fmt.Errorf("redis leave %q: %w", name, err)
	}
	if err := p.records.Delete(ctx, name+"/"+m); err != nil {
		return removed > 0, err
	}
	return removed > 0, nil
}

// GetCluster reads the cluster set. A missing or empty set yields nil.
// Members are added in sorted order so round robin is stable.
func (p *Provider) GetCluster(ctx context.Context, name string) (*discovery.Cluster, error) {
	members, err := p.client.SMembers(ctx, p.setKey(name))
	if err != nil {
		return nil, fmt.Errorf("redis discover %q: %w", name, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	sort.Strings(members)

	recordKeys := make([]string, len(members))
	for i, m := range members {
		recordKeys[i] = name + "/" + m
	}
	records, err := p.records.LoadMany(ctx, recordKeys...)
	if err != nil {
		return nil, err
	}

	c := discovery.NewCluster(p.policy)
	for i, m := range members {
		host, portStr, err := net.SplitHostPort(m)
		if err != nil {
			p.log.Warn("skipping malformed member", logger.Fields(logger.FieldService, name, logger.FieldAddress, m))
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			p.log.Warn("skipping malformed member", logger.Fields(logger.FieldService, name, logger.FieldAddress, m))
			continue
		}
		n := discovery.Node{IP: host, Port: port, Weight: 1}
		if rec := records[i]; rec != nil {
			n.Weight = rec.Weight
			n.Metadata = rec.Metadata
		}
		c.Add(n)
	}
	if c.Count() == 0 {
		return nil, nil
	}
	return c, nil
}

// Ping checks the Redis connection.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close closes the Redis client when the provider created it.
func (p *Provider) Close() error {
	if !p.ownsClient {
		return nil
	}
	return p.client.Close()
}

var _ discovery.Backend = (*Provider)(nil)
