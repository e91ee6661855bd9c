package discovery

import (
	"time"

	"github.com/kbukum/resilix/redis"
	"github.com/kbukum/resilix/validation"
)

// Provider names.
const (
	ProviderStatic = "static"
	ProviderConsul = "consul"
	ProviderRedis  = "redis"
)

// Config holds name resolution configuration.
type Config struct {
	// Enabled controls whether the discovery component is active.
	Enabled bool `mapstructure:"enabled"`

	// Provider names a registered backend factory, e.g. "consul".
	Provider string `mapstructure:"provider"`

	// Policy selects the node order of multi-node lookups: "random",
	// "round_robin" or "weighted".
	Policy string `mapstructure:"policy"`

	// CacheTTL keeps cluster snapshots for this long. Zero disables caching.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// CacheSize bounds the number of cached clusters.
	CacheSize int `mapstructure:"cache_size"`

	// Include limits lookups to names matching one of these globs.
	Include []string `mapstructure:"include"`

	// Exclude defers names matching one of these globs to the next resolver.
	Exclude []string `mapstructure:"exclude"`

	// DNSServer ("host:port") resolves base URL hosts. Empty uses the system resolver.
	DNSServer string `mapstructure:"dns_server"`

	// DNSTimeout bounds one DNS exchange.
	DNSTimeout time.Duration `mapstructure:"dns_timeout"`

	// StaticEndpoints seeds the static provider.
	StaticEndpoints []StaticEndpoint `mapstructure:"static_endpoints"`

	// Registration joins this service to its cluster on Start.
	Registration RegistrationConfig `mapstructure:"registration"`

	// Consul configures the consul provider.
	Consul ConsulConfig `mapstructure:"consul"`

	// Redis configures the redis provider.
	Redis RedisConfig `mapstructure:"redis"`
}

// StaticEndpoint describes a statically configured cluster node.
type StaticEndpoint struct {
	Name     string            `mapstructure:"name"`
	Address  string            `mapstructure:"address"`
	Port     int               `mapstructure:"port"`
	Weight   int               `mapstructure:"weight"`
	Metadata map[string]string `mapstructure:"metadata"`
}

// RegistrationConfig describes the local service for self registration.
type RegistrationConfig struct {
	// ServiceName is the cluster to join. Empty disables self registration.
	ServiceName string `mapstructure:"service_name"`

	// ServiceID overrides the backend's registration ID.
	ServiceID string `mapstructure:"service_id"`

	// ServiceAddress is the advertised IP. Empty uses the outbound interface address.
	ServiceAddress string `mapstructure:"service_address"`

	// ServicePort is the advertised port.
	ServicePort int `mapstructure:"service_port"`

	// Weight biases selection where the backend supports it.
	Weight int `mapstructure:"weight"`

	// Tags are attached to the registration.
	Tags []string `mapstructure:"tags"`

	// Metadata is attached to the registration.
	Metadata map[string]string `mapstructure:"metadata"`
}

// ConsulConfig holds Consul agent settings.
type ConsulConfig struct {
	// Address is the Consul agent address (host:port).
	Address string `mapstructure:"address"`

	// Scheme is "http" or "https".
	Scheme string `mapstructure:"scheme"`

	// Datacenter to query. Empty uses the agent's.
	Datacenter string `mapstructure:"datacenter"`

	// Token is the ACL token.
	Token string `mapstructure:"token"`

	// Namespace for Consul Enterprise.
	Namespace string `mapstructure:"namespace"`

	// IDPrefix is prepended to generated registration IDs.
	IDPrefix string `mapstructure:"id_prefix"`

	// HealthCheckInterval enables a TCP check on joined nodes when non-zero.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	// HealthCheckTimeout is the timeout of one check.
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`

	// DeregisterAfter removes a node that stays critical this long.
	DeregisterAfter time.Duration `mapstructure:"deregister_after"`
}

// RedisConfig holds settings of the redis provider.
type RedisConfig struct {
	// Connection is the Redis server the membership sets live in.
	Connection redis.Config `mapstructure:"connection"`

	// Shared keeps membership on the service-wide redis section instead of
	// Connection. The client comes from the started redis component.
	Shared bool `mapstructure:"shared"`

	// KeyPrefix namespaces membership keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderStatic
	}
	if c.Policy == "" {
		c.Policy = string(PolicyRandom)
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.DNSTimeout <= 0 {
		c.DNSTimeout = 2 * time.Second
	}
	if c.Consul.Address == "" {
		c.Consul.Address = "localhost:8500"
	}
	if c.Consul.Scheme == "" {
		c.Consul.Scheme = "http"
	}
	if c.Consul.HealthCheckTimeout == 0 {
		c.Consul.HealthCheckTimeout = 5 * time.Second
	}
	if c.Consul.DeregisterAfter == 0 {
		c.Consul.DeregisterAfter = time.Minute
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "resilix:cluster"
	}
	if c.Provider == ProviderRedis && !c.Redis.Shared {
		c.Redis.Connection.Enabled = true
		c.Redis.Connection.ApplyDefaults()
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := validation.New().
		Required("provider", c.Provider).
		OneOf("policy", c.Policy, policyNames())

	for _, g := range c.Include {
		v.Glob("include", g)
	}
	for _, g := range c.Exclude {
		v.Glob("exclude", g)
	}
	if c.DNSServer != "" {
		v.HostPort("dns_server", c.DNSServer)
	}
	for _, ep := range c.StaticEndpoints {
		v.Required("static_endpoints.name", ep.Name).
			Required("static_endpoints.address", ep.Address).
			Range("static_endpoints.port", ep.Port, 1, 65535)
	}
	if c.Registration.ServiceName != "" {
		v.Range("registration.service_port", c.Registration.ServicePort, 1, 65535)
	}

	switch c.Provider {
	case ProviderConsul:
		v.HostPort("consul.address", c.Consul.Address).
			OneOf("consul.scheme", c.Consul.Scheme, []string{"http", "https"})
	case ProviderRedis:
		if c.Redis.Shared {
			break
		}
		conn := c.Redis.Connection
		conn.Enabled = true
		conn.ApplyDefaults()
		if err := conn.Validate(); err != nil {
			v.AddError("redis.connection", err.Error())
		}
	}
	return v.Validate()
}

// NameFilter builds the lookup filter from Include and Exclude, or nil
// when neither is set.
func (c *Config) NameFilter() Filter {
	var filters []Filter
	if len(c.Include) > 0 {
		filters = append(filters, MatchNames(c.Include...))
	}
	if len(c.Exclude) > 0 {
		filters = append(filters, ExcludeNames(c.Exclude...))
	}
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return AllOf(filters...)
	}
}

func policyNames() []string {
	names := make([]string, len(Policies))
	for i, p := range Policies {
		names[i] = string(p)
	}
	return names
}
