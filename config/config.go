package config

import (
	"fmt"

	"github.com/kbukum/resilix/database"
	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/observability"
	"github.com/kbukum/resilix/redis"
	"github.com/kbukum/resilix/validation"
	"github.com/kbukum/resilix/version"
)

// Config is the full resilix configuration tree.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Database  database.Config            `yaml:"database" mapstructure:"database"`
	Discovery discovery.Config           `yaml:"discovery" mapstructure:"discovery"`
	Redis     redis.Config               `yaml:"redis" mapstructure:"redis"`
	Metrics   observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
	Tracing   observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = version.Get().String()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Discovery.ApplyDefaults()
	if c.Redis.Enabled {
		c.Redis.ApplyDefaults()
	}

	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.Name
	}
	if c.Metrics.ServiceVersion == "" {
		c.Metrics.ServiceVersion = c.Version
	}
	if c.Metrics.Environment == "" {
		c.Metrics.Environment = c.Environment
	}
	c.Metrics.ApplyDefaults()

	d := observability.DefaultTracerConfig(c.Name)
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.ServiceName
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = c.Version
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = d.ServiceVersion
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.Environment
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = d.Endpoint
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = d.SampleRate
	}
}

// Validate checks every section and reports the first failure.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("config.database: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("config.discovery: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if c.Discovery.Enabled && c.sharesRedis() && !c.Redis.Enabled {
		v := validation.New()
		v.AddError("redis.shared", "requires the redis section to be enabled")
		return fmt.Errorf("config.discovery: %w", v.Validate())
	}
	return nil
}

// Load reads configuration for serviceName, applies defaults and validates it.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(serviceName, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
