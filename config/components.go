package config

import (
	"fmt"

	"github.com/kbukum/resilix/component"
	"github.com/kbukum/resilix/database"
	"github.com/kbukum/resilix/discovery"
	_ "github.com/kbukum/resilix/discovery/consul"
	discoveryredis "github.com/kbukum/resilix/discovery/redis"
	_ "github.com/kbukum/resilix/discovery/static"
	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/observability"
	"github.com/kbukum/resilix/redis"
)

// Components registers a component for every enabled section, in the order
// they depend on each other: redis, database, discovery. A nil metrics
// records nothing.
func (c *Config) Components(log *logger.Logger, metrics *observability.Metrics) (*component.Registry, error) {
	reg := component.NewRegistry(log)

	var rc *redis.Component
	if c.Redis.Enabled {
		rc = redis.NewComponent(c.Redis, log)
		if err := reg.Register(rc); err != nil {
			return nil, err
		}
	}

	if c.Database.Enabled {
		db := database.NewComponent(c.Database, log).WithOptions(database.WithDBMetrics(metrics))
		if err := reg.Register(db); err != nil {
			return nil, err
		}
	}

	if c.Discovery.Enabled {
		dc := discovery.NewComponent(c.Discovery, log).WithMetrics(metrics)
		if c.sharesRedis() {
			if rc == nil {
				return nil, fmt.Errorf("config.discovery: redis.shared requires the redis section to be enabled")
			}
			dc.WithFactory(discoveryredis.SharedFactory(rc))
		}
		if err := reg.Register(dc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (c *Config) sharesRedis() bool {
	return c.Discovery.Provider == discovery.ProviderRedis && c.Discovery.Redis.Shared
}
