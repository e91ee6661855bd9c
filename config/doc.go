// Package config loads resilix configuration.
//
// Values come from a YAML file found under cmd/<service>, config/ or the
// working directory, an optional .env file and the process environment,
// in increasing precedence. Environment variables map onto nested keys by
// splitting on underscores, so DISCOVERY_CONSUL_ADDRESS sets
// discovery.consul.address.
//
// # Usage
//
//	cfg, err := config.Load("orders")
//	reg, err := cfg.Components(log, metrics)
//	if err := reg.StartAll(ctx); err != nil { ... }
//
// With discovery.provider "redis" and discovery.redis.shared set, the
// discovery backend uses the client of the redis section.
package config
