// Package discovery resolves service names to endpoints.
//
// A Backend stores cluster membership. A Resolver wraps a Backend with an
// optional name filter and answers Lookup with one of four outcomes:
// Deferred (the filter declined the name), NotFound, Single or Failover.
// Resolvers compose with Chain, and Failover drives a result by dialing
// nodes until one answers.
//
// # Architecture
//
//   - Resolver: filter decorator and three-way Lookup over a Backend
//   - Chain: ordered resolvers where Deferred falls through
//   - CachedBackend: TTL-bounded LRU of cluster snapshots
//   - NormalizeBaseURL: rewrites a base URL host to an IP literal
//   - Cluster: nodes popped without replacement, at random, in
//     registration order, or weighted by Node.Weight
//
// # Backends
//
//   - discovery/static: in-memory clusters seeded from configuration
//   - discovery/consul: HashiCorp Consul agent registrations
//   - discovery/redis: Redis sets keyed by cluster name
package discovery
