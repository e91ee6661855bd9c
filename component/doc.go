// Package component defines the lifecycle contract shared by the resilix
// infrastructure pieces (database pool, discovery backend, redis client).
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse order.
package component
