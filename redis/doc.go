// Package redis wraps go-redis with service logging, string-based
// configuration and component lifecycle support.
//
// Besides plain key and set operations it offers TypedStore, a JSON
// serializing store with key prefixes and TTLs. The Redis discovery backend
// keeps cluster membership in sets and node metadata in a TypedStore, and
// can borrow the Component's client through SharedClient.
//
//	comp := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	if err := comp.Start(ctx); err != nil { ... }
//	store := redis.NewTypedStore[Record](comp.Client(), "nodes")
package redis
