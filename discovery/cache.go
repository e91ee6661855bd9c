package discovery

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedBackend keeps cluster snapshots of an inner Backend in a bounded
// LRU with a TTL. Join and Leave go straight to the inner backend and drop
// the cached entry for that name. Every GetCluster returns a fresh copy.
type CachedBackend struct {
	inner Backend
	cache *expirable.LRU[string, *Cluster]
}

// NewCachedBackend wraps inner with a cache of size entries living ttl.
// A non-positive size defaults to 256.
func NewCachedBackend(inner Backend, size int, ttl time.Duration) *CachedBackend {
	if size <= 0 {
		size = 256
	}
	return &CachedBackend{
		inner: inner,
		cache: expirable.NewLRU[string, *Cluster](size, nil, ttl),
	}
}

// Join registers the node and invalidates the cached cluster.
func (b *CachedBackend) Join(ctx context.Context, name, ip string, port int, opts ...JoinOption) (bool, error) {
	changed, err := b.inner.Join(ctx, name, ip, port, opts...)
	b.cache.Remove(name)
	return changed, err
}

// Leave deregisters the node and invalidates the cached cluster.
func (b *CachedBackend) Leave(ctx context.Context, name, ip string, port int) (bool, error) {
	changed, err := b.inner.Leave(ctx, name, ip, port)
	b.cache.Remove(name)
	return changed, err
}

// GetCluster serves from the cache, loading from the inner backend on a
// miss. Unknown names are not cached.
func (b *CachedBackend) GetCluster(ctx context.Context, name string) (*Cluster, error) {
	if c, ok := b.cache.Get(name); ok {
		return c.Clone(), nil
	}
	c, err := b.inner.GetCluster(ctx, name)
	if err != nil || c == nil {
		return c, err
	}
	b.cache.Add(name, c.Clone())
	return c, nil
}

// Invalidate drops the cached cluster for name.
func (b *CachedBackend) Invalidate(name string) {
	b.cache.Remove(name)
}

// Len returns the number of cached clusters.
func (b *CachedBackend) Len() int {
	return b.cache.Len()
}

// Ping checks the inner backend when it supports pinging.
func (b *CachedBackend) Ping(ctx context.Context) error {
	if p, ok := b.inner.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close purges the cache and closes the inner backend when it is closable.
func (b *CachedBackend) Close() error {
	b.cache.Purge()
	if c, ok := b.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
