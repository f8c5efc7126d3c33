// Package memcache is an in-process, mutex-guarded cache.Cache used for
// local development and tests.
package memcache

import (
	"context"
	"sync"

	"github.com/brrr-dev/brrr/cache"
)

// Cache is a map[string]int64 guarded by a mutex. The zero value is not
// usable; construct with New.
type Cache struct {
	mu     sync.Mutex
	counts map[string]int64
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{counts: make(map[string]int64)}
}

func (c *Cache) Incr(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] += delta
	return c.counts[key], nil
}

func (c *Cache) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key], nil
}

var _ cache.Cache = (*Cache)(nil)
