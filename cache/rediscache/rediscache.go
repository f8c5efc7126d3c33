// Package rediscache implements cache.Cache on Redis using INCRBY, the
// natural home for a best-effort counter: no transaction or conditional
// write is needed since lost or duplicated increments are tolerated by
// spec.md §4.4's spawn-limit accounting.
package rediscache

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/brrr-dev/brrr/cache"
)

// DefaultKeyPrefix namespaces this backend's keys within a shared Redis
// instance.
const DefaultKeyPrefix = "brrr:spawn"

// Config configures the Redis-backed cache.
type Config struct {
	URL       string
	KeyPrefix string
}

// Cache is the Redis-backed cache.Cache implementation.
type Cache struct {
	client    *goredis.Client
	keyPrefix string
}

// New creates a Redis-backed Cache from the given config.
func New(cfg Config) (*Cache, error) {
	if cfg.URL == "" {
		return nil, errors.New("rediscache: URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rediscache: invalid URL: %w", err)
	}
	return NewWithClient(goredis.NewClient(opts), cfg), nil
}

// NewWithClient builds a Cache around an already-configured client.
func NewWithClient(client *goredis.Client, cfg Config) *Cache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Cache{client: client, keyPrefix: cfg.KeyPrefix}
}

func (c *Cache) fullKey(key string) string {
	return c.keyPrefix + ":" + key
}

func (c *Cache) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := c.client.IncrBy(ctx, c.fullKey(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("rediscache: incr %q: %w", key, err)
	}
	return v, nil
}

func (c *Cache) Get(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, c.fullKey(key)).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("rediscache: get %q: %w", key, err)
	}
	return v, nil
}

var _ cache.Cache = (*Cache)(nil)
