// Backend wiring: turns the declarative BackendConfig/AdapterConfig the
// YAML config file carries into the concrete store.Store/queue.Queue/
// cache.Cache/adapter.Adapter values the engine consumes. Kept alongside
// the config types themselves (rather than in cli/cmd) so every CLI
// command shares one source of truth for "given this config, which
// backend do I run against".
package config

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/brrr-dev/brrr/adapter"
	redisadapter "github.com/brrr-dev/brrr/adapter/redis"
	"github.com/brrr-dev/brrr/adapter/webhook"
	"github.com/brrr-dev/brrr/cache"
	"github.com/brrr-dev/brrr/cache/memcache"
	"github.com/brrr-dev/brrr/cache/rediscache"
	"github.com/brrr-dev/brrr/queue"
	"github.com/brrr-dev/brrr/queue/memqueue"
	"github.com/brrr-dev/brrr/queue/redisqueue"
	"github.com/brrr-dev/brrr/queue/socketqueue"
	"github.com/brrr-dev/brrr/store"
	"github.com/brrr-dev/brrr/store/dynamostore"
	"github.com/brrr-dev/brrr/store/memstore"
	"github.com/brrr-dev/brrr/store/s3store"
)

// defaultAdapterRetries mirrors the webhook/redis adapters' DefaultRetries
// (3), which their New does not apply on its own, for a config file that
// sets an adapter Kind but leaves Retries unset.
const defaultAdapterRetries = 3

// BuildStore constructs a store.Store from cfg. Kind "" and "memory" both
// select the in-memory backend, the right default for local/dev use and
// for a config file that only cares about queue/cache selection.
func (cfg BackendConfig) BuildStore(ctx context.Context) (store.Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return memstore.New(), nil
	case "dynamodb":
		return dynamostore.New(ctx, dynamostore.Config{Table: cfg.Table, Region: cfg.Region})
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	default:
		return nil, fmt.Errorf("config: unknown store kind %q", cfg.Kind)
	}
}

// BuildQueue constructs a queue.Queue from cfg. Kind "socket" dials
// cfg.Address as a Unix domain socket; no brrr command (worker included)
// listens on it, so the listening end is set up outside this CLI.
func (cfg BackendConfig) BuildQueue(ctx context.Context) (queue.Queue, error) {
	switch cfg.Kind {
	case "", "memory":
		return memqueue.New(), nil
	case "redis":
		return redisqueue.New(redisqueue.Config{URL: cfg.URL, Timeout: cfg.Timeout.Duration})
	case "socket":
		d := net.Dialer{Timeout: dialTimeout(cfg.Timeout.Duration)}
		conn, err := d.DialContext(ctx, "unix", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("config: dial socket queue %q: %w", cfg.Address, err)
		}
		return socketqueue.New(conn), nil
	default:
		return nil, fmt.Errorf("config: unknown queue kind %q", cfg.Kind)
	}
}

// BuildCache constructs a cache.Cache from cfg.
func (cfg BackendConfig) BuildCache(context.Context) (cache.Cache, error) {
	switch cfg.Kind {
	case "", "memory":
		return memcache.New(), nil
	case "redis":
		return rediscache.New(rediscache.Config{URL: cfg.URL})
	default:
		return nil, fmt.Errorf("config: unknown cache kind %q", cfg.Kind)
	}
}

// BuildAdapter constructs an adapter.Adapter from cfg. Kind "" means no
// completion-notification adapter is configured (nil, nil) — the engine
// treats a nil Adapter as disabled.
func (cfg AdapterConfig) BuildAdapter(context.Context) (adapter.Adapter, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Retries),
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Retries),
		})
	default:
		return nil, fmt.Errorf("config: unknown adapter kind %q", cfg.Kind)
	}
}

func retriesOrDefault(r *int) int {
	if r == nil {
		return defaultAdapterRetries
	}
	return *r
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
