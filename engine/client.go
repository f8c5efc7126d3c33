// Package engine implements the worker loop, the handler-facing facade
// (Call/Gather), the scheduler API (Client), and spawn-limit accounting —
// spec.md §4.4 (consumed via memory), §4.5, §4.6, §4.7, §6.
package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/cache"
	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/codec"
	"github.com/brrr-dev/brrr/memory"
	"github.com/brrr-dev/brrr/metrics"
	"github.com/brrr-dev/brrr/queue"
	"github.com/brrr-dev/brrr/store"
)

// Config wires a Client to its external collaborators (spec.md's named
// plug-points: Codec, Store, Queue, Cache) plus the handler Registry and
// spawn-limit override.
type Config struct {
	Store      store.Store
	Queue      queue.Queue
	Cache      cache.Cache
	Codec      codec.Codec
	Registry   *Registry
	SpawnLimit int64 // 0 means DefaultSpawnLimit
	Logger     *brrrlog.Logger
	Metrics    *metrics.Collector
}

// Client exposes the scheduler API spec.md §6 names: Schedule (enqueue a
// root workflow) and Read (read a memoized value). Worker embeds a Client
// to additionally run the worker loop.
type Client struct {
	mem        *memory.Memory
	queue      queue.Queue
	cache      cache.Cache
	codec      codec.Codec
	registry   *Registry
	spawnLimit int64
	logger     *brrrlog.Logger
	metrics    *metrics.Collector
}

// NewClient builds a Client from cfg. Store/Queue/Cache/Codec are
// required; Registry may be nil for a client that only schedules/reads
// and never runs a worker loop.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: Config.Store is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("engine: Config.Queue is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("engine: Config.Cache is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("engine: Config.Codec is required")
	}
	limit := cfg.SpawnLimit
	if limit == 0 {
		limit = DefaultSpawnLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = brrrlog.Nop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Client{
		mem:        memory.New(cfg.Store).WithMetrics(cfg.Metrics).WithLogger(logger),
		queue:      cfg.Queue,
		cache:      cfg.Cache,
		codec:      cfg.Codec,
		registry:   registry,
		spawnLimit: limit,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Schedule encodes (taskName, args, kwargs) as a root Call, persists its
// definition, assigns a fresh root id, and enqueues it onto topic. It
// returns the root id so callers can later Read the result.
func (c *Client) Schedule(ctx context.Context, topic, taskName string, args []any, kwargs map[string]any) (rootID string, err error) {
	cl, err := c.codec.EncodeCall(taskName, args, kwargs)
	if err != nil {
		return "", fmt.Errorf("engine: schedule %s: encode call: %w", taskName, err)
	}
	if err := c.mem.SetCall(ctx, cl); err != nil {
		return "", fmt.Errorf("engine: schedule %s: %w", taskName, err)
	}

	rootID = newRootID()
	if err := c.putJob(ctx, topic, cl.CallHash, rootID); err != nil {
		return "", err
	}
	return rootID, nil
}

// Read returns the memoized value for (taskName, args, kwargs), or a
// wrapped store.ErrNotFound if the call has never completed.
func (c *Client) Read(ctx context.Context, taskName string, args []any, kwargs map[string]any) (any, error) {
	cl, err := c.codec.EncodeCall(taskName, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("engine: read %s: encode call: %w", taskName, err)
	}
	raw, err := c.mem.GetValue(ctx, cl.CallHash)
	if err != nil {
		return nil, err
	}
	return c.codec.DecodeReturn(taskName, raw)
}

// putJob increments the per-root spawn counter in Cache and, if still
// under the limit, enqueues callHash onto topic (spec.md §4.7). The
// increment always happens; only the enqueue is skipped once the limit is
// exceeded, so the counter stays a roughly accurate observability signal
// even past the point where enqueues are refused.
func (c *Client) putJob(ctx context.Context, topic, callHash, rootID string) error {
	key := "brrr_count/" + rootID
	count, err := c.cache.Incr(ctx, key, 1)
	if err != nil {
		return fmt.Errorf("engine: spawn accounting for root %s: %w", rootID, err)
	}
	if count > c.spawnLimit {
		c.metrics.IncSpawnLimitHits()
		spawnErr := &SpawnLimitError{RootID: rootID, CallHash: callHash, Limit: c.spawnLimit, Count: count}
		c.logger.With(brrrlog.Context{RootID: rootID, CallHash: callHash, Topic: topic}).Error(
			spawnErr.Error(), map[string]any{"count": count, "limit": c.spawnLimit})
		return spawnErr
	}
	body := call.FormatMessageBody(rootID, callHash)
	if err := c.queue.Send(ctx, topic, body); err != nil {
		return fmt.Errorf("engine: enqueue %s/%s on %q: %w", rootID, callHash, topic, err)
	}
	return nil
}

// newRootID mints a fresh root id: base64-url (no padding) of 16 random
// bytes, per spec.md §3's Queue message body grammar and §6's Root id
// glossary entry. uuid.New already draws 16 random bytes (a v4 UUID's raw
// form); this reuses that generator for a new purpose rather than
// hand-rolling a second random source.
func newRootID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
