// Package cache defines the best-effort counting contract used for
// spawn-limit accounting (spec.md §4.4, §7). Unlike store.Store, a Cache
// is explicitly allowed to lose increments under a network partition or a
// process restart: the spawn limit it backs is a safety valve against
// runaway recursion, not a correctness guarantee.
package cache

import "context"

// Cache increments per-key counters. Increments need not be durable or
// exactly-once; they only need to be cheap and roughly accurate.
type Cache interface {
	// Incr adds delta to key's counter (creating it at 0 if absent) and
	// returns the counter's new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// Get returns a key's current counter value, or 0 if absent.
	Get(ctx context.Context, key string) (int64, error)
}
