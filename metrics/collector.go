// Package metrics provides per-process metrics collection for a worker.
//
// The Collector accumulates counters across a worker's lifetime. It is a
// leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all tracked counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Call lifecycle (spec.md §4.5, §4.6)
	CallsInvoked     int64
	DeferralsRaised  int64
	ValuesMemoized   int64
	DuplicateWrites  int64 // SetValueOnce losers — expected under concurrency, not an error

	// Pending-returns protocol (spec.md §4.4)
	PendingReturnsCreated int64
	PendingReturnsLinked  int64
	CASRetries            int64
	CASExhausted          int64

	// Spawn-limit accounting (spec.md §4.7)
	SpawnLimitHits int64

	// Dimensions (informational, set at construction)
	Topic  string
	Worker string
}

// Collector accumulates metrics during a worker's run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe,
// so a Worker built with no Collector configured can call them unconditionally.
type Collector struct {
	mu sync.Mutex

	callsInvoked    int64
	deferralsRaised int64
	valuesMemoized  int64
	duplicateWrites int64

	pendingReturnsCreated int64
	pendingReturnsLinked  int64
	casRetries            int64
	casExhausted          int64

	spawnLimitHits int64

	topic  string
	worker string
}

// NewCollector creates a Collector with dimension labels. Both are optional.
func NewCollector(topic, worker string) *Collector {
	return &Collector{topic: topic, worker: worker}
}

// --- Call lifecycle ---

// IncCallsInvoked records one handler invocation (spec.md §4.6 step 3).
func (c *Collector) IncCallsInvoked() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsInvoked++
	c.mu.Unlock()
}

// IncDeferralsRaised records a handler pass that returned a Defer.
func (c *Collector) IncDeferralsRaised() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.deferralsRaised++
	c.mu.Unlock()
}

// IncValuesMemoized records a successful SetValueOnce write.
func (c *Collector) IncValuesMemoized() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.valuesMemoized++
	c.mu.Unlock()
}

// IncDuplicateWrites records a SetValueOnce call that lost the race (the
// key was already populated) — not an error, just a race between two
// redeliveries of the same completed call.
func (c *Collector) IncDuplicateWrites() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.duplicateWrites++
	c.mu.Unlock()
}

// --- Pending-returns protocol ---

// IncPendingReturnsCreated records the first-writer branch of
// AddPendingReturn (a fresh pending_returns record was created).
func (c *Collector) IncPendingReturnsCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pendingReturnsCreated++
	c.mu.Unlock()
}

// IncPendingReturnsLinked records a return address appended to an existing
// pending_returns record via CompareAndSet.
func (c *Collector) IncPendingReturnsLinked() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pendingReturnsLinked++
	c.mu.Unlock()
}

// IncCASRetries records one lost CAS race inside a pending-returns loop
// (spec.md §4.4's bounded retry).
func (c *Collector) IncCASRetries() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.casRetries++
	c.mu.Unlock()
}

// IncCASExhausted records a pending-returns CAS loop giving up after
// MaxCASAttempts — a fatal condition for the call in question.
func (c *Collector) IncCASExhausted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.casExhausted++
	c.mu.Unlock()
}

// --- Spawn-limit accounting ---

// IncSpawnLimitHits records an enqueue refused by the per-root spawn limit
// (spec.md §4.7).
func (c *Collector) IncSpawnLimitHits() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spawnLimitHits++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CallsInvoked:    c.callsInvoked,
		DeferralsRaised: c.deferralsRaised,
		ValuesMemoized:  c.valuesMemoized,
		DuplicateWrites: c.duplicateWrites,

		PendingReturnsCreated: c.pendingReturnsCreated,
		PendingReturnsLinked:  c.pendingReturnsLinked,
		CASRetries:            c.casRetries,
		CASExhausted:          c.casExhausted,

		SpawnLimitHits: c.spawnLimitHits,

		Topic:  c.topic,
		Worker: c.worker,
	}
}
