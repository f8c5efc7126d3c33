// Package memory implements the race-safe pending-returns protocol over a
// store.Store (spec.md §4.4). It is the hardest subsystem in the engine:
// every mutation to a pending_returns record goes through a bounded CAS
// retry loop, since the store is only required to support single-key
// compare-and-swap, not transactions.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackpal/bencode-go"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/metrics"
	"github.com/brrr-dev/brrr/store"
)

// MaxCASAttempts bounds the pending-returns CAS loops (spec.md §4.4).
// Exceeding it is a fatal error, not a retryable one.
const MaxCASAttempts = 100

// ErrCASExhausted is returned when a CAS loop exceeds MaxCASAttempts.
var ErrCASExhausted = errors.New("memory: exhausted cas attempts")

// storedCall is the bencode wire shape of the "call" record kind.
type storedCall struct {
	TaskName string `bencode:"task_name"`
	Payload  []byte `bencode:"payload"`
}

// PendingReturns is the bencode wire shape of the "pending_returns" record
// kind (spec.md §3, §6). ScheduledAt is written but never read back by the
// protocol (spec.md §9's open question) — preserved for round-trip fidelity
// and external observability only.
type PendingReturns struct {
	Returns     []string `bencode:"returns"`
	ScheduledAt *int64   `bencode:"scheduled_at"`
}

// Memory wraps a store.Store with the three record kinds (call, value,
// pending_returns) spec.md §3 defines, plus the CAS protocol around
// pending_returns.
type Memory struct {
	store   store.Store
	metrics *metrics.Collector
	logger  *brrrlog.Logger

	// nowSeconds returns the current unix time in seconds; overridable in
	// tests so PendingReturns.ScheduledAt is deterministic.
	nowSeconds func() int64
}

// New wraps a store.Store.
func New(s store.Store) *Memory {
	return &Memory{store: s, logger: brrrlog.Nop(), nowSeconds: defaultNowSeconds}
}

// WithMetrics attaches a Collector that records CAS retry/exhaustion and
// pending-returns bookkeeping counters. A nil Collector (the default) is a
// no-op receiver, so this is safe to skip in tests.
func (m *Memory) WithMetrics(c *metrics.Collector) *Memory {
	m.metrics = c
	return m
}

// WithLogger attaches a Logger used to report CAS retries and exhaustion
// on the pending_returns loops below. Defaults to a no-op logger.
func (m *Memory) WithLogger(l *brrrlog.Logger) *Memory {
	if l != nil {
		m.logger = l
	}
	return m
}

// GetCall reads the call record for hash, decoding task name and payload.
func (m *Memory) GetCall(ctx context.Context, hash string) (call.Call, error) {
	raw, err := m.store.Get(ctx, store.Key{Kind: store.KindCall, CallHash: hash})
	if err != nil {
		return call.Call{}, fmt.Errorf("memory: get call %s: %w", hash, err)
	}
	var sc storedCall
	if err := bencode.Unmarshal(bytes.NewReader(raw), &sc); err != nil {
		return call.Call{}, fmt.Errorf("memory: decode call %s: %w", hash, err)
	}
	return call.Call{TaskName: sc.TaskName, Payload: sc.Payload, CallHash: hash}, nil
}

// SetCall writes c's definition unconditionally (spec.md §4.6: "persist the
// child's Call record unconditionally"). Call records are immutable in
// logical content, so last-writer-wins is safe as long as every writer
// agrees on the encoding for the same (task_name, payload).
func (m *Memory) SetCall(ctx context.Context, c call.Call) error {
	raw, err := bencode.Marshal(storedCall{TaskName: c.TaskName, Payload: c.Payload})
	if err != nil {
		return fmt.Errorf("memory: encode call %s: %w", c.CallHash, err)
	}
	if err := m.store.Set(ctx, store.Key{Kind: store.KindCall, CallHash: c.CallHash}, raw); err != nil {
		return fmt.Errorf("memory: set call %s: %w", c.CallHash, err)
	}
	return nil
}

// HasValue checks whether a memoized return value exists for hash.
func (m *Memory) HasValue(ctx context.Context, hash string) (bool, error) {
	ok, err := m.store.Has(ctx, store.Key{Kind: store.KindValue, CallHash: hash})
	if err != nil {
		return false, fmt.Errorf("memory: has value %s: %w", hash, err)
	}
	return ok, nil
}

// GetValue reads the memoized return bytes for hash. Returns store.ErrNotFound
// (wrapped) if no value has been memoized yet.
func (m *Memory) GetValue(ctx context.Context, hash string) ([]byte, error) {
	raw, err := m.store.Get(ctx, store.Key{Kind: store.KindValue, CallHash: hash})
	if err != nil {
		return nil, fmt.Errorf("memory: get value %s: %w", hash, err)
	}
	return raw, nil
}

// SetValueOnce memoizes value under hash, once. Per spec.md §3's "a value
// record, once written, is permanent" invariant and §4.6/§9's "accept
// silently" rule, a second writer losing the race is not an error: it
// returns (false, nil) rather than propagating store.ErrAlreadyExists. The
// Codec determinism contract guarantees every writer would have produced
// the same bytes anyway.
func (m *Memory) SetValueOnce(ctx context.Context, hash string, value []byte) (wrote bool, err error) {
	key := store.Key{Kind: store.KindValue, CallHash: hash}
	err = m.store.SetNewValue(ctx, key, value)
	if err == nil {
		m.metrics.IncValuesMemoized()
		return true, nil
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		m.metrics.IncDuplicateWrites()
		return false, nil
	}
	return false, fmt.Errorf("memory: set value %s: %w", hash, err)
}

// AddPendingReturn links newReturn (a return address, spec.md §3) to
// childHash's pending_returns record, creating the record if absent. It
// reports whether the caller is responsible for scheduling childHash: the
// writer that creates this record takes that
// responsibility, with one exception — the repeated-root rule in step 3
// below (spec.md §4.4).
func (m *Memory) AddPendingReturn(ctx context.Context, childHash, newReturn string) (shouldSchedule bool, err error) {
	key := store.Key{Kind: store.KindPendingReturns, CallHash: childHash}

	for attempt := 0; attempt < MaxCASAttempts; attempt++ {
		raw, getErr := m.store.Get(ctx, key)
		if errors.Is(getErr, store.ErrNotFound) {
			fresh := PendingReturns{Returns: []string{newReturn}, ScheduledAt: ptr(m.nowSeconds())}
			encoded, encErr := encodePendingReturns(fresh)
			if encErr != nil {
				return false, fmt.Errorf("memory: encode pending_returns %s: %w", childHash, encErr)
			}
			if setErr := m.store.SetNewValue(ctx, key, encoded); setErr != nil {
				if errors.Is(setErr, store.ErrAlreadyExists) {
					m.metrics.IncCASRetries()
					m.logger.With(brrrlog.Context{CallHash: childHash}).Debug(
						"pending_returns create race, retrying", map[string]any{"attempt": attempt})
					continue // lost the race to create; restart and read what's there
				}
				return false, fmt.Errorf("memory: create pending_returns %s: %w", childHash, setErr)
			}
			m.metrics.IncPendingReturnsCreated()
			return true, nil
		}
		if getErr != nil {
			return false, fmt.Errorf("memory: read pending_returns %s: %w", childHash, getErr)
		}

		existing, decErr := decodePendingReturns(raw)
		if decErr != nil {
			return false, fmt.Errorf("memory: decode pending_returns %s: %w", childHash, decErr)
		}

		shouldSchedule = repeatedRoot(existing.Returns, newReturn)

		merged := appendUnique(existing.Returns, newReturn)
		next := PendingReturns{Returns: merged, ScheduledAt: existing.ScheduledAt}
		encoded, encErr := encodePendingReturns(next)
		if encErr != nil {
			return false, fmt.Errorf("memory: encode pending_returns %s: %w", childHash, encErr)
		}

		if casErr := m.store.CompareAndSet(ctx, key, encoded, raw); casErr != nil {
			if errors.Is(casErr, store.ErrCompareMismatch) || errors.Is(casErr, store.ErrNotFound) {
				m.metrics.IncCASRetries()
				m.logger.With(brrrlog.Context{CallHash: childHash}).Debug(
					"pending_returns link race, retrying", map[string]any{"attempt": attempt})
				continue
			}
			return false, fmt.Errorf("memory: cas pending_returns %s: %w", childHash, casErr)
		}
		m.metrics.IncPendingReturnsLinked()
		return shouldSchedule, nil
	}

	m.metrics.IncCASExhausted()
	m.logger.With(brrrlog.Context{CallHash: childHash}).Error(
		"pending_returns cas exhausted", map[string]any{"max_attempts": MaxCASAttempts})
	return false, fmt.Errorf("memory: add pending return %s: %w", childHash, ErrCASExhausted)
}

// repeatedRoot implements spec.md §4.4 step 3: should_schedule becomes true
// if any existing return address shares (parent_hash, topic) with newAddr
// but differs on root_id — a retried workflow root converging on a child
// that is already scheduled under a different root, and therefore still
// needs its own schedule.
func repeatedRoot(existing []string, newAddr string) bool {
	newTopic, newRoot, newParent, err := call.ParseReturnAddress(newAddr)
	if err != nil {
		return false
	}
	for _, addr := range existing {
		topic, root, parent, err := call.ParseReturnAddress(addr)
		if err != nil {
			continue
		}
		if topic == newTopic && parent == newParent && root != newRoot {
			return true
		}
	}
	return false
}

func appendUnique(returns []string, addr string) []string {
	for _, r := range returns {
		if r == addr {
			return returns
		}
	}
	out := make([]string, 0, len(returns)+1)
	out = append(out, returns...)
	out = append(out, addr)
	return out
}

// WithPendingReturnsRemove drains callHash's pending_returns record,
// invoking handle with every return address not yet passed to handle in
// this call, then deletes the record. A concurrent writer that adds more
// addresses between the read and the delete causes the loop to retry:
// newly added addresses are handled on the next iteration, already-handled
// ones are skipped via the alreadyHandled set (spec.md §4.4's second
// algorithm). If the record is already absent (a sibling raced us and
// already dispatched), handle is invoked once with an empty slice.
func (m *Memory) WithPendingReturnsRemove(ctx context.Context, callHash string, handle func(ctx context.Context, returns []string) error) error {
	key := store.Key{Kind: store.KindPendingReturns, CallHash: callHash}
	alreadyHandled := make(map[string]struct{})

	for attempt := 0; attempt < MaxCASAttempts; attempt++ {
		raw, getErr := m.store.Get(ctx, key)
		if errors.Is(getErr, store.ErrNotFound) {
			return handle(ctx, nil)
		}
		if getErr != nil {
			return fmt.Errorf("memory: read pending_returns %s: %w", callHash, getErr)
		}

		existing, decErr := decodePendingReturns(raw)
		if decErr != nil {
			return fmt.Errorf("memory: decode pending_returns %s: %w", callHash, decErr)
		}

		toHandle := make([]string, 0, len(existing.Returns))
		for _, addr := range existing.Returns {
			if _, done := alreadyHandled[addr]; !done {
				toHandle = append(toHandle, addr)
			}
		}

		if len(toHandle) > 0 {
			if err := handle(ctx, toHandle); err != nil {
				return err
			}
			for _, addr := range toHandle {
				alreadyHandled[addr] = struct{}{}
			}
		}

		if err := m.store.CompareAndDelete(ctx, key, raw); err != nil {
			if errors.Is(err, store.ErrCompareMismatch) || errors.Is(err, store.ErrNotFound) {
				m.metrics.IncCASRetries()
				m.logger.With(brrrlog.Context{CallHash: callHash}).Debug(
					"pending_returns drain race, retrying", map[string]any{"attempt": attempt})
				continue // a concurrent writer added more; re-read and handle the delta
			}
			return fmt.Errorf("memory: delete pending_returns %s: %w", callHash, err)
		}
		return nil
	}

	m.metrics.IncCASExhausted()
	m.logger.With(brrrlog.Context{CallHash: callHash}).Error(
		"pending_returns drain cas exhausted", map[string]any{"max_attempts": MaxCASAttempts})
	return fmt.Errorf("memory: drain pending returns %s: %w", callHash, ErrCASExhausted)
}

func encodePendingReturns(pr PendingReturns) ([]byte, error) {
	sorted := make([]string, len(pr.Returns))
	copy(sorted, pr.Returns)
	sort.Strings(sorted)
	pr.Returns = sorted

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, pr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePendingReturns(raw []byte) (PendingReturns, error) {
	var pr PendingReturns
	if err := bencode.Unmarshal(bytes.NewReader(raw), &pr); err != nil {
		return PendingReturns{}, err
	}
	return pr, nil
}

func ptr[T any](v T) *T { return &v }

func defaultNowSeconds() int64 { return time.Now().Unix() }
