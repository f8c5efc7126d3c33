package engine

import "fmt"

// DefaultSpawnLimit is the hard-coded per-root enqueue limit spec.md §4.7
// names: a safety net against pathological recursion, not a tunable for
// correctness. Tests override it via Config.SpawnLimit to stay fast.
const DefaultSpawnLimit = 10_000

// SpawnLimitError is raised when a root workflow's enqueue count exceeds
// its spawn limit. It is collected across a handler pass's children
// (spec.md §4.6) rather than raised on the first occurrence, so every
// child that can be scheduled still is.
type SpawnLimitError struct {
	RootID   string
	CallHash string
	Limit    int64
	Count    int64
}

func (e *SpawnLimitError) Error() string {
	return fmt.Sprintf("engine: spawn limit %d exceeded for root %s (count=%d, call=%s)",
		e.Limit, e.RootID, e.Count, e.CallHash)
}
