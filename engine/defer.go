package engine

import (
	"fmt"
	"strings"

	"github.com/brrr-dev/brrr/call"
)

// DeferredCall is one child invocation a handler discovered it needs.
// Topic is the explicit override for where the child should be scheduled;
// an empty Topic inherits the worker's own bound topic (spec.md §4.6).
type DeferredCall struct {
	Topic string
	Call  call.Call
}

// Defer is the control signal a handler pass raises when one or more
// child results are missing (spec.md §4.5, §9's "tagged result variant").
// It is not a failure: codec.Codec.InvokeTask and the worker loop both
// propagate it unchanged, never logging it as an error.
type Defer struct {
	Calls []DeferredCall
}

func (d *Defer) Error() string {
	names := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		names[i] = c.Call.TaskName
	}
	return fmt.Sprintf("engine: deferred on %d call(s): %s", len(d.Calls), strings.Join(names, ", "))
}

// PendingCall describes one invocation to resolve via Call or Gather.
// Topic empty inherits the current worker's bound topic.
type PendingCall struct {
	Topic    string
	TaskName string
	Args     []any
	Kwargs   map[string]any
}
