// Facade functions exposed to handler code: Call and Gather, spec.md
// §4.5. Handler code receives a context.Context (the same ctx the worker
// loop passed into codec.Codec.InvokeTask) and calls these package-level
// functions on it; there is no hidden global, per spec.md §9's design note.
package engine

import (
	"context"
	"errors"
)

// Call resolves a single task invocation on the worker's own topic. If the
// result is already memoized, it returns the decoded value. Otherwise it
// returns a *Defer naming the one missing call; handler code should return
// this error unchanged.
func Call(ctx context.Context, taskName string, args ...any) (any, error) {
	return callImpl(ctx, "", taskName, args, nil)
}

// CallKW is Call with keyword arguments.
func CallKW(ctx context.Context, taskName string, args []any, kwargs map[string]any) (any, error) {
	return callImpl(ctx, "", taskName, args, kwargs)
}

// CallOnTopic is Call, scheduling the child on topic instead of the
// worker's own topic (spec.md §4.6's cross-topic call support).
func CallOnTopic(ctx context.Context, topic, taskName string, args []any, kwargs map[string]any) (any, error) {
	return callImpl(ctx, topic, taskName, args, kwargs)
}

func callImpl(ctx context.Context, topic, taskName string, args []any, kwargs map[string]any) (any, error) {
	aw, err := activeWorkerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return aw.resolve(ctx, topic, taskName, args, kwargs)
}

// Gather resolves every call in calls, in sequence, per spec.md §4.5. If
// none defer, it returns their decoded values in positional order. If any
// defer, the individual deferrals are combined into a single *Defer
// listing every missing child discovered across the whole batch — this
// lets one handler pass discover all of its missing children at once
// instead of one round trip per child. Gather contract: sibling completion
// order is never observable, and a deferred sibling commits no state from
// this attempted pass (spec.md §4.5).
func Gather(ctx context.Context, calls ...PendingCall) ([]any, error) {
	aw, err := activeWorkerFrom(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(calls))
	var deferred []DeferredCall
	for i, pc := range calls {
		v, err := aw.resolve(ctx, pc.Topic, pc.TaskName, pc.Args, pc.Kwargs)
		if err == nil {
			values[i] = v
			continue
		}
		var d *Defer
		if !errors.As(err, &d) {
			return nil, err
		}
		deferred = append(deferred, d.Calls...)
	}

	if len(deferred) > 0 {
		return nil, &Defer{Calls: deferred}
	}
	return values, nil
}
