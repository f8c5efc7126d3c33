package engine

import (
	"context"
	"fmt"

	"github.com/brrr-dev/brrr/codec"
	"github.com/brrr-dev/brrr/memory"
)

// activeWorker is the per-message state nested handler calls need to
// resolve child calls: the Memory they share with the worker loop, the
// Codec that hashes invocations, and the worker's own bound topic (the
// default for a DeferredCall/PendingCall with no explicit Topic). This is
// the "active-worker context" of spec.md §5/§9, realized as a
// context.Value carried through the handler's ctx argument rather than a
// package-level global, so concurrent worker loops never share state.
type activeWorker struct {
	mem   *memory.Memory
	codec codec.Codec
	topic string
}

type activeWorkerKey struct{}

func withActiveWorker(ctx context.Context, aw *activeWorker) context.Context {
	return context.WithValue(ctx, activeWorkerKey{}, aw)
}

func activeWorkerFrom(ctx context.Context) (*activeWorker, error) {
	aw, ok := ctx.Value(activeWorkerKey{}).(*activeWorker)
	if !ok {
		return nil, fmt.Errorf("engine: Call/Gather invoked outside a worker's handler context")
	}
	return aw, nil
}

func (aw *activeWorker) resolve(ctx context.Context, topic, taskName string, args []any, kwargs map[string]any) (any, error) {
	if topic == "" {
		topic = aw.topic
	}
	c, err := aw.codec.EncodeCall(taskName, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("engine: encode call %s: %w", taskName, err)
	}

	has, err := aw.mem.HasValue(ctx, c.CallHash)
	if err != nil {
		return nil, fmt.Errorf("engine: check value %s: %w", c.CallHash, err)
	}
	if !has {
		return nil, &Defer{Calls: []DeferredCall{{Topic: topic, Call: c}}}
	}

	raw, err := aw.mem.GetValue(ctx, c.CallHash)
	if err != nil {
		return nil, fmt.Errorf("engine: get value %s: %w", c.CallHash, err)
	}
	return aw.codec.DecodeReturn(taskName, raw)
}
