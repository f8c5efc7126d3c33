// Package codec defines the pluggable boundary between the engine and the
// serialization/hashing strategy used to turn a task invocation into bytes.
//
// A Codec is an external collaborator (spec.md §4.1): the engine never
// interprets Payload itself, and never computes a hash on its own. Swapping
// codecs (e.g. msgpack vs. a hypothetical protobuf codec) changes the wire
// representation without touching the worker loop or the pending-returns
// protocol.
package codec

import (
	"context"

	"github.com/brrr-dev/brrr/call"
)

// HandlerFunc is a registered task handler. It receives its positional and
// keyword arguments already decoded by the Codec and returns a Go value to
// be re-encoded by the Codec, or an error.
//
// A handler may return *engine.Defer (a plain error value, so this package
// does not need to import engine) to signal that it is waiting on children;
// InvokeTask implementations MUST propagate that error unchanged, per
// spec.md §4.1 ("MUST re-raise a deferral unchanged").
type HandlerFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Codec turns a (task name, args, kwargs) triple into a Call, invokes a
// handler against a decoded Call, and decodes a stored return value.
//
// Implementations MUST be deterministic: EncodeCall must produce the same
// CallHash for logically equal (task_name, args, kwargs) triples regardless
// of the iteration order of kwargs (spec.md §3, §4.1, §8).
type Codec interface {
	// EncodeCall builds a Call from a logical invocation. Pure and
	// deterministic.
	EncodeCall(taskName string, args []any, kwargs map[string]any) (call.Call, error)

	// InvokeTask decodes c.Payload into arguments, dispatches to handler,
	// and serializes its return value. Any error returned by handler
	// (including a deferral) is returned unchanged.
	InvokeTask(ctx context.Context, c call.Call, handler HandlerFunc) ([]byte, error)

	// DecodeReturn is the inverse of the serialization step of InvokeTask.
	DecodeReturn(taskName string, payload []byte) (any, error)
}
