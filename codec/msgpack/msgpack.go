// Package msgpack implements codec.Codec using github.com/vmihailenco/msgpack/v5
// for compact, self-describing binary serialization of call arguments and
// return values.
//
// Determinism (spec.md §4.1's "insertion order MUST NOT matter") is
// achieved by hashing a canonical form: args encoded as-is (Go slices have
// a fixed order already), kwargs encoded as a slice of key/value pairs
// sorted by key before encoding.
package msgpack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/codec"
)

// Codec is the concrete, deterministic msgpack-backed codec.Codec.
type Codec struct{}

// New creates a msgpack Codec.
func New() *Codec {
	return &Codec{}
}

// kv is a single sorted keyword argument, used only for hash/payload
// canonicalization.
type kv struct {
	K string `msgpack:"k"`
	V any    `msgpack:"v"`
}

// payloadEnvelope is the wire shape of Call.Payload: positional args plus
// keyword args, both already in canonical (sorted-kwargs) order.
type payloadEnvelope struct {
	Args   []any `msgpack:"args"`
	Kwargs []kv  `msgpack:"kwargs"`
}

func sortedKwargs(kwargs map[string]any) []kv {
	out := make([]kv, 0, len(kwargs))
	for k, v := range kwargs {
		out = append(out, kv{K: k, V: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].K < out[j].K })
	return out
}

// EncodeCall builds a Call whose CallHash is the lower-hex SHA-256 of the
// task name plus the canonical msgpack encoding of (args, sorted kwargs).
func (c *Codec) EncodeCall(taskName string, args []any, kwargs map[string]any) (call.Call, error) {
	if args == nil {
		args = []any{}
	}
	env := payloadEnvelope{Args: args, Kwargs: sortedKwargs(kwargs)}

	payload, err := msgpack.Marshal(env)
	if err != nil {
		return call.Call{}, fmt.Errorf("msgpack codec: encode payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(taskName))
	h.Write([]byte{0})
	h.Write(payload)
	hash := hex.EncodeToString(h.Sum(nil))

	return call.Call{TaskName: taskName, Payload: payload, CallHash: hash}, nil
}

// InvokeTask decodes c.Payload into (args, kwargs), dispatches to handler,
// and msgpack-encodes its return value. Handler errors, including
// deferrals, propagate unchanged.
func (c *Codec) InvokeTask(ctx context.Context, cl call.Call, handler codec.HandlerFunc) ([]byte, error) {
	var env payloadEnvelope
	if err := msgpack.Unmarshal(cl.Payload, &env); err != nil {
		return nil, fmt.Errorf("msgpack codec: decode payload for %s: %w", cl.TaskName, err)
	}

	kwargs := make(map[string]any, len(env.Kwargs))
	for _, p := range env.Kwargs {
		kwargs[p.K] = p.V
	}

	ret, err := handler(ctx, env.Args, kwargs)
	if err != nil {
		return nil, err
	}

	out, err := msgpack.Marshal(ret)
	if err != nil {
		return nil, fmt.Errorf("msgpack codec: encode return for %s: %w", cl.TaskName, err)
	}
	return out, nil
}

// DecodeReturn msgpack-decodes a stored return value into a generic any.
func (c *Codec) DecodeReturn(taskName string, payload []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("msgpack codec: decode return for %s: %w", taskName, err)
	}
	return v, nil
}

var _ codec.Codec = (*Codec)(nil)
