package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brrr-dev/brrr/adapter"
	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/queue"
	"github.com/brrr-dev/brrr/store"
)

// ReceiveWait is how long Worker.Loop blocks on each Queue.Receive call
// before treating the topic as empty and looping again.
const ReceiveWait = 5 * time.Second

// Worker runs the message-driven state machine of spec.md §4.6 on one
// bound topic. It embeds *Client so the same value that runs Loop can also
// Schedule/Read (e.g. a CLI process that schedules work and then drains it
// itself in a test harness).
type Worker struct {
	*Client
	Topic string

	// Adapter, if set, is notified every time a call with no remaining
	// pending returns resolves — a best-effort signal that a root
	// workflow's value just became readable (spec.md §9's SUPPLEMENT
	// completion-notification adapters). Publish failures are logged, not
	// fatal: a downstream notification outage must not stall the worker
	// loop.
	Adapter adapter.Adapter
}

// NewWorker binds client to topic. Multiple Workers may share one Client
// (and therefore one Store/Queue/Cache) to run several topics in parallel
// goroutines, per spec.md §5 and §9 ("single-topic worker").
func NewWorker(client *Client, topic string) *Worker {
	return &Worker{Client: client, Topic: topic}
}

// Loop dequeues messages from w.Topic until the topic is closed or a
// fatal error occurs (spec.md §4.6's state machine). It returns nil only
// when the queue signals closed; every other return is a fatal error per
// spec.md §7's error table (decode errors, handler exceptions, and
// SpawnLimitError are all fatal for the loop; queue-empty is not an
// error — the loop just continues).
func (w *Worker) Loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := w.queue.Receive(ctx, w.Topic, ReceiveWait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("engine: receive on %q: %w", w.Topic, err)
		}

		if err := w.handleMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) error {
	rootID, callHash, err := call.ParseMessageBody(msg.Body)
	if err != nil {
		return fmt.Errorf("engine: malformed message on %q: %w", w.Topic, err)
	}

	cl, err := store.RetryNotFound(ctx, func(ctx context.Context) (call.Call, error) {
		return w.mem.GetCall(ctx, callHash)
	})
	if err != nil {
		return fmt.Errorf("engine: load call %s: %w", callHash, err)
	}

	handler, ok := w.registry.Handler(cl.TaskName)
	if !ok {
		return fmt.Errorf("engine: no handler registered for task %q", cl.TaskName)
	}

	aw := &activeWorker{mem: w.mem, codec: w.codec, topic: w.Topic}
	handlerCtx := withActiveWorker(ctx, aw)

	out, invokeErr := w.codec.InvokeTask(handlerCtx, cl, handler)
	w.metrics.IncCallsInvoked()

	var d *Defer
	switch {
	case invokeErr == nil:
		if err := w.onSuccess(ctx, rootID, cl, out); err != nil {
			return err
		}
	case errors.As(invokeErr, &d):
		w.metrics.IncDeferralsRaised()
		if err := w.onDefer(ctx, rootID, cl, d); err != nil {
			return err
		}
	default:
		return fmt.Errorf("engine: task %q (%s): %w", cl.TaskName, cl.CallHash, invokeErr)
	}

	if err := w.queue.Ack(ctx, msg); err != nil {
		w.logger.With(brrrlog.Context{RootID: rootID, CallHash: cl.CallHash, TaskName: cl.TaskName, Topic: w.Topic}).
			Warn("ack failed", map[string]any{"body": msg.Body, "error": err.Error()})
	}
	return nil
}

// onDefer handles step 5 of spec.md §4.6: for every child the handler
// named, persist its Call record, link a return address back to the
// parent, and schedule the child the first time any parent links to it.
// SpawnLimitErrors are collected across children so a limit hit on one
// child does not prevent dispatching the rest.
func (w *Worker) onDefer(ctx context.Context, rootID string, parent call.Call, d *Defer) error {
	returnAddr := call.FormatReturnAddress(w.Topic, rootID, parent.CallHash)

	var firstErr error
	for _, dc := range d.Calls {
		childTopic := dc.Topic
		if childTopic == "" {
			childTopic = w.Topic
		}

		if err := w.mem.SetCall(ctx, dc.Call); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("engine: persist deferred call %s: %w", dc.Call.CallHash, err)
			}
			continue
		}

		shouldSchedule, err := w.mem.AddPendingReturn(ctx, dc.Call.CallHash, returnAddr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("engine: link pending return for %s: %w", dc.Call.CallHash, err)
			}
			continue
		}

		if shouldSchedule {
			if err := w.putJob(ctx, childTopic, dc.Call.CallHash, rootID); err != nil {
				var spawnErr *SpawnLimitError
				if errors.As(err, &spawnErr) {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				return err
			}
		}
	}
	return firstErr
}

// onSuccess handles step 6 of spec.md §4.6: memoize the return value
// exactly once, then fan the result out to every parent awaiting it.
func (w *Worker) onSuccess(ctx context.Context, rootID string, cl call.Call, out []byte) error {
	if _, err := w.mem.SetValueOnce(ctx, cl.CallHash, out); err != nil {
		return fmt.Errorf("engine: memoize %s: %w", cl.CallHash, err)
	}

	var firstErr error
	var hasParents bool
	err := w.mem.WithPendingReturnsRemove(ctx, cl.CallHash, func(ctx context.Context, returns []string) error {
		if len(returns) > 0 {
			hasParents = true
		}
		for _, addr := range returns {
			topic, parentRoot, parentHash, err := call.ParseReturnAddress(addr)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("engine: malformed return address %q: %w", addr, err)
				}
				continue
			}
			if err := w.putJob(ctx, topic, parentHash, parentRoot); err != nil {
				var spawnErr *SpawnLimitError
				if errors.As(err, &spawnErr) {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !hasParents {
		w.notifyRootCompletion(ctx, rootID, cl, out)
	}
	return firstErr
}

// notifyRootCompletion publishes a RootCompletedEvent when w.Adapter is
// configured and this call had no parent awaiting it — the best-effort
// signal that rootID's value is now readable. A call can legitimately have
// no pending returns either because it is the root itself or because every
// parent that once deferred on it has already been notified by an earlier
// completion of the same call_hash; both cases are harmless to notify
// (spec.md §9's "at-least-once" completion stance).
func (w *Worker) notifyRootCompletion(ctx context.Context, rootID string, cl call.Call, out []byte) {
	if w.Adapter == nil {
		return
	}
	logger := w.logger.With(brrrlog.Context{RootID: rootID, CallHash: cl.CallHash, TaskName: cl.TaskName, Topic: w.Topic})

	value, err := w.codec.DecodeReturn(cl.TaskName, out)
	if err != nil {
		logger.Warn("adapter: decode return for notification failed", map[string]any{"error": err.Error()})
		return
	}
	event := &adapter.RootCompletedEvent{
		RootID:    rootID,
		TaskName:  cl.TaskName,
		CallHash:  cl.CallHash,
		Value:     value,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := w.Adapter.Publish(ctx, event); err != nil {
		logger.Warn("adapter: publish root completion failed", map[string]any{"error": err.Error()})
		return
	}
	logger.Info("adapter: published root completion", nil)
}

// Watch polls Read until a value appears or ctx is cancelled, backing off
// between attempts (spec.md §9's supplement: not part of the core
// protocol, a convenience for callers that scheduled a root and want to
// block until it resolves — e.g. the CLI's `read --wait`/`watch`
// commands).
func (c *Client) Watch(ctx context.Context, taskName string, args []any, kwargs map[string]any) (any, error) {
	delay := store.RetryBaseDelay
	for {
		v, err := c.Read(ctx, taskName, args, kwargs)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= store.RetryFactor
		if delay > store.RetryCap {
			delay = store.RetryCap
		}
	}
}
