package engine_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brrr-dev/brrr/cache/memcache"
	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/codec"
	"github.com/brrr-dev/brrr/codec/msgpack"
	"github.com/brrr-dev/brrr/engine"
	"github.com/brrr-dev/brrr/queue/memqueue"
	"github.com/brrr-dev/brrr/store/memstore"
)

// toInt64 normalizes any msgpack-decoded integer kind back to int64; the
// exact Go type a codec hands back for a small integer is an
// implementation detail handlers in this test suite should not depend on.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		panic(fmt.Sprintf("toInt64: unsupported type %T", v))
	}
}

// runLoops starts one Worker.Loop per topic in its own goroutine, returns
// a cancel func that stops them all and waits for their return.
func runLoops(t *testing.T, workers ...*engine.Worker) (cancel func()) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *engine.Worker) {
			defer wg.Done()
			if err := w.Loop(ctx); err != nil && ctx.Err() == nil {
				t.Errorf("worker loop on %q: %v", w.Topic, err)
			}
		}(w)
	}
	return func() {
		cancelFn()
		wg.Wait()
	}
}

// waitForValue polls client.Read until it succeeds or the deadline passes.
func waitForValue(t *testing.T, client *engine.Client, taskName string, args []any) any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v, err := client.Read(context.Background(), taskName, args, nil)
		if err == nil {
			return v
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s%v to resolve", taskName, args)
	return nil
}

func newTestClient(t *testing.T, reg *engine.Registry, q *memqueue.Queue, spawnLimit int64) *engine.Client {
	t.Helper()
	client, err := engine.NewClient(engine.Config{
		Store:      memstore.New(),
		Queue:      q,
		Cache:      memcache.New(),
		Codec:      msgpack.New(),
		Registry:   reg,
		SpawnLimit: spawnLimit,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// Scenario 1 (spec.md §8): depth recursion.
func TestDepthRecursion(t *testing.T) {
	reg := engine.NewRegistry()
	var invocations sync.Map // n -> count

	reg.Register("foo", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		n := toInt64(args[0])
		v, _ := invocations.LoadOrStore(n, new(int64))
		atomic.AddInt64(v.(*int64), 1)

		if n == 0 {
			return int64(0), nil
		}
		return engine.Call(ctx, "foo", n-1)
	})

	q := memqueue.New()
	client := newTestClient(t, reg, q, engine.DefaultSpawnLimit)
	worker := engine.NewWorker(client, "t1")
	stop := runLoops(t, worker)
	defer stop()

	if _, err := client.Schedule(context.Background(), "t1", "foo", []any{int64(3)}, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	got := waitForValue(t, client, "foo", []any{int64(3)})
	if toInt64(got) != 0 {
		t.Fatalf("foo(3) = %v, want 0", got)
	}

	for n := int64(0); n <= 3; n++ {
		v, ok := invocations.Load(n)
		if !ok {
			t.Fatalf("foo(%d) was never invoked", n)
		}
		count := atomic.LoadInt64(v.(*int64))
		min := int64(1)
		if n >= 1 {
			min = 2
		}
		if count < min {
			t.Fatalf("foo(%d) invoked %d times, want at least %d", n, count, min)
		}
	}
}

// Scenario 2 (spec.md §8): gather parallelism, foo-before-bar ordering.
func TestGatherParallelism(t *testing.T) {
	reg := engine.NewRegistry()
	fooCount := make(map[int64]*int64)
	barCount := make(map[int64]*int64)
	var mu sync.Mutex
	var fooTimes, barTimes []time.Time
	var timesMu sync.Mutex

	track := func(m map[int64]*int64, key int64, times *[]time.Time) {
		mu.Lock()
		c, ok := m[key]
		if !ok {
			c = new(int64)
			m[key] = c
		}
		mu.Unlock()
		atomic.AddInt64(c, 1)
		timesMu.Lock()
		*times = append(*times, time.Now())
		timesMu.Unlock()
	}

	reg.Register("foo", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		x := toInt64(args[0])
		track(fooCount, x, &fooTimes)
		return x * 2, nil
	})
	reg.Register("bar", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		y := toInt64(args[0])
		track(barCount, y, &barTimes)
		return y - 1, nil
	})
	reg.Register("top", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		xs := args[0].([]any)

		fooCalls := make([]engine.PendingCall, len(xs))
		for i, x := range xs {
			fooCalls[i] = engine.PendingCall{TaskName: "foo", Args: []any{toInt64(x)}}
		}
		ys, err := engine.Gather(ctx, fooCalls...)
		if err != nil {
			return nil, err
		}

		barCalls := make([]engine.PendingCall, len(ys))
		for i, y := range ys {
			barCalls[i] = engine.PendingCall{TaskName: "bar", Args: []any{toInt64(y)}}
		}
		zs, err := engine.Gather(ctx, barCalls...)
		if err != nil {
			return nil, err
		}
		return zs, nil
	})

	q := memqueue.New()
	client := newTestClient(t, reg, q, engine.DefaultSpawnLimit)
	worker := engine.NewWorker(client, "t1")
	stop := runLoops(t, worker)
	defer stop()

	xs := []any{int64(3), int64(4)}
	if _, err := client.Schedule(context.Background(), "t1", "top", []any{xs}, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitForValue(t, client, "top", []any{xs})

	for _, x := range []int64{3, 4} {
		mu.Lock()
		c := fooCount[x]
		mu.Unlock()
		if c == nil || atomic.LoadInt64(c) != 1 {
			t.Fatalf("foo(%d) should run exactly once", x)
		}
	}
	for _, y := range []int64{6, 8} {
		mu.Lock()
		c := barCount[y]
		mu.Unlock()
		if c == nil || atomic.LoadInt64(c) != 1 {
			t.Fatalf("bar(%d) should run exactly once", y)
		}
	}

	timesMu.Lock()
	defer timesMu.Unlock()
	if len(fooTimes) == 0 || len(barTimes) == 0 {
		t.Fatal("expected foo and bar invocations to be recorded")
	}
	lastFoo := fooTimes[len(fooTimes)-1]
	for _, bt := range barTimes {
		if bt.Before(lastFoo) {
			t.Fatalf("bar ran at %v before the last foo completion at %v", bt, lastFoo)
		}
	}
}

// Scenario 3 (spec.md §8): a contrived codec that collapses every call to
// task "same" onto one call_hash must invoke the handler exactly once
// regardless of how many siblings deferred on it.
type collidingCodec struct {
	codec.Codec
}

func (c collidingCodec) EncodeCall(taskName string, args []any, kwargs map[string]any) (call.Call, error) {
	cl, err := c.Codec.EncodeCall(taskName, args, kwargs)
	if err != nil {
		return call.Call{}, err
	}
	if taskName == "same" {
		cl.CallHash = "collapsed-hash"
	}
	return cl, nil
}

func TestCodecCollisionDebouncing(t *testing.T) {
	reg := engine.NewRegistry()
	var sameCount int64

	reg.Register("same", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		atomic.AddInt64(&sameCount, 1)
		return "resolved", nil
	})
	reg.Register("multi", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		_, err := engine.Gather(ctx,
			engine.PendingCall{TaskName: "same", Args: []any{int64(1)}},
			engine.PendingCall{TaskName: "same", Args: []any{int64(2)}},
			engine.PendingCall{TaskName: "same", Args: []any{int64(3)}},
		)
		if err != nil {
			return nil, err
		}
		return "done", nil
	})

	q := memqueue.New()
	client, err := engine.NewClient(engine.Config{
		Store:    memstore.New(),
		Queue:    q,
		Cache:    memcache.New(),
		Codec:    collidingCodec{Codec: msgpack.New()},
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	worker := engine.NewWorker(client, "t1")
	stop := runLoops(t, worker)
	defer stop()

	if _, err := client.Schedule(context.Background(), "t1", "multi", nil, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	got := waitForValue(t, client, "multi", nil)
	if got != "done" {
		t.Fatalf("multi() = %v, want \"done\"", got)
	}
	if atomic.LoadInt64(&sameCount) != 1 {
		t.Fatalf("same(*) invoked %d times, want exactly 1", sameCount)
	}
}

// Scenario 4 (spec.md §8): fibonacci stress, using math/big since fib(1000)
// vastly exceeds 64 bits. Values are carried through the call graph as
// decimal strings to stay codec-agnostic.
func TestFibonacciStress(t *testing.T) {
	reg := engine.NewRegistry()

	reg.Register("fib", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		n := toInt64(args[0])
		if n < 2 {
			return fmt.Sprintf("%d", n), nil
		}
		results, err := engine.Gather(ctx,
			engine.PendingCall{TaskName: "fib", Args: []any{n - 1}},
			engine.PendingCall{TaskName: "fib", Args: []any{n - 2}},
		)
		if err != nil {
			return nil, err
		}
		a, _ := new(big.Int).SetString(results[0].(string), 10)
		b, _ := new(big.Int).SetString(results[1].(string), 10)
		return new(big.Int).Add(a, b).String(), nil
	})
	reg.Register("top", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		return engine.Call(ctx, "fib", int64(1000))
	})

	q := memqueue.New()
	client := newTestClient(t, reg, q, 10_000_000)
	worker := engine.NewWorker(client, "t1")
	stop := runLoops(t, worker)
	defer stop()

	if _, err := client.Schedule(context.Background(), "t1", "top", nil, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	const want = "43466557686937456435688527675040625802564660517371780402481729089536555417949051890403879840079255169295922593080322634775209689623239873322471161642996440906533187938298969649928516003704476137795166849228875"

	deadline := time.Now().Add(20 * time.Second)
	var got any
	var err error
	for time.Now().Before(deadline) {
		got, err = client.Read(context.Background(), "top", nil, nil)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("top() never resolved: %v", err)
	}
	if got != want {
		t.Fatalf("fib(1000) = %v, want %s", got, want)
	}
}

// Scenario 5 (spec.md §8): exceeding the spawn limit raises SpawnLimitError
// from Loop.
func TestSpawnLimit(t *testing.T) {
	reg := engine.NewRegistry()
	reg.Register("foo", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		n := toInt64(args[0])
		if n == 0 {
			return int64(0), nil
		}
		return engine.Call(ctx, "foo", n-1)
	})

	q := memqueue.New()
	client := newTestClient(t, reg, q, 100)
	worker := engine.NewWorker(client, "t1")

	ctx := context.Background()
	if _, err := client.Schedule(ctx, "t1", "foo", []any{int64(103)}, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	loopErr := worker.Loop(ctx)
	var spawnErr *engine.SpawnLimitError
	if loopErr == nil {
		t.Fatal("expected Loop to return a SpawnLimitError")
	}
	if !asSpawnLimitError(loopErr, &spawnErr) {
		t.Fatalf("Loop returned %v, want a *engine.SpawnLimitError", loopErr)
	}
	if spawnErr.Limit != 100 {
		t.Fatalf("spawn limit = %d, want 100", spawnErr.Limit)
	}
}

func asSpawnLimitError(err error, target **engine.SpawnLimitError) bool {
	for err != nil {
		if se, ok := err.(*engine.SpawnLimitError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Scenario 6 (spec.md §8): cross-topic call — a handler on one topic calls
// a task scheduled on another topic, and both topics' workers must be
// running for the call graph to resolve.
func TestCrossTopicCall(t *testing.T) {
	reg := engine.NewRegistry()
	reg.Register("one", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		x := toInt64(args[0])
		return x + 5, nil
	})
	reg.Register("two", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		n := toInt64(args[0])
		return engine.CallOnTopic(ctx, "t1", "one", []any{n + 3}, nil)
	})

	q := memqueue.New()
	client := newTestClient(t, reg, q, engine.DefaultSpawnLimit)
	w1 := engine.NewWorker(client, "t1")
	w2 := engine.NewWorker(client, "t2")
	stop := runLoops(t, w1, w2)
	defer stop()

	if _, err := client.Schedule(context.Background(), "t2", "two", []any{int64(7)}, nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	got := waitForValue(t, client, "two", []any{int64(7)})
	if toInt64(got) != 15 {
		t.Fatalf("two(7) = %v, want 15", got)
	}
}
