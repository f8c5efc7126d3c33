package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/brrr-dev/brrr/call"
	"github.com/brrr-dev/brrr/store/memstore"
)

func TestCallRoundTrip(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	c := call.Call{TaskName: "foo", Payload: []byte("payload"), CallHash: "abc123"}
	if err := m.SetCall(ctx, c); err != nil {
		t.Fatalf("SetCall: %v", err)
	}

	got, err := m.GetCall(ctx, c.CallHash)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.TaskName != c.TaskName || string(got.Payload) != string(c.Payload) || got.CallHash != c.CallHash {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestSetValueOncePermanence(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	wrote, err := m.SetValueOnce(ctx, "h1", []byte("first"))
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}

	wrote, err = m.SetValueOnce(ctx, "h1", []byte("second"))
	if err != nil {
		t.Fatalf("second write should be accepted silently, got err: %v", err)
	}
	if wrote {
		t.Fatal("second writer should not report wrote=true")
	}

	got, err := m.GetValue(ctx, "h1")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("value should remain the first writer's bytes, got %q", got)
	}
}

func TestAddPendingReturnFirstWriterSchedules(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	addr1 := call.FormatReturnAddress("t1", "root-a", "parent-1")
	should, err := m.AddPendingReturn(ctx, "child-1", addr1)
	if err != nil {
		t.Fatalf("AddPendingReturn: %v", err)
	}
	if !should {
		t.Fatal("first writer must schedule")
	}

	addr2 := call.FormatReturnAddress("t1", "root-a", "parent-2")
	should, err = m.AddPendingReturn(ctx, "child-1", addr2)
	if err != nil {
		t.Fatalf("AddPendingReturn: %v", err)
	}
	if should {
		t.Fatal("second writer under the same root should not re-schedule")
	}
}

func TestAddPendingReturnRepeatedRootReSchedules(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	addrRootA := call.FormatReturnAddress("t1", "root-a", "parent-1")
	should, err := m.AddPendingReturn(ctx, "child-1", addrRootA)
	if err != nil || !should {
		t.Fatalf("first writer: should=%v err=%v", should, err)
	}

	// Same topic and parent hash, but a different root: a retried root
	// converging on an already-scheduled child must still be scheduled.
	addrRootB := call.FormatReturnAddress("t1", "root-b", "parent-1")
	should, err = m.AddPendingReturn(ctx, "child-1", addrRootB)
	if err != nil {
		t.Fatalf("AddPendingReturn: %v", err)
	}
	if !should {
		t.Fatal("repeated root under a different root_id must re-schedule")
	}
}

func TestWithPendingReturnsRemoveAbsentInvokesEmpty(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	var got []string
	called := false
	err := m.WithPendingReturnsRemove(ctx, "nope", func(_ context.Context, returns []string) error {
		called = true
		got = returns
		return nil
	})
	if err != nil {
		t.Fatalf("WithPendingReturnsRemove: %v", err)
	}
	if !called {
		t.Fatal("handle must be invoked even when no record exists")
	}
	if len(got) != 0 {
		t.Fatalf("expected no returns, got %v", got)
	}
}

func TestAddThenRemovePendingReturns(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	addrs := []string{
		call.FormatReturnAddress("t1", "root-a", "p1"),
		call.FormatReturnAddress("t1", "root-a", "p2"),
		call.FormatReturnAddress("t2", "root-a", "p3"),
	}
	for i, addr := range addrs {
		should, err := m.AddPendingReturn(ctx, "child-1", addr)
		if err != nil {
			t.Fatalf("AddPendingReturn[%d]: %v", i, err)
		}
		if (i == 0) != should {
			t.Fatalf("AddPendingReturn[%d]: should=%v, want %v", i, should, i == 0)
		}
	}

	var dispatched []string
	err := m.WithPendingReturnsRemove(ctx, "child-1", func(_ context.Context, returns []string) error {
		dispatched = append(dispatched, returns...)
		return nil
	})
	if err != nil {
		t.Fatalf("WithPendingReturnsRemove: %v", err)
	}
	if len(dispatched) != len(addrs) {
		t.Fatalf("expected %d dispatched returns, got %d: %v", len(addrs), len(dispatched), dispatched)
	}

	// The record must be gone: a subsequent drain sees nothing.
	var again []string
	if err := m.WithPendingReturnsRemove(ctx, "child-1", func(_ context.Context, returns []string) error {
		again = returns
		return nil
	}); err != nil {
		t.Fatalf("WithPendingReturnsRemove (2nd): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected record to be deleted, got %v", again)
	}
}

func TestAddPendingReturnConcurrent(t *testing.T) {
	m := New(memstore.New())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	scheduleCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := call.FormatReturnAddress("t1", "root-a", fmtParent(i))
			should, err := m.AddPendingReturn(ctx, "child-1", addr)
			if err != nil {
				t.Errorf("AddPendingReturn: %v", err)
			}
			scheduleCount <- should
		}(i)
	}
	wg.Wait()
	close(scheduleCount)

	schedulers := 0
	for should := range scheduleCount {
		if should {
			schedulers++
		}
	}
	if schedulers != 1 {
		t.Fatalf("expected exactly one scheduler among %d concurrent writers, got %d", n, schedulers)
	}
}

func fmtParent(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "p0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return "p" + string(b)
}
