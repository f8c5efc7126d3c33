package memcache_test

import (
	"context"
	"testing"

	"github.com/brrr-dev/brrr/cache/memcache"
)

func TestIncrAccumulates(t *testing.T) {
	ctx := context.Background()
	c := memcache.New()

	v, err := c.Incr(ctx, "root-1", 1)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if v != 1 {
		t.Fatalf("Incr: got %d, want 1", v)
	}
	v, err = c.Incr(ctx, "root-1", 1)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if v != 2 {
		t.Fatalf("Incr: got %d, want 2", v)
	}
}

func TestGetAbsentKeyIsZero(t *testing.T) {
	c := memcache.New()
	v, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 0 {
		t.Fatalf("Get absent key: got %d, want 0", v)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := memcache.New()
	_, _ = c.Incr(ctx, "a", 5)
	_, _ = c.Incr(ctx, "b", 1)

	va, _ := c.Get(ctx, "a")
	vb, _ := c.Get(ctx, "b")
	if va != 5 || vb != 1 {
		t.Fatalf("keys not independent: a=%d b=%d", va, vb)
	}
}
