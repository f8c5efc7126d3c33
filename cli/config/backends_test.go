package config

import (
	"context"
	"testing"
)

func TestBackendConfig_BuildStore_Memory(t *testing.T) {
	for _, kind := range []string{"", "memory"} {
		st, err := BackendConfig{Kind: kind}.BuildStore(context.Background())
		if err != nil {
			t.Fatalf("kind %q: BuildStore failed: %v", kind, err)
		}
		if st == nil {
			t.Fatalf("kind %q: expected a store, got nil", kind)
		}
	}
}

func TestBackendConfig_BuildStore_UnknownKind(t *testing.T) {
	_, err := BackendConfig{Kind: "bogus"}.BuildStore(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown store kind")
	}
}

func TestBackendConfig_BuildQueue_Memory(t *testing.T) {
	q, err := BackendConfig{Kind: "memory"}.BuildQueue(context.Background())
	if err != nil {
		t.Fatalf("BuildQueue failed: %v", err)
	}
	if q == nil {
		t.Fatal("expected a queue, got nil")
	}
}

func TestBackendConfig_BuildQueue_UnknownKind(t *testing.T) {
	_, err := BackendConfig{Kind: "bogus"}.BuildQueue(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown queue kind")
	}
}

func TestBackendConfig_BuildCache_Memory(t *testing.T) {
	c, err := BackendConfig{Kind: "memory"}.BuildCache(context.Background())
	if err != nil {
		t.Fatalf("BuildCache failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a cache, got nil")
	}
}

func TestBackendConfig_BuildCache_UnknownKind(t *testing.T) {
	_, err := BackendConfig{Kind: "bogus"}.BuildCache(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown cache kind")
	}
}

func TestAdapterConfig_BuildAdapter_Disabled(t *testing.T) {
	a, err := AdapterConfig{}.BuildAdapter(context.Background())
	if err != nil {
		t.Fatalf("BuildAdapter failed: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil adapter for empty Kind, got %v", a)
	}
}

func TestAdapterConfig_BuildAdapter_UnknownKind(t *testing.T) {
	_, err := AdapterConfig{Kind: "bogus"}.BuildAdapter(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown adapter kind")
	}
}

func TestRetriesOrDefault(t *testing.T) {
	if got := retriesOrDefault(nil); got != defaultAdapterRetries {
		t.Errorf("retriesOrDefault(nil) = %d, want %d", got, defaultAdapterRetries)
	}
	custom := 7
	if got := retriesOrDefault(&custom); got != 7 {
		t.Errorf("retriesOrDefault(&7) = %d, want 7", got)
	}
}
