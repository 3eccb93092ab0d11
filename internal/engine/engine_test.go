package engine

import (
	"fmt"
	"sync"
	"testing"

	"kvforge/internal/config"
	"kvforge/internal/kverrors"
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Debug = false
	eng, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestSetGetRemoveEndToEnd(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.Set("key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := eng.Get("key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "value1" {
		t.Fatalf("Get() = %q, want %q", v, "value1")
	}

	if err := eng.Remove("key1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := eng.Get("key1"); err == nil {
		t.Fatal("expected error getting a removed key")
	} else if kind, ok := kverrors.KindOf(err); !ok || kind != kverrors.KeyNotFound {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestGetOnMissingKey(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Get("never-set")
	if err == nil {
		t.Fatal("expected error getting a missing key")
	}
	if kind, ok := kverrors.KindOf(err); !ok || kind != kverrors.KeyNotFound {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestRemoveOnMissingKey(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.Remove("never-set")
	if err == nil {
		t.Fatal("expected error removing a missing key")
	}
	if kind, ok := kverrors.KindOf(err); !ok || kind != kverrors.KeyNotFound {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestOverwriteKeepsLatestValue(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Set("key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := eng.Set("key1", "value2"); err != nil {
		t.Fatalf("overwrite Set: %v", err)
	}
	v, err := eng.Get("key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "value2" {
		t.Fatalf("Get() = %q, want %q", v, "value2")
	}
}

func TestReopenPreservesState(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	eng, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Set("key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eng2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer eng2.Close()

	v, err := eng2.Get("key1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if v != "value1" {
		t.Fatalf("Get() = %q, want %q", v, "value1")
	}
}

func TestCloneSharesStateAndRefcountsClose(t *testing.T) {
	eng := newTestEngine(t)
	clone := eng.Clone()

	if err := eng.Set("key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := clone.Get("key1")
	if err != nil {
		t.Fatalf("Get via clone: %v", err)
	}
	if v != "value1" {
		t.Fatalf("Get() via clone = %q, want %q", v, "value1")
	}

	// Closing the clone must not tear down the shared state while the
	// original handle is still open.
	if err := clone.Close(); err != nil {
		t.Fatalf("Close clone: %v", err)
	}
	if _, err := eng.Get("key1"); err != nil {
		t.Fatalf("original handle should still work after clone closes: %v", err)
	}
}

func TestConcurrentSetGetAcrossGoroutines(t *testing.T) {
	eng := newTestEngine(t)

	const goroutines = 8
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup

	// Writers: each owns a disjoint slice of keys.
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				key := keyFor(g, i)
				if err := eng.Set(key, key); err != nil {
					t.Errorf("Set(%s): %v", key, err)
					return
				}
			}
		}(g)
	}

	// Readers run concurrently with the writers above, racing to Get and
	// Remove keys the writers may not have written yet. A miss is fine; a
	// wrong value, a torn read, or an unexpected error is not.
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				key := keyFor(g, i)

				v, err := eng.Get(key)
				if err != nil {
					if kind, ok := kverrors.KindOf(err); ok && kind == kverrors.KeyNotFound {
						continue
					}
					t.Errorf("Get(%s): %v", key, err)
					return
				}
				if v != key {
					t.Errorf("Get(%s) = %q, want %q", key, v, key)
					return
				}

				if i%7 == 0 {
					if err := eng.Remove(key); err != nil {
						if kind, ok := kverrors.KindOf(err); !ok || kind != kverrors.KeyNotFound {
							t.Errorf("Remove(%s): %v", key, err)
							return
						}
					}
				}
			}
		}(g)
	}

	wg.Wait()

	// Every key was either still present with its written value, or removed
	// by the reader above; either outcome is acceptable, but a lookup must
	// never error with anything other than KeyNotFound or return a stale or
	// mismatched value.
	for g := 0; g < goroutines; g++ {
		for i := 0; i < opsPerGoroutine; i++ {
			key := keyFor(g, i)
			v, err := eng.Get(key)
			if err != nil {
				if kind, ok := kverrors.KindOf(err); ok && kind == kverrors.KeyNotFound {
					continue
				}
				t.Fatalf("Get(%s): %v", key, err)
			}
			if v != key {
				t.Fatalf("Get(%s) = %q, want %q", key, v, key)
			}
		}
	}
}

func keyFor(g, i int) string {
	return fmt.Sprintf("g%d-%d", g, i)
}
