package cachettl

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	t.Parallel()

	cache := New[string, int](time.Minute, 0)
	cache.Set("alpha", 42)

	if got, ok := cache.Get("alpha"); !ok || got != 42 {
		t.Fatalf("expected value=42, ok=true; got value=%d, ok=%v", got, ok)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Fatal("expected missing key to return ok=false")
	}
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	cache := New[string, bool](0, 0)
	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("k", true)

	cache.now = func() time.Time { return base.Add(24 * time.Hour) }
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected entry without TTL to persist")
	}
}

func TestCacheSetWithTTL(t *testing.T) {
	t.Parallel()

	cache := New[string, string](0, 0)
	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.SetWithTTL("k", "v", 20*time.Millisecond)

	if val, ok := cache.Get("k"); !ok || val != "v" {
		t.Fatalf("expected cached value before expiration, got %q, ok=%v", val, ok)
	}

	cache.now = func() time.Time { return base.Add(30 * time.Millisecond) }
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	t.Parallel()

	cache := New[string, int](time.Minute, 0)
	cache.Set("z", 1)
	cache.Set("y", 2)

	if !cache.Delete("z") {
		t.Fatal("expected delete to return true")
	}
	if cache.Delete("z") {
		t.Fatal("expected delete on missing key to return false")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d", cache.Len())
	}
}

func TestCachePurgeExpired(t *testing.T) {
	t.Parallel()

	cache := New[string, int](10*time.Millisecond, 0)
	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("a", 1)
	cache.SetWithTTL("b", 2, 5*time.Millisecond)
	cache.SetWithTTL("c", 3, time.Hour)

	cache.now = func() time.Time { return base.Add(15 * time.Millisecond) }
	if removed := cache.PurgeExpired(); removed != 2 {
		t.Fatalf("expected purge to remove 2 entries, removed %d", removed)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry left, got %d", cache.Len())
	}
}

func TestCacheCleanupLoop(t *testing.T) {
	cache := New[string, int](5*time.Millisecond, 5*time.Millisecond)
	cache.Set("loop", 9)

	deadline := time.Now().Add(time.Second)
	for cache.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cache.Len() != 0 {
		t.Fatal("expected background cleanup to evict entry")
	}

	cache.Close()
	cache.Close()
}
