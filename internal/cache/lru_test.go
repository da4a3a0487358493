package cache

import (
	"sync"
	"testing"

	"github.com/hupe1980/mdbox/internal/resource"
)

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string, int](3, nil, nil)

	if ev := c.Add("a", 1); len(ev) != 0 {
		t.Fatalf("unexpected eviction: %v", ev)
	}
	c.Add("b", 2)
	c.Add("c", 3)

	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", got, ok)
	}

	// "b" is now least recently used.
	ev := c.Add("d", 4)
	if len(ev) != 1 || ev[0].Key != "b" || ev[0].Value != 2 {
		t.Fatalf("evicted %v, want [b:2]", ev)
	}

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected miss for evicted key")
	}

	want := []string{"d", "a", "c"}
	keys := c.Keys()
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d, want 1/1", hits, misses)
	}
}

func TestLRU_ReplaceReturnsOldValue(t *testing.T) {
	c := NewLRU[int, string](2, nil, nil)
	c.Add(1, "old")

	ev := c.Add(1, "new")
	if len(ev) != 1 || ev[0].Value != "old" {
		t.Fatalf("evicted %v, want [1:old]", ev)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if v, _ := c.Peek(1); v != "new" {
		t.Errorf("Peek(1) = %q, want new", v)
	}
}

func TestLRU_CostBound(t *testing.T) {
	c := NewLRU[int, []byte](10, func(b []byte) int64 { return int64(len(b)) }, nil)

	c.Add(1, make([]byte, 4))
	c.Add(2, make([]byte, 4))
	ev := c.Add(3, make([]byte, 4))
	if len(ev) != 1 || ev[0].Key != 1 {
		t.Fatalf("evicted %v, want key 1", ev)
	}
	if c.Size() != 8 {
		t.Errorf("Size() = %d, want 8", c.Size())
	}

	// Larger than the whole cache: rejected, nothing else evicted.
	ev = c.Add(4, make([]byte, 11))
	if len(ev) != 1 || ev[0].Key != 4 {
		t.Fatalf("evicted %v, want rejected key 4", ev)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_MemoryBudget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 6})
	c := NewLRU[int, int64](100, func(v int64) int64 { return v }, rc)

	c.Add(1, 4)
	if rc.MemoryUsage() != 4 {
		t.Fatalf("MemoryUsage() = %d, want 4", rc.MemoryUsage())
	}

	// Budget forces eviction of key 1 even though capacity has room.
	ev := c.Add(2, 4)
	if len(ev) != 1 || ev[0].Key != 1 {
		t.Fatalf("evicted %v, want key 1", ev)
	}
	if rc.MemoryUsage() != 4 {
		t.Errorf("MemoryUsage() = %d, want 4", rc.MemoryUsage())
	}

	c.Remove(2)
	if rc.MemoryUsage() != 0 {
		t.Errorf("MemoryUsage() after Remove = %d, want 0", rc.MemoryUsage())
	}
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU[int, int](5, nil, nil)
	for i := range 5 {
		c.Add(i, i)
	}
	ev := c.Clear()
	if len(ev) != 5 {
		t.Fatalf("Clear returned %d entries, want 5", len(ev))
	}
	if c.Len() != 0 || c.Size() != 0 {
		t.Errorf("cache not empty after Clear: len=%d size=%d", c.Len(), c.Size())
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](64, nil, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 1000 {
				k := (g*1000 + i) % 128
				c.Add(k, i)
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
