package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mdbox/internal/resource"
)

// Evicted is an entry pushed out of an LRU.
type Evicted[K comparable, V any] struct {
	Key   K
	Value V
}

// LRU is a bounded least-recently-used map.
//
// Capacity is measured in cost units; with a nil cost function every entry
// costs 1, so capacity is an entry count. Evicted entries are returned to the
// caller instead of being handed to a callback, so callers never run eviction
// work while the cache lock is held.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	cost      func(V) int64
	items     map[K]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewLRU creates an LRU with the given capacity.
// If rc is provided, entry costs are reserved against its memory budget.
func NewLRU[K comparable, V any](capacity int64, cost func(V) int64, rc *resource.Controller) *LRU[K, V] {
	return &LRU[K, V]{
		capacity:  capacity,
		cost:      cost,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *LRU[K, V]) costOf(v V) int64 {
	if c.cost == nil {
		return 1
	}
	return c.cost(v)
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency or statistics.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		return ent.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Add inserts or replaces the value for key and returns what had to leave the
// cache to make room. A replaced value is returned as evicted as well. An
// entry that can never fit (cost above capacity, or denied by the memory
// budget) is not cached and is returned as evicted.
func (c *LRU[K, V]) Add(key K, value V) []Evicted[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Evicted[K, V]

	if ent, ok := c.items[key]; ok {
		old := ent.Value.(*entry[K, V])
		out = append(out, Evicted[K, V]{Key: old.key, Value: old.value})
		c.removeElement(ent)
	}

	itemCost := c.costOf(value)
	if itemCost > c.capacity {
		return append(out, Evicted[K, V]{Key: key, Value: value})
	}

	// Make room locally first; this releases memory to the controller
	// before we try to reserve it back.
	for c.size+itemCost > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		out = append(out, c.evictElement(back))
	}

	if c.rc != nil {
		for c.rc.AcquireMemory(itemCost) != nil {
			back := c.evictList.Back()
			if back == nil {
				return append(out, Evicted[K, V]{Key: key, Value: value})
			}
			out = append(out, c.evictElement(back))
		}
	}

	element := c.evictList.PushFront(&entry[K, V]{key: key, value: value, cost: itemCost})
	c.items[key] = element
	c.size += itemCost

	return out
}

// Remove deletes key and returns its value.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		ev := c.evictElement(ent)
		return ev.Value, true
	}
	var zero V
	return zero, false
}

// Clear empties the cache and returns the removed entries.
func (c *LRU[K, V]) Clear() []Evicted[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Evicted[K, V], 0, c.evictList.Len())
	for c.evictList.Len() > 0 {
		out = append(out, c.evictElement(c.evictList.Back()))
	}
	return out
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.evictList.Len())
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[K, V]).key)
	}
	return keys
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the summed cost of all entries.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the configured capacity.
func (c *LRU[K, V]) Capacity() int64 {
	return c.capacity
}

// Stats returns hit/miss counts of Get.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) evictElement(e *list.Element) Evicted[K, V] {
	kv := e.Value.(*entry[K, V])
	c.removeElement(e)
	return Evicted[K, V]{Key: kv.key, Value: kv.value}
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	c.size -= kv.cost
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.cost)
	}
}
