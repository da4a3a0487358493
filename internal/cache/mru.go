package cache

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mdbox/cow"
)

// DefaultMRUCapacity is the per-worker number of cached histograms.
const DefaultMRUCapacity = 50

// MRU caches recently computed histogram arrays (Y and E) per worker slot.
//
// Each worker has its own list, so workers never contend on recency
// bookkeeping. The slice of lists is guarded by a read/write lock: lookups and
// inserts hold it shared, growth and Clear hold it exclusively. Cached arrays
// are kept as shared handles and released on eviction.
type MRU struct {
	capacity int
	y        mruBuffers
	e        mruBuffers
}

type mruBuffers struct {
	mu    sync.RWMutex
	lists []*LRU[uint64, cow.Array]

	// Misses on worker slots that have no list yet.
	unallocated atomic.Int64
}

// NewMRU returns an MRU with the given per-worker capacity.
// A non-positive capacity selects DefaultMRUCapacity.
func NewMRU(capacity int) *MRU {
	if capacity <= 0 {
		capacity = DefaultMRUCapacity
	}
	return &MRU{capacity: capacity}
}

// Capacity returns the per-worker capacity.
func (m *MRU) Capacity() int { return m.capacity }

// FindY returns the cached Y array for key in worker slot thread.
func (m *MRU) FindY(thread int, key uint64) (cow.Array, bool) { return m.y.find(thread, key) }

// FindE returns the cached E array for key in worker slot thread.
func (m *MRU) FindE(thread int, key uint64) (cow.Array, bool) { return m.e.find(thread, key) }

// InsertY caches data as the Y array for key in worker slot thread.
func (m *MRU) InsertY(thread int, key uint64, data cow.Array) {
	m.y.insert(m.capacity, thread, key, data)
}

// InsertE caches data as the E array for key in worker slot thread.
func (m *MRU) InsertE(thread int, key uint64, data cow.Array) {
	m.e.insert(m.capacity, thread, key, data)
}

// EnsureEnoughBuffersY grows the Y lists to cover n worker slots.
func (m *MRU) EnsureEnoughBuffersY(n int) { m.y.ensure(m.capacity, n) }

// EnsureEnoughBuffersE grows the E lists to cover n worker slots.
func (m *MRU) EnsureEnoughBuffersE(n int) { m.e.ensure(m.capacity, n) }

// DeleteIndex drops key from every worker list of both kinds.
func (m *MRU) DeleteIndex(key uint64) {
	m.y.delete(key)
	m.e.delete(key)
}

// Clear drops every cached array but keeps the per-worker lists.
func (m *MRU) Clear() {
	m.y.clear()
	m.e.clear()
}

// Workers returns the number of Y and E worker slots.
func (m *MRU) Workers() (y, e int) {
	m.y.mu.RLock()
	y = len(m.y.lists)
	m.y.mu.RUnlock()
	m.e.mu.RLock()
	e = len(m.e.lists)
	m.e.mu.RUnlock()
	return y, e
}

// Len returns the number of cached Y and E arrays across all workers.
func (m *MRU) Len() (y, e int) {
	return m.y.len(), m.e.len()
}

// Stats returns hit/miss counts across all workers and both kinds.
func (m *MRU) Stats() (hits, misses int64) {
	for _, b := range []*mruBuffers{&m.y, &m.e} {
		b.mu.RLock()
		for _, l := range b.lists {
			h, ms := l.Stats()
			hits += h
			misses += ms
		}
		b.mu.RUnlock()
		misses += b.unallocated.Load()
	}
	return hits, misses
}

func (b *mruBuffers) find(thread int, key uint64) (cow.Array, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if thread < 0 || thread >= len(b.lists) {
		b.unallocated.Add(1)
		return cow.Array{}, false
	}
	v, ok := b.lists[thread].Get(key)
	if !ok {
		return cow.Array{}, false
	}
	return v.Share(), true
}

func (b *mruBuffers) insert(capacity, thread int, key uint64, data cow.Array) {
	if thread < 0 {
		return
	}
	b.ensure(capacity, thread+1)

	b.mu.RLock()
	evicted := b.lists[thread].Add(key, data.Share())
	b.mu.RUnlock()

	for i := range evicted {
		evicted[i].Value.Release()
	}
}

func (b *mruBuffers) ensure(capacity, n int) {
	b.mu.RLock()
	have := len(b.lists)
	b.mu.RUnlock()
	if have >= n {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.lists) < n {
		b.lists = append(b.lists, NewLRU[uint64, cow.Array](int64(capacity), nil, nil))
	}
}

func (b *mruBuffers) delete(key uint64) {
	b.mu.RLock()
	n := len(b.lists)
	b.mu.RUnlock()

	// One list at a time; lists are never removed, only appended.
	for i := 0; i < n; i++ {
		b.mu.RLock()
		l := b.lists[i]
		b.mu.RUnlock()

		if v, ok := l.Remove(key); ok {
			v.Release()
		}
	}
}

func (b *mruBuffers) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range b.lists {
		for _, ev := range l.Clear() {
			ev.Value.Release()
		}
	}
}

func (b *mruBuffers) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, l := range b.lists {
		n += l.Len()
	}
	return n
}
