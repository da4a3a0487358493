// Package cache provides bounded least-recently-used caches.
//
// # LRU
//
// [LRU] is a generic cost-bounded LRU. Evictions are returned from Add rather
// than delivered through callbacks, so callers can do follow-up work (paging a
// box out, releasing a shared array) after the cache lock is dropped. An
// optional resource controller charges entry costs against a global memory
// budget.
//
// # MRU
//
// [MRU] holds recently computed histogram Y and E arrays of an event
// workspace, one LRU per worker slot and kind:
//   - Find and Insert lock only the calling worker's list
//   - EnsureEnoughBuffers grows the slice of lists under an exclusive lock
//   - DeleteIndex visits each list in turn, one lock at a time
package cache
