// Package resource governs the shared resources of one workspace.
//
// The Controller manages three resource types:
//
//   - Memory: bytes of event data held in memory by file-backed boxes (non-blocking, fail-fast)
//   - Workers: concurrent split / histogram tasks
//   - Paging: token-bucket limit on page file throughput
//
// # Memory
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded when the
// budget is exhausted. The disk buffer reacts by paging boxes out:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	if err := rc.AcquireMemory(n); err != nil {
//	    // evict, then retry
//	}
//	defer rc.ReleaseMemory(n)
//
// # Workers
//
//	if rc.TryAcquireWorker() {
//	    go func() { defer rc.ReleaseWorker(); work() }()
//	} else {
//	    work() // run inline instead of waiting
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
