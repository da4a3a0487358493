// Package mmap maps snapshot files read-only into memory.
//
// A Mapping owns the mapped bytes and unmaps them on Close. Region hands out
// bounded views into a mapping without copying, which lets the snapshot
// reader decode a record block in place.
//
//	m, err := mmap.Open("workspace.mdbx")
//	if err != nil { ... }
//	defer m.Close()
//
//	hdr, _ := m.Region(0, 64)
//	_ = hdr.Advise(mmap.AccessSequential)
//
// Unix uses mmap(2) and madvise(2). Windows uses MapViewOfFile; Advise is a
// no-op there.
//
// Mapping and Region are safe for concurrent reads. Close is idempotent, but
// callers must stop touching Bytes once it returns.
package mmap
