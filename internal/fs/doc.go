// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the standard os package
//   - [FaultyFS]: test utility that injects read, write, sync and open failures
//
// Page files of file-backed workspaces are opened through a FileSystem so tests
// can simulate paging I/O failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".mdpages", fs.Fault{FailReads: true, FailAfterBytes: -1})
//
// This package intentionally does NOT take context.Context parameters; local
// file operations are not interruptible at the syscall level.
package fs
