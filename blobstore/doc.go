// Package blobstore abstracts where workspace snapshots live.
//
// A snapshot is written once and read back whole, or header first and block
// second when only the box manifest is wanted. BlobStore covers both shapes:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Built-in implementations:
//
//   - MemoryStore: in-process, for tests and scratch workspaces
//   - LocalStore: a directory on disk, memory-mapped on read
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//
// CachingStore wraps any of them with a block cache so repeated header reads
// against a remote store do not go back over the network.
//
// Implementations must be safe for concurrent use.
package blobstore
