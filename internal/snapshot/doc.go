// Package snapshot encodes a box tree as a single self-describing blob.
//
// Layout, little-endian:
//
//	magic "MDBX"      4 bytes
//	version           u16
//	codec name        u8 length + bytes
//	compression       u8 (0 none, 1 lz4, 2 zstd)
//	manifest length   u32
//	manifest          codec-encoded Manifest
//	block header      u32 uncompressed size, u32 stored size (0 = stored raw)
//	block             event records of all leaves, depth-first
//	checksum          u32 CRC32C of everything before it
//
// The manifest lists every box in depth-first pre-order. Leaves point into
// the event block by record offset and count, so the tree can be rebuilt
// exactly, including box extents produced by splitting.
//
// ReadHeader reads only the prefix and manifest, which is what inspection
// tools need from remote stores. It cannot verify the checksum; Decode does.
package snapshot
