// Package hash holds the CRC32-Castagnoli helpers used for snapshot trailers
// and S3 upload integrity headers.
//
//	sum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(block)
//	sum = h.Sum32()
package hash
