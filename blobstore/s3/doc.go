// Package s3 stores workspace snapshots in Amazon S3.
//
//	store, err := s3.NewFromConfig(ctx, "instrument-data", "mdbox/run-4711")
//	if err != nil { ... }
//	err = ws.Save(ctx, store, "reduced.mdbx")
//
// Reads use ranged GETs so a snapshot header can be inspected without
// downloading the event block. Writes go through the multipart upload
// manager with CRC32C integrity checks. PutIfNotExists uses conditional
// writes (If-None-Match).
package s3
