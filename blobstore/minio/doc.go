// Package minio stores workspace snapshots on MinIO or any other
// S3-compatible server (Ceph RGW, SeaweedFS, Garage) without pulling in the
// AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil { ... }
//
//	store := minioblob.NewStore(client, "instrument-data", "mdbox/")
//	ws, err := mdbox.Open(ctx, store, "run-4711.mdbx")
package minio
