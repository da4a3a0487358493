package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/mdbox/blobstore"
	miniostore "github.com/hupe1980/mdbox/blobstore/minio"
	"github.com/hupe1980/mdbox/blobstore/s3"
)

const cacheBlockSize = 1 << 20

// openStore resolves a --store value. Remote stores are wrapped in a block
// cache when cacheSize is positive.
func openStore(ctx context.Context, uri string, cacheSize int64) (blobstore.BlobStore, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := uri
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		return blobstore.NewLocalStore(path), nil
	}

	var store blobstore.BlobStore
	switch u.Scheme {
	case "s3":
		s, err := s3.NewFromConfig(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		store = s
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("minio store %q: missing bucket", uri)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: u.Query().Get("insecure") == "",
		})
		if err != nil {
			return nil, fmt.Errorf("minio store: %w", err)
		}
		store = miniostore.NewStore(client, bucket, prefix)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}

	if cacheSize > 0 {
		store = blobstore.NewCachingStore(store, cacheSize, cacheBlockSize)
	}
	return store, nil
}
