package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/mdbox/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	store, err := NewFromConfig(ctx, bucket, fmt.Sprintf("test-mdbox-%d", time.Now().UnixNano()))
	require.NoError(t, err)

	name := "snapshot.mdbx"
	data := make([]byte, 1<<20)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, name)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, name)

	b, err := store.Open(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())

	got, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, b.Close())

	require.NoError(t, store.Delete(ctx, name))
	_, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
