package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vector/vector-docparse/testcontainers"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		obj, err := store.Open(ctx, "uploads/u1/missing.txt")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, obj)
	})

	t.Run("put and open", func(t *testing.T) {
		body := `{"hello":"documents"}`
		err := store.Put(ctx, "uploads/u1/a.json", strings.NewReader(body), int64(len(body)), "application/json")
		require.NoError(t, err)

		obj, err := store.Open(ctx, "uploads/u1/a.json")
		require.NoError(t, err)

		defer obj.Body.Close()

		got, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(got))
		assert.Equal(t, int64(len(body)), obj.Size)
		assert.Contains(t, obj.ContentType, "application/json")
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "uploads/u1/b.txt", strings.NewReader("one"), 3, "text/plain"))
		require.NoError(t, store.Put(ctx, "uploads/u1/b.txt", strings.NewReader("two!"), 4, "text/plain"))

		obj, err := store.Open(ctx, "uploads/u1/b.txt")
		require.NoError(t, err)

		defer obj.Body.Close()

		got, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "two!", string(got))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "uploads/u1/c.txt", strings.NewReader("x"), 1, "text/plain"))
		require.NoError(t, store.Delete(ctx, "uploads/u1/c.txt"))
		require.NoError(t, store.Delete(ctx, "uploads/u1/c.txt"))

		_, err := store.Open(ctx, "uploads/u1/c.txt")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	exerciseStore(t, store)

	t.Run("rejects path traversal", func(t *testing.T) {
		for _, key := range []string{"", "/etc/passwd", "../x", "a/../../b", "a//b"} {
			err := store.Put(context.Background(), key, strings.NewReader("x"), 1, "")
			assert.ErrorIs(t, err, errInvalidKey, key)
		}
	})

	t.Run("cancelled put leaves nothing behind", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.Put(ctx, "uploads/u2/d.txt", strings.NewReader("data"), 4, "")
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.Open(context.Background(), "uploads/u2/d.txt")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestS3Store(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testcontainers.WithTestContext(t, func(tc *testcontainers.TestContext) {
		cfg := tc.UseS3()

		store, err := NewS3Store(tc.Context(), S3Config{
			Bucket:    "docparse-test",
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Endpoint:  cfg.Endpoint,
		})
		require.NoError(t, err)

		_, err = store.client.CreateBucket(tc.Context(), &s3.CreateBucketInput{
			Bucket: aws.String("docparse-test"),
		})
		require.NoError(t, err)

		exerciseStore(t, store)
	})
}
