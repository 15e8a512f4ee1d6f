package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"testing"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// s3TestStore connects to the MinIO endpoint named by MINIO_ENDPOINT,
// skipping the test when none is configured.
func s3TestStore(t *testing.T) *S3Store {
	t.Helper()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	store, err := NewS3Store(S3Config{
		Endpoint:  endpoint,
		Bucket:    envOr("MINIO_BUCKET", "sift-test"),
		AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	return store
}

func TestS3Roundtrip(t *testing.T) {
	store := s3TestStore(t)
	ctx := context.Background()
	const key = "it/s3/roundtrip.txt"
	content := []byte("hello s3")
	defer store.Delete(ctx, key)

	info := mustPut(t, store, key, content)
	if info.ETag == "" {
		t.Error("Put returned empty ETag")
	}

	head, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Size != int64(len(content)) {
		t.Errorf("Head size = %d, want %d", head.Size, len(content))
	}

	data, getInfo := readObject(t, store, key, nil)
	if !bytes.Equal(data, content) {
		t.Errorf("Get body = %q, want %q", data, content)
	}
	if getInfo.ETag != info.ETag {
		t.Errorf("read-after-write ETag = %s, want %s", getInfo.ETag, info.ETag)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Head(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Head after Delete = %v, want ErrNotFound", err)
	}
}

func TestS3ConditionalWrites(t *testing.T) {
	store := s3TestStore(t)
	ctx := context.Background()

	t.Run("put if absent", func(t *testing.T) {
		const key = "it/s3/if-absent.txt"
		defer store.Delete(ctx, key)

		mustPut(t, store, key, []byte("first"))
		_, err := store.PutIfAbsent(ctx, key, bytes.NewReader([]byte("second")), 6, nil)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("PutIfAbsent on existing key = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("put if match", func(t *testing.T) {
		const key = "it/s3/if-match.txt"
		defer store.Delete(ctx, key)

		v1 := mustPut(t, store, key, []byte("version 1"))
		if _, err := store.PutIfMatch(ctx, key, bytes.NewReader([]byte("version 2")), 9, v1.ETag, nil); err != nil {
			t.Fatalf("PutIfMatch with current ETag: %v", err)
		}
		_, err := store.PutIfMatch(ctx, key, bytes.NewReader([]byte("version 3")), 9, v1.ETag, nil)
		if !errors.Is(err, ErrPrecondition) {
			t.Errorf("PutIfMatch with stale ETag = %v, want ErrPrecondition", err)
		}
	})
}

func TestS3List(t *testing.T) {
	store := s3TestStore(t)
	ctx := context.Background()
	keys := []string{"it/s3/ls/a.txt", "it/s3/ls/b.txt", "it/s3/ls/c.txt"}
	for _, key := range keys {
		mustPut(t, store, key, []byte("x"))
	}
	defer func() {
		for _, key := range keys {
			store.Delete(ctx, key)
		}
	}()

	result, err := store.List(ctx, &ListOptions{Prefix: "it/s3/ls/"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Objects) != len(keys) {
		t.Errorf("List = %d objects, want %d", len(result.Objects), len(keys))
	}
}

func TestS3Checksum(t *testing.T) {
	store := s3TestStore(t)
	ctx := context.Background()
	const key = "it/s3/checksum.txt"
	content := []byte("checksum content")
	defer store.Delete(ctx, key)

	digest := sha256.Sum256(content)
	good := base64.StdEncoding.EncodeToString(digest[:])
	if _, err := store.Put(ctx, key, bytes.NewReader(content), int64(len(content)), &PutOptions{Checksum: good}); err != nil {
		t.Fatalf("Put with matching checksum: %v", err)
	}

	bad := base64.StdEncoding.EncodeToString(make([]byte, sha256.Size))
	if _, err := store.Put(ctx, key, bytes.NewReader(content), int64(len(content)), &PutOptions{Checksum: bad}); !errors.Is(err, ErrChecksumFailed) {
		t.Errorf("Put with wrong checksum = %v, want ErrChecksumFailed", err)
	}
}
