// Package objectstore abstracts the blob storage that datasets persist
// into. Backends share one contract: keys are flat strings, writes are
// whole-object, and conditional operations use ETags so concurrent savers
// cannot silently clobber each other's manifests.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrPrecondition   = errors.New("precondition failed")
	ErrAlreadyExists  = errors.New("object already exists")
	ErrChecksumFailed = errors.New("checksum verification failed")
)

// Store is the backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get opens an object for reading. opts may request a byte range or
	// make the read conditional on the current ETag.
	Get(ctx context.Context, key string, opts *GetOptions) (io.ReadCloser, *ObjectInfo, error)

	// Head returns metadata without the body.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Put writes an object unconditionally.
	Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error)

	// PutIfAbsent writes only when the key does not exist yet, failing
	// with ErrAlreadyExists otherwise.
	PutIfAbsent(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error)

	// PutIfMatch writes only when the stored ETag equals etag, failing
	// with ErrPrecondition on a stale ETag and ErrNotFound on a missing
	// key.
	PutIfMatch(ctx context.Context, key string, body io.Reader, size int64, etag string, opts *PutOptions) (*ObjectInfo, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns one page of keys in lexicographic order.
	List(ctx context.Context, opts *ListOptions) (*ListResult, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// GetOptions makes a read conditional or partial. Zero values impose no
// condition.
type GetOptions struct {
	IfMatch     string
	IfNoneMatch string
	Range       *ByteRange
}

// ByteRange selects bytes [Start, End] inclusive.
type ByteRange struct {
	Start int64
	End   int64
}

// PutOptions carries optional write metadata.
type PutOptions struct {
	ContentType string
	// Checksum is a base64 SHA-256 of the body; the write fails with
	// ErrChecksumFailed when the uploaded bytes do not match.
	Checksum string
}

// ListOptions scopes and pages a listing. MaxKeys defaults to 1000.
type ListOptions struct {
	Prefix  string
	Marker  string
	MaxKeys int
}

// ListResult is one page of a listing. NextMarker resumes the listing
// when IsTruncated is set.
type ListResult struct {
	Objects     []ObjectInfo
	NextMarker  string
	IsTruncated bool
}
