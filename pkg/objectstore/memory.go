package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in a map. It is the default backend for tests
// and for running without any configured storage.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

type memoryObject struct {
	data []byte
	info ObjectInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memoryObject)}
}

func (s *MemoryStore) Get(ctx context.Context, key string, opts *GetOptions) (io.ReadCloser, *ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if opts != nil {
		if opts.IfMatch != "" && obj.info.ETag != opts.IfMatch {
			return nil, nil, ErrPrecondition
		}
		if opts.IfNoneMatch != "" && obj.info.ETag == opts.IfNoneMatch {
			return nil, nil, ErrPrecondition
		}
	}

	info := obj.info
	data := obj.data
	if opts != nil && opts.Range != nil {
		data = sliceRange(data, opts.Range)
	}
	return io.NopCloser(bytes.NewReader(data)), &info, nil
}

// sliceRange clamps an inclusive byte range to the object. Out-of-bounds
// ranges read as empty rather than erroring, matching S3 semantics loosely
// enough for segment reads.
func sliceRange(data []byte, r *ByteRange) []byte {
	size := int64(len(data))
	start, end := r.Start, r.End
	if start < 0 {
		start = 0
	}
	if end < start || start >= size {
		return nil
	}
	if end >= size {
		end = size - 1
	}
	return data[start : end+1]
}

func (s *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	info := obj.info
	return &info, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(key, body, opts)
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; ok {
		return nil, ErrAlreadyExists
	}
	return s.putLocked(key, body, opts)
}

func (s *MemoryStore) PutIfMatch(ctx context.Context, key string, body io.Reader, size int64, etag string, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	if obj.info.ETag != etag {
		return nil, ErrPrecondition
	}
	return s.putLocked(key, body, opts)
}

func (s *MemoryStore) putLocked(key string, body io.Reader, opts *PutOptions) (*ObjectInfo, error) {
	data, digest, err := readAndDigest(body)
	if err != nil {
		return nil, err
	}
	checksum := base64.StdEncoding.EncodeToString(digest)
	if opts != nil && opts.Checksum != "" && checksum != opts.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: expected %s, got %s", ErrChecksumFailed, opts.Checksum, checksum)
	}

	info := ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(digest[:16]),
		LastModified: time.Now(),
	}
	if opts != nil {
		info.ContentType = opts.ContentType
	}
	s.objects[key] = &memoryObject{data: data, info: info}

	out := info
	return &out, nil
}

func readAndDigest(body io.Reader) ([]byte, []byte, error) {
	var buf bytes.Buffer
	hash := sha256.New()
	if _, err := io.Copy(&buf, io.TeeReader(body, hash)); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), hash.Sum(nil), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix, marker, maxKeys := listParams(opts)

	var keys []string
	for k := range s.objects {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		if marker != "" && k <= marker {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &ListResult{}
	for i, key := range keys {
		if i >= maxKeys {
			result.IsTruncated = true
			result.NextMarker = keys[i-1]
			break
		}
		result.Objects = append(result.Objects, s.objects[key].info)
	}
	return result, nil
}

func listParams(opts *ListOptions) (prefix, marker string, maxKeys int) {
	maxKeys = 1000
	if opts != nil {
		prefix = opts.Prefix
		marker = opts.Marker
		if opts.MaxKeys > 0 {
			maxKeys = opts.MaxKeys
		}
	}
	return prefix, marker, maxKeys
}

// Clear drops every object. Test helper.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*memoryObject)
}
