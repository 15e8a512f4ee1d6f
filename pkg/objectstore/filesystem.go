package objectstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FSStore persists objects under a local directory: payloads below
// objects/, per-object metadata as JSON below meta/. Useful for local
// single-node deployments without an S3 endpoint.
type FSStore struct {
	root string
	mu   sync.RWMutex
}

type fsMeta struct {
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type"`
	Checksum     string    `json:"checksum,omitempty"`
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) objectPath(key string) string {
	return filepath.Join(s.root, "objects", key)
}

func (s *FSStore) metaPath(key string) string {
	return filepath.Join(s.root, "meta", key+".json")
}

func (s *FSStore) Get(ctx context.Context, key string, opts *GetOptions) (io.ReadCloser, *ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(key)
	if err != nil {
		return nil, nil, err
	}
	if opts != nil {
		if opts.IfMatch != "" && meta.ETag != opts.IfMatch {
			return nil, nil, ErrPrecondition
		}
		if opts.IfNoneMatch != "" && meta.ETag == opts.IfNoneMatch {
			return nil, nil, ErrPrecondition
		}
	}

	file, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	info := meta.objectInfo(key)
	if opts != nil && opts.Range != nil {
		if _, err := file.Seek(opts.Range.Start, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, err
		}
		return &limitedReadCloser{rc: file, limit: opts.Range.End - opts.Range.Start + 1}, info, nil
	}
	return file, info, nil
}

func (m *fsMeta) objectInfo(key string) *ObjectInfo {
	return &ObjectInfo{
		Key:          key,
		Size:         m.Size,
		ETag:         m.ETag,
		LastModified: m.LastModified,
		ContentType:  m.ContentType,
	}
}

// limitedReadCloser caps a range read at the requested length while
// keeping the underlying file handle closable.
type limitedReadCloser struct {
	rc    io.ReadCloser
	limit int64
	read  int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.read >= l.limit {
		return 0, io.EOF
	}
	if remaining := l.limit - l.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.rc.Read(p)
	l.read += int64(n)
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.rc.Close()
}

func (s *FSStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(key)
	if err != nil {
		return nil, err
	}
	return meta.objectInfo(key), nil
}

func (s *FSStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(key, body, opts)
}

func (s *FSStore) PutIfAbsent(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(key); err == nil {
		return nil, ErrAlreadyExists
	} else if err != ErrNotFound {
		return nil, err
	}
	return s.putLocked(key, body, opts)
}

func (s *FSStore) PutIfMatch(ctx context.Context, key string, body io.Reader, size int64, etag string, opts *PutOptions) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(key)
	if err != nil {
		return nil, err
	}
	if meta.ETag != etag {
		return nil, ErrPrecondition
	}
	return s.putLocked(key, body, opts)
}

func (s *FSStore) putLocked(key string, body io.Reader, opts *PutOptions) (*ObjectInfo, error) {
	objPath := s.objectPath(key)
	metaPath := s.metaPath(key)
	for _, p := range []string{objPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
	}

	data, digest, err := readAndDigest(body)
	if err != nil {
		return nil, err
	}
	checksum := base64.StdEncoding.EncodeToString(digest)
	if opts != nil && opts.Checksum != "" && checksum != opts.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: expected %s, got %s", ErrChecksumFailed, opts.Checksum, checksum)
	}

	if err := os.WriteFile(objPath, data, 0644); err != nil {
		return nil, err
	}

	meta := fsMeta{
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(digest[:16]),
		LastModified: time.Now(),
		Checksum:     checksum,
	}
	if opts != nil {
		meta.ContentType = opts.ContentType
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(metaPath, encoded, 0644); err != nil {
		return nil, err
	}
	return meta.objectInfo(key), nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.objectPath(key), s.metaPath(key)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *FSStore) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metaDir := filepath.Join(s.root, "meta")
	if _, err := os.Stat(metaDir); os.IsNotExist(err) {
		return &ListResult{}, nil
	}

	prefix, marker, maxKeys := listParams(opts)

	var keys []string
	err := filepath.Walk(metaDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(metaDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(rel, ".json")
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		if marker != "" && key <= marker {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	result := &ListResult{}
	for i, key := range keys {
		if i >= maxKeys {
			result.IsTruncated = true
			result.NextMarker = keys[i-1]
			break
		}
		meta, err := s.readMeta(key)
		if err != nil {
			continue
		}
		result.Objects = append(result.Objects, *meta.objectInfo(key))
	}
	return result, nil
}

func (s *FSStore) readMeta(key string) (*fsMeta, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta fsMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Clear removes everything under the root. Test helper.
func (s *FSStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0755)
}
