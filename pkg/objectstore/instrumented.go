package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/siftdata/sift/internal/metrics"
)

// InstrumentedStore decorates a Store so every operation reports its
// latency and outcome to the metrics registry. Wrap the backend once at
// startup; the dataset layer only sees the Store interface.
type InstrumentedStore struct {
	inner Store
}

func NewInstrumentedStore(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

// observe starts a timer for op and returns the completion callback.
func observe(op string) func(error) {
	start := time.Now()
	return func(err error) {
		metrics.ObserveObjectStoreOp(op, time.Since(start).Seconds(), err)
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string, opts *GetOptions) (io.ReadCloser, *ObjectInfo, error) {
	done := observe("get")
	rc, info, err := s.inner.Get(ctx, key, opts)
	done(err)
	return rc, info, err
}

func (s *InstrumentedStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	done := observe("head")
	info, err := s.inner.Head(ctx, key)
	done(err)
	return info, err
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	done := observe("put")
	info, err := s.inner.Put(ctx, key, body, size, opts)
	done(err)
	return info, err
}

func (s *InstrumentedStore) PutIfAbsent(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	done := observe("put_if_absent")
	info, err := s.inner.PutIfAbsent(ctx, key, body, size, opts)
	done(err)
	return info, err
}

func (s *InstrumentedStore) PutIfMatch(ctx context.Context, key string, body io.Reader, size int64, etag string, opts *PutOptions) (*ObjectInfo, error) {
	done := observe("put_if_match")
	info, err := s.inner.PutIfMatch(ctx, key, body, size, etag, opts)
	done(err)
	return info, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	done := observe("delete")
	err := s.inner.Delete(ctx, key)
	done(err)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	done := observe("list")
	result, err := s.inner.List(ctx, opts)
	done(err)
	return result, err
}
