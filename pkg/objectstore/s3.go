package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Store talks to any S3-compatible endpoint (AWS, MinIO, Tigris)
// through minio-go. Conditional writes map onto ETag match headers.
type S3Store struct {
	client *minio.Client
	bucket string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// normalizeEndpoint strips a scheme prefix; minio-go wants host:port and a
// separate secure flag.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	}
	return endpoint, useSSL
}

func (s *S3Store) Get(ctx context.Context, key string, opts *GetOptions) (io.ReadCloser, *ObjectInfo, error) {
	getOpts := minio.GetObjectOptions{}
	if opts != nil {
		if opts.IfMatch != "" {
			getOpts.SetMatchETag(opts.IfMatch)
		}
		if opts.IfNoneMatch != "" {
			getOpts.SetMatchETagExcept(opts.IfNoneMatch)
		}
		if opts.Range != nil {
			if err := getOpts.SetRange(opts.Range.Start, opts.Range.End); err != nil {
				return nil, nil, fmt.Errorf("invalid range: %w", err)
			}
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, getOpts)
	if err != nil {
		return nil, nil, s.mapError(err)
	}
	if opts != nil && opts.Range != nil {
		return obj, &ObjectInfo{Key: key}, nil
	}

	stat, err := obj.Stat()
	if err != nil {
		mapped := s.mapError(err)
		// Some gateways return 412 on Stat even though the object is
		// readable; fall back to Head for the metadata.
		if errors.Is(mapped, ErrPrecondition) {
			if headInfo, headErr := s.Head(ctx, key); headErr == nil {
				return obj, headInfo, nil
			}
		}
		obj.Close()
		return nil, nil, mapped
	}
	return obj, statInfo(key, stat), nil
}

func statInfo(key string, stat minio.ObjectInfo) *ObjectInfo {
	return &ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ETag:         strings.Trim(stat.ETag, "\""),
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
	}
}

func uploadInfo(key string, info minio.UploadInfo) *ObjectInfo {
	return &ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         strings.Trim(info.ETag, "\""),
		LastModified: info.LastModified,
	}
}

func (s *S3Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return statInfo(key, stat), nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	reader, size, putOpts, err := s.preparePut(body, size, opts)
	if err != nil {
		return nil, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, putOpts)
	if err != nil {
		return nil, s.mapError(err)
	}
	return uploadInfo(key, info), nil
}

func (s *S3Store) PutIfAbsent(ctx context.Context, key string, body io.Reader, size int64, opts *PutOptions) (*ObjectInfo, error) {
	reader, size, putOpts, err := s.preparePut(body, size, opts)
	if err != nil {
		return nil, err
	}
	putOpts.SetMatchETagExcept("*")

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, putOpts)
	if err != nil {
		mapped := s.mapError(err)
		if errors.Is(mapped, ErrPrecondition) {
			return nil, ErrAlreadyExists
		}
		return nil, mapped
	}
	return uploadInfo(key, info), nil
}

func (s *S3Store) PutIfMatch(ctx context.Context, key string, body io.Reader, size int64, etag string, opts *PutOptions) (*ObjectInfo, error) {
	reader, size, putOpts, err := s.preparePut(body, size, opts)
	if err != nil {
		return nil, err
	}
	putOpts.SetMatchETag(etag)

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, putOpts)
	if err != nil {
		return nil, s.mapError(err)
	}
	return uploadInfo(key, info), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	listOpts := minio.ListObjectsOptions{}
	maxKeys := 1000
	if opts != nil {
		listOpts.Prefix = opts.Prefix
		listOpts.StartAfter = opts.Marker
		if opts.MaxKeys > 0 {
			listOpts.MaxKeys = opts.MaxKeys
			maxKeys = opts.MaxKeys
		}
	}

	result := &ListResult{}
	for obj := range s.client.ListObjects(ctx, s.bucket, listOpts) {
		if obj.Err != nil {
			return nil, s.mapError(obj.Err)
		}
		result.Objects = append(result.Objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, "\""),
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
		if len(result.Objects) >= maxKeys {
			result.IsTruncated = true
			result.NextMarker = obj.Key
			break
		}
	}
	return result, nil
}

// EnsureBucket creates the configured bucket when missing.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *S3Store) mapError(err error) error {
	if err == nil {
		return nil
	}

	errResp := minio.ToErrorResponse(err)
	switch errResp.Code {
	case "NoSuchKey":
		return ErrNotFound
	case "PreconditionFailed":
		return ErrPrecondition
	}
	switch errResp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusPreconditionFailed:
		return ErrPrecondition
	case http.StatusConflict:
		return ErrAlreadyExists
	}
	return err
}

// preparePut translates PutOptions into minio options. When a checksum is
// requested the body is buffered and verified locally before upload.
func (s *S3Store) preparePut(body io.Reader, size int64, opts *PutOptions) (io.Reader, int64, minio.PutObjectOptions, error) {
	putOpts := minio.PutObjectOptions{}
	if opts != nil {
		putOpts.ContentType = opts.ContentType
		if opts.Checksum != "" {
			if raw, err := base64.StdEncoding.DecodeString(opts.Checksum); err == nil && len(raw) == 32 {
				putOpts.UserMetadata = map[string]string{
					"X-Amz-Checksum-SHA256": opts.Checksum,
				}
			}
		}
	}

	if opts == nil || opts.Checksum == "" {
		return body, size, putOpts, nil
	}

	var buf bytes.Buffer
	hash := sha256.New()
	if _, err := io.Copy(&buf, io.TeeReader(body, hash)); err != nil {
		return nil, 0, minio.PutObjectOptions{}, fmt.Errorf("failed to compute checksum: %w", err)
	}
	computed := base64.StdEncoding.EncodeToString(hash.Sum(nil))
	if computed != opts.Checksum {
		return nil, 0, minio.PutObjectOptions{}, fmt.Errorf("%w: checksum mismatch: expected %s, got %s", ErrChecksumFailed, opts.Checksum, computed)
	}
	return bytes.NewReader(buf.Bytes()), int64(buf.Len()), putOpts, nil
}
