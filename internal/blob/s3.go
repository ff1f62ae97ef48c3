package blob

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Store keeps objects in an S3-compatible bucket (AWS S3, MinIO, etc.).
type S3Store struct {
	client *minio.Client
	bucket string
}

// S3Config holds connection settings for the object store.
type S3Config struct {
	// Endpoint is the S3 API host:port, without scheme.
	Endpoint string
	// Bucket is the target bucket, created at startup if missing.
	Bucket string
	// AccessKey and SecretKey are the static credentials.
	AccessKey string
	SecretKey string
	// UseSSL selects https.
	UseSSL bool
}

// NewS3Store connects to the object store and ensures the bucket exists.
func NewS3Store(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, wrapOp("connect", cfg.Endpoint, err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, wrapOp("check bucket", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, wrapOp("create bucket", cfg.Bucket, err)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the object.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return wrapOp("put", key, err)
	}
	return nil
}

// Get opens the object for reading. GetObject is lazy, so stat first to
// surface missing keys as ErrNotFound instead of a read-time failure.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapOp("get", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, wrapOp("get", key, err)
	}
	return obj, nil
}

// Delete removes the object. S3 delete is idempotent.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return wrapOp("delete", key, err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return wrapOp("ping", s.bucket, err)
	}
	if !exists {
		return wrapOp("ping", s.bucket, ErrNotFound)
	}
	return nil
}
