package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openblog/backend/internal/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ImageStore is the bucket that holds uploaded post images. Keys are the
// stored filenames served under /file/{filename}.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	EnsureBucket(ctx context.Context) error
	Ping(ctx context.Context) error
	Bucket() string
}

// New builds the image store selected by cfg.StorageDriver.
func New(cfg *config.Config) (ImageStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		return NewMinio(&MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.ImageBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "s3":
		return NewS3(&S3Config{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.ImageBucket,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
