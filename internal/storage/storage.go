// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup.
// MinioStorage works with any S3-compatible provider, S3Storage talks to AWS S3
// (or MinIO) through the AWS SDK.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// Storage is the interface for key-addressed blob operations.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Download opens the object stored under key. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
	// DeleteMany removes every listed object, reporting all failures at once.
	DeleteMany(ctx context.Context, keys []string) error
}
