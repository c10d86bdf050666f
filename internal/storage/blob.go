// Package storage persists file bytes behind the BlobStore interface. The
// disk backend is the default; the s3 backend targets any S3-compatible
// endpoint. Both compute a sha256 digest while streaming so the digest always
// describes exactly the bytes that were stored.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrStorage wraps backend IO failures so callers can classify them
	// without leaking backend detail.
	ErrStorage = errors.New("storage failure")

	ErrBlobNotFound = errors.New("blob not found")

	// ErrTooLarge means the stream exceeded the byte limit the caller set
	// (normally the quota reservation for the upload).
	ErrTooLarge = errors.New("stream exceeds admitted size")
)

type PutResult struct {
	Size     int64
	Checksum []byte
}

type BlobStore interface {
	// Put streams r into the object at key, writing at most maxBytes. The
	// object becomes visible atomically on success; on any failure (including
	// ctx cancellation) no partial object remains.
	Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (PutResult, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Remove(ctx context.Context, key string) error

	// Checksum re-reads the stored bytes and returns their sha256.
	Checksum(ctx context.Context, key string) ([]byte, error)

	// RemoveNamespace deletes every object under the given owner prefix.
	RemoveNamespace(ctx context.Context, owner string) error

	// SweepTemp removes staging leftovers older than the given age; these
	// only exist after a crash mid-upload.
	SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
}
