package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"filevault/internal/config"
)

// ObjectStore stores blobs in an S3-compatible bucket. The digest and byte
// count are computed by wrapping the stream, so the recorded checksum covers
// exactly what the bucket received.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// meteredReader counts and hashes the bytes flowing through it and fails the
// stream once the admitted size is exceeded.
type meteredReader struct {
	r        io.Reader
	hasher   hash.Hash
	read     int64
	maxBytes int64
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.read += int64(n)
		if m.read > m.maxBytes {
			return n, ErrTooLarge
		}
		m.hasher.Write(p[:n])
	}
	return n, err
}

func (s *ObjectStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (PutResult, error) {
	metered := &meteredReader{r: r, hasher: sha256.New(), maxBytes: maxBytes}

	_, err := s.client.PutObject(ctx, s.bucket, key, metered, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		// The SDK aborts multipart uploads itself; a best-effort remove
		// covers the single-part path.
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.client.RemoveObject(removeCtx, s.bucket, key, minio.RemoveObjectOptions{})

		if metered.read > maxBytes {
			return PutResult{}, ErrTooLarge
		}
		if ctx.Err() != nil {
			return PutResult{}, ctx.Err()
		}
		return PutResult{}, fmt.Errorf("%w: put object: %v", ErrStorage, err)
	}

	return PutResult{Size: metered.read, Checksum: metered.hasher.Sum(nil)}, nil
}

func (s *ObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get object: %v", ErrStorage, err)
	}

	// GetObject is lazy; probe so missing keys surface as ErrBlobNotFound.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("%w: stat object: %v", ErrStorage, err)
	}
	return obj, nil
}

func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrBlobNotFound
		}
		return fmt.Errorf("%w: stat object: %v", ErrStorage, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove object: %v", ErrStorage, err)
	}
	return nil
}

func (s *ObjectStore) Checksum(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, rc); err != nil {
		return nil, fmt.Errorf("%w: read object: %v", ErrStorage, err)
	}
	return hasher.Sum(nil), nil
}

func (s *ObjectStore) RemoveNamespace(ctx context.Context, owner string) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    owner + "/",
		Recursive: true,
	})

	for object := range objects {
		if object.Err != nil {
			return fmt.Errorf("%w: list namespace: %v", ErrStorage, object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("%w: remove object: %v", ErrStorage, err)
		}
	}
	return nil
}

// SweepTemp drops abandoned multipart uploads; unlike the disk backend there
// is no staging directory to scan.
func (s *ObjectStore) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for upload := range s.client.ListIncompleteUploads(ctx, s.bucket, "", true) {
		if upload.Err != nil {
			return removed, fmt.Errorf("%w: list incomplete uploads: %v", ErrStorage, upload.Err)
		}
		if upload.Initiated.Before(cutoff) {
			if err := s.client.RemoveIncompleteUpload(ctx, s.bucket, upload.Key); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
