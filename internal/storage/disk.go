package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tmpDirName = ".tmp"

// DiskStore keeps blobs under baseDir, one subdirectory per owner. Uploads
// stage in baseDir/.tmp on the same filesystem, so the final rename is atomic.
type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("%w: init storage dir: %v", ErrStorage, err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

func (s *DiskStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: bad object key", ErrStorage)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (PutResult, error) {
	dst, err := s.objectPath(key)
	if err != nil {
		return PutResult{}, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.baseDir, tmpDirName), "upload-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: create temp: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	hasher := sha256.New()
	var written int64

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return PutResult{}, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxBytes {
				cleanup()
				return PutResult{}, ErrTooLarge
			}
			if _, err := tmp.Write(buf[:n]); err != nil {
				cleanup()
				return PutResult{}, fmt.Errorf("%w: write temp: %v", ErrStorage, err)
			}
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cleanup()
			return PutResult{}, fmt.Errorf("%w: read stream: %v", ErrStorage, readErr)
		}
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return PutResult{}, fmt.Errorf("%w: sync temp: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("%w: close temp: %v", ErrStorage, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("%w: create owner dir: %v", ErrStorage, err)
	}

	// The rename is the commit point. Retried once: transient failures here
	// (e.g. the owner dir racing a namespace removal) are the only ones that
	// can be retried without re-reading the request body.
	if err := os.Rename(tmpName, dst); err != nil {
		if err = os.Rename(tmpName, dst); err != nil {
			os.Remove(tmpName)
			return PutResult{}, fmt.Errorf("%w: finalize object: %v", ErrStorage, err)
		}
	}

	return PutResult{Size: written, Checksum: hasher.Sum(nil)}, nil
}

func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open object: %v", ErrStorage, err)
	}
	return f, nil
}

func (s *DiskStore) Remove(_ context.Context, key string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: remove object: %v", ErrStorage, err)
	}
	return nil
}

func (s *DiskStore) Checksum(ctx context.Context, key string) ([]byte, error) {
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

func (s *DiskStore) RemoveNamespace(_ context.Context, owner string) error {
	if owner == "" || strings.ContainsAny(owner, "/\\.") {
		return fmt.Errorf("%w: bad namespace", ErrStorage)
	}
	if err := os.RemoveAll(filepath.Join(s.baseDir, owner)); err != nil {
		return fmt.Errorf("%w: remove namespace: %v", ErrStorage, err)
	}
	return nil
}

func (s *DiskStore) SweepTemp(_ context.Context, olderThan time.Duration) (int, error) {
	dir := filepath.Join(s.baseDir, tmpDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: read temp dir: %v", ErrStorage, err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ObjectKey builds the canonical per-owner key for a blob.
func ObjectKey(ownerID, fileID string) string {
	return ownerID + "/" + fileID
}
