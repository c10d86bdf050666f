package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestDiskStorePutOpenRoundTrip(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()
	content := []byte("hello filevault")

	result, err := store.Put(ctx, ObjectKey("owner", "file1"), bytes.NewReader(content), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Size)

	want := sha256.Sum256(content)
	assert.Equal(t, want[:], result.Checksum)

	rc, err := store.Open(ctx, ObjectKey("owner", "file1"))
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDiskStorePutZeroBytes(t *testing.T) {
	store := newTestDiskStore(t)

	result, err := store.Put(context.Background(), "owner/empty", bytes.NewReader(nil), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Size)

	// sha256 of the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		hex.EncodeToString(result.Checksum),
	)
}

func TestDiskStorePutTooLarge(t *testing.T) {
	store := newTestDiskStore(t)

	_, err := store.Put(context.Background(), "owner/big", strings.NewReader("0123456789"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDiskStorePutFailureLeavesNoObject(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()

	failing := io.MultiReader(strings.NewReader("partial"), errReader{})
	_, err := store.Put(ctx, "owner/broken", failing, 1024)
	require.Error(t, err)

	_, err = store.Open(ctx, "owner/broken")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// The staging area must not accumulate the aborted upload either.
	entries, err := os.ReadDir(filepath.Join(store.baseDir, tmpDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStoreRejectsTraversalKeys(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()

	for _, key := range []string{"../escape", "..", "/abs/path", ""} {
		_, err := store.Put(ctx, key, strings.NewReader("x"), 10)
		assert.ErrorIs(t, err, ErrStorage, "key %q", key)
	}
}

func TestDiskStoreRemove(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "owner/f", strings.NewReader("data"), 10)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "owner/f"))
	assert.ErrorIs(t, store.Remove(ctx, "owner/f"), ErrBlobNotFound)
}

func TestDiskStoreChecksumDetectsCorruption(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()

	result, err := store.Put(ctx, "owner/f", strings.NewReader("original"), 100)
	require.NoError(t, err)

	// Flip the stored bytes behind the store's back.
	path, err := store.objectPath("owner/f")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))

	sum, err := store.Checksum(ctx, "owner/f")
	require.NoError(t, err)
	assert.NotEqual(t, result.Checksum, sum)
}

func TestDiskStoreRemoveNamespace(t *testing.T) {
	store := newTestDiskStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "alice/a", strings.NewReader("a"), 10)
	require.NoError(t, err)
	_, err = store.Put(ctx, "bob/b", strings.NewReader("b"), 10)
	require.NoError(t, err)

	require.NoError(t, store.RemoveNamespace(ctx, "alice"))

	_, err = store.Open(ctx, "alice/a")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	_, err = store.Open(ctx, "bob/b")
	assert.NoError(t, err)

	assert.Error(t, store.RemoveNamespace(ctx, "../etc"))
	assert.Error(t, store.RemoveNamespace(ctx, ""))
}

func TestDiskStoreSweepTemp(t *testing.T) {
	store := newTestDiskStore(t)

	stale := filepath.Join(store.baseDir, tmpDirName, "upload-stale")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(store.baseDir, tmpDirName, "upload-fresh")
	require.NoError(t, os.WriteFile(fresh, []byte("y"), 0o600))

	removed, err := store.SweepTemp(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("stream broke") }
