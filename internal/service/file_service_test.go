package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/models"
	"filevault/internal/quota"
)

func (e *testEnv) upload(t *testing.T, ownerID, name, content string) models.FileObject {
	t.Helper()
	file, err := e.files.Upload(context.Background(), UploadInput{
		OwnerID:      ownerID,
		Name:         name,
		DeclaredSize: int64(len(content)),
		Body:         strings.NewReader(content),
	})
	require.NoError(t, err)
	return file
}

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	content := "the quick brown fox"
	file := env.upload(t, user.ID, "fox.txt", content)

	assert.Equal(t, "fox.txt", file.Name)
	assert.Equal(t, int64(len(content)), file.SizeBytes)
	want := sha256.Sum256([]byte(content))
	assert.Equal(t, want[:], file.Checksum)

	got, rc, err := env.files.Download(ctx, user.ID, file.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, file.ID, got.ID)

	usage, err := env.files.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.ReservedBytes)
}

func TestUploadQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	// Quota is 100 bytes: 60 fits, another 50 does not, 40 does.
	env.upload(t, user.ID, "a.bin", strings.Repeat("x", 60))

	_, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "b.bin",
		DeclaredSize: 50,
		Body:         strings.NewReader(strings.Repeat("y", 50)),
	})
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)

	env.upload(t, user.ID, "c.bin", strings.Repeat("z", 40))
}

func TestUploadZeroBytes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file, err := env.files.Upload(ctx, UploadInput{
		OwnerID: user.ID,
		Name:    "empty.txt",
		Body:    strings.NewReader(""),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), file.SizeBytes)

	want := sha256.Sum256(nil)
	assert.Equal(t, want[:], file.Checksum)
}

func TestUploadBodyLargerThanDeclared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	_, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "liar.bin",
		DeclaredSize: 10,
		Body:         strings.NewReader(strings.Repeat("x", 20)),
	})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// The failed upload must leave no usage, reservation or blob behind.
	usage, err := env.files.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.ReservedBytes)

	files, err := env.files.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadBodySmallerThanDeclared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "small.bin",
		DeclaredSize: 50,
		Body:         strings.NewReader(strings.Repeat("x", 30)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), file.SizeBytes)

	// Only the actual size sticks; the over-reservation is returned.
	usage, err := env.files.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.ReservedBytes)
}

func TestUploadAbortedStreamReleasesReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	broken := io.MultiReader(strings.NewReader("part"), errReader{})
	_, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "broken.bin",
		DeclaredSize: 50,
		Body:         broken,
	})
	require.Error(t, err)

	usage, err := env.files.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.ReservedBytes)
}

func TestUploadDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	env.upload(t, user.ID, "report.pdf", "one")

	_, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "report.pdf",
		DeclaredSize: 3,
		Body:         strings.NewReader("two"),
	})
	assert.ErrorIs(t, err, ErrDuplicateName)

	renamed, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "report.pdf",
		DeclaredSize: 3,
		Body:         strings.NewReader("two"),
		AutoRename:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "report_1.pdf", renamed.Name)

	again, err := env.files.Upload(ctx, UploadInput{
		OwnerID:      user.ID,
		Name:         "report.pdf",
		DeclaredSize: 5,
		Body:         strings.NewReader("three"),
		AutoRename:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "report_2.pdf", again.Name)
}

func TestUploadNameIsSanitized(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "../../etc/passwd", "data")
	assert.Equal(t, "passwd", file.Name)
}

func TestSameNameDifferentOwners(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")

	env.upload(t, alice.ID, "notes.txt", "alice notes")
	env.upload(t, bob.ID, "notes.txt", "bob notes")
}

func TestDownloadOtherUsersFileLooksMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")

	file := env.upload(t, alice.ID, "secret.txt", "for alice only")

	_, _, err := env.files.Download(ctx, bob.ID, file.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	err = env.files.Delete(ctx, bob.ID, file.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteReclaimsQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "big.bin", strings.Repeat("x", 90))

	require.NoError(t, env.files.Delete(ctx, user.ID, file.ID, ""))

	usage, err := env.files.Usage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.UsedBytes)

	// The blob is gone and the record no longer resolves.
	_, _, err = env.files.Download(ctx, user.ID, file.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The name is free for reuse.
	env.upload(t, user.ID, "big.bin", strings.Repeat("y", 90))
}

func TestDeleteTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "once.bin", "data")

	require.NoError(t, env.files.Delete(ctx, user.ID, file.ID, ""))
	assert.ErrorIs(t, env.files.Delete(ctx, user.ID, file.ID, ""), ErrNotFound)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "data.bin", "pristine content")

	_, err := env.files.Verify(ctx, user.ID, file.ID)
	require.NoError(t, err)

	// Corrupt the blob behind the service's back.
	_, err = env.blob.Put(ctx, file.ObjectKey, bytes.NewReader([]byte("tampered bytes!!")), 1<<20)
	require.NoError(t, err)

	_, err = env.files.Verify(ctx, user.ID, file.ID)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	// Downloads of a corrupted file are refused, not served.
	_, _, err = env.files.Download(ctx, user.ID, file.ID)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
}

func TestShareLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "shared.txt", "public content")

	result, err := env.files.CreateShare(ctx, user.ID, file.ID, 0, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	got, rc, err := env.files.OpenShared(ctx, result.Token)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "public content", string(data))
	assert.Equal(t, file.ID, got.ID)

	require.NoError(t, env.files.RevokeShare(ctx, user.ID, file.ID, result.Share.ID, ""))

	_, _, err = env.files.OpenShared(ctx, result.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	// Revoking again is a no-op, not an error.
	require.NoError(t, env.files.RevokeShare(ctx, user.ID, file.ID, result.Share.ID, ""))
}

func TestShareExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "fleeting.txt", "short lived")

	result, err := env.files.CreateShare(ctx, user.ID, file.ID, time.Nanosecond, "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, _, err = env.files.OpenShared(ctx, result.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShareDiesWithFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.registerUser(t, "alice")

	file := env.upload(t, user.ID, "gone.txt", "content")
	result, err := env.files.CreateShare(ctx, user.ID, file.ID, 0, "")
	require.NoError(t, err)

	require.NoError(t, env.files.Delete(ctx, user.ID, file.ID, ""))

	_, _, err = env.files.OpenShared(ctx, result.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSharedUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.files.OpenShared(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShareOnOtherUsersFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")

	file := env.upload(t, alice.ID, "private.txt", "content")

	_, err := env.files.CreateShare(ctx, bob.ID, file.ID, 0, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
