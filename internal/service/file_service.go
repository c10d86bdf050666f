package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"filevault/internal/config"
	"filevault/internal/ids"
	"filevault/internal/models"
	"filevault/internal/quota"
	"filevault/internal/repository"
	"filevault/internal/security"
	"filevault/internal/storage"
)

const maxRenameAttempts = 100

type FileService struct {
	files  repository.FileRepo
	shares repository.ShareRepo
	audit  repository.AuditRepo
	ledger quota.Ledger
	store  storage.BlobStore
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewFileService(
	files repository.FileRepo,
	shares repository.ShareRepo,
	audit repository.AuditRepo,
	ledger quota.Ledger,
	store storage.BlobStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *FileService {
	return &FileService{
		files:  files,
		shares: shares,
		audit:  audit,
		ledger: ledger,
		store:  store,
		cfg:    cfg,
		log:    log,
	}
}

type UploadInput struct {
	OwnerID      string
	Name         string
	DeclaredSize int64
	Body         io.Reader
	AutoRename   bool
	IPAddress    string
}

// Upload admits a file through the reserve-then-commit pipeline: quota is
// reserved for the declared size before any byte lands, the stream goes to
// the blob store with the reservation as its hard cap, the record is inserted
// and the reservation committed at the actual size. Any failure after the
// reservation releases it.
func (s *FileService) Upload(ctx context.Context, input UploadInput) (models.FileObject, error) {
	if input.DeclaredSize < 0 {
		return models.FileObject{}, fmt.Errorf("%w: negative declared size", ErrFileTooLarge)
	}
	if input.DeclaredSize > s.cfg.Upload.MaxBytes {
		return models.FileObject{}, ErrFileTooLarge
	}

	name, err := s.resolveName(ctx, input.OwnerID, input.Name, input.AutoRename)
	if err != nil {
		return models.FileObject{}, err
	}

	res, err := s.ledger.Reserve(ctx, input.OwnerID, input.DeclaredSize)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.recordAudit(ctx, input.OwnerID, "upload", name, input.DeclaredSize, "quota_exceeded", input.IPAddress)
		}
		return models.FileObject{}, err
	}

	fileID := ids.New()
	key := storage.ObjectKey(input.OwnerID, fileID)

	put, err := s.store.Put(ctx, key, input.Body, input.DeclaredSize)
	if err != nil {
		s.releaseReservation(res)
		if errors.Is(err, storage.ErrTooLarge) {
			// The body ran past its declared size; the declaration is the
			// admission contract, so the upload is rejected outright.
			s.recordAudit(ctx, input.OwnerID, "upload", name, input.DeclaredSize, "oversized", input.IPAddress)
			return models.FileObject{}, ErrFileTooLarge
		}
		return models.FileObject{}, err
	}

	file := models.FileObject{
		ID:        fileID,
		UserID:    input.OwnerID,
		Name:      name,
		ObjectKey: key,
		SizeBytes: put.Size,
		Checksum:  put.Checksum,
		Status:    models.FileStatusActive,
	}

	if err := s.files.Create(ctx, file); err != nil {
		s.releaseReservation(res)
		s.removeBlob(key)
		if errors.Is(err, repository.ErrDuplicateFileName) {
			return models.FileObject{}, ErrDuplicateName
		}
		return models.FileObject{}, err
	}

	if err := s.ledger.Commit(ctx, res, put.Size); err != nil {
		// Commit failing means the ledger cannot account for the bytes; the
		// record and blob are rolled back rather than left unaccounted.
		s.log.Error().Err(err).Str("file_id", fileID).Msg("quota commit failed, rolling back upload")
		_ = s.files.MarkDeleting(ctx, fileID)
		_ = s.files.MarkDeleted(ctx, fileID)
		s.removeBlob(key)
		return models.FileObject{}, err
	}

	s.recordAudit(ctx, input.OwnerID, "upload", name, put.Size, "ok", input.IPAddress)
	s.log.Info().
		Str("user_id", input.OwnerID).
		Str("file_id", fileID).
		Str("name", name).
		Int64("size", put.Size).
		Msg("file uploaded")

	return file, nil
}

func (s *FileService) resolveName(ctx context.Context, ownerID, rawName string, autoRename bool) (string, error) {
	name := storage.SanitizeFileName(rawName)
	if name == "" {
		name = ids.New()
	}

	_, err := s.files.FindByName(ctx, ownerID, name)
	if errors.Is(err, repository.ErrFileNotFound) {
		return name, nil
	}
	if err != nil {
		return "", err
	}

	if !autoRename {
		return "", ErrDuplicateName
	}

	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		candidate := storage.NextName(name, attempt)
		_, err := s.files.FindByName(ctx, ownerID, candidate)
		if errors.Is(err, repository.ErrFileNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrDuplicateName
}

func (s *FileService) List(ctx context.Context, ownerID string) ([]models.FileObject, error) {
	return s.files.ListByUser(ctx, ownerID)
}

func (s *FileService) Usage(ctx context.Context, ownerID string) (quota.Usage, error) {
	return s.ledger.Usage(ctx, ownerID)
}

// Download streams a file back to its owner after verifying the stored bytes
// against the recorded digest. A mismatch refuses the download rather than
// serving corrupted data.
func (s *FileService) Download(ctx context.Context, requesterID, fileID string) (models.FileObject, io.ReadCloser, error) {
	file, err := s.ownedActiveFile(ctx, requesterID, fileID)
	if err != nil {
		return models.FileObject{}, nil, err
	}

	if err := s.checkIntegrity(ctx, file); err != nil {
		return models.FileObject{}, nil, err
	}

	rc, err := s.store.Open(ctx, file.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return models.FileObject{}, nil, ErrNotFound
		}
		return models.FileObject{}, nil, err
	}
	return file, rc, nil
}

// Verify recomputes the stored digest without streaming the file out.
func (s *FileService) Verify(ctx context.Context, requesterID, fileID string) (models.FileObject, error) {
	file, err := s.ownedActiveFile(ctx, requesterID, fileID)
	if err != nil {
		return models.FileObject{}, err
	}
	if err := s.checkIntegrity(ctx, file); err != nil {
		return models.FileObject{}, err
	}
	return file, nil
}

func (s *FileService) checkIntegrity(ctx context.Context, file models.FileObject) error {
	sum, err := s.store.Checksum(ctx, file.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !bytes.Equal(sum, file.Checksum) {
		s.log.Error().
			Str("file_id", file.ID).
			Str("want", hex.EncodeToString(file.Checksum)).
			Str("got", hex.EncodeToString(sum)).
			Msg("integrity check failed")
		s.recordAudit(ctx, file.UserID, "verify", file.Name, file.SizeBytes, "integrity_mismatch", "")
		return ErrIntegrityMismatch
	}
	return nil
}

// Delete transitions the record active -> deleting -> deleted, removes the
// blob and reclaims the quota. The status step serializes concurrent deletes
// of the same file: only the caller that wins the transition proceeds.
func (s *FileService) Delete(ctx context.Context, requesterID, fileID string, ip string) error {
	file, err := s.ownedFile(ctx, requesterID, fileID)
	if err != nil {
		return err
	}
	if file.Status != models.FileStatusActive {
		return ErrNotFound
	}

	if err := s.files.MarkDeleting(ctx, fileID); err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.store.Remove(ctx, file.ObjectKey); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.log.Warn().Err(err).Str("file_id", fileID).Msg("blob removal failed; record stays in deleting state")
		return err
	}

	if err := s.shares.DeleteByFile(ctx, fileID); err != nil {
		s.log.Warn().Err(err).Str("file_id", fileID).Msg("share cleanup failed")
	}

	if err := s.files.MarkDeleted(ctx, fileID); err != nil {
		return err
	}

	if err := s.ledger.Reclaim(ctx, file.UserID, file.SizeBytes); err != nil {
		s.log.Error().Err(err).Str("file_id", fileID).Msg("quota reclaim failed")
	}

	s.recordAudit(ctx, requesterID, "delete", file.Name, file.SizeBytes, "ok", ip)
	return nil
}

type ShareResult struct {
	Token string
	Share models.ShareToken
}

// CreateShare mints an unauthenticated download token for an owned file. A
// zero ttl makes the token valid until revoked.
func (s *FileService) CreateShare(ctx context.Context, ownerID, fileID string, ttl time.Duration, ip string) (ShareResult, error) {
	file, err := s.ownedActiveFile(ctx, ownerID, fileID)
	if err != nil {
		return ShareResult{}, err
	}

	token, tokenHash, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return ShareResult{}, err
	}

	share := models.ShareToken{
		ID:        ids.New(),
		FileID:    file.ID,
		TokenHash: tokenHash,
	}
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		share.ExpiresAt = &expires
	}

	if err := s.shares.Create(ctx, share); err != nil {
		return ShareResult{}, err
	}

	s.recordAudit(ctx, ownerID, "share", file.Name, file.SizeBytes, "ok", ip)
	return ShareResult{Token: token, Share: share}, nil
}

func (s *FileService) ListShares(ctx context.Context, ownerID, fileID string) ([]models.ShareToken, error) {
	if _, err := s.ownedFile(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	return s.shares.ListByFile(ctx, fileID)
}

// RevokeShare marks a token unusable. Idempotent: revoking twice keeps the
// first revocation time.
func (s *FileService) RevokeShare(ctx context.Context, ownerID, fileID, shareID string, ip string) error {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	share, err := s.shares.GetByID(ctx, shareID)
	if err != nil {
		if errors.Is(err, repository.ErrShareNotFound) {
			return ErrNotFound
		}
		return err
	}
	if share.FileID != fileID {
		return ErrNotFound
	}

	if err := s.shares.Revoke(ctx, shareID, time.Now()); err != nil {
		return err
	}

	s.recordAudit(ctx, ownerID, "revoke_share", file.Name, 0, "ok", ip)
	return nil
}

// OpenShared resolves a share token to its file and stream. Every failure
// mode (unknown token, revoked, expired, file gone) collapses to ErrNotFound
// so the endpoint leaks nothing about why.
func (s *FileService) OpenShared(ctx context.Context, token string) (models.FileObject, io.ReadCloser, error) {
	share, err := s.shares.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrShareNotFound) {
			return models.FileObject{}, nil, ErrNotFound
		}
		return models.FileObject{}, nil, err
	}

	if !share.Usable(time.Now()) {
		return models.FileObject{}, nil, ErrNotFound
	}

	file, err := s.files.GetByID(ctx, share.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return models.FileObject{}, nil, ErrNotFound
		}
		return models.FileObject{}, nil, err
	}
	if file.Status != models.FileStatusActive {
		return models.FileObject{}, nil, ErrNotFound
	}

	if err := s.checkIntegrity(ctx, file); err != nil {
		return models.FileObject{}, nil, err
	}

	rc, err := s.store.Open(ctx, file.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return models.FileObject{}, nil, ErrNotFound
		}
		return models.FileObject{}, nil, err
	}
	return file, rc, nil
}

// ownedFile loads a file and enforces ownership. Files owned by someone else
// come back as ErrForbidden; the handler layer maps that to the same 404 as
// a missing file.
func (s *FileService) ownedFile(ctx context.Context, requesterID, fileID string) (models.FileObject, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return models.FileObject{}, ErrNotFound
		}
		return models.FileObject{}, err
	}
	if file.UserID != requesterID {
		return models.FileObject{}, ErrForbidden
	}
	return file, nil
}

func (s *FileService) ownedActiveFile(ctx context.Context, requesterID, fileID string) (models.FileObject, error) {
	file, err := s.ownedFile(ctx, requesterID, fileID)
	if err != nil {
		return models.FileObject{}, err
	}
	if file.Status != models.FileStatusActive {
		return models.FileObject{}, ErrNotFound
	}
	return file, nil
}

func (s *FileService) releaseReservation(res *quota.Reservation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ledger.Release(ctx, res); err != nil {
		s.log.Error().Err(err).Str("user_id", res.UserID).Msg("reservation release failed")
	}
}

func (s *FileService) removeBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Remove(ctx, key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.log.Error().Err(err).Str("key", key).Msg("orphan blob removal failed")
	}
}

func (s *FileService) recordAudit(ctx context.Context, userID, operation, fileName string, size int64, outcome, ip string) {
	entry := models.AuditEntry{
		ID:        ids.New(),
		UserID:    userID,
		Operation: operation,
		FileName:  fileName,
		SizeBytes: size,
		Outcome:   outcome,
		IPAddress: ip,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("op", operation).Msg("audit write failed")
	}
}
