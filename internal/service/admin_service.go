package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"filevault/internal/config"
	"filevault/internal/ids"
	"filevault/internal/models"
	"filevault/internal/quota"
	"filevault/internal/repository"
	"filevault/internal/security"
	"filevault/internal/storage"
)

// AdminService carries the management facade. Every mutating call records an
// audit entry attributed to the acting admin.
type AdminService struct {
	users    repository.UserRepo
	sessions repository.SessionRepo
	files    repository.FileRepo
	audit    repository.AuditRepo
	ledger   quota.Ledger
	store    storage.BlobStore
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAdminService(
	users repository.UserRepo,
	sessions repository.SessionRepo,
	files repository.FileRepo,
	audit repository.AuditRepo,
	ledger quota.Ledger,
	store storage.BlobStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		sessions: sessions,
		files:    files,
		audit:    audit,
		ledger:   ledger,
		store:    store,
		cfg:      cfg,
		log:      log,
	}
}

type AdminUserView struct {
	User  models.User
	Usage quota.Usage
}

func (s *AdminService) ListUsers(ctx context.Context) ([]AdminUserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]AdminUserView, 0, len(users))
	for _, u := range users {
		views = append(views, AdminUserView{
			User: u,
			Usage: quota.Usage{
				UsedBytes:     u.UsedBytes,
				ReservedBytes: u.ReservedBytes,
				QuotaBytes:    u.QuotaBytes,
			},
		})
	}
	return views, nil
}

type CreateUserInput struct {
	Username   string
	Password   string
	QuotaBytes int64
	IPAddress  string
}

func (s *AdminService) CreateUser(ctx context.Context, actorID string, input CreateUserInput) (models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(username) > 64 {
		return models.User{}, ErrInvalidCredentials
	}
	if err := security.ValidatePassword(input.Password); err != nil {
		return models.User{}, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	quotaBytes := input.QuotaBytes
	if quotaBytes <= 0 {
		quotaBytes = s.cfg.Quota.DefaultBytes
	}

	user := models.User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         models.UserRoleUser,
		QuotaBytes:   quotaBytes,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return models.User{}, ErrDuplicateUser
		}
		return models.User{}, err
	}

	s.recordAudit(ctx, actorID, "admin_create_user", username, 0, "ok", input.IPAddress)
	return user, nil
}

// SetQuota changes a user's allowance. Shrinking below current usage is
// allowed: existing files stay, new uploads fail until usage drops.
func (s *AdminService) SetQuota(ctx context.Context, actorID, userID string, quotaBytes int64, ip string) error {
	if quotaBytes < 0 {
		return errors.New("quota must not be negative")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.users.UpdateQuota(ctx, userID, quotaBytes); err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "admin_set_quota", user.Username, quotaBytes, "ok", ip)
	return nil
}

// DeleteUser removes the account, its sessions, its file records and its
// entire blob namespace. Admins cannot delete themselves.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, userID string, ip string) error {
	if actorID == userID {
		return ErrForbidden
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	// Blobs first: if this fails the account survives and the call can be
	// retried. The row delete cascades sessions, files and shares.
	if err := s.store.RemoveNamespace(ctx, userID); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return err
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.recordAudit(ctx, actorID, "admin_delete_user", user.Username, 0, "ok", ip)
	return nil
}

// ResetPassword sets a new credential chosen by the admin and forces the user
// to change it at next login. All of the user's sessions are revoked.
func (s *AdminService) ResetPassword(ctx context.Context, actorID, userID, newPassword string, ip string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := security.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, true); err != nil {
		return err
	}

	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("session revocation after reset failed")
	}

	s.recordAudit(ctx, actorID, "admin_reset_password", user.Username, 0, "ok", ip)
	return nil
}

// ToggleAdmin flips a user between the user and admin roles. Admins cannot
// demote themselves, so the system always keeps at least one admin.
func (s *AdminService) ToggleAdmin(ctx context.Context, actorID, userID string, ip string) (models.UserRole, error) {
	if actorID == userID {
		return "", ErrForbidden
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	role := models.UserRoleAdmin
	if user.Role == models.UserRoleAdmin {
		role = models.UserRoleUser
	}

	if err := s.users.SetRole(ctx, userID, role); err != nil {
		return "", err
	}

	s.recordAudit(ctx, actorID, "admin_toggle_role", user.Username, 0, string(role), ip)
	return role, nil
}

// RecalcUsage rebuilds used_bytes from the sum of the user's active file
// records, healing drift left by crashes between blob and ledger writes.
func (s *AdminService) RecalcUsage(ctx context.Context, actorID, userID string, ip string) (int64, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	actual, err := s.files.SumActiveBytes(ctx, userID)
	if err != nil {
		return 0, err
	}

	if actual != user.UsedBytes {
		s.log.Warn().
			Str("user_id", userID).
			Int64("recorded", user.UsedBytes).
			Int64("actual", actual).
			Msg("usage drift corrected")
	}

	if err := s.users.SetUsedBytes(ctx, userID, actual); err != nil {
		return 0, err
	}

	s.recordAudit(ctx, actorID, "admin_recalc_usage", user.Username, actual, "ok", ip)
	return actual, nil
}

func (s *AdminService) RecentAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audit.ListRecent(ctx, limit)
}

func (s *AdminService) recordAudit(ctx context.Context, userID, operation, fileName string, size int64, outcome, ip string) {
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
