// Package repository holds the persistence interfaces the services are built
// against and their postgres implementations. The memory subpackage provides
// the same interfaces backed by maps for tests and the ephemeral dev mode.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"filevault/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrShareNotFound     = errors.New("share not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateFileName = errors.New("file name already taken")
)

type UserRepo interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte, mustChange bool) error
	UpdateQuota(ctx context.Context, id string, quotaBytes int64) error
	SetRole(ctx context.Context, id string, role models.UserRole) error
	SetUsedBytes(ctx context.Context, id string, usedBytes int64) error
	Delete(ctx context.Context, id string) error
}

type SessionRepo interface {
	Create(ctx context.Context, session models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash []byte) (models.Session, error)
	GetByID(ctx context.Context, id string) (models.Session, error)
	Touch(ctx context.Context, id string, ip string, userAgent string) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByUserExcept(ctx context.Context, userID string, keepID string) error
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldest(ctx context.Context, userID string, keepLatest int) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type FileRepo interface {
	Create(ctx context.Context, file models.FileObject) error
	GetByID(ctx context.Context, id string) (models.FileObject, error)
	FindByName(ctx context.Context, userID string, name string) (models.FileObject, error)
	ListByUser(ctx context.Context, userID string) ([]models.FileObject, error)
	MarkDeleting(ctx context.Context, id string) error
	MarkDeleted(ctx context.Context, id string) error
	SumActiveBytes(ctx context.Context, userID string) (int64, error)
}

type ShareRepo interface {
	Create(ctx context.Context, share models.ShareToken) error
	GetByID(ctx context.Context, id string) (models.ShareToken, error)
	GetByTokenHash(ctx context.Context, tokenHash []byte) (models.ShareToken, error)
	ListByFile(ctx context.Context, fileID string) ([]models.ShareToken, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	DeleteByFile(ctx context.Context, fileID string) error
	DeleteUnusable(ctx context.Context, now time.Time) (int64, error)
}

type AuditRepo interface {
	Record(ctx context.Context, entry models.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// isUniqueViolation reports whether err is a postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
