package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"filevault/internal/config"
	"filevault/internal/ids"
	"filevault/internal/models"
	"filevault/internal/repository"
	"filevault/internal/security"
)

type AuthService struct {
	users    repository.UserRepo
	sessions repository.SessionRepo
	audit    repository.AuditRepo
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users repository.UserRepo,
	sessions repository.SessionRepo,
	audit repository.AuditRepo,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		audit:    audit,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

type AuthResult struct {
	SessionToken string
	AccessToken  string
	User         models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(username) > 64 {
		return AuthResult{}, fmt.Errorf("%w: invalid username", ErrInvalidCredentials)
	}

	if err := security.ValidatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
		QuotaBytes:   s.cfg.Quota.DefaultBytes,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return AuthResult{}, ErrDuplicateUser
		}
		return AuthResult{}, err
	}

	s.recordAudit(ctx, user.ID, "register", "", 0, "ok", input.IPAddress)

	return s.startSession(ctx, user, input.IPAddress, input.UserAgent)
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a hash anyway so unknown usernames cost the same as wrong
			// passwords.
			_, _ = security.HashPassword(input.Password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		s.log.Warn().Str("user_id", user.ID).Str("op", "login").Msg("credential check failed")
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.startSession(ctx, user, input.IPAddress, input.UserAgent)
}

func (s *AuthService) startSession(ctx context.Context, user models.User, ip string, userAgent string) (AuthResult, error) {
	token, tokenHash, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(s.cfg.Session.TTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, err
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		string(user.Role),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		SessionToken: token,
		AccessToken:  accessToken,
		User:         user,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Session.MaxSessions {
		return nil
	}
	return s.sessions.DeleteOldest(ctx, userID, s.cfg.Session.MaxSessions)
}

// ValidateSession resolves a cookie token to its user. Expired sessions are
// deleted on sight; live ones get their last-seen data refreshed.
func (s *AuthService) ValidateSession(ctx context.Context, token string, ip string, userAgent string) (models.User, models.Session, error) {
	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.User{}, models.Session{}, ErrInvalidSession
		}
		return models.User{}, models.Session{}, err
	}

	if session.Expired(time.Now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return models.User{}, models.Session{}, ErrExpiredSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = s.sessions.DeleteByID(ctx, session.ID)
			return models.User{}, models.Session{}, ErrInvalidSession
		}
		return models.User{}, models.Session{}, err
	}

	_ = s.sessions.Touch(ctx, session.ID, ip, userAgent)

	return user, session, nil
}

// ValidateAccessToken resolves a bearer JWT, requiring its backing session to
// still exist so revocation takes effect before the JWT expires.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenStr string) (models.User, models.Session, error) {
	claims, err := security.ParseAccessToken(tokenStr, s.cfg.Security.JWTAccessSecret)
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidSession
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidSession
	}
	if session.UserID != claims.UserID || session.Expired(time.Now()) {
		return models.User{}, models.Session{}, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidSession
	}

	return user, session, nil
}

// Logout drops the session behind the token. Idempotent: a second call with
// the same token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	err = s.sessions.DeleteByID(ctx, session.ID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	return err
}

// ChangePassword rotates the credential and invalidates every other session
// of the user, keeping only the one that made the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentSessionID string, currentPassword string, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := security.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	if err := security.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, false); err != nil {
		return err
	}

	if err := s.sessions.DeleteByUserExcept(ctx, userID, currentSessionID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("revoke sibling sessions failed")
	}

	s.recordAudit(ctx, userID, "change_password", "", 0, "ok", "")
	return nil
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet.
// The check is against the store, so restarts and multiple instances are safe.
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	if s.cfg.Admin.Username == "" || s.cfg.Admin.Password == "" {
		s.log.Warn().Msg("admin bootstrap skipped: no credentials configured")
		return nil
	}

	_, err := s.users.FindByUsername(ctx, s.cfg.Admin.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	hash, err := security.HashPassword(s.cfg.Admin.Password)
	if err != nil {
		return err
	}

	admin := models.User{
		ID:                 ids.New(),
		Username:           s.cfg.Admin.Username,
		PasswordHash:       hash,
		Role:               models.UserRoleAdmin,
		QuotaBytes:         s.cfg.Admin.QuotaBytes,
		MustChangePassword: true,
	}

	if err := s.users.Create(ctx, admin); err != nil {
		// A concurrent instance may have won the race; that is fine.
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil
		}
		return err
	}

	s.log.Info().Str("username", admin.Username).Msg("bootstrap admin account created; password change required")
	return nil
}

func (s *AuthService) recordAudit(ctx context.Context, userID, operation, fileName string, size int64, outcome, ip string) {
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
