package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"filevault/internal/config"
	"filevault/internal/middleware"
	"filevault/internal/quota"
	"filevault/internal/repository"
	"filevault/internal/security"
	"filevault/internal/service"
	"filevault/internal/storage"
)

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	cache        *redis.Client
	authService  *service.AuthService
	fileService  *service.FileService
	adminService *service.AdminService
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	cache *redis.Client,
	users repository.UserRepo,
	sessions repository.SessionRepo,
	files repository.FileRepo,
	shares repository.ShareRepo,
	audit repository.AuditRepo,
	ledger quota.Ledger,
	store storage.BlobStore,
) HandlerSet {
	return HandlerSet{
		log:          log,
		cfg:          cfg,
		cache:        cache,
		authService:  service.NewAuthService(users, sessions, audit, cfg, log),
		fileService:  service.NewFileService(files, shares, audit, ledger, store, cfg, log),
		adminService: service.NewAdminService(users, sessions, files, audit, ledger, store, cfg, log),
	}
}

func (h HandlerSet) AuthService() *service.AuthService { return h.authService }

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	// Shared downloads are public by design; the token is the credential.
	router.GET("/s/:token", h.DownloadShared)

	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", middleware.RateLimit(h.cache, h.log, "register", h.cfg.RateLimit.LoginPerMinute), h.SignUp)
	auth.POST("/login", middleware.RateLimit(h.cache, h.log, "login", h.cfg.RateLimit.LoginPerMinute), h.Login)
	auth.POST("/logout", h.Logout)

	protected := api.Group("")
	protected.Use(middleware.Auth(h.cfg, h.authService))
	{
		protected.GET("/auth/me", h.Me)
		protected.POST("/auth/change-password", h.ChangePassword)

		protected.GET("/files", h.ListFiles)
		protected.POST("/files", h.Upload)
		protected.GET("/files/:id", h.DownloadFile)
		protected.GET("/files/:id/verify", h.VerifyFile)
		protected.DELETE("/files/:id", h.DeleteFile)

		protected.POST("/files/:id/shares", h.CreateShare)
		protected.GET("/files/:id/shares", h.ListShares)
		protected.DELETE("/files/:id/shares/:shareId", h.RevokeShare)

		protected.GET("/usage", h.Usage)
	}

	admin := router.Group(h.cfg.Admin.Prefix)
	admin.Use(
		middleware.Auth(h.cfg, h.authService),
		middleware.RequireAdmin(),
	)
	{
		admin.GET("/users", h.AdminListUsers)
		admin.POST("/users", h.AdminCreateUser)
		admin.PUT("/users/:id/quota", h.AdminSetQuota)
		admin.POST("/users/:id/reset-password", h.AdminResetPassword)
		admin.POST("/users/:id/toggle-admin", h.AdminToggleAdmin)
		admin.POST("/users/:id/recalc-usage", h.AdminRecalcUsage)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
		admin.GET("/audit", h.AdminAudit)
	}
}

// writeError maps service failures to their wire representation. Forbidden
// collapses into 404: a caller probing someone else's file ids learns nothing
// beyond "no such file".
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, quota.ErrQuotaExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "quota_exceeded"})
	case errors.Is(err, service.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
	case errors.Is(err, service.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_name"})
	case errors.Is(err, service.ErrDuplicateUser):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_username"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrInvalidSession), errors.Is(err, service.ErrExpiredSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
	case isWeakPassword(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "weak_password", "detail": err.Error()})
	case errors.Is(err, service.ErrIntegrityMismatch):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity_error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}

func isWeakPassword(err error) bool {
	return errors.Is(err, security.ErrPasswordTooShort) ||
		errors.Is(err, security.ErrPasswordNoUpper) ||
		errors.Is(err, security.ErrPasswordNoLower) ||
		errors.Is(err, security.ErrPasswordNoDigit)
}
