package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"filevault/internal/config"
	"filevault/internal/models"
	"filevault/internal/repository/memory"
	"filevault/internal/storage"
)

type testEnv struct {
	store *memory.Store
	blob  *storage.DiskStore
	cfg   *config.AppConfig
	auth  *AuthService
	files *FileService
	admin *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	blob, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.AppConfig{
		Environment:      "test",
		OpenRegistration: true,
		Session: config.SessionConfig{
			CookieName:  "fv_session",
			TTL:         time.Hour,
			MaxSessions: 3,
		},
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-secret",
			JWTAccessTTL:    time.Minute,
		},
		Quota:  config.QuotaConfig{DefaultBytes: 100},
		Upload: config.UploadConfig{MaxBytes: 1 << 20},
		Admin: config.AdminConfig{
			Prefix:     "/admin",
			Username:   "admin",
			Password:   "Bootstrap1",
			QuotaBytes: 1000,
		},
	}

	logger := zerolog.Nop()

	return &testEnv{
		store: store,
		blob:  blob,
		cfg:   cfg,
		auth:  NewAuthService(store.Users(), store.Sessions(), store.Audit(), cfg, logger),
		files: NewFileService(store.Files(), store.Shares(), store.Audit(), store.Ledger(), blob, cfg, logger),
		admin: NewAdminService(store.Users(), store.Sessions(), store.Files(), store.Audit(), store.Ledger(), blob, cfg, logger),
	}
}

// registerUser creates an account through the normal registration path and
// returns the resulting login state.
func (e *testEnv) registerUser(t *testing.T, username string) (models.User, AuthResult) {
	t.Helper()
	result, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Password: "Password1",
	})
	require.NoError(t, err)
	return result.User, result
}
