package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.OpenRegistration)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "disk", cfg.Storage.Backend)
	assert.Equal(t, "fv_session", cfg.Session.CookieName)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)
	assert.Equal(t, int64(100*1024*1024), cfg.Quota.DefaultBytes)
	assert.Equal(t, int64(1024*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, "/admin", cfg.Admin.Prefix)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, 10, cfg.RateLimit.LoginPerMinute)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FILEVAULT_HTTP_PORT", "9999")
	t.Setenv("FILEVAULT_STORAGE_BACKEND", "s3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, "s3", cfg.Storage.Backend)
}
