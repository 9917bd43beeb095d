package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/epr-admin-frontend/internal/config"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BASE_URL", "https://admin.example.com/")
	t.Setenv("ENTRA_CLIENT_ID", "client-1")
	t.Setenv("ENTRA_CLIENT_SECRET", "secret-1")
	t.Setenv("ENTRA_WELL_KNOWN_URL", "https://login.example.com/tenant/v2.0/.well-known/openid-configuration")
	t.Setenv("SESSION_COOKIE_PASSWORD", "0123456789abcdef0123456789abcdef")
}

func TestConfig_Defaults(t *testing.T) {
	c := config.New()

	require.Equal(t, ":3000", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.False(t, c.IsProduction())
	require.Equal(t, 4*time.Hour, c.GetCookieTTL())
	require.Equal(t, config.CacheEngineMemory, c.GetCacheEngine())
	require.Equal(t, time.Duration(0), c.GetDiscoveryCacheTTL())
}

func TestConfig_FromEnv(t *testing.T) {
	setValidEnv(t)
	t.Setenv("PORT", ":8081")
	t.Setenv("ENV", "production")
	t.Setenv("ENTRA_API_SCOPE", "api://epr-backend/.default")
	t.Setenv("SESSION_COOKIE_TTL", "30m")
	t.Setenv("REDIS_DB", "3")

	c := config.New()

	require.Equal(t, ":8081", c.GetPort())
	require.True(t, c.IsProduction())
	require.Equal(t, "https://admin.example.com", c.GetBaseURL())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access", "api://epr-backend/.default"}, c.GetScopes())
	require.Equal(t, 30*time.Minute, c.GetCookieTTL())
	require.Equal(t, 3, c.GetRedisDB())
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		setValidEnv(t)
		require.NoError(t, config.Validate(config.New()))
	})

	t.Run("short cookie password", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("SESSION_COOKIE_PASSWORD", "too-short")
		err := config.Validate(config.New())
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
		require.Contains(t, err.Error(), "CookiePassword")
	})

	t.Run("unknown cache engine", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("SESSION_CACHE_ENGINE", "memcached")
		err := config.Validate(config.New())
		require.Error(t, err)
		require.Contains(t, err.Error(), "CacheEngine")
	})

	t.Run("missing client id", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("ENTRA_CLIENT_ID", "")
		err := config.Validate(config.New())
		require.Error(t, err)
		require.Contains(t, err.Error(), "ClientID")
	})
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("APP_NAME=From File\n"), 0o600))
	t.Setenv("APP_NAME", "")
	os.Unsetenv("APP_NAME")

	c, err := config.Load(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "From File", c.GetAppName())
}
