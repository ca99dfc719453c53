package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/stockpilot/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	for _, v := range []string{"STOCKPILOT_API_URL", "STOCKPILOT_TOKEN_STORE", "STOCKPILOT_LOGIN_PATH", "STOCKPILOT_COALESCE_REFRESH", "ENV"} {
		t.Setenv(v, "")
	}

	c := config.New()
	require.Equal(t, "http://localhost:8000", c.GetBaseURL())
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
	require.Equal(t, config.StoreFile, c.GetStoreKind())
	require.Equal(t, "/login", c.GetLoginPath())
	require.True(t, c.GetCoalesceRefresh())
	require.Equal(t, "DEV", c.GetEnv())
	require.Zero(t, c.GetRateLimit())
	require.Equal(t, 10, c.GetRateBurst())
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stockpilot.yaml")
	err := os.WriteFile(path, []byte(`
app_name: Pilot
api:
  base_url: https://api.stockpilot.test/
  timeout: 5s
  rate_limit: 2.5
session:
  login_path: /signin
  coalesce_refresh: false
storage:
  kind: redis
  redis_db: 3
`), 0o600)
	require.NoError(t, err)

	t.Setenv("STOCKPILOT_API_URL", "")
	t.Setenv("STOCKPILOT_LOGIN_PATH", "")
	t.Setenv("STOCKPILOT_COALESCE_REFRESH", "")
	t.Setenv("STOCKPILOT_REDIS_DB", "")
	t.Setenv("STOCKPILOT_TOKEN_STORE", "memory")

	c, err := config.Load(path)
	require.NoError(t, err)

	t.Run("file values", func(t *testing.T) {
		require.Equal(t, "https://api.stockpilot.test", c.GetBaseURL())
		require.Equal(t, 5*time.Second, c.GetRequestTimeout())
		require.Equal(t, 2.5, c.GetRateLimit())
		require.Equal(t, "/signin", c.GetLoginPath())
		require.False(t, c.GetCoalesceRefresh())
		require.Equal(t, 3, c.GetRedisDB())
	})

	t.Run("env wins over file", func(t *testing.T) {
		require.Equal(t, config.StoreMemory, c.GetStoreKind())
	})
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}
