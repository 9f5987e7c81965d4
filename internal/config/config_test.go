package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "crm", cfg.Auth.Issuer)
	assert.Equal(t, 10, cfg.Directory.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Directory.RatePerSec, 0.001)
	assert.Equal(t, 5, cfg.Directory.BreakerThreshold)
	assert.Equal(t, 5, cfg.Import.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Import.Pause())
	assert.Equal(t, 60, cfg.Session.CacheTTLSecs)
	assert.True(t, cfg.Reaper.Enabled)
	assert.Equal(t, "@every 5m", cfg.Reaper.Schedule)
	assert.Equal(t, 30*time.Minute, cfg.Reaper.StaleAfter())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: crm.db
log:
  level: debug
  format: console
server:
  port: 9090
import:
  batch_size: 20
  pause_ms: 0
directory:
  base_url: http://waha:3000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "crm.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Import.BatchSize)
	assert.Equal(t, time.Duration(0), cfg.Import.Pause())
	assert.Equal(t, "http://waha:3000", cfg.Directory.BaseURL)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Directory.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CRM_STORE_DRIVER", "postgres")
	t.Setenv("CRM_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CRM_SERVER_PORT", "3000")
	t.Setenv("CRM_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("CRM_IMPORT_BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 50, cfg.Import.BatchSize)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "crm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\nimport:\n  batch_size: 7\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Import.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile_Missing(t *testing.T) {
	chdirTemp(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/crm"
	cfg.Server.Port = 8080
	cfg.Auth.JWTSecret = "secret"
	cfg.Import.BatchSize = 5
	cfg.Import.PauseMs = 500
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_Missing(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Auth.JWTSecret = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateImport_BatchBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.JWTSecret = ""

	cfg.Import.BatchSize = 0
	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import.batch_size must be between 1 and 500")

	cfg.Import.BatchSize = 501
	assert.Error(t, cfg.Validate("import"))

	cfg.Import.BatchSize = 500
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")

	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "crm.db"
	assert.NoError(t, cfg.Validate("reap"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
