package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Configuration System Tests
// =============================================================================

func isolateEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "cache"))
	t.Setenv("HOME", tmpDir)
	for _, k := range []string{
		"PORT", "DATABASE_URL", "TASKFLOW_SERVER_ADDR", "TASKFLOW_AUTH_TOKEN", "TASKFLOW_STORAGE_DRIVER",
		"TASKFLOW_DATABASE_URL", "TASKFLOW_API_URL", "TASKFLOW_CACHE_TTL", "TASKFLOW_LOG_LEVEL",
		"TASKFLOW_EMBEDDING_PROVIDER", "TASKFLOW_EMBEDDING_DIMENSIONS",
	} {
		t.Setenv(k, "")
	}
	return tmpDir
}

// TestConfigAutoCreate verifies first run creates config file at XDG path with defaults
func TestConfigAutoCreate(t *testing.T) {
	tmpDir := isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	configPath := filepath.Join(tmpDir, "config", "taskflow", "config.yaml")
	_, err = os.Stat(configPath)
	require.NoError(t, err, "config file not created")

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(tmpDir, "data", "taskflow", "tasks.db"), cfg.Storage.SQLite.Path)
	assert.Equal(t, filepath.Join(tmpDir, "cache", "taskflow", "cache.json"), cfg.Client.CachePath)
	assert.Equal(t, 5*time.Minute, cfg.GetCacheTTLDuration())
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.NoError(t, cfg.Validate())
}

// TestSampleConfigParses verifies the embedded sample is valid YAML that validates
func TestSampleConfigParses(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(GetSampleConfig()), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "subprocess", cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:8080", cfg.Client.APIURL)
	assert.NoError(t, cfg.Validate())
}

// TestConfigCustomPath verifies an explicit path is honored and ~ is expanded
func TestConfigCustomPath(t *testing.T) {
	tmpDir := isolateEnv(t)
	path := filepath.Join(tmpDir, "custom.yaml")
	content := `
storage:
  driver: sqlite
  sqlite:
    path: "~/tasks/custom.db"
client:
  cache_ttl: "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "tasks", "custom.db"), cfg.Storage.SQLite.Path)
	assert.Equal(t, 30*time.Second, cfg.GetCacheTTLDuration())
}

// TestConfigInvalidYAML verifies a parse error is reported
func TestConfigInvalidYAML(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid YAML")
}

// TestEnvOverrides verifies TASKFLOW_* variables beat the file
func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TASKFLOW_STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/tasks")
	t.Setenv("TASKFLOW_API_URL", "http://api.internal:9000")
	t.Setenv("PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/tasks", cfg.Storage.Postgres.URL)
	assert.Equal(t, "http://api.internal:9000", cfg.Client.APIURL)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

// TestLoadDotEnv verifies .env values populate the environment without clobbering
func TestLoadDotEnv(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, os.Unsetenv("TASKFLOW_AUTH_TOKEN"))
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TASKFLOW_AUTH_TOKEN=from-dotenv\nTASKFLOW_LOG_LEVEL=debug\n"), 0644))
	t.Setenv("TASKFLOW_LOG_LEVEL", "warn")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "from-dotenv", os.Getenv("TASKFLOW_AUTH_TOKEN"))
	assert.Equal(t, "warn", os.Getenv("TASKFLOW_LOG_LEVEL"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

// TestValidateCollectsFieldErrors verifies every bad field is reported
func TestValidateCollectsFieldErrors(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Storage.Driver = "mongo"
	cfg.Client.CacheTTL = "soon"
	cfg.Client.APIURL = "localhost:8080"
	cfg.OutputFormat = "xml"

	err := cfg.Validate()
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	var fields []string
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	joined := strings.Join(fields, ",")
	for _, want := range []string{"storage.driver", "client.cache_ttl", "client.api_url", "output_format"} {
		assert.Contains(t, joined, want)
	}
}

// TestValidatePostgresRequiresURL verifies driver-specific requirements
func TestValidatePostgresRequiresURL(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Storage.Driver = DriverPostgres

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, cfg.Validate(), &fieldErrs)
	assert.Equal(t, "storage.postgres.url", fieldErrs[0].Field)
}

// TestDurationGettersFallBack verifies bad durations fall back to defaults
func TestDurationGettersFallBack(t *testing.T) {
	cfg := &Config{Client: ClientConfig{CacheTTL: "bogus", Timeout: "-1s"}}
	assert.Equal(t, 5*time.Minute, cfg.GetCacheTTLDuration())
	assert.Equal(t, 15*time.Second, cfg.GetClientTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
}
