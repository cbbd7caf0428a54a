package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite", cfg.Storage.Provider)
	assert.Equal(t, "moodledger", cfg.Storage.Namespace)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Zero(t, cfg.Queue.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.ProbeInterval)
	assert.False(t, cfg.Mirror.Enabled)
	assert.False(t, cfg.Mirror.AutoMigrate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("STORAGE_PROVIDER", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("QUEUE_INITIAL_BACKOFF", "2s")
	t.Setenv("QUEUE_BACKOFF_JITTER", "0.25")
	t.Setenv("MIRROR_DATABASE_URL", "postgres://localhost/mood?sslmode=disable")
	t.Setenv("CONNECTIVITY_INITIAL_ONLINE", "true")
	t.Setenv("QUEUE_MAX_BACKOFF", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Provider)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.InitialBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Queue.MaxBackoff, "unparsable values fall back to the default")
	assert.InDelta(t, 0.25, cfg.Queue.RandomizationFactor, 1e-9)
	assert.True(t, cfg.Mirror.Enabled, "a mirror URL enables the mirror")
	assert.True(t, cfg.Connectivity.InitialOnline)
}

func TestLoadReadsEnvFileOutsideProduction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("STORAGE_NAMESPACE=staging_ns\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("GO_ENV", "staging")
	// godotenv never overrides variables that are already set, so make sure
	// this one is unset for the duration of the test
	t.Setenv("STORAGE_NAMESPACE", "")
	require.NoError(t, os.Unsetenv("STORAGE_NAMESPACE"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging_ns", cfg.Storage.Namespace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Mirror.AutoMigrate)
}

func TestValidate(t *testing.T) {
	t.Setenv("GO_ENV", "production")

	cases := map[string]map[string]string{
		"unknown provider":    {"STORAGE_PROVIDER": "floppy"},
		"zero attempts":       {"QUEUE_MAX_ATTEMPTS": "0"},
		"shrinking backoff":   {"QUEUE_BACKOFF_MULTIPLIER": "0.5"},
		"jitter above one":    {"QUEUE_BACKOFF_JITTER": "1.5"},
		"zero probe":          {"CONNECTIVITY_PROBE_INTERVAL": "0s"},
		"mirror without url":  {"MIRROR_ENABLED": "true"},
		"empty user":          {"MOODLEDGER_USER_ID": ""},
		"sqlite without path": {"SQLITE_PATH": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
