package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LABELCHECK_CONFIG", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Limits.MaxItemsPerJob)
	assert.Equal(t, int64(10<<20), cfg.Limits.MaxItemBytes)
	assert.Equal(t, 3, cfg.Limits.MaxActiveJobs)
	assert.Equal(t, 12, cfg.Workers.PoolSize)
	assert.Equal(t, 10, cfg.Workers.ExtractionConcurrency)
	assert.Equal(t, 15*time.Second, cfg.Timers.Heartbeat)
	assert.Equal(t, 30*time.Minute, cfg.Timers.JobTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
limits:
  max_items_per_job: 50
  max_active_jobs: 1
workers:
  pool_size: 4
timers:
  heartbeat: 5s
`), 0o600))
	t.Setenv("LABELCHECK_CONFIG", path)
	t.Setenv("N_WORKERS", "8")
	t.Setenv("ALLOWED_TYPES", "image/png, image/jpeg")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Limits.MaxItemsPerJob)
	assert.Equal(t, 1, cfg.Limits.MaxActiveJobs)
	assert.Equal(t, 8, cfg.Workers.PoolSize, "environment overrides the file")
	assert.Equal(t, 5*time.Second, cfg.Timers.Heartbeat)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Limits.AllowedContentTypes)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [unterminated"), 0o600))
	t.Setenv("LABELCHECK_CONFIG", path)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Equal(t, ReasonConfig, ReasonOf(err))
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers.PoolSize = 0
	cfg.Limits.MaxItemBytes = cfg.Limits.MaxJobBytes + 1
	cfg.Archive.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "workers.pool_size")
	assert.Contains(t, msg, "limits.max_item_bytes")
	assert.Contains(t, msg, "archive.driver")
	assert.Contains(t, msg, "archive.dsn")
}
