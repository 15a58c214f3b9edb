package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "claimgraph", cfg.App.Name)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, ":8000", cfg.Server.Addr())
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, "rules", cfg.Inference.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Inference.Retry.InitialBackoff)
	assert.InDelta(t, 100.0, cfg.Pricing.Base, 1e-9)
	assert.Equal(t, "USD", cfg.Pricing.Currency)
	assert.False(t, cfg.Checkpoint.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
storage:
  type: memory
inference:
  backend: llm
  options:
    model: haiku
    token_budget: 4000
pipeline:
  stage_timeout: 30s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "llm", cfg.Inference.Backend)
	assert.Equal(t, "haiku", cfg.Inference.Options["model"])
	assert.EqualValues(t, 4000, cfg.Inference.Options["token_budget"])
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, "info", cfg.Log.Level, "untouched keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600))

	t.Setenv("CLAIMGRAPH_SERVER__PORT", "9200")
	t.Setenv("CLAIMGRAPH_PIPELINE__MAX_RETRIES", "5")
	t.Setenv("CLAIMGRAPH_LOG__FORMAT", "json")
	t.Setenv("CLAIMGRAPH_TELEMETRY__TRACING", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Telemetry.Tracing)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("CLAIMGRAPH_SERVER__PORT", "70000")
	t.Setenv("CLAIMGRAPH_STORAGE__TYPE", "postgres")
	t.Setenv("CLAIMGRAPH_LOG__LEVEL", "chatty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "storage.type")
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Storage.SQLite.Path = ""
	cfg.Checkpoint = CheckpointConfig{Enabled: true}
	cfg.Pipeline.MaxRetries = -1
	cfg.Inference.Backend = ""
	cfg.Inference.Retry.MaxAttempts = 0
	cfg.Pricing.Currency = "dollars"

	err = cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{
		"storage.sqlite.path",
		"checkpoint.path",
		"pipeline.max_retries",
		"inference.backend",
		"inference.retry.max_attempts",
		"pricing.currency",
	} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Log = LogConfig{Level: "warn", Format: "json"}

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "claimgraph", rec["app"])
}
