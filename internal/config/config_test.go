package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strerrors "github.com/strand-search/strand/internal/errors"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7700", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 1000, cfg.Search.MaxLimit)
	assert.Equal(t, 10*time.Second, cfg.Server.QueryTimeout)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":8080"
  query_timeout: 30s
search:
  default_limit: 10
  max_limit: 50
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.QueryTimeout)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "log:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))
	t.Setenv("STRAND_LOG_LEVEL", "error")
	t.Setenv("STRAND_MAX_LIMIT", "77")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 77, cfg.Search.MaxLimit)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server: ["), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeConfigInvalid, strerrors.CodeOf(err))
}

func TestValidate_RejectsBadLimits(t *testing.T) {
	cfg := Default()
	cfg.Search.MaxLimit = 5
	cfg.Search.DefaultLimit = 10
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_limit")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.Log.Level = "warn"
	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Log.Level)
}
