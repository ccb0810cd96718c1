package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.HTTP.Enabled)
	assert.False(t, cfg.TCP.Enabled)
	assert.Equal(t, 5001, cfg.HTTP.Port)
	assert.Equal(t, 5000, cfg.TCP.Port)
	assert.Equal(t, 16, cfg.HTTP.MaxThreads)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gstd.yaml")
	yaml := `
http:
  enabled: true
  port: 9001
tcp:
  enabled: true
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 9001, cfg.HTTP.Port)
	assert.True(t, cfg.TCP.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate_ClampsUnlimitedThreadPools(t *testing.T) {
	cfg := Default()
	cfg.HTTP.MaxThreads = -1
	cfg.TCP.MaxThreads = 0
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.HTTP.MaxThreads, 0, "-1 'unlimited' must clamp to a bounded default")
	assert.Greater(t, cfg.TCP.MaxThreads, 0)
}

func TestValidate_RejectsInvalidPort(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Enabled = true
	cfg.HTTP.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInvalidLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())
}
