package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_FillsEveryKnob(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultSampleCount, cfg.Governor.Stat.SampleCount)
	assert.Equal(t, int64(DefaultIntervalMs), cfg.Governor.Stat.IntervalMs)
	assert.Equal(t, int64(DefaultMaxAllowedRtMs), cfg.Governor.Stat.MaxAllowedRtMs)
	assert.Equal(t, int64(DefaultOccupyTimeoutMs), cfg.Governor.Flow.OccupyTimeoutMs)
	assert.Equal(t, int64(1000), cfg.Governor.MetricLog.FlushIntervalMs)
}

func TestLoadConfig_YamlAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
governor:
  env: "prod"
  stat:
    sample_count: 4
  api:
    enabled: true
    port: "9000"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 4, cfg.Governor.Stat.SampleCount)
	// Omitted knobs fall back to defaults.
	assert.Equal(t, int64(DefaultIntervalMs), cfg.Governor.Stat.IntervalMs)
	assert.Equal(t, "9000", cfg.Governor.Api.Port)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("governor:\n  env: dev\n"), 0o644))

	t.Setenv("GOVERNOR_API_PORT", "7777")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Governor.Api.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
