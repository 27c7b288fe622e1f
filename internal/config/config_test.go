package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UsesDefaultsWhenEnvUnset(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "data"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3.0, cfg.Watchdog.VolumeMultipleThreshold)
	assert.Equal(t, "en", cfg.Guardrail.DefaultLanguage)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "9090")
	t.Setenv("GUARDRAIL_STRICT_MODE", "true")
	t.Setenv("WATCHDOG_WHALE_THRESHOLD_USD", "2500000")

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "data"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Guardrail.StrictMode)
	assert.Equal(t, 2_500_000.0, cfg.Watchdog.WhaleThresholdUSD)
}

func TestValidate_RejectsBackupEnabledWithoutBucket(t *testing.T) {
	cfg := &Config{Backup: BackupConfig{Enabled: true}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_AllowsBackupDisabledWithoutCredentials(t *testing.T) {
	cfg := &Config{Backup: BackupConfig{Enabled: false}}
	assert.NoError(t, cfg.Validate())
}
