package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlescope/bundlescope/pkg/config"
	"github.com/bundlescope/bundlescope/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "rules", cfg.RulesDir)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 4, cfg.Concurrency)

	assert.Equal(t, 200000, cfg.Limits.MaxReadBytes)
	assert.Equal(t, 10, cfg.Limits.MaxEvidence)
	assert.Equal(t, 50, cfg.Limits.MaxFileMB)
	assert.Equal(t, 200, cfg.Limits.TailLines)
	assert.Equal(t, 50, cfg.Limits.HistoryTailLines)

	assert.Equal(t, 95, cfg.Thresholds.DiskCriticalPercent)
	assert.Equal(t, 85, cfg.Thresholds.DiskWarningPercent)
	assert.Equal(t, 5.0, cfg.Thresholds.MemCriticalAvailablePercent)
	assert.Equal(t, 15.0, cfg.Thresholds.MemWarningAvailablePercent)
	assert.Equal(t, 80.0, cfg.Thresholds.SwapHighPercent)
	assert.Equal(t, 50.0, cfg.Thresholds.SwapElevatedPercent)
	assert.Equal(t, 20, cfg.Thresholds.UpdatesWarningTotal)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundlescope.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules_dir = "/etc/bundlescope/rules"
timeout = "45s"
concurrency = 8

[thresholds]
disk_critical_percent = 98
`), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/etc/bundlescope/rules", cfg.RulesDir)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 98, cfg.Thresholds.DiskCriticalPercent)
	// Untouched keys keep their defaults.
	assert.Equal(t, 85, cfg.Thresholds.DiskWarningPercent)
	assert.Equal(t, 10, cfg.Limits.MaxEvidence)
}

func TestLoadExplicitOverrides(t *testing.T) {
	t.Setenv("BUNDLESCOPE_CONCURRENCY", "16")

	cfg, err := config.Load("", map[string]interface{}{
		"rules_dir":           "/opt/rules",
		"timeout":             "10s",
		"concurrency":         2,
		"limits.max_evidence": 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "/opt/rules", cfg.RulesDir)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	// Overrides beat environment variables.
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 5, cfg.Limits.MaxEvidence)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BUNDLESCOPE_CONCURRENCY", "16")
	t.Setenv("BUNDLESCOPE_TIMEOUT", "90s")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoadEnvSnakeCaseKeys(t *testing.T) {
	// Underscores inside a key name are part of the key, not section
	// delimiters: RULES_DIR is top-level rules_dir, LIMITS_MAX_EVIDENCE
	// is limits.max_evidence.
	t.Setenv("BUNDLESCOPE_RULES_DIR", "/opt/env-rules")
	t.Setenv("BUNDLESCOPE_LIMITS_MAX_EVIDENCE", "3")
	t.Setenv("BUNDLESCOPE_THRESHOLDS_DISK_CRITICAL_PERCENT", "99")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/env-rules", cfg.RulesDir)
	assert.Equal(t, 3, cfg.Limits.MaxEvidence)
	assert.Equal(t, 99, cfg.Thresholds.DiskCriticalPercent)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing_explicit_config_file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrConfigLoad, errors.GetCode(err))
	})

	t.Run("malformed_config_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("rules_dir = [unclosed"), 0o644))
		_, err := config.Load(path, nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrConfigLoad, errors.GetCode(err))
	})

	t.Run("concurrency_floor", func(t *testing.T) {
		t.Setenv("BUNDLESCOPE_CONCURRENCY", "0")
		cfg, err := config.Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Concurrency)
	})
}
