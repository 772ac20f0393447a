// Package config loads bundlescope's layered configuration: embedded
// defaults, then an optional bundlescope.toml, then BUNDLESCOPE_*
// environment variables, then explicit overrides (CLI flags), highest
// last.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bundlescope/bundlescope/pkg/errors"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("not implemented")
}

// Limits bounds per-rule and per-file work during analysis.
type Limits struct {
	MaxReadBytes     int `koanf:"max_read_bytes"`
	MaxEvidence      int `koanf:"max_evidence"`
	MaxFileMB        int `koanf:"max_file_mb"`
	TailLines        int `koanf:"tail_lines"`
	HistoryTailLines int `koanf:"history_tail_lines"`
}

// Thresholds are the structured health-check cutoffs.
type Thresholds struct {
	DiskCriticalPercent         int     `koanf:"disk_critical_percent"`
	DiskWarningPercent          int     `koanf:"disk_warning_percent"`
	MemCriticalAvailablePercent float64 `koanf:"mem_critical_available_percent"`
	MemWarningAvailablePercent  float64 `koanf:"mem_warning_available_percent"`
	SwapHighPercent             float64 `koanf:"swap_high_percent"`
	SwapElevatedPercent         float64 `koanf:"swap_elevated_percent"`
	UpdatesWarningTotal         int     `koanf:"updates_warning_total"`
}

// Config is the full merged configuration.
type Config struct {
	RulesDir    string        `koanf:"rules_dir"`
	Timeout     time.Duration `koanf:"timeout"`
	Concurrency int           `koanf:"concurrency"`
	Limits      Limits        `koanf:"limits"`
	Thresholds  Thresholds    `koanf:"thresholds"`
}

// envKey maps BUNDLESCOPE_* variable names to dotted config keys. Only
// a section prefix becomes the delimiter; key names keep their
// underscores, so BUNDLESCOPE_RULES_DIR addresses rules_dir and
// BUNDLESCOPE_LIMITS_MAX_EVIDENCE addresses limits.max_evidence.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "BUNDLESCOPE_"))
	for _, section := range []string{"limits_", "thresholds_"} {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}

// Load builds the merged configuration. configPath may be empty, in
// which case bundlescope.toml in the working directory is tried.
// overrides holds dotted keys ("rules_dir", "limits.max_evidence") that
// win over every other layer; CLI flags land here.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	if configPath == "" {
		if _, err := os.Stat("bundlescope.toml"); err == nil {
			configPath = "bundlescope.toml"
		}
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", configPath)
		}
	}

	if err := k.Load(env.Provider("BUNDLESCOPE_", ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to apply overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &cfg, nil
}
