// Package config loads the assay TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/farcloser/assay/internal/score"
)

// EnvForceCPU overrides runtime.force_cpu when set to a boolean value.
const EnvForceCPU = "ASSAY_FORCE_CPU"

// Paths locates the database and the classifier artifact.
type Paths struct {
	Store string `toml:"store"`
	Model string `toml:"model"`
}

// Analysis holds pipeline policy.
type Analysis struct {
	Segmented       bool                  `toml:"segmented"`
	Workers         int                   `toml:"workers"`
	Parallelism     int                   `toml:"parallelism"`
	ClipThreshold   float64               `toml:"clip_threshold"`
	BanThreshold    float64               `toml:"ban_threshold"`
	GrayZoneLow     float64               `toml:"gray_zone_low"`
	GrayZoneHigh    float64               `toml:"gray_zone_high"`
	Weights         score.Weights         `toml:"weights"`
	SpectralWeights score.SpectralWeights `toml:"spectral_weights"`
}

// LLM configures the arbiter endpoint. An empty endpoint disables arbitration.
type LLM struct {
	Endpoint       string `toml:"endpoint"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Runtime carries hardware hints.
type Runtime struct {
	ForceCPU bool `toml:"force_cpu"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full configuration.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Analysis Analysis `toml:"analysis"`
	LLM      LLM      `toml:"llm"`
	Runtime  Runtime  `toml:"runtime"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath(filepath.Join(configHome(), "assay", "config.toml"))
}

// Load parses and validates the file at path. A missing file yields the defaults. An empty path selects
// DefaultConfigPath. The resolved path and whether it existed are returned alongside the config.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolve(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved) //nolint:gosec // operator-provided config path
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()

		if err = decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err = cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func resolve(path string) (string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if errors.Is(err, fs.ErrNotExist) {
		return expanded, false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("stat config: %w", err)
	}

	if info.IsDir() {
		return "", false, fmt.Errorf("config %s is a directory", expanded)
	}

	return expanded, true, nil
}

// ExpandPath resolves a leading ~ and makes the path absolute.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}

	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}

		switch {
		case value == "~":
			value = home
		case value[1] == '/' || value[1] == '\\':
			value = filepath.Join(home, value[2:])
		}
	}

	absolute, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}

	return absolute, nil
}

func configHome() string {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return base
	}

	return "~/.config"
}

func dataHome() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return base
	}

	return "~/.local/share"
}
