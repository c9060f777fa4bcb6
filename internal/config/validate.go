package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid configuration")

	errUnitRange = errors.New("must be between 0 and 1")
)

func (c *Config) normalize() error {
	var err error

	if c.Paths.Store, err = ExpandPath(strings.TrimSpace(c.Paths.Store)); err != nil {
		return err
	}

	if c.Paths.Model, err = ExpandPath(strings.TrimSpace(c.Paths.Model)); err != nil {
		return err
	}

	c.LLM.Endpoint = strings.TrimSpace(c.LLM.Endpoint)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if raw, ok := os.LookupEnv(EnvForceCPU); ok && strings.TrimSpace(raw) != "" {
		forced, parseErr := strconv.ParseBool(strings.TrimSpace(raw))
		if parseErr != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvForceCPU, raw)
		}

		c.Runtime.ForceCPU = forced
	}

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{c.validatePaths, c.validateAnalysis, c.validateLLM, c.validateLogging} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.Store == "" {
		return errors.New("paths.store must be set")
	}

	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis

	if a.Workers < 0 {
		return errors.New("analysis.workers must not be negative")
	}

	if a.Parallelism < 1 {
		return errors.New("analysis.parallelism must be at least 1")
	}

	if a.ClipThreshold <= 0 || a.ClipThreshold > 2 {
		return errors.New("analysis.clip_threshold must be in (0, 2]")
	}

	if a.BanThreshold <= 0 || a.BanThreshold > 1 {
		return errors.New("analysis.ban_threshold must be in (0, 1]")
	}

	if a.GrayZoneLow < 0 || a.GrayZoneHigh > 1 {
		return fmt.Errorf("analysis.gray_zone bounds %w", errUnitRange)
	}

	if a.GrayZoneLow > a.GrayZoneHigh {
		return errors.New("analysis.gray_zone_low must not exceed analysis.gray_zone_high")
	}

	if a.Weights.SNR < 0 || a.Weights.Clipping < 0 || a.Weights.SNR+a.Weights.Clipping == 0 {
		return errors.New("analysis.weights must be non-negative with a positive sum")
	}

	if a.SpectralWeights.Rolloff < 0 || a.SpectralWeights.Aliasing < 0 ||
		a.SpectralWeights.Rolloff+a.SpectralWeights.Aliasing == 0 {
		return errors.New("analysis.spectral_weights must be non-negative with a positive sum")
	}

	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}

	if c.LLM.Endpoint != "" && !strings.HasPrefix(c.LLM.Endpoint, "http://") &&
		!strings.HasPrefix(c.LLM.Endpoint, "https://") {
		return fmt.Errorf("llm.endpoint %q must be an http(s) URL", c.LLM.Endpoint)
	}

	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}
