package config

import (
	"path/filepath"

	"github.com/farcloser/assay"
)

const (
	defaultParallelism    = 2
	defaultLLMModel       = "llama3.2"
	defaultLLMTimeoutSecs = 12
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			Store: filepath.Join(dataHome(), "assay", "assay.db"),
		},
		Analysis: Analysis{
			Parallelism:     defaultParallelism,
			ClipThreshold:   assay.DefaultClipThreshold,
			BanThreshold:    assay.DefaultBanThreshold,
			GrayZoneLow:     assay.DefaultGrayZone.Low,
			GrayZoneHigh:    assay.DefaultGrayZone.High,
			Weights:         assay.DefaultWeights,
			SpectralWeights: assay.DefaultSpectralWeights,
		},
		LLM: LLM{
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSecs,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}
