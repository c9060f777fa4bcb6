// Package score folds detector metrics into normalized suspicion scores. Every function here is pure.
package score

import (
	"math"

	"github.com/farcloser/assay/internal/types"
)

const (
	snrCeilingDb    = 60.0
	clippingCeiling = 50.0
	// A cutoff this far below the roll-off limit (as a fraction of it) saturates the roll-off contribution.
	rolloffSaturation = 1.0 / 3
	rolloffLimit      = 0.95
)

// Weights balances the time-domain score.
type Weights struct {
	SNR      float64 `toml:"snr"      json:"snr"`
	Clipping float64 `toml:"clipping" json:"clipping"`
}

// SpectralWeights balances the spectral score.
type SpectralWeights struct {
	Rolloff  float64 `toml:"rolloff"  json:"rolloff"`
	Aliasing float64 `toml:"aliasing" json:"aliasing"`
}

// DefaultWeights favors noise over clipping.
func DefaultWeights() Weights {
	return Weights{SNR: 0.6, Clipping: 0.4}
}

// DefaultSpectralWeights favors band-limiting over aliasing.
func DefaultSpectralWeights() SpectralWeights {
	return SpectralWeights{Rolloff: 0.7, Aliasing: 0.3}
}

// Clamp restricts v to [0, 1]. NaN counts as fully suspicious.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}

	return min(max(v, 0), 1)
}

// SNRComponent maps [0, 60] dB onto [1, 0].
func SNRComponent(snrDb float64) float64 {
	return Clamp(1 - snrDb/snrCeilingDb)
}

// ClippingComponent maps [0, 50] events onto [0, 1].
func ClippingComponent(events int) float64 {
	return Clamp(float64(events) / clippingCeiling)
}

// Suspicion is the weighted time-domain score, in [0, 1].
func Suspicion(dsp types.DSPMetrics, weights Weights) float64 {
	return Clamp(weights.SNR*SNRComponent(dsp.SNRDb) + weights.Clipping*ClippingComponent(dsp.ClippingEvents))
}

// RolloffComponent is zero unless the roll-off is suspect and a brickwall corroborates it. It then grows with the
// distance between the cutoff and 0.95 x Nyquist, saturating at a third of that limit.
func RolloffComponent(sp types.SpectralMetrics) float64 {
	if !sp.RolloffSuspect || sp.CutoffHz <= 0 || sp.NyquistHz <= 0 {
		return 0
	}

	limit := rolloffLimit * sp.NyquistHz
	deficit := (limit - sp.CutoffHz) / limit

	return Clamp(deficit / rolloffSaturation)
}

// Final folds the time-domain and spectral scores into the score that gates arbitration and the ban threshold.
// Either detector alone is enough to raise it.
func Final(suspicion, spectral float64) float64 {
	return max(Clamp(suspicion), Clamp(spectral))
}

// Spectral is the weighted spectral score, in [0, 1].
func Spectral(sp types.SpectralMetrics, weights SpectralWeights) float64 {
	return Clamp(weights.Rolloff*RolloffComponent(sp) + weights.Aliasing*Clamp(sp.AliasingScore))
}
