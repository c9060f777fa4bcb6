// Package crackle counts impulsive discontinuities (clicks, pops, vinyl crackle, bit errors) per second.
package crackle

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	madMultiplier = 8.0
	// Scales the MAD to a standard deviation estimate for Gaussian noise.
	madScale = 1.4826
	// Tonal material with many zero crossings produces large second differences on its own.
	zcrCeiling = 0.4
	zcrWeight  = 0.5
	// Floor for the MAD so digital silence with a single click still registers.
	madFloor = 1e-9
)

// Result holds the crackle density and the zero-crossing rate used to temper it.
type Result struct {
	Density          float64 // corrected events per second
	RawDensity       float64 // events per second before the zero-crossing correction
	Events           int
	ZeroCrossingRate float64 // crossings per sample
}

// Detect flags samples whose absolute second difference exceeds median + 8*MAD (normal-scaled), counts the
// rising edges of the flagged mask as events and converts them to a per-second density, scaled by
// 1 - 0.5*min(zcr, 0.4).
func Detect(samples []float64, sampleRate int) Result {
	if len(samples) < 3 || sampleRate <= 0 {
		return Result{}
	}

	diffs := make([]float64, len(samples)-2)
	for i := range diffs {
		diffs[i] = math.Abs(samples[i+2] - 2*samples[i+1] + samples[i])
	}

	sorted := slices.Clone(diffs)
	slices.Sort(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	deviations := make([]float64, len(sorted))
	for i, d := range sorted {
		deviations[i] = math.Abs(d - median)
	}

	slices.Sort(deviations)
	mad := max(madScale*stat.Quantile(0.5, stat.Empirical, deviations, nil), madFloor)
	threshold := median + madMultiplier*mad

	result := Result{ZeroCrossingRate: zeroCrossingRate(samples)}

	above := false

	for _, d := range diffs {
		switch {
		case d > threshold && !above:
			above = true
			result.Events++
		case d <= threshold:
			above = false
		}
	}

	seconds := float64(len(samples)) / float64(sampleRate)
	result.RawDensity = float64(result.Events) / seconds
	result.Density = result.RawDensity * (1 - zcrWeight*min(result.ZeroCrossingRate, zcrCeiling))

	return result
}

func zeroCrossingRate(samples []float64) float64 {
	var crossings int

	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(len(samples)-1)
}
