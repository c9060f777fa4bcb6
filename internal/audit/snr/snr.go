// Package snr estimates the signal-to-noise ratio from the distribution of short-block RMS levels.
package snr

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	blockSeconds = 0.1
	floor        = 1e-10
	noisePct     = 0.10
	signalPct    = 0.90

	MinDb = -10.0
	MaxDb = 80.0
)

// Result carries the SNR and the two levels it was derived from.
type Result struct {
	Db     float64
	Signal float64 // p90 block RMS
	Noise  float64 // noise floor estimate
	Blocks int
}

// Estimate computes the SNR of a mono signal over 100 ms blocks.
// The signal level is the 90th percentile of block RMS. The noise floor is the lower of the 10th percentile of
// block RMS and the 10th percentile of the RMS left after an order-2 linear predictor is removed from each block:
// a steady tone is fully predictable, so its floor is what the predictor cannot explain.
// Only whole blocks count; a signal shorter than one block is measured as a single block.
func Estimate(samples []float64, sampleRate int) Result {
	size := max(int(blockSeconds*float64(sampleRate)), 1)

	blocks := len(samples) / size
	if blocks == 0 && len(samples) > 0 {
		blocks, size = 1, len(samples)
	}

	if blocks == 0 {
		return Result{Db: clamp(0), Signal: floor, Noise: floor}
	}

	levels := make([]float64, blocks)
	residuals := make([]float64, blocks)

	for b := range blocks {
		block := samples[b*size : (b+1)*size]
		levels[b] = rms(block)
		residuals[b] = residualRMS(block)
	}

	slices.Sort(levels)
	slices.Sort(residuals)

	signal := max(stat.Quantile(signalPct, stat.Empirical, levels, nil), floor)
	noise := max(min(
		stat.Quantile(noisePct, stat.Empirical, levels, nil),
		stat.Quantile(noisePct, stat.Empirical, residuals, nil),
	), floor)

	return Result{
		Db:     clamp(20 * math.Log10(signal/noise)),
		Signal: signal,
		Noise:  noise,
		Blocks: blocks,
	}
}

func clamp(db float64) float64 {
	return min(max(db, MinDb), MaxDb)
}

func rms(block []float64) float64 {
	var sum float64
	for _, v := range block {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(block)))
}

// residualRMS fits x[n] = a1*x[n-1] + a2*x[n-2] by least squares (covariance method) and returns the RMS of
// the prediction error. A singular system leaves the block unpredicted.
func residualRMS(block []float64) float64 {
	if len(block) < 3 {
		return rms(block)
	}

	var r11, r12, r22, p1, p2 float64

	for n := 2; n < len(block); n++ {
		x1, x2 := block[n-1], block[n-2]
		r11 += x1 * x1
		r12 += x1 * x2
		r22 += x2 * x2
		p1 += block[n] * x1
		p2 += block[n] * x2
	}

	det := r11*r22 - r12*r12
	if math.Abs(det) <= 1e-12*max(r11*r22, floor*floor) {
		return rms(block)
	}

	a1 := (p1*r22 - p2*r12) / det
	a2 := (p2*r11 - p1*r12) / det

	var sum float64

	for n := 2; n < len(block); n++ {
		e := block[n] - a1*block[n-1] - a2*block[n-2]
		sum += e * e
	}

	return math.Sqrt(sum / float64(len(block)-2))
}
