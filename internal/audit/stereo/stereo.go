// Package stereo measures how much genuine stereo information a two-channel signal carries.
package stereo

import (
	"math"
)

const (
	// IACC searches lags within this window, in seconds.
	iaccLagWindow = 0.001
	// IACC is computed on at most this many frames per segment.
	iaccMaxFrames = 1 << 18
	energyFloor   = 1e-20

	// MaxRatio caps MSEnergyRatio when the mid channel is silent.
	MaxRatio = 1e6
)

// Result holds the mid/side measurements of one stereo segment.
type Result struct {
	// MSEnergyRatio is side energy over mid energy. Near zero means both channels carry the same signal.
	MSEnergyRatio float64
	// Correlation is the Pearson correlation between channels at lag zero.
	Correlation float64
	// CancellationDb is the level lost when folding down to mono. Large values mean phase problems.
	CancellationDb float64
	Frames         int
}

// Analyze computes mid/side energies with M=(L+R)/2 and S=(L-R)/2.
func Analyze(left, right []float64) Result {
	frames := min(len(left), len(right))
	if frames == 0 {
		return Result{}
	}

	var sumL, sumR, sumLL, sumRR, sumLR float64
	var sumMid, sumSide float64

	for i := range frames {
		l, r := left[i], right[i]

		sumL += l
		sumR += r
		sumLL += l * l
		sumRR += r * r
		sumLR += l * r

		mid := (l + r) / 2
		side := (l - r) / 2
		sumMid += mid * mid
		sumSide += side * side
	}

	n := float64(frames)
	result := Result{Frames: frames}

	numerator := n*sumLR - sumL*sumR
	denominator := math.Sqrt((n*sumLL - sumL*sumL) * (n*sumRR - sumR*sumR))

	if denominator > 0 {
		result.Correlation = numerator / denominator
	}

	switch {
	case sumMid > energyFloor:
		result.MSEnergyRatio = min(sumSide/sumMid, MaxRatio)
	case sumSide > energyFloor:
		// Fully out of phase: all energy is side.
		result.MSEnergyRatio = MaxRatio
	}

	stereoPower := (sumLL + sumRR) / 2
	if sumMid > energyFloor && stereoPower > energyFloor {
		result.CancellationDb = 10 * math.Log10(stereoPower/sumMid)
	}

	return result
}

// IACC is the interaural cross-correlation coefficient: the maximum absolute normalized cross-correlation
// between channels over lags of +/-1 ms. Values near 1 indicate duplicated or synthesized stereo.
func IACC(left, right []float64, sampleRate int) float64 {
	frames := min(len(left), len(right), iaccMaxFrames)
	if frames == 0 || sampleRate <= 0 {
		return 0
	}

	left, right = left[:frames], right[:frames]

	var energyL, energyR float64
	for i := range frames {
		energyL += left[i] * left[i]
		energyR += right[i] * right[i]
	}

	norm := math.Sqrt(energyL * energyR)
	if norm <= energyFloor {
		return 0
	}

	maxLag := max(int(math.Round(iaccLagWindow*float64(sampleRate))), 0)

	var best float64

	for lag := -maxLag; lag <= maxLag; lag++ {
		var sum float64

		start := max(0, -lag)
		end := min(frames, frames-lag)

		for i := start; i < end; i++ {
			sum += left[i] * right[i+lag]
		}

		best = max(best, math.Abs(sum)/norm)
	}

	return min(best, 1)
}
