// Package truepeak measures inter-sample peaks and counts clipping events on the oversampled signal.
package truepeak

import (
	"math"
)

const (
	oversample   = 4  // 4x oversampling per ITU-R BS.1770
	tapsPerPhase = 12 // filter taps per phase
	totalTaps    = oversample * tapsPerPhase

	// DefaultThreshold is the linear level at or above which the reconstructed signal is considered clipped.
	DefaultThreshold = 0.98
)

// Polyphase filter coefficients for 4x oversampling.
// Windowed sinc with a Kaiser window (beta=5), lowpass at the Nyquist of the original signal.
var polyphaseCoeffs [oversample][tapsPerPhase]float64 //nolint:gochecknoglobals // computed once

//nolint:gochecknoinits // coefficient table
func init() {
	beta := 5.0
	center := float64(totalTaps-1) / 2.0

	for phase := range oversample {
		for tap := range tapsPerPhase {
			n := tap*oversample + phase
			x := float64(n) - center

			sinc := 1.0
			if math.Abs(x) >= 1e-10 {
				sinc = math.Sin(math.Pi*x/float64(oversample)) / (math.Pi * x / float64(oversample))
			}

			alpha := x / center
			if math.Abs(alpha) <= 1.0 {
				window := bessel0(beta*math.Sqrt(1-alpha*alpha)) / bessel0(beta)
				polyphaseCoeffs[phase][tap] = sinc * window * float64(oversample)
			}
		}
	}

	// Unity DC gain per phase.
	for phase := range oversample {
		var sum float64
		for tap := range tapsPerPhase {
			sum += polyphaseCoeffs[phase][tap]
		}

		for tap := range tapsPerPhase {
			polyphaseCoeffs[phase][tap] /= sum
		}
	}
}

// Modified Bessel function of the first kind, order 0.
func bessel0(x float64) float64 {
	sum := 1.0
	term := 1.0

	for k := 1; k <= 25; k++ {
		term *= (x * x) / (4.0 * float64(k) * float64(k))
		sum += term

		if term < 1e-12 {
			break
		}
	}

	return sum
}

// Result holds peak levels (linear) and the clipping event count.
type Result struct {
	TruePeak   float64
	SamplePeak float64
	// Events is the number of contiguous runs at or above the threshold, summed over channels.
	Events int
}

// Detect oversamples every channel and counts runs of reconstructed samples whose magnitude reaches threshold.
// A threshold <= 0 selects DefaultThreshold.
func Detect(channels [][]float64, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var result Result

	history := make([]float64, tapsPerPhase)

	for _, samples := range channels {
		clear(history)

		hot := false
		step := func(sample float64) {
			copy(history, history[1:])
			history[tapsPerPhase-1] = sample

			for phase := range oversample {
				var interp float64
				for tap := range tapsPerPhase {
					interp += history[tap] * polyphaseCoeffs[phase][tap]
				}

				absInterp := math.Abs(interp)
				result.TruePeak = max(result.TruePeak, absInterp)

				switch {
				case absInterp >= threshold && !hot:
					hot = true
					result.Events++
				case absInterp < threshold:
					hot = false
				}
			}
		}

		for _, sample := range samples {
			result.SamplePeak = max(result.SamplePeak, math.Abs(sample))
			step(sample)
		}

		// Drain the filter so the last samples are reconstructed too.
		for range tapsPerPhase {
			step(0)
		}
	}

	return result
}

// Db converts a linear peak to dBFS, -120 for silence.
func Db(linear float64) float64 {
	if linear <= 0 {
		return -120.0
	}

	return 20 * math.Log10(linear)
}
