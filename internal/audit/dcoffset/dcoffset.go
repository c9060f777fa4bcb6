// Package dcoffset measures constant bias in a signal.
package dcoffset

import "math"

// Measure returns the largest absolute per-channel mean.
func Measure(channels [][]float64) float64 {
	var worst float64

	for _, channel := range channels {
		if len(channel) == 0 {
			continue
		}

		var sum float64
		for _, sample := range channel {
			sum += sample
		}

		worst = max(worst, math.Abs(sum/float64(len(channel))))
	}

	return worst
}
