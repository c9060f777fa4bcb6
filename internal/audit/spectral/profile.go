package spectral

import (
	"math"

	"github.com/farcloser/assay/internal/types"
)

const (
	// Target analysis window length, in seconds, before rounding to a power of two.
	windowSeconds = 0.0427
	minWindow     = 1024
	maxWindow     = 8192
	overlapRatio  = 0.75
	windowName    = "hann"
)

/*
STFT profile per source sample rate

| Sample rate | Window | Hop  | Bin width |
|-------------|--------|------|-----------|
| <= 24 kHz   | 1024   | 256  | ~21 Hz    |
| 44.1 kHz    | 2048   | 512  | 21.5 Hz   |
| 48 kHz      | 2048   | 512  | 23.4 Hz   |
| 88.2 kHz    | 4096   | 1024 | 21.5 Hz   |
| 96 kHz      | 4096   | 1024 | 23.4 Hz   |
| 176.4 kHz   | 8192   | 2048 | 21.5 Hz   |
| 192 kHz     | 8192   | 2048 | 23.4 Hz   |

Frequency resolution stays near 20 Hz whatever the rate.
*/

// Profile returns the STFT parameters for a sample rate. Frames is left to the caller.
func Profile(sampleRate int) types.STFTProfile {
	size := minWindow

	if sampleRate > 0 {
		target := windowSeconds * float64(sampleRate)
		size = 1 << int(math.Round(math.Log2(target)))
		size = min(max(size, minWindow), maxWindow)
	}

	return types.STFTProfile{
		SampleRate:   sampleRate,
		WindowSize:   size,
		HopSize:      int(float64(size) * (1 - overlapRatio)),
		OverlapRatio: overlapRatio,
		Window:       windowName,
	}
}
