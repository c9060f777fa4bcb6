// Package bitdepth detects samples zero-padded to a higher resolution than they carry.
package bitdepth

import (
	"fmt"
	"math"
)

const (
	fullScale = 2147483648.0 // 2^31, every decoded sample is representable as a 32-bit integer

	genuineMask8  = 0x00FFFFFF
	genuineMask16 = 0x0000FFFF
	genuineMask24 = 0x000000FF
)

// Effective returns the smallest standard depth (8, 16, 24 or 32) that represents every sample exactly.
// Zero means digital silence, where no depth can be inferred.
func Effective(channels [][]float64) int {
	var usedBits uint32

	for _, channel := range channels {
		for _, sample := range channel {
			usedBits |= uint32(int64(math.Round(sample * fullScale))) //nolint:gosec // two's complement bit pattern

			// A populated low byte is already genuine 32-bit.
			if usedBits&genuineMask24 != 0 {
				return 32 //nolint:mnd
			}
		}
	}

	switch {
	case usedBits == 0:
		return 0
	case usedBits&genuineMask8 == 0:
		return 8 //nolint:mnd
	case usedBits&genuineMask16 == 0:
		return 16 //nolint:mnd
	default:
		return 24 //nolint:mnd
	}
}

// Padding returns a finding when the container declares more bits than the signal uses, or "".
func Padding(declared, effective int) string {
	if effective == 0 || declared <= effective {
		return ""
	}

	return fmt.Sprintf("declared %d-bit but samples carry only %d bits (zero-padded)", declared, effective)
}
