package stereo_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/assay/internal/audit/stereo"
)

func noise(frames int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	out := make([]float64, frames)

	for i := range out {
		out[i] = rng.NormFloat64() * 0.1
	}

	return out
}

func TestDuplicatedMono(t *testing.T) {
	mono := noise(48000, 1)
	result := stereo.Analyze(mono, mono)

	if result.MSEnergyRatio != 0 {
		t.Fatalf("duplicated channels must have no side energy, got %v", result.MSEnergyRatio)
	}

	if math.Abs(result.Correlation-1) > 1e-9 {
		t.Fatalf("expected correlation 1, got %v", result.Correlation)
	}

	if iacc := stereo.IACC(mono, mono, 48000); math.Abs(iacc-1) > 1e-9 {
		t.Fatalf("expected IACC 1, got %v", iacc)
	}
}

func TestIndependentChannels(t *testing.T) {
	left, right := noise(48000, 1), noise(48000, 2)
	result := stereo.Analyze(left, right)

	if math.Abs(result.MSEnergyRatio-1) > 0.05 {
		t.Fatalf("independent channels should have equal mid and side energy, got %v", result.MSEnergyRatio)
	}

	if iacc := stereo.IACC(left, right, 48000); iacc > 0.1 {
		t.Fatalf("independent channels should be decorrelated, got IACC %v", iacc)
	}
}

func TestIACCFindsDelayedCopy(t *testing.T) {
	left := noise(48000, 3)
	right := make([]float64, len(left))
	copy(right[20:], left)

	if iacc := stereo.IACC(left, right, 48000); iacc < 0.99 {
		t.Fatalf("a 20-sample delay is inside the 1 ms window, expected IACC near 1, got %v", iacc)
	}

	if result := stereo.Analyze(left, right); result.MSEnergyRatio < 0.5 {
		t.Fatalf("a delayed copy is not mono at lag zero, got ratio %v", result.MSEnergyRatio)
	}
}

func TestPhaseInverted(t *testing.T) {
	left := noise(48000, 4)
	right := make([]float64, len(left))

	for i, v := range left {
		right[i] = -v
	}

	result := stereo.Analyze(left, right)
	if result.MSEnergyRatio != stereo.MaxRatio {
		t.Fatalf("inverted channels carry only side energy, got %v", result.MSEnergyRatio)
	}

	if iacc := stereo.IACC(left, right, 48000); math.Abs(iacc-1) > 1e-9 {
		t.Fatalf("expected |IACC| 1, got %v", iacc)
	}
}

func TestSilence(t *testing.T) {
	silent := make([]float64, 1000)

	if result := stereo.Analyze(silent, silent); result.MSEnergyRatio != 0 || result.Correlation != 0 {
		t.Fatalf("unexpected result on silence: %+v", result)
	}

	if iacc := stereo.IACC(silent, silent, 48000); iacc != 0 {
		t.Fatalf("expected IACC 0 on silence, got %v", iacc)
	}
}
