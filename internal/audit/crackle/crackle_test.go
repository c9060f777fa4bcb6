package crackle_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/assay/internal/audit/crackle"
)

func tone(frames, rate int) []float64 {
	out := make([]float64, frames)
	rng := rand.New(rand.NewPCG(5, 6))

	for i := range out {
		out[i] = 0.3*math.Sin(2*math.Pi*220*float64(i)/float64(rate)) + rng.NormFloat64()*0.001
	}

	return out
}

func TestCleanToneHasNoCrackle(t *testing.T) {
	result := crackle.Detect(tone(44100*2, 44100), 44100)

	if result.Density > 0.5 {
		t.Fatalf("expected a clean tone to stay under 0.5 events/s, got %v (%d events)", result.Density, result.Events)
	}
}

func TestClicksAreCounted(t *testing.T) {
	samples := tone(44100*2, 44100)

	for _, at := range []int{5000, 20000, 40000, 60000, 80000} {
		samples[at] += 0.8
	}

	result := crackle.Detect(samples, 44100)

	// Each click disturbs three consecutive second differences, which form one run.
	if result.Events != 5 {
		t.Fatalf("expected 5 events, got %d", result.Events)
	}

	if math.Abs(result.RawDensity-2.5) > 1e-9 {
		t.Fatalf("expected 2.5 raw events/s, got %v", result.RawDensity)
	}

	if result.Density >= result.RawDensity || result.Density <= 0 {
		t.Fatalf("zero-crossing correction should reduce density, got %v from %v", result.Density, result.RawDensity)
	}
}

func TestClickInSilence(t *testing.T) {
	samples := make([]float64, 8000)
	samples[4000] = 0.5

	result := crackle.Detect(samples, 8000)

	if result.Events != 1 {
		t.Fatalf("expected one event, got %d", result.Events)
	}
}

func TestDegenerateInput(t *testing.T) {
	if result := crackle.Detect([]float64{0.1, 0.2}, 44100); result.Events != 0 || result.Density != 0 {
		t.Fatalf("unexpected result on two samples: %+v", result)
	}
}
