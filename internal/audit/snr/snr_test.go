package snr_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/assay/internal/audit/snr"
)

func sine(seconds float64, rate int, freq, db float64) []float64 {
	amplitude := math.Pow(10, db/20)
	out := make([]float64, int(seconds*float64(rate)))

	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}

	return out
}

func TestCleanSine(t *testing.T) {
	result := snr.Estimate(sine(1, 44100, 440, -3), 44100)

	if result.Db <= 50 {
		t.Fatalf("expected snr above 50 dB on a clean tone, got %v", result.Db)
	}

	if result.Blocks != 10 {
		t.Fatalf("expected 10 blocks of 100 ms, got %d", result.Blocks)
	}
}

func TestNoisyTone(t *testing.T) {
	samples := sine(2, 44100, 440, -6)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range samples {
		samples[i] += rng.NormFloat64() * 0.05
	}

	result := snr.Estimate(samples, 44100)

	if result.Db < 0 || result.Db > 30 {
		t.Fatalf("expected a moderate snr for a tone in audible noise, got %v", result.Db)
	}
}

func TestStability(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	signals := map[string][]float64{
		"sine":    sine(1, 44100, 440, -3),
		"silence": make([]float64, 44100),
		"noise":   make([]float64, 44100),
	}

	for i := range signals["noise"] {
		signals["noise"][i] = rng.Float64()*0.2 - 0.1
	}

	for name, y := range signals {
		perturbed := make([]float64, len(y))
		for i, v := range y {
			perturbed[i] = v + 1e-15
		}

		a := snr.Estimate(y, 44100).Db
		b := snr.Estimate(perturbed, 44100).Db

		if math.Abs(a-b) >= 1e-9 {
			t.Errorf("%s: snr moved by %v under a 1e-15 perturbation", name, math.Abs(a-b))
		}

		if math.IsNaN(a) || math.IsInf(a, 0) {
			t.Errorf("%s: non-finite snr %v", name, a)
		}
	}
}

func TestBounds(t *testing.T) {
	for _, samples := range [][]float64{nil, {0.5}, make([]float64, 100), sine(0.05, 44100, 1000, 0)} {
		db := snr.Estimate(samples, 44100).Db
		if db < snr.MinDb || db > snr.MaxDb {
			t.Fatalf("snr %v escaped [%v, %v]", db, snr.MinDb, snr.MaxDb)
		}
	}
}
