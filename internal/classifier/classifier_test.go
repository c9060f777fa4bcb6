package classifier_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/farcloser/assay/internal/classifier"
	"github.com/farcloser/assay/internal/types"
)

// artifact builds a model that keys only on clipping_events: many clips means CORRUPT, none means CLEAN.
func artifact(version string) classifier.Artifact {
	features := len(types.FeatureNames)
	zeros := make([]float64, features)
	ones := make([]float64, features)

	for i := range ones {
		ones[i] = 1
	}

	row := func(clip float64) []float64 {
		weights := make([]float64, features)
		weights[1] = clip

		return weights
	}

	return classifier.Artifact{
		Version:  version,
		Features: types.FeatureNames,
		Mean:     zeros,
		Std:      ones,
		Labels:   []string{"CLEAN", "SUSPICIOUS", "CORRUPT"},
		Weights:  [][]float64{row(-1), row(0), row(1)},
		Bias:     []float64{0, 0.5, 0},
	}
}

func writeArtifact(t *testing.T, path string, a any) {
	t.Helper()

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}

	if err = os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func TestHeuristicFallback(t *testing.T) {
	c := classifier.New(filepath.Join(t.TempDir(), "missing.json"), nil)

	if c.Version() != classifier.HeuristicVersion {
		t.Fatalf("expected heuristic, got %q", c.Version())
	}

	cases := []struct {
		name     string
		features types.Features
		label    types.Label
	}{
		{"clean", types.Features{}, types.LabelClean},
		{"suspicious", types.Features{ClippingEvents: 25, SpectralSuspicion: 0.5}, types.LabelSuspicious},
		{"corrupt", types.Features{ClippingEvents: 200, SpectralSuspicion: 1}, types.LabelCorrupt},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.features)

			if got.Label != tc.label {
				t.Fatalf("expected %s, got %s", tc.label, got.Label)
			}

			if got.ModelVersion != classifier.HeuristicVersion || got.Calibrated {
				t.Fatalf("heuristic provenance missing: %+v", got)
			}

			if got.Confidence < 0.5 || got.Confidence > 1 {
				t.Fatalf("confidence out of range: %f", got.Confidence)
			}
		})
	}
}

func TestModelClassify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeArtifact(t, path, artifact("v1"))

	c := classifier.New(path, nil)

	if c.Version() != "v1" {
		t.Fatalf("expected v1, got %q", c.Version())
	}

	corrupt := c.Classify(types.Features{ClippingEvents: 10})
	if corrupt.Label != types.LabelCorrupt || !corrupt.Calibrated || corrupt.ModelVersion != "v1" {
		t.Fatalf("expected calibrated CORRUPT from v1, got %+v", corrupt)
	}

	clean := c.Classify(types.Features{ClippingEvents: -10})
	if clean.Label != types.LabelClean {
		t.Fatalf("expected CLEAN, got %+v", clean)
	}

	// At zero every logit but the biased one is zero.
	middle := c.Classify(types.Features{})
	if middle.Label != types.LabelSuspicious {
		t.Fatalf("expected SUSPICIOUS, got %+v", middle)
	}

	if again := c.Classify(types.Features{ClippingEvents: 10}); again != corrupt {
		t.Fatalf("classification is not deterministic: %+v vs %+v", again, corrupt)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeArtifact(t, path, artifact("v1"))

	c := classifier.New(path, nil)

	writeArtifact(t, path, artifact("v2"))

	if err := c.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if c.Version() != "v2" {
		t.Fatalf("expected v2, got %q", c.Version())
	}

	broken := artifact("v3")
	broken.Features = []string{"snr_db"}
	writeArtifact(t, path, broken)

	if err := c.Reload(); !errors.Is(err, classifier.ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact, got %v", err)
	}

	if c.Version() != "v2" {
		t.Fatalf("failed reload must keep v2, got %q", c.Version())
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := c.Reload(); !errors.Is(err, classifier.ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact on bad json, got %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := c.Reload(); !errors.Is(err, classifier.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	if c.Version() != "v2" {
		t.Fatalf("failed reload must keep v2, got %q", c.Version())
	}
}

func TestInvalidArtifactFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	bad := artifact("v1")
	bad.Labels = []string{"CLEAN", "SUSPICIOUS", "BROKEN"}
	writeArtifact(t, path, bad)

	c := classifier.New(path, nil)

	if got := c.Classify(types.Features{}); got.ModelVersion != classifier.HeuristicVersion {
		t.Fatalf("expected heuristic on an invalid artifact, got %+v", got)
	}
}
