package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/types"
)

var (
	// ErrModelUnavailable means the artifact could not be read.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidArtifact means the artifact was read but does not describe a usable model.
	ErrInvalidArtifact = errors.New("invalid model artifact")
)

// Artifact is the on-disk model bundle: a multinomial logistic regression over z-scored features.
//
//	{
//	  "version": "2026.10-a",
//	  "features": ["snr_db", "clipping_events", ...],
//	  "mean": [...], "std": [...],
//	  "labels": ["CLEAN", "SUSPICIOUS", "CORRUPT"],
//	  "weights": [[...], [...], [...]],   // one row per label, one column per feature
//	  "bias": [...]
//	}
type Artifact struct {
	Version  string      `json:"version"`
	Features []string    `json:"features"`
	Mean     []float64   `json:"mean"`
	Std      []float64   `json:"std"`
	Labels   []string    `json:"labels"`
	Weights  [][]float64 `json:"weights"`
	Bias     []float64   `json:"bias"`
}

// model is a validated artifact ready for inference.
type model struct {
	version string
	labels  []types.Label
	mean    *mat.VecDense
	std     *mat.VecDense
	weights *mat.Dense
	bias    *mat.VecDense
}

// LoadArtifact reads and validates an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided model path
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrModelUnavailable, fault.ErrReadFailure, err)
	}

	var artifact Artifact
	if err = json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrInvalidArtifact, fault.ErrInvalidJSON, err)
	}

	return &artifact, nil
}

func (a *Artifact) compile() (*model, error) {
	features := len(types.FeatureNames)

	if !slices.Equal(a.Features, types.FeatureNames) {
		return nil, fmt.Errorf("%w: feature order %v, expected %v", ErrInvalidArtifact, a.Features, types.FeatureNames)
	}

	if len(a.Mean) != features || len(a.Std) != features {
		return nil, fmt.Errorf("%w: normalization expects %d features", ErrInvalidArtifact, features)
	}

	if len(a.Labels) == 0 || len(a.Weights) != len(a.Labels) || len(a.Bias) != len(a.Labels) {
		return nil, fmt.Errorf("%w: %d labels, %d weight rows, %d biases",
			ErrInvalidArtifact, len(a.Labels), len(a.Weights), len(a.Bias))
	}

	compiled := &model{
		version: a.Version,
		mean:    mat.NewVecDense(features, slices.Clone(a.Mean)),
		std:     mat.NewVecDense(features, slices.Clone(a.Std)),
		bias:    mat.NewVecDense(len(a.Bias), slices.Clone(a.Bias)),
		weights: mat.NewDense(len(a.Labels), features, nil),
	}

	for i, label := range a.Labels {
		switch l := types.Label(label); l {
		case types.LabelClean, types.LabelSuspicious, types.LabelCorrupt:
			compiled.labels = append(compiled.labels, l)
		default:
			return nil, fmt.Errorf("%w: unknown label %q", ErrInvalidArtifact, label)
		}

		if len(a.Weights[i]) != features {
			return nil, fmt.Errorf("%w: weight row %d has %d columns", ErrInvalidArtifact, i, len(a.Weights[i]))
		}

		compiled.weights.SetRow(i, a.Weights[i])
	}

	if compiled.version == "" {
		compiled.version = "unversioned"
	}

	return compiled, nil
}
