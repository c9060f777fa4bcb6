// Package classifier labels a file from its feature vector, using a versioned logistic model when one is
// available and a documented heuristic otherwise.
package classifier

import (
	"log/slog"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/farcloser/assay/internal/score"
	"github.com/farcloser/assay/internal/types"
)

const (
	// HeuristicVersion marks labels produced without a model.
	HeuristicVersion = "heuristic"

	stdEpsilon = 1e-9

	heuristicClipWeight     = 0.6
	heuristicSpectralWeight = 0.4
	heuristicSuspicious     = 0.33
	heuristicCorrupt        = 0.66
)

// Classifier is safe for concurrent use. Reload swaps the model atomically.
type Classifier struct {
	path    string
	current atomic.Pointer[model]
	logger  *slog.Logger
}

// New loads the artifact at path. A missing or invalid artifact is logged and the heuristic takes over; New itself
// never fails. An empty path selects the heuristic silently.
func New(path string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Classifier{path: path, logger: logger.With("component", "classifier")}

	if path == "" {
		return c
	}

	if err := c.Reload(); err != nil {
		c.logger.Warn("model unavailable, using heuristic", "path", path, "error", err)
	}

	return c
}

// Reload reads the artifact again and swaps it in. On failure the current model is kept and the error returned.
func (c *Classifier) Reload() error {
	if c.path == "" {
		return ErrModelUnavailable
	}

	artifact, err := LoadArtifact(c.path)
	if err != nil {
		return err
	}

	compiled, err := artifact.compile()
	if err != nil {
		return err
	}

	c.current.Store(compiled)
	c.logger.Info("model loaded", "path", c.path, "version", compiled.version)

	return nil
}

// Version reports the active model version, or "heuristic".
func (c *Classifier) Version() string {
	if m := c.current.Load(); m != nil {
		return m.version
	}

	return HeuristicVersion
}

// Classify labels the features. It is a pure function of the features and the active model.
func (c *Classifier) Classify(features types.Features) types.Classification {
	m := c.current.Load()
	if m == nil {
		return Heuristic(features)
	}

	return m.classify(features)
}

func (m *model) classify(features types.Features) types.Classification {
	x := mat.NewVecDense(len(types.FeatureNames), features.Vector())

	// z = (x - mean) / (std + eps)
	x.SubVec(x, m.mean)

	for i := range x.Len() {
		x.SetVec(i, x.AtVec(i)/(m.std.AtVec(i)+stdEpsilon))
	}

	logits := mat.NewVecDense(len(m.labels), nil)
	logits.MulVec(m.weights, x)
	logits.AddVec(logits, m.bias)

	probs := softmax(logits.RawVector().Data)
	best := floats.MaxIdx(probs)

	return types.Classification{
		Label:        m.labels[best],
		Confidence:   probs[best],
		ModelVersion: m.version,
		Calibrated:   true,
	}
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	peak := floats.Max(logits)

	for i, v := range logits {
		out[i] = math.Exp(v - peak)
	}

	floats.Scale(1/floats.Sum(out), out)

	return out
}

// Heuristic is the closed-form fallback: h = 0.6*clipping_norm + 0.4*spectral_suspicion, CLEAN below 0.33,
// SUSPICIOUS below 0.66, CORRUPT above. Confidence is the distance to the nearest threshold, stretched to [0.5, 1].
func Heuristic(features types.Features) types.Classification {
	clipping := score.Clamp(features.ClippingEvents / 50) //nolint:mnd // same saturation as the suspicion score
	h := score.Clamp(heuristicClipWeight*clipping + heuristicSpectralWeight*score.Clamp(features.SpectralSuspicion))

	var (
		label  types.Label
		margin float64
	)

	switch {
	case h < heuristicSuspicious:
		label, margin = types.LabelClean, (heuristicSuspicious-h)/heuristicSuspicious
	case h < heuristicCorrupt:
		half := (heuristicCorrupt - heuristicSuspicious) / 2 //nolint:mnd
		label, margin = types.LabelSuspicious, (half-math.Abs(h-heuristicSuspicious-half))/half
	default:
		label, margin = types.LabelCorrupt, (h-heuristicCorrupt)/(1-heuristicCorrupt)
	}

	return types.Classification{
		Label:        label,
		Confidence:   0.5 + 0.5*score.Clamp(margin), //nolint:mnd
		ModelVersion: HeuristicVersion,
		Calibrated:   false,
	}
}
