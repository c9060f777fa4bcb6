package assay

import (
	"context"
	"log/slog"

	"github.com/farcloser/assay/internal/arbiter"
	"github.com/farcloser/assay/internal/types"
)

// Store persists results keyed by file hash. Get returns nil, nil on a miss.
type Store interface {
	Get(ctx context.Context, hash string) (*AnalysisResult, error)
	Put(ctx context.Context, result *AnalysisResult) error
}

// Classifier labels a feature vector.
type Classifier interface {
	Classify(features types.Features) types.Classification
	Reload() error
	Version() string
}

// Deps are the collaborators of a Manager. A nil Store disables caching, a nil Classifier selects the heuristic,
// and a nil Arbiter disables arbitration.
type Deps struct {
	Store      Store
	Classifier Classifier
	Arbiter    arbiter.Arbiter
}

// Options tunes a Manager.
type Options struct {
	GrayZone        GrayZone
	BanThreshold    float64
	Weights         Weights
	SpectralWeights SpectralWeights
	ClipThreshold   float64
	// Parallelism bounds the segments analyzed concurrently within one file.
	Parallelism int
	// Reanalyze skips the cache lookup so the stored entry is superseded.
	Reanalyze bool
	// NoCache skips both the cache lookup and persistence.
	NoCache  bool
	Logger   *slog.Logger
	Observer Observer
}

// DefaultOptions returns the default policy.
func DefaultOptions() Options {
	return Options{
		GrayZone:        DefaultGrayZone,
		BanThreshold:    DefaultBanThreshold,
		Weights:         DefaultWeights,
		SpectralWeights: DefaultSpectralWeights,
		ClipThreshold:   DefaultClipThreshold,
	}
}
