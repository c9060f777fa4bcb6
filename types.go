package assay

import (
	"github.com/farcloser/assay/internal/audit/truepeak"
	"github.com/farcloser/assay/internal/score"
	"github.com/farcloser/assay/internal/types"
)

type (
	AnalysisResult     = types.AnalysisResult
	Fingerprint        = types.Fingerprint
	MetadataAudit      = types.MetadataAudit
	DSPMetrics         = types.DSPMetrics
	SpectralMetrics    = types.SpectralMetrics
	STFTProfile        = types.STFTProfile
	Classification     = types.Classification
	Label              = types.Label
	Arbitration        = types.Arbitration
	Verdict            = types.Verdict
	ArbitrationStatus  = types.ArbitrationStatus
	ArbitrationOutcome = types.ArbitrationOutcome
	GrayZone           = types.GrayZone
	Provenance         = types.Provenance
	Features           = types.Features
	Weights            = score.Weights
	SpectralWeights    = score.SpectralWeights
)

const (
	VerdictClean          = types.VerdictClean
	VerdictSuspicious     = types.VerdictSuspicious
	VerdictCorrupt        = types.VerdictCorrupt
	VerdictReviewRequired = types.VerdictReviewRequired

	StatusLocalOnly    = types.StatusLocalOnly
	StatusAIArbitrated = types.StatusAIArbitrated
	StatusAIFailed     = types.StatusAIFailed
)

const (
	// DefaultBanThreshold is the suspicion score at or above which a file is CORRUPT without further evidence.
	DefaultBanThreshold = 0.80
	// DefaultClipThreshold is the linear true-peak level counted as clipping.
	DefaultClipThreshold = truepeak.DefaultThreshold
	// SpoofOverride is the spoof policy: a spoofed container makes the file CORRUPT regardless of the audio.
	SpoofOverride = "override"
)

//nolint:gochecknoglobals // policy defaults, effectively const
var (
	// DefaultGrayZone is the suspicion band, bounds included, in which the arbiter is consulted.
	DefaultGrayZone = GrayZone{Low: 0.35, High: 0.75}
	// DefaultWeights weighs SNR against clipping in the suspicion score.
	DefaultWeights = score.DefaultWeights()
	// DefaultSpectralWeights weighs roll-off against aliasing in the spectral suspicion.
	DefaultSpectralWeights = score.DefaultSpectralWeights()
)
