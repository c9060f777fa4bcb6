//nolint:staticcheck // too dumb on Db vs. DB
package types

import (
	"encoding/hex"
	"time"
)

// Fingerprint identifies a file by a bounded 3-point content hash.
type Fingerprint struct {
	Hash            [16]byte
	Size            int64         // file size in bytes
	SampleBytesRead int64         // bytes fed into the hash
	ReadDuration    time.Duration // wall time spent reading samples
}

// Hex renders the hash as the cache key.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f.Hash[:])
}

// Seed derives a deterministic PRNG seed from the hash.
func (f Fingerprint) Seed() (uint64, uint64) {
	var lo, hi uint64
	for i := range 8 {
		lo |= uint64(f.Hash[i]) << (8 * i)
		hi |= uint64(f.Hash[8+i]) << (8 * i)
	}

	return lo, hi
}

// LoadMode selects how much of a file the loader decodes into segments.
type LoadMode int

const (
	ModeFull LoadMode = iota
	ModeSegmented
)

func (m LoadMode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSegmented:
		return "segmented"
	}

	return "unknown"
}

// Segment is a decoded window of audio. Channels holds one slice per channel, normalized to [-1, 1].
type Segment struct {
	Offset     float64 // seconds from the start of the source
	Duration   float64 // seconds
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of sample frames in the segment.
func (s *Segment) Frames() int {
	if len(s.Channels) == 0 {
		return 0
	}

	return len(s.Channels[0])
}

// Mono returns the channel average.
func (s *Segment) Mono() []float64 {
	if len(s.Channels) == 1 {
		return s.Channels[0]
	}

	frames := s.Frames()
	mono := make([]float64, frames)
	scale := 1 / float64(len(s.Channels))

	for _, ch := range s.Channels {
		for i := range frames {
			mono[i] += ch[i]
		}
	}

	for i := range mono {
		mono[i] *= scale
	}

	return mono
}

// Span is a planned region of the source, in seconds.
type Span struct {
	Offset   float64 `json:"offset_s"`
	Duration float64 `json:"duration_s"`
}

// End returns the end of the span.
func (s Span) End() float64 {
	return s.Offset + s.Duration
}

// SegmentSet is the decoded audio handed to feature extraction. It is owned by one pipeline run.
type SegmentSet struct {
	Mode           LoadMode
	SourceDuration float64
	SampleRate     int
	ChannelCount   int
	Segments       []Segment
}

// Spans returns the regions covered by the set.
func (s *SegmentSet) Spans() []Span {
	spans := make([]Span, 0, len(s.Segments))
	for i := range s.Segments {
		spans = append(spans, Span{Offset: s.Segments[i].Offset, Duration: s.Segments[i].Duration})
	}

	return spans
}

/*
DSP Metrics Interpretation

| Metric            | Clean              | Suspicious          | Corrupt                     |
|-------------------|--------------------|---------------------|-----------------------------|
| SNRDb             | > 40 dB            | 20 to 40 dB         | < 20 dB                     |
| ClippingEvents    | 0                  | 1-10                | > 10 (score saturates at 50)|
| CracklingDensity  | < 0.5 /s           | 0.5-5 /s            | > 5 /s                      |
| MSEnergyRatio     | > 0.01             | 0.001-0.01          | < 0.001 (mono duplication)  |
| IACC              | < 0.9              | 0.9-0.99            | > 0.99 (pseudo-stereo)      |

Aggregation across segments is worst-case so a defect in one region is never averaged away.
*/

// DSPMetrics contains time-domain metrics.
type DSPMetrics struct {
	SNRDb            float64  `json:"snr_db"`
	TruePeak         float64  `json:"true_peak"`   // linear, oversampled
	SamplePeak       float64  `json:"sample_peak"` // linear
	ClippingEvents   int      `json:"clipping_event_count"`
	CracklingDensity float64  `json:"crackling_density_per_s"`
	ZeroCrossingRate float64  `json:"zero_crossing_rate"`
	DCOffset         float64  `json:"dc_offset"`
	EffectiveBits    int      `json:"effective_bit_depth,omitempty"` // 0 on digital silence
	MSEnergyRatio    float64  `json:"ms_energy_ratio"` // Es/Em; meaningful only when IsStereo
	IsStereo         bool     `json:"is_stereo"`
	IACC             *float64 `json:"iacc,omitempty"` // computed only in the gray zone
}

// STFTProfile records the analysis window chosen from the source sample rate.
type STFTProfile struct {
	SampleRate   int     `json:"sample_rate"`
	WindowSize   int     `json:"window_size"`
	HopSize      int     `json:"hop_size"`
	OverlapRatio float64 `json:"overlap_ratio"`
	Window       string  `json:"window"`
	Frames       int     `json:"frames"`
}

// SpectralMetrics contains frequency-domain metrics.
type SpectralMetrics struct {
	RolloffHz         float64     `json:"rolloff_hz"`
	NyquistHz         float64     `json:"nyquist_hz"`
	RolloffSuspect    bool        `json:"rolloff_suspect"`     // roll-off below 0.95 x Nyquist
	CutoffHz          float64     `json:"cutoff_hz"`           // brickwall edge, 0 when none
	CutoffSharpnessDb float64     `json:"cutoff_sharpness_db"` // level drop across the edge
	AliasingScore     float64     `json:"aliasing_score"`      // top 5% band power / 20-40% band power
	LikelyCodec       string      `json:"likely_codec,omitempty"`
	Profile           STFTProfile `json:"stft_profile"`
}

// MetadataAudit contains container and codec header findings.
type MetadataAudit struct {
	Container         string   `json:"container_format"`
	DeclaredContainer string   `json:"declared_container"` // from the file extension
	Codec             string   `json:"codec,omitempty"`
	DeclaredBitrate   int64    `json:"declared_bitrate"` // bits/s
	SampleRate        int      `json:"sample_rate"`
	Channels          int      `json:"channels"`
	BitDepth          int      `json:"bit_depth,omitempty"`
	DurationSec       float64  `json:"duration_sec,omitempty"`
	IsLossless        bool     `json:"is_lossless"`
	IsSpoofed         bool     `json:"is_spoofed"`
	Findings          []string `json:"findings,omitempty"`
}

// Label is the classifier output class.
type Label string

const (
	LabelClean      Label = "CLEAN"
	LabelSuspicious Label = "SUSPICIOUS"
	LabelCorrupt    Label = "CORRUPT"
)

// Classification is the classifier output.
type Classification struct {
	Label        Label   `json:"label"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
	Calibrated   bool    `json:"calibrated"` // false when the heuristic fallback produced the label
}

// Verdict is the final outcome of an audit.
type Verdict string

const (
	VerdictClean          Verdict = "CLEAN"
	VerdictSuspicious     Verdict = "SUSPICIOUS"
	VerdictCorrupt        Verdict = "CORRUPT"
	VerdictReviewRequired Verdict = "REVIEW_REQUIRED"
)

// IsNegative reports whether the verdict rejects the file.
func (v Verdict) IsNegative() bool {
	return v == VerdictCorrupt
}

// ArbitrationOutcome tells whether the LLM call produced a usable verdict.
type ArbitrationOutcome string

const (
	OutcomeArbitrated ArbitrationOutcome = "ARBITRATED"
	OutcomeFailed     ArbitrationOutcome = "FAILED"
)

// Arbitration is the LLM arbiter output.
type Arbitration struct {
	Verdict       Verdict            `json:"verdict"`
	Justification string             `json:"justification"`
	Status        ArbitrationOutcome `json:"status"`
	Model         string             `json:"model,omitempty"`
	LatencyMs     float64            `json:"latency_ms"`
	Error         string             `json:"error,omitempty"`
}

// Usable reports whether the arbitration may override the local verdict.
func (a *Arbitration) Usable() bool {
	return a != nil && a.Status == OutcomeArbitrated &&
		(a.Verdict == VerdictClean || a.Verdict == VerdictCorrupt)
}

// ArbitrationStatus records whether and how the LLM influenced the verdict.
type ArbitrationStatus string

const (
	StatusLocalOnly    ArbitrationStatus = "LOCAL_ONLY"
	StatusAIArbitrated ArbitrationStatus = "AI_ARBITRATED"
	StatusAIFailed     ArbitrationStatus = "AI_FAILED"
)

// GrayZone is the inclusive suspicion band in which the arbiter is consulted.
type GrayZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether score lies inside the band, bounds included.
func (g GrayZone) Contains(score float64) bool {
	return score >= g.Low && score <= g.High
}

// Provenance carries forensic context persisted alongside the result as metadata_json.
type Provenance struct {
	RunID        string             `json:"run_id"`
	Mode         string             `json:"loading_mode"`
	Profile      STFTProfile        `json:"stft_profile"`
	Segments     []Span             `json:"segments,omitempty"`
	TimingMs     map[string]float64 `json:"timing_ms,omitempty"`
	ModelVersion string             `json:"model_version"`
	Calibrated   bool               `json:"calibrated"`
	SpoofPolicy  string             `json:"spoof_policy"`
	GrayZone     GrayZone           `json:"gray_zone"`
	BanThreshold float64            `json:"ban_threshold"`
	Failure      string             `json:"failure,omitempty"`
}

// AnalysisResult is the persisted and returned outcome of one pipeline run.
// It is built once and must not be modified afterwards; re-analysis produces a new value.
type AnalysisResult struct {
	Fingerprint       Fingerprint       `json:"fingerprint"`
	FileHash          string            `json:"file_hash"`
	FileName          string            `json:"file_name"`
	FilePath          string            `json:"file_path"`
	Metadata          MetadataAudit     `json:"metadata"`
	DSP               DSPMetrics        `json:"dsp"`
	Spectral          SpectralMetrics   `json:"spectral"`
	SuspicionScore    float64           `json:"suspicion_score"`
	SpectralSuspicion float64           `json:"spectral_suspicion"`
	FinalScore        float64           `json:"final_score"`
	Classification    Classification    `json:"ml"`
	Arbitration       *Arbitration      `json:"llm,omitempty"`
	Verdict           Verdict           `json:"verdict"`
	ArbitrationStatus ArbitrationStatus `json:"arbitration_status"`
	Segmented         bool              `json:"was_segmented"`
	Provenance        Provenance        `json:"provenance"`
	Timestamp         time.Time         `json:"timestamp"`
}

// LLMInvolved reports whether the arbiter was consulted.
func (r *AnalysisResult) LLMInvolved() bool {
	return r.ArbitrationStatus != StatusLocalOnly
}

// FeatureNames is the classifier input order. Artifacts must declare the same list.
//
//nolint:gochecknoglobals // contract, effectively const
var FeatureNames = []string{
	"snr_db",
	"clipping_events",
	"suspicion_score",
	"spectral_suspicion",
	"crackling_density",
	"ms_energy_ratio",
	"true_peak",
}

// Features is the classifier input.
type Features struct {
	SNRDb             float64
	ClippingEvents    float64
	SuspicionScore    float64
	SpectralSuspicion float64
	CracklingDensity  float64
	MSEnergyRatio     float64
	TruePeak          float64
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		f.SNRDb,
		f.ClippingEvents,
		f.SuspicionScore,
		f.SpectralSuspicion,
		f.CracklingDensity,
		f.MSEnergyRatio,
		f.TruePeak,
	}
}
