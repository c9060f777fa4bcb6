// Package output provides shared result serialization for assay output.
package output

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/farcloser/assay/internal/types"
)

// ResultToMap converts an analysis result into the canonical map structure used for JSON and debug output.
func ResultToMap(result *types.AnalysisResult) map[string]any {
	meta := map[string]any{
		"file_hash":          result.FileHash,
		"file_name":          result.FileName,
		"file_path":          result.FilePath,
		"verdict":            string(result.Verdict),
		"arbitration_status": string(result.ArbitrationStatus),
		"suspicion_score":    result.SuspicionScore,
		"spectral_suspicion": result.SpectralSuspicion,
		"final_score":        result.FinalScore,
		"was_segmented":      result.Segmented,
		"timestamp":          result.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		"fingerprint": map[string]any{
			"size_bytes":        result.Fingerprint.Size,
			"sample_bytes_read": result.Fingerprint.SampleBytesRead,
			"read_ms":           float64(result.Fingerprint.ReadDuration.Microseconds()) / 1000, //nolint:mnd
		},
		"metadata": MetadataToMap(&result.Metadata),
		"dsp":      DSPToMap(&result.DSP),
		"spectral": SpectralToMap(&result.Spectral),
		"ml": map[string]any{
			"label":         string(result.Classification.Label),
			"confidence":    result.Classification.Confidence,
			"model_version": result.Classification.ModelVersion,
			"calibrated":    result.Classification.Calibrated,
		},
		"provenance": ProvenanceToMap(&result.Provenance),
	}

	if arb := result.Arbitration; arb != nil {
		llm := map[string]any{
			"verdict":       string(arb.Verdict),
			"justification": arb.Justification,
			"status":        string(arb.Status),
			"model":         arb.Model,
			"latency_ms":    arb.LatencyMs,
		}

		if arb.Error != "" {
			llm["error"] = arb.Error
		}

		meta["llm"] = llm
	}

	return meta
}

// DSPToMap converts time-domain metrics.
func DSPToMap(r *types.DSPMetrics) map[string]any {
	meta := map[string]any{
		"snr_db":                  r.SNRDb,
		"true_peak":               r.TruePeak,
		"sample_peak":             r.SamplePeak,
		"clipping_event_count":    r.ClippingEvents,
		"crackling_density_per_s": r.CracklingDensity,
		"zero_crossing_rate":      r.ZeroCrossingRate,
		"dc_offset":               r.DCOffset,
		"effective_bit_depth":     r.EffectiveBits,
		"is_stereo":               r.IsStereo,
	}

	if r.IsStereo {
		meta["ms_energy_ratio"] = r.MSEnergyRatio
	}

	if r.IACC != nil {
		meta["iacc"] = *r.IACC
	}

	return meta
}

// SpectralToMap converts frequency-domain metrics.
func SpectralToMap(r *types.SpectralMetrics) map[string]any {
	meta := map[string]any{
		"rolloff_hz":          r.RolloffHz,
		"nyquist_hz":          r.NyquistHz,
		"rolloff_suspect":     r.RolloffSuspect,
		"cutoff_hz":           r.CutoffHz,
		"cutoff_sharpness_db": r.CutoffSharpnessDb,
		"aliasing_score":      r.AliasingScore,
		"stft_profile": map[string]any{
			"window_size":   r.Profile.WindowSize,
			"hop_size":      r.Profile.HopSize,
			"overlap_ratio": r.Profile.OverlapRatio,
			"window":        r.Profile.Window,
			"frames":        r.Profile.Frames,
		},
	}

	if r.LikelyCodec != "" {
		meta["likely_codec"] = r.LikelyCodec
	}

	return meta
}

// MetadataToMap converts the container audit.
func MetadataToMap(r *types.MetadataAudit) map[string]any {
	meta := map[string]any{
		"container_format":   r.Container,
		"declared_container": r.DeclaredContainer,
		"codec":              r.Codec,
		"declared_bitrate":   r.DeclaredBitrate,
		"sample_rate":        r.SampleRate,
		"channels":           r.Channels,
		"bit_depth":          r.BitDepth,
		"duration_sec":       r.DurationSec,
		"is_lossless":        r.IsLossless,
		"is_spoofed":         r.IsSpoofed,
	}

	if len(r.Findings) > 0 {
		findings := make([]any, 0, len(r.Findings))
		for _, finding := range r.Findings {
			findings = append(findings, finding)
		}

		meta["findings"] = findings
	}

	return meta
}

// ProvenanceToMap converts the forensic context.
func ProvenanceToMap(r *types.Provenance) map[string]any {
	segments := make([]any, 0, len(r.Segments))
	for _, span := range r.Segments {
		segments = append(segments, fmt.Sprintf("%.2fs+%.2fs", span.Offset, span.Duration))
	}

	timings := make(map[string]any, len(r.TimingMs))
	for stage, ms := range r.TimingMs {
		timings[stage] = ms
	}

	meta := map[string]any{
		"run_id":        r.RunID,
		"loading_mode":  r.Mode,
		"segments":      segments,
		"timing_ms":     timings,
		"model_version": r.ModelVersion,
		"calibrated":    r.Calibrated,
		"spoof_policy":  r.SpoofPolicy,
		"gray_zone":     fmt.Sprintf("[%.2f, %.2f]", r.GrayZone.Low, r.GrayZone.High),
		"ban_threshold": r.BanThreshold,
	}

	if r.Failure != "" {
		meta["failure"] = r.Failure
	}

	return meta
}

// Summary is the human-oriented view of a result.
func Summary(result *types.AnalysisResult) map[string]any {
	meta := map[string]any{
		"verdict": string(result.Verdict),
		"summary": fmt.Sprintf("suspicion %.2f, spectral %.2f, %s (%.0f%% confidence, %s)",
			result.SuspicionScore, result.SpectralSuspicion,
			result.Classification.Label, result.Classification.Confidence*100, //nolint:mnd
			result.Classification.ModelVersion),
		"arbitration": string(result.ArbitrationStatus),
		"size":        humanize.IBytes(uint64(max(result.Fingerprint.Size, 0))),
	}

	if result.Provenance.Failure != "" {
		meta["failure"] = result.Provenance.Failure

		return meta
	}

	props := map[string]any{
		"snr":      fmt.Sprintf("%.1f dB", result.DSP.SNRDb),
		"clipping": fmt.Sprintf("%d events (true peak %.3f)", result.DSP.ClippingEvents, result.DSP.TruePeak),
		"crackle":  fmt.Sprintf("%.2f /s", result.DSP.CracklingDensity),
		"rolloff": fmt.Sprintf("%.0f Hz of %.0f Hz Nyquist",
			result.Spectral.RolloffHz, result.Spectral.NyquistHz),
	}

	if result.Spectral.CutoffHz > 0 {
		cutoff := fmt.Sprintf("%.0f Hz (%.0f dB drop)", result.Spectral.CutoffHz, result.Spectral.CutoffSharpnessDb)
		if result.Spectral.LikelyCodec != "" {
			cutoff += ", likely " + result.Spectral.LikelyCodec
		}

		props["cutoff"] = cutoff
	}

	if result.DSP.IsStereo {
		props["stereo"] = fmt.Sprintf("side/mid energy %.4f", result.DSP.MSEnergyRatio)
	}

	meta["properties"] = props

	container := result.Metadata.Container
	if result.Metadata.Codec != "" {
		container += "/" + result.Metadata.Codec
	}

	meta["container"] = container

	if len(result.Metadata.Findings) > 0 {
		meta["findings"] = strings.Join(result.Metadata.Findings, "; ")
	}

	if arb := result.Arbitration; arb != nil && arb.Usable() {
		meta["llm"] = fmt.Sprintf("%s: %s", arb.Verdict, arb.Justification)
	}

	return meta
}
