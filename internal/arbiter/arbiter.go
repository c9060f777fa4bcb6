// Package arbiter asks a language model to settle files whose suspicion score falls in the gray zone.
// Arbitration never fails the caller: every problem comes back as a FAILED outcome with a REVIEW_REQUIRED verdict.
package arbiter

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/farcloser/assay/internal/types"
)

// Request carries the numeric evidence gathered so far. It never includes audio or file names.
type Request struct {
	SuspicionScore    float64
	SpectralSuspicion float64
	DSP               types.DSPMetrics
	Spectral          types.SpectralMetrics
	Classification    types.Classification
	Spoofed           bool
}

// Arbiter produces a verdict for a gray-zone file.
type Arbiter interface {
	Arbitrate(ctx context.Context, req Request) types.Arbitration
}

// Failed builds the fallback outcome.
func Failed(model string, latencyMs float64, cause error) types.Arbitration {
	arb := types.Arbitration{
		Verdict:   types.VerdictReviewRequired,
		Status:    types.OutcomeFailed,
		Model:     model,
		LatencyMs: latencyMs,
	}

	if cause != nil {
		arb.Error = cause.Error()
	}

	return arb
}

// Disabled is used when no endpoint is configured. Every call fails, so gray-zone files are marked AI_FAILED.
type Disabled struct{}

func (Disabled) Arbitrate(context.Context, Request) types.Arbitration {
	return Failed("", 0, ErrDisabled)
}

// Static returns a fixed outcome and counts calls.
type Static struct {
	Outcome types.Arbitration
	calls   atomic.Int64
}

func (s *Static) Arbitrate(context.Context, Request) types.Arbitration {
	s.calls.Add(1)

	return s.Outcome
}

// Calls returns how many times Arbitrate ran.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}

// Prompt renders the request as a short, numeric-only prompt.
func Prompt(req Request) string {
	var b strings.Builder

	b.WriteString("You audit audio files for corruption. Metrics for one file:\n")
	fmt.Fprintf(&b, "suspicion_score=%.4f\n", req.SuspicionScore)
	fmt.Fprintf(&b, "spectral_suspicion=%.4f\n", req.SpectralSuspicion)
	fmt.Fprintf(&b, "snr_db=%.2f\n", req.DSP.SNRDb)
	fmt.Fprintf(&b, "true_peak=%.4f\n", req.DSP.TruePeak)
	fmt.Fprintf(&b, "clipping_events=%d\n", req.DSP.ClippingEvents)
	fmt.Fprintf(&b, "crackling_density_per_s=%.3f\n", req.DSP.CracklingDensity)

	if req.DSP.IsStereo {
		fmt.Fprintf(&b, "ms_energy_ratio=%.5f\n", req.DSP.MSEnergyRatio)
	}

	if req.DSP.IACC != nil {
		fmt.Fprintf(&b, "iacc=%.4f\n", *req.DSP.IACC)
	}

	fmt.Fprintf(&b, "rolloff_hz=%.0f\n", req.Spectral.RolloffHz)
	fmt.Fprintf(&b, "nyquist_hz=%.0f\n", req.Spectral.NyquistHz)
	fmt.Fprintf(&b, "cutoff_hz=%.0f\n", req.Spectral.CutoffHz)
	fmt.Fprintf(&b, "aliasing_score=%.4f\n", req.Spectral.AliasingScore)
	fmt.Fprintf(&b, "classifier_label=%s\n", req.Classification.Label)
	fmt.Fprintf(&b, "classifier_confidence=%.3f\n", req.Classification.Confidence)
	fmt.Fprintf(&b, "metadata_spoofed=%t\n", req.Spoofed)
	b.WriteString("Answer with exactly one word, CLEAN or CORRUPT, then one short sentence of justification.")

	return b.String()
}

// ParseVerdict extracts the first CLEAN or CORRUPT keyword. ok is false when neither appears.
func ParseVerdict(text string) (verdict types.Verdict, justification string, ok bool) {
	upper := strings.ToUpper(text)
	clean := strings.Index(upper, string(types.VerdictClean))
	corrupt := strings.Index(upper, string(types.VerdictCorrupt))

	var at int

	switch {
	case clean < 0 && corrupt < 0:
		return types.VerdictReviewRequired, "", false
	case corrupt < 0 || (clean >= 0 && clean < corrupt):
		verdict, at = types.VerdictClean, clean+len(types.VerdictClean)
	default:
		verdict, at = types.VerdictCorrupt, corrupt+len(types.VerdictCorrupt)
	}

	rest := text
	if len(upper) != len(text) {
		rest = upper
	}

	justification = strings.TrimLeft(strings.TrimSpace(rest[at:]), ".:,-; \t\n")

	const limit = 280
	if runes := []rune(justification); len(runes) > limit {
		justification = string(runes[:limit]) + "..."
	}

	return verdict, justification, true
}
