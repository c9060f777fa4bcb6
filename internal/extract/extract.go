// Package extract runs the time-domain and spectral detectors over a segment set and aggregates them worst-case.
package extract

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/farcloser/assay/internal/audit/bitdepth"
	"github.com/farcloser/assay/internal/audit/crackle"
	"github.com/farcloser/assay/internal/audit/dcoffset"
	"github.com/farcloser/assay/internal/audit/snr"
	"github.com/farcloser/assay/internal/audit/spectral"
	"github.com/farcloser/assay/internal/audit/stereo"
	"github.com/farcloser/assay/internal/audit/truepeak"
	"github.com/farcloser/assay/internal/types"
)

const defaultParallelism = 2

// Options tunes extraction.
type Options struct {
	// ClipThreshold is the linear true-peak level counted as clipping. Zero selects truepeak.DefaultThreshold.
	ClipThreshold float64
	// Parallelism bounds how many segments are analyzed at once. Zero selects 2.
	Parallelism int
}

// Report is the aggregated extraction output for one file.
type Report struct {
	DSP      types.DSPMetrics
	Spectral types.SpectralMetrics
}

// Segment computes the time-domain metrics of one segment.
func Segment(seg *types.Segment, opts Options) types.DSPMetrics {
	mono := seg.Mono()

	peaks := truepeak.Detect(seg.Channels, opts.ClipThreshold)
	noise := snr.Estimate(mono, seg.SampleRate)
	clicks := crackle.Detect(mono, seg.SampleRate)

	metrics := types.DSPMetrics{
		SNRDb:            noise.Db,
		TruePeak:         peaks.TruePeak,
		SamplePeak:       peaks.SamplePeak,
		ClippingEvents:   peaks.Events,
		CracklingDensity: clicks.Density,
		ZeroCrossingRate: clicks.ZeroCrossingRate,
		DCOffset:         dcoffset.Measure(seg.Channels),
		EffectiveBits:    bitdepth.Effective(seg.Channels),
		IsStereo:         len(seg.Channels) >= 2,
	}

	if metrics.IsStereo {
		metrics.MSEnergyRatio = stereo.Analyze(seg.Channels[0], seg.Channels[1]).MSEnergyRatio
	}

	return metrics
}

// Set analyzes every segment and aggregates the results. It stops early when ctx is cancelled.
func Set(ctx context.Context, set *types.SegmentSet, opts Options) (*Report, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	dsp := make([]types.DSPMetrics, len(set.Segments))
	spectra := make([]types.SpectralMetrics, len(set.Segments))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for i := range set.Segments {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			dsp[i] = Segment(&set.Segments[i], opts)

			if err := gctx.Err(); err != nil {
				return err
			}

			spectra[i] = spectral.Audit(&set.Segments[i])

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	report := &Report{DSP: Aggregate(dsp), Spectral: spectral.Aggregate(spectra)}

	slog.Debug("extract.Set", "stage", "done",
		"segments", len(set.Segments),
		"snr_db", report.DSP.SNRDb,
		"clipping_events", report.DSP.ClippingEvents,
		"rolloff_hz", report.Spectral.RolloffHz)

	return report, nil
}

// Aggregate keeps the worst value of each metric: minimum SNR and MS ratio, maximum everything else.
// The effective bit depth is the maximum too, since one genuine segment proves the resolution.
func Aggregate(metrics []types.DSPMetrics) types.DSPMetrics {
	if len(metrics) == 0 {
		return types.DSPMetrics{}
	}

	agg := metrics[0]

	for _, m := range metrics[1:] {
		agg.SNRDb = min(agg.SNRDb, m.SNRDb)
		agg.TruePeak = max(agg.TruePeak, m.TruePeak)
		agg.SamplePeak = max(agg.SamplePeak, m.SamplePeak)
		agg.ClippingEvents = max(agg.ClippingEvents, m.ClippingEvents)
		agg.CracklingDensity = max(agg.CracklingDensity, m.CracklingDensity)
		agg.ZeroCrossingRate = max(agg.ZeroCrossingRate, m.ZeroCrossingRate)
		agg.DCOffset = max(agg.DCOffset, m.DCOffset)
		agg.EffectiveBits = max(agg.EffectiveBits, m.EffectiveBits)

		if m.IsStereo {
			if !agg.IsStereo {
				agg.MSEnergyRatio = m.MSEnergyRatio
			}

			agg.MSEnergyRatio = min(agg.MSEnergyRatio, m.MSEnergyRatio)
			agg.IsStereo = true
		}
	}

	return agg
}

// IACC returns the highest inter-channel cross-correlation across the stereo segments, nil for mono sources.
// It is costly and only computed when the suspicion score needs corroboration.
func IACC(ctx context.Context, set *types.SegmentSet) (*float64, error) {
	var (
		best  float64
		found bool
	)

	for i := range set.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seg := &set.Segments[i]
		if len(seg.Channels) < 2 { //nolint:mnd
			continue
		}

		best = max(best, stereo.IACC(seg.Channels[0], seg.Channels[1], seg.SampleRate))
		found = true
	}

	if !found {
		return nil, nil //nolint:nilnil // mono source: no IACC and no error
	}

	return &best, nil
}
