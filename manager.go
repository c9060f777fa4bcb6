// Package assay audits audio files for authenticity and quality defects.
//
// A Manager runs one file through fingerprinting, the result cache, decoding, time-domain and spectral feature
// extraction, scoring, classification and, for scores in the gray zone, arbitration by a local language model.
//
// Usage:
//
//	manager := assay.New(assay.Deps{Store: db, Classifier: cls, Arbiter: arb}, assay.DefaultOptions())
//	result, err := manager.AuditFile(ctx, "/music/track.flac", true)
//	if result != nil && result.Verdict.IsNegative() {
//		fmt.Println("rejected:", result.FileName)
//	}
//
// Results are immutable once returned. Re-analysis (Options.Reanalyze) builds a new result and supersedes the
// cached one.
package assay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/farcloser/assay/internal/arbiter"
	"github.com/farcloser/assay/internal/audit/bitdepth"
	"github.com/farcloser/assay/internal/classifier"
	"github.com/farcloser/assay/internal/extract"
	"github.com/farcloser/assay/internal/fingerprint"
	"github.com/farcloser/assay/internal/loader"
	"github.com/farcloser/assay/internal/metadata"
	"github.com/farcloser/assay/internal/score"
	"github.com/farcloser/assay/internal/types"
)

// Manager is safe for concurrent use. Concurrent audits of identical content share one pipeline run.
type Manager struct {
	deps   Deps
	opts   Options
	logger  *slog.Logger
	flight  singleflight.Group
	flights flights
}

// New builds a Manager. Zero-valued options fall back to the defaults.
func New(deps Deps, opts Options) *Manager {
	defaults := DefaultOptions()

	if opts.GrayZone == (GrayZone{}) {
		opts.GrayZone = defaults.GrayZone
	}

	if opts.BanThreshold <= 0 {
		opts.BanThreshold = defaults.BanThreshold
	}

	if opts.Weights == (Weights{}) {
		opts.Weights = defaults.Weights
	}

	if opts.SpectralWeights == (SpectralWeights{}) {
		opts.SpectralWeights = defaults.SpectralWeights
	}

	if opts.ClipThreshold <= 0 {
		opts.ClipThreshold = defaults.ClipThreshold
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if deps.Classifier == nil {
		deps.Classifier = classifier.New("", opts.Logger)
	}

	if deps.Arbiter == nil {
		deps.Arbiter = arbiter.Disabled{}
	}

	return &Manager{
		deps:   deps,
		opts:   opts,
		logger: opts.Logger.With("component", "manager"),
	}
}

// Options returns the effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// ModelVersion reports the active classifier version.
func (m *Manager) ModelVersion() string {
	return m.deps.Classifier.Version()
}

// ReloadModel reloads the classifier artifact. On failure the current model stays active.
func (m *Manager) ReloadModel() error {
	if err := m.deps.Classifier.Reload(); err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	m.logger.Info("model reloaded", "version", m.deps.Classifier.Version())

	return nil
}

// AuditFile runs the pipeline for path.
//
// Errors:
//   - ErrIO: the file could not be read; the result is nil.
//   - ErrDecode: the audio could not be decoded; a non-persisted REVIEW_REQUIRED result is returned.
//   - ErrPersistence: the result is complete but was not stored; it is returned.
//   - ErrCancelled: ctx ended first; the result is nil.
func (m *Manager) AuditFile(ctx context.Context, path string, segmented bool) (*AnalysisResult, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	r := newRun(uuid.NewString(), path, m.logger, m.opts.Observer)
	r.enter(StageFingerprinting, nil)

	fp, err := fingerprint.File(path)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrIO, err)
		r.enter(StageFailed, err)

		return nil, err
	}

	if err = ctx.Err(); err != nil {
		return nil, m.cancelled(r, err)
	}

	key := fp.Hex()

	for {
		value, err, ran, done := m.share(ctx, r, key, fp, segmented)
		if !done {
			return nil, m.cancelled(r, ctx.Err())
		}

		// The shared run was cancelled after every earlier waiter left, while this caller is still live.
		if !ran && errors.Is(err, ErrCancelled) && ctx.Err() == nil {
			r.logger.Debug("in-flight audit was abandoned, retrying", "hash", key)

			continue
		}

		if !ran {
			r.logger.Debug("joined in-flight audit", "hash", key)

			switch {
			case err == nil:
				r.enter(StageDone, nil)
			case errors.Is(err, ErrCancelled):
				r.enter(StageCancelled, err)
			default:
				r.enter(StageFailed, err)
			}
		}

		// Results are immutable so every caller may share the pointer.
		result, _ := value.(*AnalysisResult)

		return result, err
	}
}

// share runs or joins the pipeline for key. ran reports whether this caller executed it; done is false when ctx
// ended before the shared run finished.
func (m *Manager) share(
	ctx context.Context,
	r *run,
	key string,
	fp types.Fingerprint,
	segmented bool,
) (value any, err error, ran bool, done bool) { //nolint:revive // error is not last: it is one of the shared values
	current := m.flights.join(ctx, key)
	defer m.flights.leave(key, current)

	var executed atomic.Bool

	ch := m.flight.DoChan(key, func() (any, error) {
		executed.Store(true)

		return m.pipeline(current.ctx, r, fp, segmented)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, executed.Load(), true
	case <-ctx.Done():
		return nil, nil, false, false
	}
}

func (m *Manager) pipeline(
	ctx context.Context,
	r *run,
	fp types.Fingerprint,
	segmented bool,
) (*AnalysisResult, error) {
	r.enter(StageCacheCheck, nil)

	if cached := m.lookup(ctx, r, fp); cached != nil {
		r.enter(StageCacheHit, nil)
		r.enter(StageDone, nil)

		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, m.cancelled(r, err)
	}

	mode := types.ModeFull
	if segmented {
		mode = types.ModeSegmented
	}

	r.enter(StageMetadataAndLoad, nil)

	meta := metadata.Audit(ctx, r.path)

	set, err := loader.Load(ctx, r.path, mode, fp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, m.cancelled(r, ctx.Err())
		}

		err = fmt.Errorf("%w: %w", ErrDecode, err)
		result := m.defensive(r, fp, meta, mode, err)
		r.enter(StageFailed, err)

		return result, err
	}

	if err = ctx.Err(); err != nil {
		return nil, m.cancelled(r, err)
	}

	r.enter(StageDSPAndSpectral, nil)

	report, err := extract.Set(ctx, set, extract.Options{
		ClipThreshold: m.opts.ClipThreshold,
		Parallelism:   m.opts.Parallelism,
	})
	if err != nil {
		return nil, m.cancelled(r, err)
	}

	if finding := bitdepth.Padding(meta.BitDepth, report.DSP.EffectiveBits); finding != "" {
		meta.Findings = append(meta.Findings, finding)
	}

	r.enter(StageScoring, nil)

	suspicion := score.Suspicion(report.DSP, m.opts.Weights)
	spectralSuspicion := score.Spectral(report.Spectral, m.opts.SpectralWeights)
	final := score.Final(suspicion, spectralSuspicion)

	r.enter(StageClassifying, nil)

	classification := m.deps.Classifier.Classify(types.Features{
		SNRDb:             report.DSP.SNRDb,
		ClippingEvents:    float64(report.DSP.ClippingEvents),
		SuspicionScore:    suspicion,
		SpectralSuspicion: spectralSuspicion,
		CracklingDensity:  report.DSP.CracklingDensity,
		MSEnergyRatio:     report.DSP.MSEnergyRatio,
		TruePeak:          report.DSP.TruePeak,
	})

	var arbitration *types.Arbitration

	if !meta.IsSpoofed && m.opts.GrayZone.Contains(final) {
		if arbitration, err = m.arbitrate(ctx, r, set, report, suspicion, spectralSuspicion, classification); err != nil {
			return nil, m.cancelled(r, err)
		}
	}

	r.enter(StageDeciding, nil)

	verdict, status := decide(meta.IsSpoofed, final, m.opts.BanThreshold, classification, arbitration)

	result := &AnalysisResult{
		Fingerprint:       fp,
		FileHash:          fp.Hex(),
		FileName:          filepath.Base(r.path),
		FilePath:          r.path,
		Metadata:          meta,
		DSP:               report.DSP,
		Spectral:          report.Spectral,
		SuspicionScore:    suspicion,
		SpectralSuspicion: spectralSuspicion,
		FinalScore:        final,
		Classification:    classification,
		Arbitration:       arbitration,
		Verdict:           verdict,
		ArbitrationStatus: status,
		Segmented:         mode == types.ModeSegmented,
		Provenance:        m.provenance(r, mode, classification),
		Timestamp:         time.Now().UTC(),
	}

	result.Provenance.Profile = report.Spectral.Profile
	result.Provenance.Segments = set.Spans()

	r.logger.Info("audit verdict",
		"verdict", verdict,
		"arbitration_status", status,
		"suspicion_score", suspicion,
		"spectral_suspicion", spectralSuspicion,
		"final_score", final,
		"label", classification.Label,
		"spoofed", meta.IsSpoofed)

	if !m.persists() {
		r.enter(StageDone, nil)

		return result, nil
	}

	r.enter(StagePersisting, nil)

	if err = m.deps.Store.Put(ctx, result); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		r.enter(StageFailed, err)

		return result, err
	}

	r.enter(StageDone, nil)

	return result, nil
}

func (m *Manager) persists() bool {
	return m.deps.Store != nil && !m.opts.NoCache
}

func (m *Manager) lookup(ctx context.Context, r *run, fp types.Fingerprint) *AnalysisResult {
	if !m.persists() || m.opts.Reanalyze {
		return nil
	}

	cached, err := m.deps.Store.Get(ctx, fp.Hex())
	if err != nil {
		r.logger.Warn("cache lookup failed, analyzing", "stage", StageCacheCheck, "error", err)

		return nil
	}

	return cached
}

func (m *Manager) arbitrate(
	ctx context.Context,
	r *run,
	set *types.SegmentSet,
	report *extract.Report,
	suspicion, spectralSuspicion float64,
	classification types.Classification,
) (*types.Arbitration, error) {
	r.enter(StageGrayZone, nil)

	iacc, err := extract.IACC(ctx, set)
	if err != nil {
		return nil, err
	}

	report.DSP.IACC = iacc

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	r.enter(StageArbitrating, nil)

	arbitration := m.deps.Arbiter.Arbitrate(ctx, arbiter.Request{
		SuspicionScore:    suspicion,
		SpectralSuspicion: spectralSuspicion,
		DSP:               report.DSP,
		Spectral:          report.Spectral,
		Classification:    classification,
	})

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if !arbitration.Usable() {
		r.logger.Warn("falling back to local verdict", "stage", StageArbitrating,
			"error", fmt.Errorf("%w: %s", ErrArbitration, arbitration.Error))
	}

	return &arbitration, nil
}

func (m *Manager) provenance(r *run, mode types.LoadMode, classification types.Classification) types.Provenance {
	return types.Provenance{
		RunID:        r.id,
		Mode:         mode.String(),
		TimingMs:     r.timingsMs(),
		ModelVersion: classification.ModelVersion,
		Calibrated:   classification.Calibrated,
		SpoofPolicy:  SpoofOverride,
		GrayZone:     m.opts.GrayZone,
		BanThreshold: m.opts.BanThreshold,
	}
}

// defensive builds the result returned when decoding fails. It is never persisted.
func (m *Manager) defensive(
	r *run,
	fp types.Fingerprint,
	meta types.MetadataAudit,
	mode types.LoadMode,
	cause error,
) *AnalysisResult {
	classification := types.Classification{
		Label:        types.LabelCorrupt,
		Confidence:   1,
		ModelVersion: m.deps.Classifier.Version(),
	}

	prov := m.provenance(r, mode, classification)
	prov.Failure = cause.Error()

	return &AnalysisResult{
		Fingerprint:       fp,
		FileHash:          fp.Hex(),
		FileName:          filepath.Base(r.path),
		FilePath:          r.path,
		Metadata:          meta,
		Classification:    classification,
		Verdict:           VerdictReviewRequired,
		ArbitrationStatus: StatusLocalOnly,
		Segmented:         mode == types.ModeSegmented,
		Provenance:        prov,
		Timestamp:         time.Now().UTC(),
	}
}

func (m *Manager) cancelled(r *run, cause error) error {
	err := cause
	if !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}

	r.enter(StageCancelled, err)

	return err
}
