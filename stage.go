package assay

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Stage is a step of the audit state machine.
type Stage string

const (
	StageFingerprinting  Stage = "fingerprinting"
	StageCacheCheck      Stage = "cache_check"
	StageCacheHit        Stage = "cache_hit"
	StageMetadataAndLoad Stage = "metadata_and_load"
	StageDSPAndSpectral  Stage = "dsp_and_spectral"
	StageScoring         Stage = "scoring"
	StageClassifying     Stage = "classifying"
	StageGrayZone        Stage = "gray_zone"
	StageArbitrating     Stage = "arbitrating"
	StageDeciding        Stage = "deciding"
	StagePersisting      Stage = "persisting"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
	StageCancelled       Stage = "cancelled"
)

// Terminal reports whether no transition follows the stage.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// Event is reported to the Observer on every transition.
type Event struct {
	RunID   string
	Path    string
	Stage   Stage
	Elapsed time.Duration // since the run started
	Err     error         // set on StageFailed and StageCancelled
}

// Observer receives transitions. It is called synchronously from the audit goroutine.
type Observer interface {
	OnStage(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnStage(event Event) {
	f(event)
}

// run tracks one pass through the state machine.
// run tracks one AuditFile call. It is shared between the caller and the pipeline goroutine, and it reports at
// most one terminal stage: once finished, later transitions still accrue timings but are neither logged nor observed.
type run struct {
	id       string
	path     string
	start    time.Time
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	current  Stage
	entered  time.Time
	timings  map[string]float64
	finished bool
}

func newRun(id, path string, logger *slog.Logger, observer Observer) *run {
	now := time.Now()

	return &run{
		id:       id,
		path:     path,
		start:    now,
		entered:  now,
		timings:  map[string]float64{},
		logger:   logger.With("run_id", id, "file", path),
		observer: observer,
	}
}

func (r *run) enter(stage Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if r.current != "" {
		r.timings[string(r.current)] += float64(now.Sub(r.entered).Microseconds()) / 1000 //nolint:mnd
	}

	r.current, r.entered = stage, now

	if r.finished {
		return
	}

	r.finished = stage.Terminal()

	switch stage {
	case StageFailed:
		r.logger.Warn("audit failed", "stage", stage, "error", err)
	case StageCancelled:
		r.logger.Info("audit cancelled", "stage", stage, "error", err)
	default:
		r.logger.Debug("audit transition", "stage", stage)
	}

	if r.observer != nil {
		r.observer.OnStage(Event{RunID: r.id, Path: r.path, Stage: stage, Elapsed: now.Sub(r.start), Err: err})
	}
}

func (r *run) timingsMs() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.timings)
}
