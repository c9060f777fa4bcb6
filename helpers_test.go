package assay_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/farcloser/assay"
	"github.com/farcloser/assay/internal/arbiter"
	"github.com/farcloser/assay/internal/types"
)

// writeTone writes a two-second 8 kHz stereo tone at -6 dBFS.
func writeTone(t *testing.T, dir, name string, freq float64) string {
	t.Helper()

	const (
		rate    = 8000
		frames  = 2 * rate
		channel = 2
	)

	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer file.Close()

	data := make([]int, 0, frames*channel)

	for i := range frames {
		left := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
		right := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate+0.3)
		data = append(data, int(left*32767), int(right*32767))
	}

	enc := wav.NewEncoder(file, rate, 16, channel, 1)

	if err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channel, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	if err = enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}

	return path
}

// gate is an arbiter that blocks until released or cancelled.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int64
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) Arbitrate(ctx context.Context, _ arbiter.Request) types.Arbitration {
	g.calls.Add(1)
	g.once.Do(func() { close(g.entered) })

	select {
	case <-g.release:
		return types.Arbitration{Verdict: types.VerdictClean, Status: types.OutcomeArbitrated, Model: "gate"}
	case <-ctx.Done():
		return arbiter.Failed("gate", 0, ctx.Err())
	}
}

// memoryStore is an in-memory Store. When failPut is set, Put always fails.
type memoryStore struct {
	mu      sync.Mutex
	results map[string]*types.AnalysisResult
	puts    int
	failPut bool
}

var errDiskFull = errors.New("disk full")

func newMemoryStore() *memoryStore {
	return &memoryStore{results: map[string]*types.AnalysisResult{}}
}

func (s *memoryStore) Get(_ context.Context, hash string) (*types.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.results[hash], nil
}

func (s *memoryStore) Put(_ context.Context, result *types.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++

	if s.failPut {
		return errDiskFull
	}

	s.results[result.FileHash] = result

	return nil
}

// terminals records the terminal stages observed per run.
type terminals struct {
	mu     sync.Mutex
	byRun  map[string][]assay.Stage
	joined chan string
}

func newTerminals() *terminals {
	return &terminals{byRun: map[string][]assay.Stage{}, joined: make(chan string, 16)}
}

func (r *terminals) OnStage(event assay.Event) {
	if event.Stage == assay.StageFingerprinting {
		r.joined <- event.RunID

		return
	}

	if !event.Stage.Terminal() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byRun[event.RunID] = append(r.byRun[event.RunID], event.Stage)
}

func (r *terminals) snapshot() map[string][]assay.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]assay.Stage, len(r.byRun))
	for id, stages := range r.byRun {
		out[id] = slices.Clone(stages)
	}

	return out
}
