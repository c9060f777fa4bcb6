package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/farcloser/assay/internal/store"
	"github.com/farcloser/assay/internal/types"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "nested", "assay.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func result(hash string, score float64) *types.AnalysisResult {
	return &types.AnalysisResult{
		FileHash:          hash,
		FileName:          "track.flac",
		FilePath:          "/music/track.flac",
		DSP:               types.DSPMetrics{SNRDb: 42.5, ClippingEvents: 3},
		SuspicionScore:    score,
		Classification:    types.Classification{Label: types.LabelClean, Confidence: 0.9, ModelVersion: "heuristic"},
		Verdict:           types.VerdictClean,
		ArbitrationStatus: types.StatusLocalOnly,
		Provenance:        types.Provenance{RunID: "run-" + hash, Mode: "full"},
		Timestamp:         time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetMiss(t *testing.T) {
	s := openStore(t)

	got, err := s.Get(context.Background(), "deadbeef")
	if err != nil || got != nil {
		t.Fatalf("expected a clean miss, got %+v, %v", got, err)
	}
}

func TestPutGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := result("aa", 0.2)
	r.Arbitration = &types.Arbitration{Verdict: types.VerdictClean, Status: types.OutcomeArbitrated}
	r.ArbitrationStatus = types.StatusAIArbitrated

	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "aa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.FileName != r.FileName || got.SuspicionScore != r.SuspicionScore || !got.Timestamp.Equal(r.Timestamp) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if got.Arbitration == nil || got.Arbitration.Verdict != types.VerdictClean {
		t.Fatalf("arbitration lost: %+v", got.Arbitration)
	}

	entries, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(entries) != 1 || !entries[0].LLMInvolved || entries[0].ArbitrationStatus != types.StatusAIArbitrated {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestPutIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for range 3 {
		if err := s.Put(ctx, result("bb", 0.4)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	entries, err := s.List(ctx, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one row, got %d (%v)", len(entries), err)
	}

	history, err := s.History(ctx, "bb")
	if err != nil || len(history) != 0 {
		t.Fatalf("identical puts must not create history, got %d (%v)", len(history), err)
	}
}

func TestReplaceKeepsHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := result("cc", 0.3)
	second := result("cc", 0.6)
	second.Verdict = types.VerdictSuspicious
	third := result("cc", 0.9)
	third.Verdict = types.VerdictCorrupt

	for _, r := range []*types.AnalysisResult{first, second, third} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	current, err := s.Get(ctx, "cc")
	if err != nil || current.Verdict != types.VerdictCorrupt {
		t.Fatalf("expected the latest result, got %+v (%v)", current, err)
	}

	history, err := s.History(ctx, "cc")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	if len(history) != 2 || history[0].SuspicionScore != 0.6 || history[1].SuspicionScore != 0.3 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestListOrderAndLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i, hash := range []string{"01", "02", "03"} {
		r := result(hash, 0.1)
		r.Timestamp = r.Timestamp.Add(time.Duration(i) * time.Hour)

		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	entries, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(entries) != 2 || entries[0].Hash != "03" || entries[1].Hash != "02" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestPutRejectsMissingHash(t *testing.T) {
	s := openStore(t)

	if err := s.Put(context.Background(), result("", 0)); !errors.Is(err, store.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
}

func TestConcurrentPuts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Go(func() {
			if err := s.Put(ctx, result("dd", float64(i)/16)); err != nil {
				t.Errorf("put: %v", err)
			}
		})
	}

	wg.Wait()

	entries, err := s.List(ctx, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one row, got %d (%v)", len(entries), err)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assay.db")
	ctx := context.Background()

	s, err := store.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err = s.Put(ctx, result("ee", 0.5)); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err = s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = store.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if got, err := s.Get(ctx, "ee"); err != nil || got == nil {
		t.Fatalf("expected the stored result after reopen, got %+v (%v)", got, err)
	}
}

func TestDigest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	corrupt := result("cc", 0.9)
	corrupt.Verdict = types.VerdictCorrupt

	for _, r := range []*types.AnalysisResult{result("aa", 0.2), result("bb", 0.4), corrupt} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	// Replace bb so one clean row carries history.
	if err := s.Put(ctx, result("bb", 0.1)); err != nil {
		t.Fatalf("put: %v", err)
	}

	tallies, err := s.Digest(ctx)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	if len(tallies) != 2 {
		t.Fatalf("expected two groups, got %+v", tallies)
	}

	// Ordered by verdict: CLEAN before CORRUPT.
	clean, bad := tallies[0], tallies[1]

	if clean.Verdict != types.VerdictClean || clean.Count != 2 || clean.Superseded != 1 {
		t.Fatalf("unexpected clean tally: %+v", clean)
	}

	if d := clean.MeanSuspicion - 0.15; d > 1e-9 || d < -1e-9 {
		t.Fatalf("expected mean suspicion 0.15, got %f", clean.MeanSuspicion)
	}

	if bad.Verdict != types.VerdictCorrupt || bad.Count != 1 || bad.Superseded != 0 {
		t.Fatalf("unexpected corrupt tally: %+v", bad)
	}
}
