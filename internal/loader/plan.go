package loader

import (
	"math/rand/v2"
	"slices"

	"github.com/farcloser/assay/internal/types"
)

const (
	introSeconds  = 30.0
	middleSeconds = 10.0
	outroSeconds  = 10.0
	probeSeconds  = 5.0
	// Candidates closer than this are merged into one segment.
	mergeGapSeconds = 0.25
)

// Plan returns the stratified spans for a source of the given duration: the first 30s, the middle 10s, the last
// 10s and one 5s window whose start is drawn from the seed. The same seed always yields the same spans.
// Overlapping or near-adjacent spans are merged.
func Plan(duration float64, seedLo, seedHi uint64) []types.Span {
	if duration <= 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(seedLo, seedHi)) //nolint:gosec // reproducible sampling, not security
	probeStart := rng.Float64() * max(duration-probeSeconds, 0)

	candidates := []types.Span{
		clip(0, introSeconds, duration),
		clip(duration/2-middleSeconds/2, middleSeconds, duration),
		clip(duration-outroSeconds, outroSeconds, duration),
		clip(probeStart, probeSeconds, duration),
	}

	return merge(candidates)
}

// Whole returns a single span covering the source.
func Whole(duration float64) []types.Span {
	if duration <= 0 {
		return nil
	}

	return []types.Span{{Offset: 0, Duration: duration}}
}

func clip(offset, length, duration float64) types.Span {
	offset = max(offset, 0)
	end := min(offset+length, duration)

	return types.Span{Offset: offset, Duration: max(end-offset, 0)}
}

func merge(spans []types.Span) []types.Span {
	spans = slices.DeleteFunc(slices.Clone(spans), func(s types.Span) bool { return s.Duration <= 0 })
	slices.SortFunc(spans, func(a, b types.Span) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}

		return 0
	})

	merged := make([]types.Span, 0, len(spans))

	for _, span := range spans {
		if n := len(merged); n > 0 && span.Offset <= merged[n-1].End()+mergeGapSeconds {
			end := max(merged[n-1].End(), span.End())
			merged[n-1].Duration = end - merged[n-1].Offset

			continue
		}

		merged = append(merged, span)
	}

	return merged
}
