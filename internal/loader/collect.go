package loader

import (
	"encoding/binary"
	"math"

	"github.com/farcloser/assay/internal/types"
)

type frameRange struct {
	start, end int
}

// collector copies interleaved integer samples falling inside the planned spans into per-channel float segments.
type collector struct {
	ranges   []frameRange
	segments []types.Segment
	channels int
	scale    float64
	frame    int
	current  int
	pending  []int
}

func newCollector(spans []types.Span, sampleRate, channels, bitDepth int) *collector {
	col := &collector{
		channels: channels,
		scale:    1 / math.Exp2(float64(bitDepth-1)),
	}

	for _, span := range spans {
		start := int(math.Round(span.Offset * float64(sampleRate)))
		end := int(math.Round(span.End() * float64(sampleRate)))

		if end <= start {
			continue
		}

		chans := make([][]float64, channels)
		for ch := range chans {
			chans[ch] = make([]float64, 0, end-start)
		}

		col.ranges = append(col.ranges, frameRange{start: start, end: end})
		col.segments = append(col.segments, types.Segment{
			Offset:     span.Offset,
			SampleRate: sampleRate,
			Channels:   chans,
		})
	}

	return col
}

// done reports whether every range has been filled.
func (c *collector) done() bool {
	return c.current >= len(c.ranges)
}

// push consumes interleaved samples. Partial frames are carried to the next call.
func (c *collector) push(samples []int) {
	if len(c.pending) > 0 {
		samples = append(c.pending, samples...)
		c.pending = nil
	}

	whole := (len(samples) / c.channels) * c.channels
	if whole < len(samples) {
		c.pending = append([]int(nil), samples[whole:]...)
	}

	for i := 0; i < whole; i += c.channels {
		for c.current < len(c.ranges) && c.frame >= c.ranges[c.current].end {
			c.current++
		}

		if c.done() {
			return
		}

		if c.frame >= c.ranges[c.current].start {
			seg := &c.segments[c.current]
			for ch := range c.channels {
				seg.Channels[ch] = append(seg.Channels[ch], float64(samples[i+ch])*c.scale)
			}
		}

		c.frame++
	}
}

// result returns the non-empty segments with their actual durations.
func (c *collector) result() []types.Segment {
	out := make([]types.Segment, 0, len(c.segments))

	for _, seg := range c.segments {
		if seg.Frames() == 0 {
			continue
		}

		seg.Duration = float64(seg.Frames()) / float64(seg.SampleRate)
		out = append(out, seg)
	}

	return out
}

// segmentFromPCM deinterleaves s32le frames decoded for a span starting at offset. A trailing partial frame is dropped.
func segmentFromPCM(data []byte, offset float64, sampleRate, channels int) types.Segment {
	frameSize := 4 * channels
	frames := len(data) / frameSize
	scale := 1 / math.Exp2(31) //nolint:mnd

	chans := make([][]float64, channels)
	for ch := range chans {
		chans[ch] = make([]float64, frames)
	}

	for i := range frames {
		for ch := range channels {
			off := i*frameSize + ch*4
			chans[ch][i] = float64(int32(binary.LittleEndian.Uint32(data[off:]))) * scale //nolint:gosec // s32le
		}
	}

	return types.Segment{
		Offset:     offset,
		Duration:   float64(frames) / float64(sampleRate),
		SampleRate: sampleRate,
		Channels:   chans,
	}
}
