// Package loader decodes audio files into segment sets, either whole or as a deterministic stratified sample.
package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/integration/ffmpeg"
	"github.com/farcloser/assay/internal/integration/ffprobe"
	"github.com/farcloser/assay/internal/types"
)

// ErrDecode wraps any failure to turn a file into samples. It is a file-level failure.
var ErrDecode = errors.New("decode failure")

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	readFrames          = 4096
)

// Load decodes path according to mode. In segmented mode the random window is seeded from fp.
func Load(ctx context.Context, path string, mode types.LoadMode, fp types.Fingerprint) (*types.SegmentSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		set, err := loadWAV(ctx, path, mode, fp)
		if !errors.Is(err, errUnsupportedWAV) {
			return set, err
		}
	}

	return loadExternal(ctx, path, mode, fp)
}

func plan(mode types.LoadMode, duration float64, fp types.Fingerprint) []types.Span {
	if mode == types.ModeSegmented {
		lo, hi := fp.Seed()

		return Plan(duration, lo, hi)
	}

	return Whole(duration)
}

var errUnsupportedWAV = errors.New("wav encoding not handled natively")

func loadWAV(ctx context.Context, path string, mode types.LoadMode, fp types.Fingerprint) (*types.SegmentSet, error) {
	file, err := os.Open(path) //nolint:gosec // auditing user-specified files is the point
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrDecode, fault.ErrReadFailure, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrDecode)
	}

	decoder.ReadInfo()

	if err = decoder.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, errUnsupportedWAV
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, errUnsupportedWAV
	}

	sampleRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)

	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d, channels %d", ErrDecode, sampleRate, channels)
	}

	length, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	duration := length.Seconds()
	spans := plan(mode, duration, fp)

	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	col := newCollector(spans, sampleRate, channels, bitDepth)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, readFrames*channels),
	}

	for !col.done() {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := decoder.PCMBuffer(buf)
		if n > 0 {
			col.push(buf.Data[:n])
		}

		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrDecode, readErr)
		}

		if n == 0 || readErr != nil {
			break
		}
	}

	return finish(mode, duration, sampleRate, channels, col)
}

func loadExternal(ctx context.Context, path string, mode types.LoadMode, fp types.Fingerprint) (*types.SegmentSet, error) {
	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	stream, err := probe.FirstAudio()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	sampleRate := stream.SampleRateHz()
	channels := stream.Channels

	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: sample rate %q, channels %d", ErrDecode, stream.SampleRate, channels)
	}

	// Without a probed duration the spans cannot be planned up front, so the stream is decoded whole.
	if duration := probe.DurationSec(stream); mode == types.ModeSegmented && duration > 0 {
		return loadWindows(ctx, path, duration, sampleRate, channels, fp)
	}

	return loadStream(ctx, path, mode, sampleRate, channels, fp)
}

// loadWindows decodes only the planned spans, one seeking ffmpeg run each.
func loadWindows(
	ctx context.Context,
	path string,
	duration float64,
	sampleRate, channels int,
	fp types.Fingerprint,
) (*types.SegmentSet, error) {
	spans := plan(types.ModeSegmented, duration, fp)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	segments := make([]types.Segment, 0, len(spans))

	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var pcm bytes.Buffer

		pcm.Grow(int(math.Ceil(span.Duration*float64(sampleRate))) * channels * ffmpeg.BytesPerSample)

		window := ffmpeg.Window{Offset: span.Offset, Duration: span.Duration}
		if err := ffmpeg.ExtractStream(ctx, path, &pcm, 0, window); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("%w: span at %.2fs: %w", ErrDecode, span.Offset, err)
		}

		if seg := segmentFromPCM(pcm.Bytes(), span.Offset, sampleRate, channels); seg.Frames() > 0 {
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no audio frames decoded", ErrDecode)
	}

	return &types.SegmentSet{
		Mode:           types.ModeSegmented,
		SourceDuration: duration,
		SampleRate:     sampleRate,
		ChannelCount:   channels,
		Segments:       segments,
	}, nil
}

func loadStream(
	ctx context.Context,
	path string,
	mode types.LoadMode,
	sampleRate, channels int,
	fp types.Fingerprint,
) (*types.SegmentSet, error) {
	var pcm bytes.Buffer

	if err := ffmpeg.ExtractStream(ctx, path, &pcm, 0, ffmpeg.Window{}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	data := pcm.Bytes()
	frameSize := ffmpeg.BytesPerSample * channels
	frames := len(data) / frameSize
	duration := float64(frames) / float64(sampleRate)

	spans := plan(mode, duration, fp)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	col := newCollector(spans, sampleRate, channels, 32) //nolint:mnd
	chunk := make([]int, 0, readFrames*channels)

	for off := 0; off+ffmpeg.BytesPerSample <= frames*frameSize && !col.done(); off += ffmpeg.BytesPerSample {
		chunk = append(chunk, int(int32(binary.LittleEndian.Uint32(data[off:])))) //nolint:gosec // s32le reinterpretation

		if len(chunk) == cap(chunk) {
			col.push(chunk)
			chunk = chunk[:0]
		}
	}

	col.push(chunk)

	return finish(mode, duration, sampleRate, channels, col)
}

func finish(mode types.LoadMode, duration float64, sampleRate, channels int, col *collector) (*types.SegmentSet, error) {
	segments := col.result()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no audio frames decoded", ErrDecode)
	}

	return &types.SegmentSet{
		Mode:           mode,
		SourceDuration: duration,
		SampleRate:     sampleRate,
		ChannelCount:   channels,
		Segments:       segments,
	}, nil
}
