//nolint:tagliatelle
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/integration/binary"
)

// ErrNoAudioStream is returned when a container carries no audio stream.
var ErrNoAudioStream = errors.New("no audio stream")

// Result contains the marshalled output of ffprobe.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

/*

  ┌──────────────┬─────────────────────┬─────────────────┬──────────────────────────────┐
  │    Codec     │ bits_per_raw_sample │ bits_per_sample │            Notes             │
  ├──────────────┼─────────────────────┼─────────────────┼──────────────────────────────┤
  │ FLAC         │ yes                 │ often 0         │ most reliable source         │
  │ ALAC         │ usually             │ sometimes       │                              │
  │ WAV/PCM      │ sometimes           │ yes             │ container reports it         │
  │ MP3/AAC/Opus │ n/a                 │ n/a             │ lossy, no bit depth concept  │
  └──────────────┴─────────────────────┴─────────────────┴──────────────────────────────┘

*/

// Stream contains the stream properties the metadata auditor and the loader rely on.
type Stream struct {
	Index            int    `json:"index"`
	CodecName        string `json:"codec_name"`               // flac
	CodecLongName    string `json:"codec_long_name"`          // FLAC (Free Lossless Audio Codec)
	CodecType        string `json:"codec_type"`               // audio
	SampleRate       string `json:"sample_rate,omitempty"`    // 44100
	Channels         int    `json:"channels,omitempty"`       // 2
	ChannelLayout    string `json:"channel_layout,omitempty"` // stereo
	Duration         string `json:"duration,omitempty"`       // 310.666667
	BitRate          string `json:"bit_rate,omitempty"`       // 956821
	BitsPerRawSample string `json:"bits_per_raw_sample,omitempty"`
	BitsPerSample    int    `json:"bits_per_sample,omitempty"`
	SampleFmt        string `json:"sample_fmt,omitempty"` // s16
}

// Format represents container-level information.
type Format struct {
	Filename       string `json:"filename"`
	NbStreams      int    `json:"nb_streams"`
	FormatName     string `json:"format_name"` // e.g. "flac", "mov,mp4,m4a,3gp,3g2,mj2"
	FormatLongName string `json:"format_long_name"`
	Duration       string `json:"duration,omitempty"`
	BitRate        string `json:"bit_rate,omitempty"`
	Size           string `json:"size,omitempty"`
	ProbeScore     int    `json:"probe_score"` // 0-100, lower = guessed
}

// FirstAudio returns the first audio stream.
func (r *Result) FirstAudio() (*Stream, error) {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i], nil
		}
	}

	return nil, ErrNoAudioStream
}

// SampleRateHz parses the stream sample rate, 0 when absent.
func (s *Stream) SampleRateHz() int {
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil {
		return 0
	}

	return rate
}

// BitDepth prefers bits_per_raw_sample (lossless codecs) over bits_per_sample (PCM containers).
func (s *Stream) BitDepth() int {
	if bits, err := strconv.Atoi(s.BitsPerRawSample); err == nil && bits > 0 {
		return bits
	}

	return s.BitsPerSample
}

// DurationSec returns the stream duration, falling back to the container duration.
func (r *Result) DurationSec(stream *Stream) float64 {
	if stream != nil {
		if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > 0 {
			return d
		}
	}

	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}

	return d
}

// BitRate returns the stream bit rate, falling back to the container bit rate.
func (r *Result) BitRate(stream *Stream) int64 {
	if stream != nil {
		if b, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil && b > 0 {
			return b
		}
	}

	b, err := strconv.ParseInt(r.Format.BitRate, 10, 64)
	if err != nil {
		return 0
	}

	return b
}

// Probe runs ffprobe on the given file path and returns parsed metadata.
// It requires ffprobe to be available in the system PATH.
func Probe(ctx context.Context, filePath string) (*Result, error) {
	slog.Debug("ffprobe.Probe", "file path", filePath)

	ffprobePath, found := binary.Available(name)
	if !found {
		return nil, fmt.Errorf("%w: %s", fault.ErrMissingRequirements, name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is intentionally user-provided input for probing media files
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		return nil, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	var result Result
	if err = json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	return &result, nil
}
