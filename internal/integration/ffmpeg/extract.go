package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/integration/binary"
)

// Window restricts decoding to part of a stream, in seconds. The zero Window decodes everything.
type Window struct {
	Offset   float64
	Duration float64
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64) //nolint:mnd
}

// Args builds the ffmpeg command line. Input seeking (-ss before -i) skips straight to the offset.
func Args(path string, streamIndex int, window Window) []string {
	args := []string{"-v", "quiet", "-nostdin"}

	if window.Offset > 0 {
		args = append(args, "-ss", seconds(window.Offset))
	}

	args = append(args, "-i", path)

	if window.Duration > 0 {
		args = append(args, "-t", seconds(window.Duration))
	}

	return append(args,
		"-map", "0:a:"+strconv.Itoa(streamIndex),
		"-f", sampleFormat,
		"-acodec", codec,
		"-",
	)
}

// ExtractStream decodes one audio stream of path into interleaved s32le PCM at the source rate.
func ExtractStream(
	ctx context.Context,
	path string,
	output io.Writer,
	streamIndex int,
	window Window,
) error {
	slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex,
		"offset", window.Offset, "duration", window.Duration, "stage", "start")

	ffmpegPath, found := binary.Available(name)
	if !found {
		return fmt.Errorf("%w: %s", fault.ErrMissingRequirements, name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, Args(path, streamIndex, window)...) //nolint:gosec // fixed binary, built args

	cmd.Stdout = output

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "timeout")

			return fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "error")

		return fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "done")

	return nil
}
