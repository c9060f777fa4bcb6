package ffmpeg_test

import (
	"slices"
	"testing"

	"github.com/farcloser/assay/internal/integration/ffmpeg"
)

func TestArgsWholeStream(t *testing.T) {
	args := ffmpeg.Args("/music/a.flac", 0, ffmpeg.Window{})

	if slices.Contains(args, "-ss") || slices.Contains(args, "-t") {
		t.Fatalf("whole-stream decode must not seek: %v", args)
	}

	if i := slices.Index(args, "-i"); i < 0 || args[i+1] != "/music/a.flac" {
		t.Fatalf("input path missing: %v", args)
	}
}

func TestArgsWindowSeeksBeforeInput(t *testing.T) {
	args := ffmpeg.Args("/music/a.flac", 1, ffmpeg.Window{Offset: 3600.5, Duration: 10})

	ss, in, dur := slices.Index(args, "-ss"), slices.Index(args, "-i"), slices.Index(args, "-t")

	if ss < 0 || in < 0 || dur < 0 {
		t.Fatalf("expected -ss, -i and -t: %v", args)
	}

	if ss > in || dur < in {
		t.Fatalf("-ss must precede the input and -t follow it: %v", args)
	}

	if args[ss+1] != "3600.500000" || args[dur+1] != "10.000000" {
		t.Fatalf("unexpected window values: %v", args)
	}

	if !slices.Contains(args, "0:a:1") {
		t.Fatalf("stream index not mapped: %v", args)
	}
}
