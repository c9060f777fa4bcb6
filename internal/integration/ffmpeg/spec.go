package ffmpeg

import "time"

const (
	name = "ffmpeg"
	// Signed 32-bit little-endian PCM keeps full precision for every source bit depth.
	sampleFormat = "s32le"
	codec        = "pcm_s32le"
	// Decoding long lossless masters from slow storage takes a while.
	timeout = 120 * time.Second
)

// BytesPerSample is the width of one extracted sample.
const BytesPerSample = 4
