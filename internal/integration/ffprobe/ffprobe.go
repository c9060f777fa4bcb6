package ffprobe

import "time"

const (
	name = "ffprobe"
	// Header probing only; a spun-down drive is the slow path.
	timeout = 30 * time.Second
)
