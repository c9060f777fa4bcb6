package assay

import "errors"

var (
	// ErrIO means the file could not be read. No result is produced.
	ErrIO = errors.New("i/o failure")
	// ErrDecode means the audio could not be decoded. A defensive result is returned alongside it.
	ErrDecode = errors.New("decode failure")
	// ErrModelUnavailable means the classifier artifact could not be (re)loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrArbitration marks a failed arbiter call. It is logged, never returned: the verdict falls back locally.
	ErrArbitration = errors.New("arbitration failed")
	// ErrPersistence means the result was computed but could not be stored.
	ErrPersistence = errors.New("persistence failure")
	// ErrCancelled means the run was cancelled before completion.
	ErrCancelled = errors.New("cancelled")
)
