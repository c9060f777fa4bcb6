// Package fingerprint computes bounded-I/O content hashes used as cache keys.
//
// The hash covers at most three 64 KiB windows (start, middle, end), so its cost does not grow with file size.
// It is an identity key, not a security primitive.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // identity key, collision resistance is not required
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/types"
)

const chunkSize = 64 * 1024

var (
	// ErrIO is returned when the file cannot be opened or read.
	ErrIO = errors.New("fingerprint i/o failure")
	// ErrEmptyFile is returned for zero-length files.
	ErrEmptyFile = errors.New("empty file")
)

// File fingerprints the file at path.
func File(path string) (types.Fingerprint, error) {
	file, err := os.Open(path) //nolint:gosec // auditing user-specified files is the point
	if err != nil {
		return types.Fingerprint{}, fmt.Errorf("%w: %w: %w", ErrIO, fault.ErrReadFailure, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return types.Fingerprint{}, fmt.Errorf("%w: %w: %w", ErrIO, fault.ErrReadFailure, err)
	}

	return Reader(file, info.Size())
}

// Reader fingerprints size bytes exposed by r.
func Reader(r io.ReaderAt, size int64) (types.Fingerprint, error) {
	if size == 0 {
		return types.Fingerprint{}, ErrEmptyFile
	}

	start := time.Now()
	hasher := md5.New() //nolint:gosec // see package doc
	buf := make([]byte, chunkSize)

	var read int64

	for _, offset := range offsets(size) {
		length := min(int64(chunkSize), size-offset)

		n, err := r.ReadAt(buf[:length], offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return types.Fingerprint{}, fmt.Errorf("%w: %w: %w", ErrIO, fault.ErrReadFailure, err)
		}

		hasher.Write(buf[:n])

		read += int64(n)
	}

	fp := types.Fingerprint{
		Size:            size,
		SampleBytesRead: read,
		ReadDuration:    time.Since(start),
	}
	copy(fp.Hash[:], hasher.Sum(nil))

	return fp, nil
}

// offsets returns the window starts for a file of the given size.
// Files up to one window read the start only; up to three windows read start and end.
func offsets(size int64) []int64 {
	switch {
	case size <= chunkSize:
		return []int64{0}
	case size <= 3*chunkSize:
		return []int64{0, size - chunkSize}
	default:
		return []int64{0, size/2 - chunkSize/2, size - chunkSize}
	}
}
