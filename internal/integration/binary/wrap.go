// Package binary locates external tools.
package binary

import (
	"os/exec"
	"sync"
)

type lookup struct {
	path  string
	found bool
}

//nolint:gochecknoglobals // process-wide memo of PATH lookups
var known sync.Map

// Available checks if a binary is available in the system PATH.
// Results are memoized: every pipeline run probes the same tools.
func Available(binName string) (string, bool) {
	if hit, ok := known.Load(binName); ok {
		res := hit.(lookup) //nolint:forcetypeassert // only lookup values are stored

		return res.path, res.found
	}

	path, err := exec.LookPath(binName)
	res := lookup{path: path, found: err == nil}
	known.Store(binName, res)

	return res.path, res.found
}
