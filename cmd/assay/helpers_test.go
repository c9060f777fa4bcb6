package main_test

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/containerd/nerdctl/mod/tigron/test"
	"github.com/containerd/nerdctl/mod/tigron/tig"

	"github.com/farcloser/agar/pkg/agar"
)

// setup creates a test case running the assay binary built into bin/.
func setup() *test.Case {
	_, thisFile, _, _ := runtime.Caller(0) //nolint:dogsled // runtime.Caller returns 4 values, only file is needed
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))

	return agar.Setup(filepath.Join(projectRoot, "bin", "assay"))
}

// storeNextTo keeps each test's database beside its fixture so cases never share a cache.
func storeNextTo(file string) string {
	return filepath.Join(filepath.Dir(file), "assay.db")
}

// auditArgs isolates the store and disables the arbiter.
func auditArgs(file string, extra ...string) []string {
	args := []string{"--store", storeNextTo(file), "--llm-endpoint", "", "audit"}
	args = append(args, extra...)

	return append(args, file)
}

func expectContains(substr string) test.Comparator {
	return func(stdout string, testing tig.T) {
		testing.Helper()

		if !strings.Contains(stdout, substr) {
			testing.Log(fmt.Sprintf("expected substring %q not found in output:\n%s", substr, stdout))
			testing.Fail()
		}
	}
}

// expectVerdict accepts any of the given verdicts.
func expectVerdict(verdicts ...string) test.Comparator {
	return func(stdout string, testing tig.T) {
		testing.Helper()

		for _, verdict := range verdicts {
			if strings.Contains(stdout, verdict) {
				return
			}
		}

		testing.Log(fmt.Sprintf("expected one of %v in output:\n%s", verdicts, stdout))
		testing.Fail()
	}
}
