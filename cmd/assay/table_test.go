package main

import (
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("no headers must render nothing")
	}

	out := renderTable(
		[]string{"Verdict", "Files"},
		[][]string{{"CLEAN", "12"}, {"CORRUPT"}},
		[]columnAlignment{alignLeft, alignRight},
	)

	for _, want := range []string{"Verdict", "Files", "CLEAN", "12", "CORRUPT"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}
