package stage

import (
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/flarebyte/apk-forge/internal/snapshot"
)

const explainMaxBytes = 256 * 1024

// explainChange renders a unified diff between the snapshot copy and the
// modified source. Byte-identical files yield a one-line note instead.
func explainChange(ch snapshot.Change) string {
	a, errA := os.ReadFile(ch.Old.Path)
	b, errB := os.ReadFile(ch.New.Path)
	if errA != nil || errB != nil {
		return ""
	}
	if len(a)+len(b) > explainMaxBytes {
		return ch.New.Identity + ": diff omitted (too large)"
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: "snapshot/" + ch.Old.RelPath,
		ToFile:   ch.New.Path,
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	if s == "" {
		return ch.New.Identity + ": timestamp changed, content identical"
	}
	return strings.TrimRight(s, "\n")
}

func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
