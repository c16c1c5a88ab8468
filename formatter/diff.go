package formatter

import "strings"

// Hunk is the single changed region between two versions of a program.
// Start is the 1-based first line of the region in both versions.
type Hunk struct {
	Start   int
	Removed []string
	Added   []string
}

func (h Hunk) empty() bool { return len(h.Removed) == 0 && len(h.Added) == 0 }

func (h Hunk) lastLine() int {
	n := len(h.Removed)
	if len(h.Added) > n {
		n = len(h.Added)
	}
	if n == 0 {
		return h.Start
	}
	return h.Start + n - 1
}

// diffLines trims the common leading and trailing lines of before and after
// and returns what remains. Rewrites are local, so one hunk is enough to
// show them.
func diffLines(before, after string) Hunk {
	if before == after {
		return Hunk{}
	}
	a := strings.Split(before, "\n")
	b := strings.Split(after, "\n")

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	return Hunk{
		Start:   prefix + 1,
		Removed: a[prefix : len(a)-suffix],
		Added:   b[prefix : len(b)-suffix],
	}
}
