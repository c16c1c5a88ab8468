package formatter

import (
	"fmt"
	"strings"

	"github.com/gnolang/refine/internal/bench"
	"github.com/gnolang/refine/internal/catalog"
	tt "github.com/gnolang/refine/internal/types"
	"github.com/gnolang/refine/optimizer"
)

// GenerateFormattedBenchmark renders a timing comparison. A variant that
// failed shows its error instead of a time, and no gain is reported.
func GenerateFormattedBenchmark(rep bench.Report) string {
	var b strings.Builder
	b.WriteString(ruleStyle.Sprint("benchmark:\n"))
	b.WriteString(timing("original", rep.OriginalTime, rep.OriginalErr))
	b.WriteString(timing("optimized", rep.OptimizedTime, rep.OptimizedErr))
	if rep.OK() {
		gain := rep.PercentGain()
		style := suggestionStyle
		if gain < 0 {
			style = warningStyle
		}
		b.WriteString(lineStyle.Sprintf("  %-10s ", "gain:") + style.Sprintf("%.2f%%\n", gain))
	}
	return b.String()
}

func timing(label string, secs float64, err error) string {
	line := lineStyle.Sprintf("  %-10s ", label+":")
	if err != nil {
		return line + errorStyle.Sprint("error: ") + noStyle.Sprintf("%v\n", err)
	}
	return line + noStyle.Sprintf("%.4fs\n", secs)
}

// GenerateRuleList renders the catalog for lang, one rule per line with
// its id. Rules of another language are marked inactive.
func GenerateRuleList(cat *catalog.Catalog) string {
	var b strings.Builder
	width := calculateMaxLineNumWidth(cat.Len() - 1)
	for i, r := range cat.Rules() {
		id := tt.TransformationID(i)
		line := lineStyle.Sprintf("%*d ", width, i) + ruleStyle.Sprintf("%-32s ", r.Name()) + fileStyle.Sprintf("%-7s", r.Language())
		if !cat.Active(id) {
			line += noStyle.Sprint(" (inactive)")
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return b.String()
}

// GenerateSummary renders the totals of a directory run followed by one line
// per failed file.
func GenerateSummary(outcomes []*optimizer.Outcome, failures []optimizer.FileError) string {
	var optimized, cached int
	for _, out := range outcomes {
		if out.Cached {
			cached++
		}
		if len(out.Applied) > 0 {
			optimized++
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d files: ", len(outcomes)+len(failures)))
	b.WriteString(suggestionStyle.Sprintf("%d optimized", optimized))
	b.WriteString(noStyle.Sprintf(", %d cached, ", cached))
	if len(failures) > 0 {
		b.WriteString(errorStyle.Sprintf("%d failed", len(failures)))
	} else {
		b.WriteString(noStyle.Sprint("0 failed"))
	}
	b.WriteString("\n")
	for _, f := range failures {
		b.WriteString(errorStyle.Sprint("error: ") + fileStyle.Sprint(f.Path) + noStyle.Sprintf(": %v\n", f.Err))
	}
	return b.String()
}
