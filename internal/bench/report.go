package bench

import (
	"context"

	tt "github.com/gnolang/refine/internal/types"
)

// Report compares the running time of an original and an optimized program.
// A failed variant carries its error and a zero time; the other variant is
// still measured.
type Report struct {
	OriginalTime  float64
	OptimizedTime float64
	OriginalErr   error
	OptimizedErr  error
}

// OK reports whether both variants ran.
func (r Report) OK() bool {
	return r.OriginalErr == nil && r.OptimizedErr == nil
}

// PercentGain of the report, 0 unless both variants ran.
func (r Report) PercentGain() float64 {
	if !r.OK() {
		return 0
	}
	return PercentGain(r.OriginalTime, r.OptimizedTime)
}

// Compare measures original and optimized independently.
func (r *Runner) Compare(ctx context.Context, original, optimized string, lang tt.Language) Report {
	var rep Report
	rep.OriginalTime, rep.OriginalErr = r.Measure(ctx, original, lang)
	rep.OptimizedTime, rep.OptimizedErr = r.Measure(ctx, optimized, lang)
	return rep
}

// PercentGain returns (orig-opt)/orig*100, or 0 when orig is not positive.
func PercentGain(orig, opt float64) float64 {
	if orig <= 0 {
		return 0
	}
	return (orig - opt) / orig * 100
}
