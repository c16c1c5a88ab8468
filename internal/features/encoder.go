// Package features turns source text into the fixed-size state vector the
// policy consumes.
package features

import (
	"strings"

	"github.com/gnolang/refine/internal/catalog"
	tt "github.com/gnolang/refine/internal/types"
)

// Names of the structural features, in vector order. Rule flags follow.
var structural = []string{
	"size_kchars",
	"lines_hundreds",
	"for_loops",
	"max_indent_depth",
	"append_calls",
	"augmented_assignments",
	"membership_tests",
}

const indentUnit = 4

// Encoder is a pure function of source text. It holds only the catalog it
// reads rule preconditions from, which is immutable.
type Encoder struct {
	cat *catalog.Catalog
}

// New creates an encoder whose dimension is fixed by the catalog size.
func New(cat *catalog.Catalog) *Encoder {
	return &Encoder{cat: cat}
}

// Dim returns the length of every vector produced by Encode.
func (e *Encoder) Dim() int {
	return len(structural) + e.cat.Len()
}

// Names returns a label for every vector position.
func (e *Encoder) Names() []string {
	names := append([]string(nil), structural...)
	for id := 0; id < e.cat.Len(); id++ {
		names = append(names, "matches_"+e.cat.Name(tt.TransformationID(id)))
	}
	return names
}

// Encode maps code to a feature vector. Empty code yields the zero vector.
func (e *Encoder) Encode(code string) []float64 {
	vec := make([]float64, e.Dim())
	if code == "" {
		return vec
	}

	lines := strings.Split(code, "\n")
	vec[0] = float64(len(code)) / 1000
	vec[1] = float64(len(lines)) / 100

	var loops, depth, appends, augmented, membership int
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		if d := indentDepth(line); d > depth {
			depth = d
		}
		if strings.HasPrefix(trimmed, "for ") || strings.HasPrefix(trimmed, "for(") {
			loops++
		}
		appends += strings.Count(trimmed, ".append(")
		augmented += strings.Count(trimmed, "+=")
		if strings.HasPrefix(trimmed, "if ") && strings.Contains(trimmed, " in ") {
			membership++
		}
	}
	vec[2] = float64(loops)
	vec[3] = float64(depth)
	vec[4] = float64(appends)
	vec[5] = float64(augmented)
	vec[6] = float64(membership)

	base := len(structural)
	for id := 0; id < e.cat.Len(); id++ {
		if e.cat.Matches(tt.TransformationID(id), code) {
			vec[base+id] = 1
		}
	}
	return vec
}

func indentDepth(line string) int {
	width := 0
	for _, ch := range line {
		switch ch {
		case ' ':
			width++
		case '\t':
			width += indentUnit
		default:
			return width / indentUnit
		}
	}
	return width / indentUnit
}
