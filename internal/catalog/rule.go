package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	tt "github.com/gnolang/refine/internal/types"
)

// Rule is a single precondition/rewrite pair.
//
// Rewrite must be a no-op returning (code, false) whenever Matches is false,
// and must never produce a partial rewrite.
type Rule interface {
	// Name returns the stable name of the rule, reported in results.
	Name() string

	// Language returns the language the rule applies to.
	Language() tt.Language

	// Matches reports whether the precondition holds for code.
	Matches(code string) bool

	// Rewrite applies the rule, reporting whether the text changed.
	Rewrite(code string) (string, bool)
}

// LiteralRule matches exact text. Every guard must occur in the input and no
// forbidden text may occur in it.
//
// A statement rule matches whole lines. The match may sit at any indentation
// as long as all of its lines share it, and the line after it must not be
// indented deeper, which would mean the matched block continues. The
// replacement is re-indented to the same level. A statement rule with an
// empty replacement deletes the lines, unless they are the only statement of
// their block.
//
// An Inline rule matches an expression on identifier boundaries. Every
// occurrence is replaced.
type LiteralRule struct {
	RuleName string      `yaml:"name"`
	Lang     tt.Language `yaml:"language"`
	Guards   []string    `yaml:"guards,omitempty"`
	Forbid   []string    `yaml:"forbid,omitempty"`
	Match    string      `yaml:"match"`
	Replace  string      `yaml:"replace"`
	Inline   bool        `yaml:"inline,omitempty"`
}

var _ Rule = (*LiteralRule)(nil)

func (r *LiteralRule) Name() string          { return r.RuleName }
func (r *LiteralRule) Language() tt.Language { return r.Lang }

func (r *LiteralRule) Matches(code string) bool {
	_, ok := r.Rewrite(code)
	return ok
}

func (r *LiteralRule) Rewrite(code string) (string, bool) {
	if !r.admits(code) {
		return code, false
	}

	var out string
	if r.Inline {
		out = r.rewriteInline(code)
	} else {
		out = r.rewriteStatements(code)
	}
	if out == code {
		return code, false
	}
	return out, true
}

func (r *LiteralRule) admits(code string) bool {
	if strings.TrimSpace(r.Match) == "" {
		return false
	}
	for _, g := range r.Guards {
		if !strings.Contains(code, g) {
			return false
		}
	}
	for _, f := range r.Forbid {
		if strings.Contains(code, f) {
			return false
		}
	}
	return true
}

func (r *LiteralRule) rewriteStatements(code string) string {
	pattern := dedent(r.Match)
	replacement := dedent(r.Replace)
	removal := len(replacement) == 0

	lines := strings.Split(code, "\n")
	for i := 0; i+len(pattern) <= len(lines); {
		indent := leadingSpace(lines[i])
		if !linesMatch(lines[i:i+len(pattern)], pattern, indent) || !fitsBlock(lines, i, len(pattern), len(indent), removal) {
			i++
			continue
		}

		block := make([]string, len(replacement))
		for j, l := range replacement {
			if l != "" {
				block[j] = indent + l
			}
		}
		lines = slices.Replace(lines, i, i+len(pattern), block...)
		i += len(block)
	}
	return strings.Join(lines, "\n")
}

func linesMatch(lines, pattern []string, indent string) bool {
	for j, p := range pattern {
		if p == "" {
			if strings.TrimSpace(lines[j]) != "" {
				return false
			}
			continue
		}
		if lines[j] != indent+p {
			return false
		}
	}
	return true
}

// fitsBlock reports whether lines[at:at+n], indented by width, form complete
// statements of their enclosing block.
func fitsBlock(lines []string, at, n, width int, removal bool) bool {
	next, hasNext := indentOf(lines, at+n, 1)
	if hasNext && next > width {
		return false
	}
	if !removal || width == 0 {
		return true
	}
	prev, hasPrev := indentOf(lines, at-1, -1)
	first := !hasPrev || prev < width
	last := !hasNext || next < width
	return !(first && last)
}

// indentOf returns the indentation width of the first non-blank line found
// walking from lines[from] in direction step.
func indentOf(lines []string, from, step int) (int, bool) {
	for i := from; i >= 0 && i < len(lines); i += step {
		if strings.TrimSpace(lines[i]) != "" {
			return len(leadingSpace(lines[i])), true
		}
	}
	return 0, false
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// dedent splits text into lines relative to the indentation of its first line.
// Surrounding newlines are ignored; empty text yields no lines.
func dedent(text string) []string {
	text = strings.Trim(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	base := leadingSpace(lines[0])
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, base)
	}
	return lines
}

func (r *LiteralRule) rewriteInline(code string) string {
	offsets := r.occurrences(code)
	if len(offsets) == 0 {
		return code
	}

	var sb strings.Builder
	prev := 0
	for _, start := range offsets {
		sb.WriteString(code[prev:start])
		sb.WriteString(r.Replace)
		prev = start + len(r.Match)
	}
	sb.WriteString(code[prev:])
	return sb.String()
}

// occurrences returns the non-overlapping offsets of Match that sit on
// identifier boundaries.
func (r *LiteralRule) occurrences(code string) []int {
	var offsets []int
	for from := 0; from+len(r.Match) <= len(code); {
		i := strings.Index(code[from:], r.Match)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(r.Match)
		if r.boundaryBefore(code, start) && r.boundaryAfter(code, end) {
			offsets = append(offsets, start)
			from = end
			continue
		}
		from = start + 1
	}
	return offsets
}

func (r *LiteralRule) boundaryBefore(code string, pos int) bool {
	return pos == 0 || !isIdentByte(code[pos-1]) || !isIdentByte(r.Match[0])
}

func (r *LiteralRule) boundaryAfter(code string, pos int) bool {
	return pos == len(code) || !isIdentByte(code[pos]) || !isIdentByte(r.Match[len(r.Match)-1])
}

func isIdentByte(b byte) bool {
	return b == '_' || '0' <= b && b <= '9' || 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}

// Validate checks that a rule is usable.
func (r *LiteralRule) Validate() error {
	switch {
	case strings.TrimSpace(r.RuleName) == "":
		return errors.New("rule name is empty")
	case strings.TrimSpace(r.Match) == "":
		return fmt.Errorf("rule %q: match is empty", r.RuleName)
	case r.Match == r.Replace:
		return fmt.Errorf("rule %q: match and replace are identical", r.RuleName)
	}
	return nil
}
