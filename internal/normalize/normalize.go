// Package normalize prepares raw source text for the optimizer by removing
// comments and canonicalizing whitespace. The decision engine assumes its
// input has already been through this stage.
package normalize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	tt "github.com/gnolang/refine/internal/types"
)

const tabWidth = 4

var (
	pythonComment  = regexp.MustCompile(`#.*`)
	cLineComment   = regexp.MustCompile(`//.*`)
	cBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingBlanks = regexp.MustCompile(`(?m)[ \t]+$`)
	blankLineRuns  = regexp.MustCompile(`\n\n+`)
)

// RemoveComments strips comments for the given language.
// Python loses everything after '#'; C loses both // and /* */ comments.
func RemoveComments(code string, lang tt.Language) string {
	if lang == tt.LanguagePython {
		return pythonComment.ReplaceAllString(code, "")
	}
	code = cLineComment.ReplaceAllString(code, "")
	return cBlockComment.ReplaceAllString(code, "")
}

// Spacing expands tabs, drops trailing blanks and collapses runs of blank lines.
func Spacing(code string) string {
	code = strings.ReplaceAll(code, "\t", strings.Repeat(" ", tabWidth))
	code = trailingBlanks.ReplaceAllString(code, "")
	return blankLineRuns.ReplaceAllString(code, "\n")
}

// Code runs the full normalization stage on in-memory source.
func Code(code string, lang tt.Language) string {
	return Spacing(RemoveComments(code, lang))
}

// Read loads a source file. A missing file is reported as ErrInputNotFound.
func Read(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", tt.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// File loads and normalizes a source file.
func File(path string, lang tt.Language) (string, error) {
	content, err := Read(path)
	if err != nil {
		return "", err
	}
	return Code(string(content), lang), nil
}
