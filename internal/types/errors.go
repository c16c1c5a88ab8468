package types

import "errors"

var (
	// ErrInputNotFound is returned when the source file does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrUnsupportedLanguage is returned for language tags other than Python and C.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrExecutionFailure is returned when a benchmarked program fails to build or run.
	ErrExecutionFailure = errors.New("execution failure")
)
