package types

import (
	"fmt"
	"strings"
)

// Language identifies the source language of a program.
type Language int

const (
	LanguagePython Language = iota
	LanguageC
)

func (l Language) String() string {
	switch l {
	case LanguagePython:
		return "Python"
	case LanguageC:
		return "C"
	default:
		return fmt.Sprintf("Language(%d)", int(l))
	}
}

// Ext returns the file extension used for programs of the language.
func (l Language) Ext() string {
	if l == LanguageC {
		return ".c"
	}
	return ".py"
}

// ParseLanguage converts a language tag into a Language.
// Matching is case-insensitive; "py" is accepted as an alias of Python.
func ParseLanguage(tag string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "python", "py":
		return LanguagePython, nil
	case "c":
		return LanguageC, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, tag)
}

// LanguageFromExt guesses the language from a file extension.
func LanguageFromExt(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".py":
		return LanguagePython, true
	case ".c", ".h":
		return LanguageC, true
	}
	return 0, false
}

// MarshalYAML implements yaml.Marshaler.
func (l Language) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for a scalar tag.
func (l *Language) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var tag string
	if err := unmarshal(&tag); err != nil {
		return err
	}
	parsed, err := ParseLanguage(tag)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// TransformationID indexes an entry of the transformation catalog.
// It doubles as the action index of the policy.
type TransformationID int

// Transition is one recorded step of an optimization session.
type Transition struct {
	State     []float64
	Action    TransformationID
	Reward    float64
	NextState []float64
	Terminal  bool
}

// Clone returns a deep copy of the transition.
func (t Transition) Clone() Transition {
	c := t
	c.State = append([]float64(nil), t.State...)
	c.NextState = append([]float64(nil), t.NextState...)
	return c
}
