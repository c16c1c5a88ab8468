// Package catalog holds the closed set of rewrite rules the policy chooses from.
//
// The catalog's size is the policy's action-space size. A TransformationID is
// the index of a rule in the catalog: built-in rules occupy the first ids in a
// fixed order, custom rules follow in configuration order.
package catalog

import (
	"fmt"

	tt "github.com/gnolang/refine/internal/types"
)

// Catalog is an immutable, indexed set of rules bound to one language.
// Rules written for another language stay in the action space but never fire.
type Catalog struct {
	lang  tt.Language
	rules []Rule
	index map[string]tt.TransformationID
}

// New builds a catalog of the built-in rules followed by custom.
func New(lang tt.Language, custom ...Rule) (*Catalog, error) {
	c := &Catalog{
		lang:  lang,
		rules: make([]Rule, 0, int(numBuiltin)+len(custom)),
		index: make(map[string]tt.TransformationID, int(numBuiltin)+len(custom)),
	}
	for _, r := range Builtin() {
		if err := c.add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range custom {
		if v, ok := r.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("invalid custom rule: %w", err)
			}
		}
		if err := c.add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(r Rule) error {
	if _, dup := c.index[r.Name()]; dup {
		return fmt.Errorf("duplicate rule name %q", r.Name())
	}
	c.index[r.Name()] = tt.TransformationID(len(c.rules))
	c.rules = append(c.rules, r)
	return nil
}

// Language returns the language the catalog is bound to.
func (c *Catalog) Language() tt.Language { return c.lang }

// Len returns the number of actions.
func (c *Catalog) Len() int { return len(c.rules) }

// Valid reports whether id names a catalog entry.
func (c *Catalog) Valid(id tt.TransformationID) bool {
	return id >= 0 && int(id) < len(c.rules)
}

// Name returns the rule name for id, or "" when id is out of range.
func (c *Catalog) Name(id tt.TransformationID) string {
	if !c.Valid(id) {
		return ""
	}
	return c.rules[id].Name()
}

// Lookup returns the id of the rule with the given name.
func (c *Catalog) Lookup(name string) (tt.TransformationID, bool) {
	id, ok := c.index[name]
	return id, ok
}

// Rules returns the rules in id order.
func (c *Catalog) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Active reports whether rule id can fire for the catalog's language.
func (c *Catalog) Active(id tt.TransformationID) bool {
	return c.Valid(id) && c.rules[id].Language() == c.lang
}

// Matches reports whether the precondition of rule id holds for code.
func (c *Catalog) Matches(id tt.TransformationID, code string) bool {
	return c.Active(id) && c.rules[id].Matches(code)
}

// Apply runs rule id on code. applied is true iff the precondition held and
// the text changed; otherwise code is returned unchanged.
func (c *Catalog) Apply(id tt.TransformationID, code string) (newCode string, applied bool) {
	if !c.Active(id) {
		return code, false
	}
	out, changed := c.rules[id].Rewrite(code)
	if !changed || out == code {
		return code, false
	}
	return out, true
}
