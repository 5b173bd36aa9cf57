// Package include builds the lookup table a running script uses to turn
// include(name, version) calls into package directories.
//
// The table is closed: it holds exactly the resolved declarations of one
// script, and asking for anything else is an error rather than a fallback
// to some other installed version.
package include

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/resolve"
)

// Key returns the table key for a declaration. An empty constraint is
// normalized to "latest", the same way declarations are.
func Key(name, constraint string) string {
	if constraint == "" {
		constraint = declare.Latest
	}
	return name + "@" + constraint
}

// Table maps declaration keys to slot directories.
type Table struct {
	file    string
	entries map[string]string
}

// Build creates a table with one entry per dependency. It fails if any
// dependency lacks a path, so a table is either complete or absent.
func Build(deps []resolve.Dependency) (*Table, error) {
	t := &Table{entries: make(map[string]string, len(deps))}
	for _, d := range deps {
		if d.Path == "" {
			return nil, errs.New(errs.ErrCodeInternal, "dependency %s has no installed path", Key(d.Name, d.Constraint))
		}
		t.entries[Key(d.Name, d.Constraint)] = d.Path
	}
	return t, nil
}

// WithFile returns t labelled with the script it belongs to, for error
// messages.
func (t *Table) WithFile(file string) *Table {
	t.file = file
	return t
}

// Lookup returns the directory for include(name, constraint).
func (t *Table) Lookup(name, constraint string) (string, error) {
	key := Key(name, constraint)
	if p, ok := t.entries[key]; ok {
		return p, nil
	}
	if t.file != "" {
		return "", errs.New(errs.ErrCodeNotDeclared, "include(%q) was not declared in %s", key, t.file)
	}
	return "", errs.New(errs.ErrCodeNotDeclared, "include(%q) was not declared", key)
}

// Resolver returns Lookup as a function value, the shape script hosts bind
// to the include global.
func (t *Table) Resolver() func(name, constraint string) (string, error) {
	return t.Lookup
}

// Check verifies that every site has an entry.
func (t *Table) Check(sites []declare.Site) error {
	for _, s := range sites {
		if _, ok := t.entries[s.Spec()]; !ok {
			return &declare.DeclarationError{
				File:     t.file,
				Line:     s.Line,
				Column:   s.Column,
				Variable: s.Variable,
				Reason:   "include(\"" + s.Spec() + "\") has no resolved package",
			}
		}
	}
	return nil
}

// Keys returns the table keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// MarshalJSON encodes the table as a JSON object with sorted keys.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.entries[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
