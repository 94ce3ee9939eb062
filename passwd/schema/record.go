package schema

import (
	"fmt"
	"strings"

	"github.com/m-217/passwdctl/passwd/common"
)

// ObjectClass selects accounts or groups.
type ObjectClass string

const (
	Account ObjectClass = "__ACCOUNT__"
	Group   ObjectClass = "__GROUP__"
)

// ParseObjectClass accepts the framework names and the short forms
// "account", "user" and "group".
func ParseObjectClass(s string) (ObjectClass, error) {
	switch strings.ToLower(s) {
	case "__account__", "account", "user":
		return Account, nil
	case "__group__", "group":
		return Group, nil
	}
	return "", fmt.Errorf("%w: invalid object class %q", common.ErrInvalidArgument, s)
}

// Attribute is a named value set.
type Attribute struct {
	Name   string
	Values []any
}

// NewAttribute builds an Attribute from its values.
func NewAttribute(name string, values ...any) Attribute {
	return Attribute{Name: name, Values: values}
}

// First returns the first value or nil.
func (a Attribute) First() any {
	if len(a.Values) == 0 {
		return nil
	}
	return a.Values[0]
}

// Record is a structured attribute set reconstructed from one line.
type Record struct {
	Class ObjectClass

	names  []string
	values map[string][]any
}

func NewRecord(class ObjectClass) *Record {
	return &Record{Class: class, values: make(map[string][]any)}
}

// Set stores values under name, replacing earlier values.
func (r *Record) Set(name string, values ...any) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = values
}

func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Get returns the values of name.
func (r *Record) Get(name string) []any {
	return r.values[name]
}

// First returns the first value of name.
func (r *Record) First(name string) (any, bool) {
	v := r.values[name]
	if len(v) == 0 {
		return nil, false
	}
	return v[0], true
}

// Name returns the identity value.
func (r *Record) Name() string {
	v, ok := r.First(AttrName)
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// UID returns the unique identifier, which is the identity value.
func (r *Record) UID() string {
	return r.Name()
}

// Names returns attribute names in insertion order.
func (r *Record) Names() []string {
	return append([]string(nil), r.names...)
}

// Attributes returns all attributes in insertion order.
func (r *Record) Attributes() []Attribute {
	attrs := make([]Attribute, 0, len(r.names))
	for _, n := range r.names {
		attrs = append(attrs, Attribute{Name: n, Values: r.values[n]})
	}
	return attrs
}

// Map flattens the record for output: single values stay scalar, multivalued
// attributes become slices. The unique id is included.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.names)+1)
	for _, n := range r.names {
		v := r.values[n]
		if len(v) == 1 && n != AttrMembers {
			m[n] = v[0]
		} else {
			m[n] = append([]any(nil), v...)
		}
	}
	if r.Has(AttrName) {
		m[AttrUID] = r.UID()
	}
	return m
}

func (r *Record) clone() *Record {
	c := NewRecord(r.Class)
	for _, n := range r.names {
		c.Set(n, append([]any(nil), r.values[n]...)...)
	}
	return c
}

// Delta describes how one attribute changes. Replace set to a non-nil slice
// replaces all values, an empty one clears the attribute. Otherwise Add and
// Remove are applied independently.
type Delta struct {
	Name    string
	Replace []any
	Add     []any
	Remove  []any
}

// ReplaceDelta builds a Delta that replaces all values.
func ReplaceDelta(name string, values ...any) Delta {
	if values == nil {
		values = []any{}
	}
	return Delta{Name: name, Replace: values}
}

// IsReplace reports whether the delta replaces the whole value set.
func (d Delta) IsReplace() bool {
	return d.Replace != nil
}

// Validate rejects deltas mixing replacement with add or remove.
func (d Delta) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: delta without attribute name", common.ErrInvalidArgument)
	}
	if d.IsReplace() && (len(d.Add) > 0 || len(d.Remove) > 0) {
		return fmt.Errorf("%w: attribute %s mixes replace with add/remove", common.ErrInvalidArgument, d.Name)
	}
	return nil
}

// Value returns the value a single-valued field is set to: the first value to
// add, else the first replacement value.
func (d Delta) Value() (any, bool) {
	if len(d.Add) > 0 {
		return d.Add[0], true
	}
	if len(d.Replace) > 0 {
		return d.Replace[0], true
	}
	return nil, false
}
