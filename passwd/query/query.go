// Package query evaluates match predicates against parsed records.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m-217/passwdctl/passwd/schema"
)

// Filter decides whether a record matches.
type Filter interface {
	Matches(r *schema.Record) bool
	String() string
}

// Query wraps the filter passed in by a caller. A nil Query or a Query
// without filter matches every record.
type Query struct {
	Filter Filter
}

// New returns a Query for f.
func New(f Filter) *Query {
	return &Query{Filter: f}
}

func (q *Query) Matches(r *schema.Record) bool {
	if r == nil {
		return false
	}
	if q == nil || q.Filter == nil {
		return true
	}
	return q.Filter.Matches(r)
}

func (q *Query) String() string {
	if q == nil || q.Filter == nil {
		return "ALL"
	}
	return q.Filter.String()
}

// values returns the values of attr, resolving the unique id to the name.
func values(r *schema.Record, attr string) []any {
	if attr == schema.AttrUID {
		if name := r.UID(); name != "" {
			return []any{name}
		}
		return nil
	}
	return r.Get(attr)
}

type stringMatch struct {
	attr  string
	value string
	op    string
	fn    func(have, want string) bool
}

func (m stringMatch) Matches(r *schema.Record) bool {
	for _, v := range values(r, m.attr) {
		if m.fn(fmt.Sprint(v), m.value) {
			return true
		}
	}
	return false
}

func (m stringMatch) String() string {
	return m.attr + m.op + m.value
}

// Equal matches when any value of attr equals value. Values are compared in
// their text form, so "1001" matches the integer 1001.
func Equal(attr string, value any) Filter {
	return stringMatch{attr: attr, value: fmt.Sprint(value), op: "=", fn: func(h, w string) bool { return h == w }}
}

func StartsWith(attr, prefix string) Filter {
	return stringMatch{attr: attr, value: prefix, op: "^=", fn: strings.HasPrefix}
}

func EndsWith(attr, suffix string) Filter {
	return stringMatch{attr: attr, value: suffix, op: "$=", fn: strings.HasSuffix}
}

func Contains(attr, substr string) Filter {
	return stringMatch{attr: attr, value: substr, op: "*=", fn: strings.Contains}
}

type numericMatch struct {
	attr  string
	value int64
	op    string
}

func (m numericMatch) Matches(r *schema.Record) bool {
	for _, v := range values(r, m.attr) {
		n, ok := toInt64(v)
		if !ok {
			continue
		}
		if (m.op == ">" && n > m.value) || (m.op == "<" && n < m.value) {
			return true
		}
	}
	return false
}

func (m numericMatch) String() string {
	return m.attr + m.op + strconv.FormatInt(m.value, 10)
}

// GreaterThan matches when any numeric value of attr is greater than n.
func GreaterThan(attr string, n int64) Filter {
	return numericMatch{attr: attr, value: n, op: ">"}
}

// LessThan matches when any numeric value of attr is less than n.
func LessThan(attr string, n int64) Filter {
	return numericMatch{attr: attr, value: n, op: "<"}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

type and []Filter

func (a and) Matches(r *schema.Record) bool {
	for _, f := range a {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}

func (a and) String() string {
	return join(a, " AND ")
}

type or []Filter

func (o or) Matches(r *schema.Record) bool {
	for _, f := range o {
		if f.Matches(r) {
			return true
		}
	}
	return false
}

func (o or) String() string {
	return join(o, " OR ")
}

func join(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// And matches when all filters match. An empty And matches everything.
func And(filters ...Filter) Filter {
	return and(filters)
}

// Or matches when any filter matches. An empty Or matches nothing.
func Or(filters ...Filter) Filter {
	return or(filters)
}

type not struct {
	f Filter
}

func (n not) Matches(r *schema.Record) bool {
	return !n.f.Matches(r)
}

func (n not) String() string {
	return "NOT " + n.f.String()
}

func Not(f Filter) Filter {
	return not{f: f}
}

type all struct{}

func (all) Matches(*schema.Record) bool { return true }
func (all) String() string              { return "ALL" }

// All matches every record.
func All() Filter {
	return all{}
}
