package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m-217/passwdctl/passwd/common"
)

// Parse reads a filter expression: comma separated terms, all of which must
// match. A term is attr=value, attr!=value, attr^=prefix, attr$=suffix,
// attr*=substring, attr>n or attr<n. A comma inside a value is written as \,.
// An empty expression matches everything.
func Parse(expr string) (*Query, error) {
	terms := splitTerms(expr)
	if len(terms) == 0 {
		return New(nil), nil
	}

	filters := make([]Filter, 0, len(terms))
	for _, term := range terms {
		f, err := parseTerm(term)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	if len(filters) == 1 {
		return New(filters[0]), nil
	}
	return New(And(filters...)), nil
}

func splitTerms(expr string) []string {
	var terms []string
	var cur strings.Builder

	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			terms = append(terms, t)
		}
		cur.Reset()
	}

	for i := 0; i < len(expr); i++ {
		switch {
		case expr[i] == '\\' && i+1 < len(expr) && expr[i+1] == ',':
			cur.WriteByte(',')
			i++
		case expr[i] == ',':
			flush()
		default:
			cur.WriteByte(expr[i])
		}
	}
	flush()
	return terms
}

func parseTerm(term string) (Filter, error) {
	i := strings.IndexAny(term, "=<>")
	if i < 0 {
		return nil, fmt.Errorf("%w: filter term %q has no operator", common.ErrInvalidArgument, term)
	}

	op := string(term[i])
	attrEnd := i
	if term[i] == '=' && i > 0 && strings.ContainsRune("!^$*", rune(term[i-1])) {
		op = term[i-1 : i+1]
		attrEnd = i - 1
	}

	attr := strings.TrimSpace(term[:attrEnd])
	value := strings.TrimSpace(term[i+1:])
	if attr == "" {
		return nil, fmt.Errorf("%w: filter term %q has no attribute", common.ErrInvalidArgument, term)
	}

	switch op {
	case "=":
		return Equal(attr, value), nil
	case "!=":
		return Not(Equal(attr, value)), nil
	case "^=":
		return StartsWith(attr, value), nil
	case "$=":
		return EndsWith(attr, value), nil
	case "*=":
		return Contains(attr, value), nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: filter term %q needs a number", common.ErrInvalidArgument, term)
	}
	if op == ">" {
		return GreaterThan(attr, n), nil
	}
	return LessThan(attr, n), nil
}
