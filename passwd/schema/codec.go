package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m-217/passwdctl/passwd/common"
)

const (
	fieldSeparator = ":"
	listSeparator  = ","
)

// ParseLine parses one line of a database file. Blank lines, comments and
// lines without an identity value yield a nil record and no error.
func ParseLine(class ObjectClass, s *Schema, line string) (*Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, nil
	}
	return Parse(class, s, strings.Split(line, fieldSeparator))
}

// Parse builds a record from the fields of one line. Secret fields and empty
// values are skipped, and wide integers equal to zero are treated as absent.
func Parse(class ObjectClass, s *Schema, fields []string) (*Record, error) {
	r := NewRecord(class)

	for _, f := range s.Fields {
		if len(fields) <= f.Offset || f.IsSecret() {
			continue
		}
		raw := strings.TrimSpace(fields[f.Offset])
		if raw == "" {
			continue
		}

		var values []any
		if f.Has(MultiValued) {
			for _, part := range strings.Split(raw, listSeparator) {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				v, err := coerce(f, part)
				if err != nil {
					return nil, err
				}
				if v != nil {
					values = append(values, v)
				}
			}
		} else {
			v, err := coerce(f, raw)
			if err != nil {
				return nil, err
			}
			if v != nil {
				values = append(values, v)
			}
		}

		if len(values) > 0 {
			r.Set(f.Name, values...)
		}
	}

	if r.Name() == "" {
		return nil, nil
	}
	return r, nil
}

func coerce(f Field, raw string) (any, error) {
	switch f.Type {
	case Integer:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", common.ErrInvalidArgument, f.Name, err)
		}
		return n, nil
	case WideInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", common.ErrInvalidArgument, f.Name, err)
		}
		if n == 0 {
			return nil, nil
		}
		return n, nil
	default:
		return raw, nil
	}
}

// EscapeValue formats v for use in a command argument. Field and list
// separators are replaced with underscores.
func EscapeValue(v any) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, listSeparator, "_")
	return strings.ReplaceAll(s, fieldSeparator, "_")
}

// JoinValues escapes values and joins them with commas.
func JoinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = EscapeValue(v)
	}
	return strings.Join(parts, listSeparator)
}

// Switches serializes attributes to command switches. Every attribute in
// replace becomes its switch followed by the joined values, every name in
// remove becomes its switch followed by an empty argument. The secret field is
// skipped. Unknown names are rejected.
func Switches(s *Schema, replace []Attribute, remove []string) ([]string, error) {
	var args []string

	for _, a := range replace {
		if f, ok := s.Field(a.Name); ok && f.IsSecret() {
			continue
		}
		sw, ok := s.Switch(a.Name)
		if !ok {
			return nil, fmt.Errorf("%w: invalid attribute %s", common.ErrInvalidArgument, a.Name)
		}
		args = append(args, sw, JoinValues(a.Values))
	}

	for _, name := range remove {
		if f, ok := s.Field(name); ok && f.IsSecret() {
			continue
		}
		sw, ok := s.Switch(name)
		if !ok {
			return nil, fmt.Errorf("%w: invalid attribute %s", common.ErrInvalidArgument, name)
		}
		args = append(args, sw, "")
	}

	return args, nil
}

// Index keys records by the first value of key.
func Index(records []*Record, key string) map[string]*Record {
	m := make(map[string]*Record, len(records))
	for _, r := range records {
		if v, ok := r.First(key); ok {
			m[fmt.Sprint(v)] = r
		}
	}
	return m
}

// Merge returns primary extended with every attribute of its match in lookup
// that primary does not have. Values present in primary always win. Without
// a match primary is returned as is.
func Merge(primary *Record, lookup map[string]*Record, key string) *Record {
	if primary == nil {
		return nil
	}
	v, ok := primary.First(key)
	if !ok {
		return primary
	}
	secondary, ok := lookup[fmt.Sprint(v)]
	if !ok || secondary == nil {
		return primary
	}

	merged := primary.clone()
	for _, a := range secondary.Attributes() {
		if !merged.Has(a.Name) {
			merged.Set(a.Name, append([]any(nil), a.Values...)...)
		}
	}
	return merged
}

// Value converts raw text to the value type of the named field. Unknown
// names are returned as text.
func (s *Schema) Value(name, raw string) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return raw, nil
	}
	switch f.Type {
	case Integer:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", common.ErrInvalidArgument, name, err)
		}
		return n, nil
	case WideInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", common.ErrInvalidArgument, name, err)
		}
		return n, nil
	default:
		return raw, nil
	}
}
