// Package schema describes the colon-delimited record layouts of the account
// and group databases and converts between their lines, structured records
// and pw(8) command switches.
package schema

import "fmt"

// Attribute names shared with the identity framework.
const (
	AttrName                   = "__NAME__"
	AttrUID                    = "__UID__"
	AttrPassword               = "__PASSWORD__"
	AttrDisableDate            = "__DISABLE_DATE__"
	AttrPasswordExpirationDate = "__PASSWORD_EXPIRATION_DATE__"

	AttrMembers = "members"
)

// Type is the value type of a field.
type Type int

const (
	Text Type = iota
	Integer
	// WideInteger holds dates and periods. Zero means "not set".
	WideInteger
	Secret
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "int"
	case WideInteger:
		return "int64"
	case Secret:
		return "secret"
	default:
		return "string"
	}
}

// Flag marks field properties.
type Flag uint8

const (
	Required Flag = 1 << iota
	MultiValued
	Sensitive
)

// Field describes one position of a delimited record.
type Field struct {
	Name       string
	NativeName string
	Type       Type
	Offset     int
	Flags      Flag
}

func (f Field) Has(flag Flag) bool {
	return f.Flags&flag != 0
}

// IsSecret reports whether the field carries a credential. Such fields are
// never parsed and never emitted as a switch.
func (f Field) IsSecret() bool {
	return f.Type == Secret || f.Has(Sensitive)
}

// Kind identifies a record layout.
type Kind int

const (
	KindMaster Kind = iota
	KindPasswd
	KindShadow
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master.passwd"
	case KindPasswd:
		return "passwd"
	case KindShadow:
		return "shadow"
	case KindGroup:
		return "group"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Schema is the ordered field table of one layout, with the pw(8) switch of
// every field that can be written. Schemas are shared and must not be modified.
type Schema struct {
	Kind     Kind
	Fields   []Field
	switches map[string]string
}

// Field looks up a field by attribute name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Switch returns the command switch for an attribute name.
func (s *Schema) Switch(name string) (string, bool) {
	sw, ok := s.switches[name]
	return sw, ok
}

// Identity returns the naming field.
func (s *Schema) Identity() Field {
	f, _ := s.Field(AttrName)
	return f
}

// MaxOffset is the highest offset used by the layout.
func (s *Schema) MaxOffset() int {
	highest := 0
	for _, f := range s.Fields {
		if f.Offset > highest {
			highest = f.Offset
		}
	}
	return highest
}

var schemas = [...]*Schema{
	KindMaster: {
		Kind: KindMaster,
		Fields: []Field{
			{Name: AttrName, NativeName: "loginName", Type: Text, Offset: 0, Flags: Required},
			{Name: AttrPassword, NativeName: "password", Type: Secret, Offset: 1, Flags: Sensitive},
			{Name: "uid", Type: Text, Offset: 2, Flags: Required},
			{Name: "gid", Type: Integer, Offset: 3, Flags: Required},
			{Name: "loginClass", Type: Text, Offset: 4},
			{Name: AttrPasswordExpirationDate, NativeName: "passwordExpirationTime", Type: WideInteger, Offset: 5},
			{Name: AttrDisableDate, NativeName: "accountExpirationTime", Type: WideInteger, Offset: 6},
			{Name: "comment", Type: Text, Offset: 7},
			{Name: "homeDirectory", Type: Text, Offset: 8},
			{Name: "loginShell", Type: Text, Offset: 9},
		},
		switches: map[string]string{
			AttrName:                   "-n",
			AttrDisableDate:            "-e",
			"comment":                  "-c",
			"gid":                      "-g",
			"homeDirectory":            "-d",
			"loginClass":               "-L",
			"loginShell":               "-s",
			AttrPasswordExpirationDate: "-p",
			"uid":                      "-u",
		},
	},
	KindPasswd: {
		Kind: KindPasswd,
		Fields: []Field{
			{Name: AttrName, NativeName: "loginName", Type: Text, Offset: 0, Flags: Required},
			{Name: AttrPassword, NativeName: "password", Type: Secret, Offset: 1, Flags: Sensitive},
			{Name: "uid", Type: Text, Offset: 2, Flags: Required},
			{Name: "gid", Type: Integer, Offset: 3, Flags: Required},
			{Name: "comment", Type: Text, Offset: 4},
			{Name: "homeDirectory", Type: Text, Offset: 5},
			{Name: "loginShell", Type: Text, Offset: 6},
		},
	},
	KindShadow: {
		Kind: KindShadow,
		Fields: []Field{
			{Name: AttrName, NativeName: "loginName", Type: Text, Offset: 0, Flags: Required},
			{Name: AttrPassword, NativeName: "password", Type: Secret, Offset: 1, Flags: Sensitive},
			{Name: "lastPasswordChange", Type: WideInteger, Offset: 2},
			{Name: "minimumPasswordAge", Type: WideInteger, Offset: 3},
			{Name: "maximumPasswordAge", Type: WideInteger, Offset: 4},
			{Name: "passwordWarningPeriod", Type: WideInteger, Offset: 5},
			{Name: "passwordInactivityPeriod", Type: WideInteger, Offset: 6},
			{Name: AttrDisableDate, NativeName: "accountExpirationTime", Type: WideInteger, Offset: 7},
		},
	},
	KindGroup: {
		Kind: KindGroup,
		Fields: []Field{
			{Name: AttrName, NativeName: "groupName", Type: Text, Offset: 0, Flags: Required},
			{Name: AttrPassword, NativeName: "password", Type: Secret, Offset: 1, Flags: Sensitive},
			{Name: "gid", Type: Text, Offset: 2, Flags: Required},
			{Name: AttrMembers, Type: Text, Offset: 3, Flags: MultiValued},
		},
		switches: map[string]string{
			AttrName:    "-n",
			"gid":       "-g",
			AttrMembers: "-M",
		},
	},
}

// Get returns the schema of a layout.
func Get(kind Kind) *Schema {
	if kind < 0 || int(kind) >= len(schemas) {
		panic(fmt.Sprintf("schema: unknown kind %d", int(kind)))
	}
	return schemas[kind]
}
