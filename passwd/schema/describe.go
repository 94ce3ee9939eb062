package schema

// AttributeInfo describes one attribute of an object class.
type AttributeInfo struct {
	Name              string `json:"name" yaml:"name"`
	NativeName        string `json:"nativeName,omitempty" yaml:"nativeName,omitempty"`
	Type              string `json:"type" yaml:"type"`
	Required          bool   `json:"required" yaml:"required"`
	MultiValued       bool   `json:"multiValued" yaml:"multiValued"`
	Readable          bool   `json:"readable" yaml:"readable"`
	ReturnedByDefault bool   `json:"returnedByDefault" yaml:"returnedByDefault"`
}

// ObjectClassInfo lists the attributes of an object class.
type ObjectClassInfo struct {
	Class      ObjectClass     `json:"class" yaml:"class"`
	Attributes []AttributeInfo `json:"attributes" yaml:"attributes"`
}

// Describe builds the attribute list of class from one or more layouts. When
// several layouts define the same attribute the first one wins. The identity
// field is reported a second time as the unique id.
func Describe(class ObjectClass, layouts ...*Schema) ObjectClassInfo {
	info := ObjectClassInfo{Class: class}
	seen := make(map[string]bool)

	for _, s := range layouts {
		for _, f := range s.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true

			ai := AttributeInfo{
				Name:              f.Name,
				NativeName:        f.NativeName,
				Type:              f.Type.String(),
				Required:          f.Has(Required),
				MultiValued:       f.Has(MultiValued),
				Readable:          !f.IsSecret(),
				ReturnedByDefault: !f.IsSecret(),
			}
			info.Attributes = append(info.Attributes, ai)

			if f.Name == AttrName {
				ai.Name = AttrUID
				info.Attributes = append(info.Attributes, ai)
				seen[AttrUID] = true
			}
		}
	}
	return info
}

// Attribute looks up an attribute description by name.
func (i ObjectClassInfo) Attribute(name string) (AttributeInfo, bool) {
	for _, a := range i.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeInfo{}, false
}
