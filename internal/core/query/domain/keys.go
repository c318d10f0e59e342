package domain

import "strings"

// KeyShape describes how a Keys value was declared.
type KeyShape int

const (
	// KeyNone means no key was declared.
	KeyNone KeyShape = iota
	// KeySingle is a single field name.
	KeySingle
	// KeyList is a list of field names.
	KeyList
	// KeyMapping maps output names to source fields.
	KeyMapping
)

// KeyField is one named source field.
type KeyField struct {
	Name   string
	Source string
}

// Keys is a group key, dedupe key or summed key. It is a single field, a list
// of fields, or a mapping of output names to source fields.
type Keys struct {
	Shape  KeyShape
	Fields []KeyField
}

// Field declares a single-field key.
func Field(name string) Keys {
	name = strings.TrimPrefix(name, "$")
	if name == "" {
		return Keys{}
	}
	return Keys{Shape: KeySingle, Fields: []KeyField{{Name: OutputName(name), Source: name}}}
}

// Fields declares a list key. A single name yields a list of one, which is
// distinct from Field for result shaping.
func Fields(names ...string) Keys {
	if len(names) == 0 {
		return Keys{}
	}
	k := Keys{Shape: KeyList, Fields: make([]KeyField, 0, len(names))}
	for _, n := range names {
		n = strings.TrimPrefix(n, "$")
		k.Fields = append(k.Fields, KeyField{Name: OutputName(n), Source: n})
	}
	return k
}

// Mapping declares a key that renames its sources. A leading "$" on a source
// is accepted and stripped.
func Mapping(pairs ...KeyField) Keys {
	if len(pairs) == 0 {
		return Keys{}
	}
	k := Keys{Shape: KeyMapping, Fields: make([]KeyField, 0, len(pairs))}
	for _, p := range pairs {
		k.Fields = append(k.Fields, KeyField{Name: OutputName(p.Name), Source: strings.TrimPrefix(p.Source, "$")})
	}
	return k
}

// OutputName derives a result field name from a field path. Document stores
// reject dots in computed field names, so "geo.country" becomes "geo_country".
func OutputName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// As is shorthand for a KeyField.
func As(name, source string) KeyField {
	return KeyField{Name: name, Source: source}
}

// IsZero reports whether no key was declared.
func (k Keys) IsZero() bool {
	return k.Shape == KeyNone || len(k.Fields) == 0
}

// Names returns the output names in declaration order.
func (k Keys) Names() []string {
	names := make([]string, 0, len(k.Fields))
	for _, f := range k.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Sources returns the source fields in declaration order.
func (k Keys) Sources() []string {
	sources := make([]string, 0, len(k.Fields))
	for _, f := range k.Fields {
		sources = append(sources, f.Source)
	}
	return sources
}
