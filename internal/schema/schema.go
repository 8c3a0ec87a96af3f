// Package schema defines explicit field descriptors for document tables
// and validates raw input against them. Descriptors are built once at
// startup and consumed by both validation and the crud factories (for
// file-field discovery and search-field selection); nothing inspects
// validator internals at runtime.
package schema

import (
	"fmt"
	"slices"

	"github.com/forgekit/forge-backend/internal/domain"
)

// Kind is the tagged variant of a field descriptor.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindEnum
	KindArray
	KindFile
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindFile:
		return "file"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Field describes one business field of a table.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Default  any      // applied on create when the field is absent
	Enum     []string // KindEnum: allowed values
	Elem     *Field   // KindArray: element descriptor (Name unused)
	Children []Field  // KindObject: nested descriptors
}

// Schema describes a table's business fields.
type Schema struct {
	Table       string
	SearchField string // field matched by the search operation; empty disables search
	Fields      []Field
}

// Field returns the descriptor for a field name.
func (s *Schema) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FileFields returns the fields holding blob references, either directly
// (KindFile) or as arrays of references.
func (s *Schema) FileFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind == KindFile || (f.Kind == KindArray && f.Elem != nil && f.Elem.Kind == KindFile) {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks raw input for a create: unknown fields are rejected,
// required fields must be present, defaults are applied, values are
// coerced to their canonical form. Returns the cleaned field map.
func (s *Schema) Validate(raw map[string]any) (map[string]any, error) {
	out, err := s.validate(raw, false)
	if err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		if _, ok := out[f.Name]; ok {
			continue
		}
		if f.Default != nil {
			out[f.Name] = f.Default
			continue
		}
		if !f.Optional {
			return nil, domain.Validation(f.Name, "required field is missing")
		}
	}
	return out, nil
}

// ValidatePartial checks raw input for an update: only the supplied
// fields are validated, nothing is required, defaults are not applied.
// An explicit null clears an optional field (and for file fields
// triggers blob cleanup downstream).
func (s *Schema) ValidatePartial(raw map[string]any) (map[string]any, error) {
	return s.validate(raw, true)
}

func (s *Schema) validate(raw map[string]any, allowNull bool) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for name, val := range raw {
		f, ok := s.Field(name)
		if !ok {
			return nil, domain.Validation(name, "unknown field")
		}
		if val == nil {
			if !allowNull && !f.Optional {
				return nil, domain.Validation(name, "must not be null")
			}
			out[name] = nil
			continue
		}
		coerced, err := coerce(f, name, val)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func coerce(f *Field, path string, val any) (any, error) {
	switch f.Kind {
	case KindString, KindFile:
		s, ok := val.(string)
		if !ok {
			return nil, domain.Validation(path, "expected a string")
		}
		return s, nil

	case KindNumber:
		n, ok := asNumber(val)
		if !ok {
			return nil, domain.Validation(path, "expected a number")
		}
		return n, nil

	case KindBool:
		b, ok := val.(bool)
		if !ok {
			return nil, domain.Validation(path, "expected a boolean")
		}
		return b, nil

	case KindEnum:
		s, ok := val.(string)
		if !ok {
			return nil, domain.Validation(path, "expected a string")
		}
		if !slices.Contains(f.Enum, s) {
			return nil, domain.Validation(path, fmt.Sprintf("must be one of %v", f.Enum))
		}
		return s, nil

	case KindArray:
		arr, ok := val.([]any)
		if !ok {
			return nil, domain.Validation(path, "expected an array")
		}
		out := make([]any, 0, len(arr))
		for i, item := range arr {
			coerced, err := coerce(f.Elem, fmt.Sprintf("%s[%d]", path, i), item)
			if err != nil {
				return nil, err
			}
			out = append(out, coerced)
		}
		return out, nil

	case KindObject:
		obj, ok := val.(map[string]any)
		if !ok {
			return nil, domain.Validation(path, "expected an object")
		}
		out := make(map[string]any, len(obj))
		for k, v := range obj {
			var child *Field
			for i := range f.Children {
				if f.Children[i].Name == k {
					child = &f.Children[i]
					break
				}
			}
			if child == nil {
				return nil, domain.Validation(path+"."+k, "unknown field")
			}
			if v == nil {
				out[k] = nil
				continue
			}
			coerced, err := coerce(child, path+"."+k, v)
			if err != nil {
				return nil, err
			}
			out[k] = coerced
		}
		return out, nil
	}
	return nil, domain.Validation(path, "unsupported field kind")
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
