// Package schema holds the output contract of an extraction: an object schema with
// ordered, typed properties, plus the ordered values reconciled against it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

// FieldType is the closed set of kinds a property may declare.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
	Array   FieldType = "array"
	Object  FieldType = "object"
)

// FieldTypes lists every legal kind in a stable order.
var FieldTypes = []FieldType{String, Number, Boolean, Array, Object}

// Valid reports whether t is one of the five recognized kinds.
func (t FieldType) Valid() bool {
	switch t {
	case String, Number, Boolean, Array, Object:
		return true
	}
	return false
}

// Default returns the value substituted when a model omits a property of this kind.
func (t FieldType) Default() any {
	switch t {
	case Array:
		return []any{}
	case Object:
		return map[string]any{}
	case Number:
		return json.Number("0")
	case Boolean:
		return false
	default:
		return ""
	}
}

// Field is a named property descriptor.
type Field struct {
	Name        string
	Type        FieldType
	Description string

	// raw is the descriptor exactly as the user wrote it (json mode only),
	// so nested keys such as items or enum reach the model untouched.
	raw json.RawMessage
}

// MarshalJSON renders the descriptor.
func (f Field) MarshalJSON() ([]byte, error) {
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	out := struct {
		Type        FieldType `json:"type"`
		Description string    `json:"description,omitempty"`
	}{f.Type, f.Description}
	return json.Marshal(out)
}

// Raw returns the descriptor JSON as supplied, or nil for built fields.
func (f Field) Raw() json.RawMessage { return f.raw }

// Schema is an object schema whose properties keep insertion order.
type Schema struct {
	fields   []Field
	index    map[string]int
	Required []string
}

// New returns an empty object schema.
func New() *Schema {
	return &Schema{index: map[string]int{}}
}

// Add appends f, or replaces the descriptor in place when the name already exists.
func (s *Schema) Add(f Field) {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if i, ok := s.index[f.Name]; ok {
		s.fields[i] = f
		return
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
}

// Fields returns the properties in insertion order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a property by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Names returns property names in insertion order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Len is the number of properties.
func (s *Schema) Len() int { return len(s.fields) }

// Validate checks the typed schema against the same rules applied to user JSON.
func (s *Schema) Validate() error {
	if s == nil {
		return common.NewAppError(common.KindInvalidSchema, "Invalid schema: schema is missing", common.ErrValidation)
	}
	for _, f := range s.fields {
		if !f.Type.Valid() {
			return common.NewAppError(common.KindInvalidSchema,
				fmt.Sprintf("Invalid schema: property %q has unsupported type %q", f.Name, f.Type),
				common.ErrValidation)
		}
	}
	return nil
}

// MarshalJSON renders {"type":"object","properties":{...},"required":[...]} with ordered properties.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		desc, err := f.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(desc)
	}
	buf.WriteByte('}')
	if len(s.Required) > 0 {
		req, err := json.Marshal(s.Required)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"required":`)
		buf.Write(req)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Indented renders the schema as two-space indented JSON.
func (s *Schema) Indented() (string, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Map decodes the schema into generic maps, for libraries that want map[string]any.
func (s *Schema) Map() (map[string]any, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
