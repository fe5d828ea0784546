// Package schema builds a runtime description of the enrichment output
// record from the declarative output_schema block of a task config.
//
// Each schema entry pairs a field name with a type tag. Tags come from a
// fixed vocabulary (string, int, float, bool, each with an optional-
// variant); anything else quietly resolves to optional-string so that a
// typo in a config degrades to "free text" instead of killing the run.
//
// The same Schema value serves three consumers: the JSON Schema attached
// to the structured-output request, the decoder that validates the
// returned payload, and the column list for the final projection. Field
// order is declaration order throughout.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the primitive type of a schema field.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "string"
	}
}

// jsonType is the JSON Schema name for the kind.
func (k Kind) jsonType() string {
	switch k {
	case Int:
		return "integer"
	case Float:
		return "number"
	case Bool:
		return "boolean"
	default:
		return "string"
	}
}

// Field is one declared output field.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
}

// Entry is a raw (name, tag) pair in config order.
type Entry struct {
	Name string
	Tag  string
}

// ResolveTag maps a config type tag to a kind and optionality. Unknown
// tags resolve to optional string; callers must not treat that as an
// error.
func ResolveTag(tag string) (Kind, bool) {
	switch strings.TrimSpace(tag) {
	case "string":
		return String, false
	case "optional-string":
		return String, true
	case "int":
		return Int, false
	case "optional-int":
		return Int, true
	case "float":
		return Float, false
	case "optional-float":
		return Float, true
	case "bool":
		return Bool, false
	case "optional-bool":
		return Bool, true
	default:
		return String, true
	}
}

// Schema is an ordered set of output fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema from entries, preserving order. Duplicate names
// keep the first declaration.
func New(entries []Entry) *Schema {
	s := &Schema{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := s.index[e.Name]; dup {
			continue
		}
		kind, opt := ResolveTag(e.Tag)
		s.index[e.Name] = len(s.fields)
		s.fields = append(s.fields, Field{Name: e.Name, Kind: kind, Optional: opt})
	}
	return s
}

// Fields returns the declared fields in order. The slice is shared;
// callers must not mutate it.
func (s *Schema) Fields() []Field { return s.fields }

// Len reports the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// Columns returns the field names in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.Name
	}
	return cols
}

// JSONSchema renders the strict object schema sent with the structured
// output request: every field listed as required, optional fields union
// typed with null, no additional properties.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	required := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Optional {
			props[f.Name] = map[string]any{"type": []string{f.Kind.jsonType(), "null"}}
		} else {
			props[f.Name] = map[string]any{"type": f.Kind.jsonType()}
		}
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Decode validates a parsed payload object against the schema and
// returns one value per declared field: string, int64, float64, bool,
// or nil. Absent and null values both decode to nil for any field;
// keys outside the schema are dropped. A value of the wrong type is an
// error naming the field.
func (s *Schema) Decode(payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		raw, ok := payload[f.Name]
		if !ok || raw == nil {
			out[f.Name] = nil
			continue
		}
		v, err := decodeValue(f.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// DecodeJSON unmarshals raw JSON and validates it against the schema.
func (s *Schema) DecodeJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return s.Decode(payload)
}

func decodeValue(kind Kind, raw any) (any, error) {
	switch kind {
	case String:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case Int:
		switch v := raw.(type) {
		case json.Number:
			if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
				return i, nil
			}
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
	case Float:
		switch v := raw.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, nil
			}
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case Bool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, raw)
}
