package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// ValidateJSONAgainstSchema validates data against the JSON Schema in schemaJSON.
func ValidateJSONAgainstSchema(schemaJSON, data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// CheckConformance runs the full user schema, nested descriptors included, over
// reconciled values. Reconcile only checks top-level kinds, so callers treat a
// failure here as advisory.
func CheckConformance(s *schema.Schema, values *schema.Values) error {
	schemaJSON, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data, err := values.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	return ValidateJSONAgainstSchema(schemaJSON, data)
}
