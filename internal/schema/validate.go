package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

// metaSchema describes what a user-supplied extraction schema must look like.
// Nested descriptors are only required to carry a legal type tag.
const metaSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "properties"],
  "properties": {
    "type": {"const": "object"},
    "properties": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"enum": ["string", "number", "boolean", "array", "object"]}
        }
      }
    }
  }
}`

var compiledMeta = jsonschema.MustCompileString("extraction-schema.json", metaSchema)

// Validate checks a decoded JSON document against the extraction schema rules.
func Validate(doc any) error {
	if err := compiledMeta.Validate(doc); err != nil {
		return common.NewAppError(common.KindInvalidSchema, "Invalid schema: "+describe(err), err)
	}
	return nil
}

// ValidateJSON decodes raw and validates it. Syntax errors are reported as MalformedJson.
func ValidateJSON(raw []byte) error {
	doc, err := decodeDocument(raw)
	if err != nil {
		return err
	}
	return Validate(doc)
}

func decodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed(raw, err)
	}
	if dec.More() {
		off := dec.InputOffset()
		line, col := Position(raw, off)
		return nil, common.NewAppError(common.KindMalformedJSON,
			fmt.Sprintf("Invalid JSON schema: unexpected data after top-level value at line %d, column %d", line, col),
			common.ErrInvalidInput)
	}
	return doc, nil
}

// describe picks the most specific leaf of a jsonschema validation error.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("at %s: %s", loc, leaf.Message)
}
