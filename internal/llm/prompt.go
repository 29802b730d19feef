package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// Rules closes every prompt. Wording matters for model compliance; keep it stable.
var Rules = []string{
	"Respond with valid JSON only, no markdown fences or commentary.",
	"Use the property names exactly as they appear in the schema.",
	"Match each property's declared type exactly.",
	"Include every property defined in the schema.",
	`When a value is uncertain or absent, use a reasonable default ("" for string, 0 for number, false for boolean, [] for array, {} for object) instead of omitting the property.`,
}

// FieldLine renders one instruction line for a property.
func FieldLine(f schema.Field) string {
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = fmt.Sprintf("extract the most relevant %s value", f.Type)
	}
	return fmt.Sprintf("- %s (%s): %s", f.Name, f.Type, desc)
}

// BuildPrompt renders the schema and document text into a single instruction.
// Output is deterministic for a given schema and text.
func BuildPrompt(s *schema.Schema, text string) (string, error) {
	schemaJSON, err := s.Indented()
	if err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}

	var b strings.Builder
	b.WriteString("Extract structured information from the document below.\n\n")

	b.WriteString("Fields to extract:\n")
	for _, f := range s.Fields() {
		b.WriteString(FieldLine(f))
		b.WriteByte('\n')
	}

	b.WriteString("\nJSON schema:\n")
	b.WriteString(schemaJSON)
	b.WriteString("\n\nDocument:\n")
	b.WriteString(text)
	b.WriteString("\n\nRules:\n")
	for i, r := range Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String(), nil
}
