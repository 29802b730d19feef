package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// Reconcile parses the model's reply and fits it to s.
// Missing properties get their kind's default; present properties of the wrong
// kind fail with FieldTypeMismatch. Keys outside the schema are dropped.
func Reconcile(raw string, s *schema.Schema) (*schema.Values, error) {
	doc, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	out := schema.NewValues()
	for _, f := range s.Fields() {
		v, ok := doc[f.Name]
		if !ok {
			out.Set(f.Name, f.Type.Default())
			continue
		}
		if actual := KindOf(v); actual != string(f.Type) {
			return nil, common.NewFieldTypeMismatch(f.Name, string(f.Type), actual)
		}
		out.Set(f.Name, v)
	}
	return out, nil
}

func parseObject(raw string) (map[string]any, error) {
	content := strings.TrimSpace(raw)
	if stripped := stripCodeFences(content); stripped != "" {
		content = stripped
	}
	if content == "" {
		return nil, common.NewAppError(common.KindModelResponseNotJSON, "Model response was empty", common.ErrValidation)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, common.NewAppError(common.KindModelResponseNotJSON, "Model response was not valid JSON", err)
	}
	if dec.More() {
		return nil, common.NewAppError(common.KindModelResponseNotJSON, "Model response was not valid JSON",
			fmt.Errorf("trailing data after offset %d", dec.InputOffset()))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, common.NewAppError(common.KindModelResponseNotJSON,
			fmt.Sprintf("Model response was JSON %s, expected an object", KindOf(v)), common.ErrValidation)
	}
	return obj, nil
}

// KindOf names the JSON kind of a decoded value using the schema vocabulary, plus "null".
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return string(schema.String)
	case json.Number, float64, float32, int, int64:
		return string(schema.Number)
	case bool:
		return string(schema.Boolean)
	case []any:
		return string(schema.Array)
	case map[string]any:
		return string(schema.Object)
	default:
		return fmt.Sprintf("%T", v)
	}
}

// stripCodeFences removes one surrounding markdown fence. Returns "" when there is none.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	// the closing fence may share a line with the JSON
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}
