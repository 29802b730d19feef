package gemini

import (
	"encoding/json"

	"github.com/google/generative-ai-go/genai"

	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// ToSchema converts an extraction schema to Gemini's response schema.
// The bool is false when Gemini cannot express it (arrays without items,
// objects without properties, unknown nested types); callers then fall back
// to plain JSON mode and rely on the prompt.
func ToSchema(s *schema.Schema) (*genai.Schema, bool) {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, s.Len()),
		Required:   append([]string(nil), s.Required...),
	}
	if s.Len() == 0 {
		return nil, false
	}
	for _, f := range s.Fields() {
		var node map[string]any
		if raw := f.Raw(); len(raw) > 0 {
			if err := json.Unmarshal(raw, &node); err != nil {
				return nil, false
			}
		} else {
			node = map[string]any{"type": string(f.Type)}
			if f.Description != "" {
				node["description"] = f.Description
			}
		}
		child, ok := convert(node)
		if !ok {
			return nil, false
		}
		out.Properties[f.Name] = child
	}
	return out, true
}

func convert(node map[string]any) (*genai.Schema, bool) {
	typ, _ := node["type"].(string)
	out := &genai.Schema{}
	if d, ok := node["description"].(string); ok {
		out.Description = d
	}
	switch typ {
	case "string":
		out.Type = genai.TypeString
		if enum, ok := node["enum"].([]any); ok {
			for _, e := range enum {
				if s, ok := e.(string); ok {
					out.Enum = append(out.Enum, s)
				}
			}
		}
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		items, ok := node["items"].(map[string]any)
		if !ok {
			return nil, false
		}
		child, ok := convert(items)
		if !ok {
			return nil, false
		}
		out.Type = genai.TypeArray
		out.Items = child
	case "object":
		props, ok := node["properties"].(map[string]any)
		if !ok || len(props) == 0 {
			return nil, false
		}
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			pm, ok := p.(map[string]any)
			if !ok {
				return nil, false
			}
			child, ok := convert(pm)
			if !ok {
				return nil, false
			}
			out.Properties[name] = child
		}
		if req, ok := node["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
	default:
		return nil, false
	}
	return out, true
}
