package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"minimal", `{"type":"object","properties":{}}`, true},
		{"all five kinds", `{"type":"object","properties":{
			"s":{"type":"string"},"n":{"type":"number"},"b":{"type":"boolean"},
			"a":{"type":"array"},"o":{"type":"object"}}}`, true},
		{"nested not recursively validated", `{"type":"object","properties":{
			"o":{"type":"object","properties":{"x":{"type":"date"}}}}}`, true},
		{"extra top-level keys allowed", `{"type":"object","title":"t","properties":{"a":{"type":"string"}}}`, true},
		{"top-level not object", `[1,2]`, false},
		{"type missing", `{"properties":{}}`, false},
		{"type not object", `{"type":"array","properties":{}}`, false},
		{"properties missing", `{"type":"object"}`, false},
		{"properties null", `{"type":"object","properties":null}`, false},
		{"properties array", `{"type":"object","properties":[]}`, false},
		{"property without type", `{"type":"object","properties":{"a":{"description":"x"}}}`, false},
		{"property not an object", `{"type":"object","properties":{"a":"string"}}`, false},
		{"integer is not a kind", `{"type":"object","properties":{"a":{"type":"integer"}}}`, false},
		{"null is not a kind", `{"type":"object","properties":{"a":{"type":"null"}}}`, false},
		{"type tag must be a string", `{"type":"object","properties":{"a":{"type":["string"]}}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON([]byte(tt.input))
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, common.KindInvalidSchema, common.KindOf(err))
			assert.Contains(t, common.MessageOf(err), "Invalid schema")
		})
	}
}

func TestValidateNamesLocation(t *testing.T) {
	err := ValidateJSON([]byte(`{"type":"object","properties":{"age":{"type":"integer"}}}`))
	require.Error(t, err)
	assert.Contains(t, common.MessageOf(err), "/properties/age/type")
}

func TestSchemaValidateTyped(t *testing.T) {
	s := New()
	s.Add(Field{Name: "ok", Type: Number})
	require.NoError(t, s.Validate())

	s.Add(Field{Name: "bad", Type: FieldType("date")})
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidSchema, common.KindOf(err))
}

func TestFieldTypeDefaults(t *testing.T) {
	assert.Equal(t, []any{}, Array.Default())
	assert.Equal(t, map[string]any{}, Object.Default())
	assert.Equal(t, false, Boolean.Default())
	assert.Equal(t, "", String.Default())
	assert.EqualValues(t, "0", Number.Default())
}
