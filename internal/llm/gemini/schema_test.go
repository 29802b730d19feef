package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

func TestToSchemaHeadings(t *testing.T) {
	s, err := schema.FromHeadings("Summary, Total")
	require.NoError(t, err)

	gs, ok := ToSchema(s)
	require.True(t, ok)
	assert.Equal(t, genai.TypeObject, gs.Type)
	assert.Equal(t, []string{"Summary", "Total"}, gs.Required)
	require.Contains(t, gs.Properties, "Summary")
	assert.Equal(t, genai.TypeString, gs.Properties["Summary"].Type)
}

func TestToSchemaNested(t *testing.T) {
	s, err := schema.FromJSON(`{"type":"object","properties":{
		"lines":{"type":"array","items":{"type":"object","properties":{"sku":{"type":"string"},"qty":{"type":"integer"}},"required":["sku"]}},
		"status":{"type":"string","enum":["paid","open"],"description":"invoice status"}}}`)
	require.NoError(t, err)

	gs, ok := ToSchema(s)
	require.True(t, ok)
	lines := gs.Properties["lines"]
	assert.Equal(t, genai.TypeArray, lines.Type)
	assert.Equal(t, genai.TypeObject, lines.Items.Type)
	assert.Equal(t, genai.TypeInteger, lines.Items.Properties["qty"].Type)
	assert.Equal(t, []string{"sku"}, lines.Items.Required)
	assert.Equal(t, []string{"paid", "open"}, gs.Properties["status"].Enum)
	assert.Equal(t, "invoice status", gs.Properties["status"].Description)
}

func TestToSchemaNotExpressible(t *testing.T) {
	for _, in := range []string{
		`{"type":"object","properties":{"tags":{"type":"array"}}}`,
		`{"type":"object","properties":{"meta":{"type":"object"}}}`,
		`{"type":"object","properties":{}}`,
	} {
		s, err := schema.FromJSON(in)
		require.NoError(t, err)
		_, ok := ToSchema(s)
		assert.False(t, ok, in)
	}
}
