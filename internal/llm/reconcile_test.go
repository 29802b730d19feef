package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

func mustSchema(t *testing.T, in string) *schema.Schema {
	t.Helper()
	s, err := schema.FromJSON(in)
	require.NoError(t, err)
	return s
}

func marshal(t *testing.T, v *schema.Values) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestReconcileDefaultsMissing(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"number"}}}`)

	v, err := Reconcile(`{"a": "x"}`, s)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":0}`, marshal(t, v))
}

func TestReconcileDefaultsEveryKind(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{
		"s":{"type":"string"},"n":{"type":"number"},"b":{"type":"boolean"},
		"a":{"type":"array"},"o":{"type":"object"}}}`)

	v, err := Reconcile(`{}`, s)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"","n":0,"b":false,"a":[],"o":{}}`, marshal(t, v))
}

func TestReconcileTypeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		schema   string
		reply    string
		field    string
		expected string
		actual   string
	}{
		{"string for number", `{"type":"object","properties":{"a":{"type":"number"}}}`, `{"a":"not-a-number"}`, "a", "number", "string"},
		{"object for array", `{"type":"object","properties":{"a":{"type":"array"}}}`, `{"a":{}}`, "a", "array", "object"},
		{"array for object", `{"type":"object","properties":{"a":{"type":"object"}}}`, `{"a":[]}`, "a", "object", "array"},
		{"null for string", `{"type":"object","properties":{"a":{"type":"string"}}}`, `{"a":null}`, "a", "string", "null"},
		{"number for boolean", `{"type":"object","properties":{"a":{"type":"boolean"}}}`, `{"a":1}`, "a", "boolean", "number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.reply, mustSchema(t, tt.schema))
			require.Error(t, err)
			assert.Equal(t, common.KindFieldTypeMismatch, common.KindOf(err))

			var mm *common.FieldTypeMismatchError
			require.True(t, errors.As(err, &mm))
			assert.Equal(t, tt.field, mm.Field)
			assert.Equal(t, tt.expected, mm.Expected)
			assert.Equal(t, tt.actual, mm.Actual)
		})
	}
}

func TestReconcileNotJSON(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"a":{"type":"string"}}}`)
	for _, reply := range []string{"", "Sure! Here is the data.", `{"a": "x"`, `["a"]`, `"a"`, `{"a":"x"} trailing`} {
		_, err := Reconcile(reply, s)
		require.Error(t, err, "reply %q", reply)
		assert.Equal(t, common.KindModelResponseNotJSON, common.KindOf(err), "reply %q", reply)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{
		"name":{"type":"string"},"total":{"type":"number"},"paid":{"type":"boolean"},
		"items":{"type":"array"},"meta":{"type":"object"}}}`)
	in := `{"name":"ACME","total":12.50,"paid":true,"items":["a",{"b":1}],"meta":{"k":"v"}}`

	first, err := Reconcile(in, s)
	require.NoError(t, err)
	again, err := Reconcile(marshal(t, first), s)
	require.NoError(t, err)

	assert.JSONEq(t, in, marshal(t, first))
	assert.Equal(t, marshal(t, first), marshal(t, again))
}

func TestReconcileDropsUnknownKeysAndKeepsSchemaOrder(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"b":{"type":"string"},"a":{"type":"string"}}}`)
	v, err := Reconcile(`{"a":"1","extra":true,"b":"2"}`, s)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"2","a":"1"}`, marshal(t, v))
}

func TestReconcileStripsCodeFence(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"Summary":{"type":"string"}}}`)
	v, err := Reconcile("```json\n{\"Summary\": \"Revenue grew 10%\"}\n```", s)
	require.NoError(t, err)
	assert.Equal(t, `{"Summary":"Revenue grew 10%"}`, marshal(t, v))
}

func TestReconcileStripsInlineClosingFence(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"Summary":{"type":"string"}}}`)
	for _, raw := range []string{
		"```json\n{\"Summary\":\"x\"}```",
		"```\n{\"Summary\":\"x\"}\n```  ",
		"```json\n{\"Summary\":\"x\"}",
	} {
		v, err := Reconcile(raw, s)
		require.NoError(t, err, raw)
		assert.Equal(t, `{"Summary":"x"}`, marshal(t, v))
	}
}

func TestCheckConformance(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string"}}}}`)

	ok, err := Reconcile(`{"tags":["a","b"]}`, s)
	require.NoError(t, err)
	assert.NoError(t, CheckConformance(s, ok))

	nested, err := Reconcile(`{"tags":[1,2]}`, s)
	require.NoError(t, err)
	assert.Error(t, CheckConformance(s, nested))
}
