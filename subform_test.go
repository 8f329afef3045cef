package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const riderSchema = `{
  "$params": {
    "constants": {"LOADING": 1.5}
  },
  "properties": {
    "policy_name": {"type": "string"},
    "riders": {
      "type": "array",
      "items": {
        "properties": {
          "name": {
            "type": "string",
            "rules": {"required": {"value": true, "message": "rider name required"}}
          },
          "qty": {"type": "number"},
          "rate": {"type": "number"},
          "premium": {
            "type": "number",
            "value": {"$evaluation": {"*": [{"var": "riders.qty"}, {"var": "riders.rate"}]}}
          }
        }
      }
    }
  }
}`

func TestSubformDetection(t *testing.T) {
	parsed, err := ParseSchema([]byte(riderSchema))
	require.NoError(t, err)
	assert.Equal(t, []string{"/properties/riders"}, parsed.SubformPaths())

	sub, ok := parsed.Subform("/properties/riders")
	require.True(t, ok)
	// The lifted template inherits $params and carries the items under the
	// field name.
	assert.True(t, sub.Schema.Has("$params"))
	assert.True(t, sub.Schema.Has("riders"))
}

func TestSubformEvaluation(t *testing.T) {
	eval, err := New(riderSchema, "", "{}")
	require.NoError(t, err)

	data := `{"riders": {"name": "Accident", "qty": 2, "rate": 10}}`
	require.NoError(t, eval.EvaluateSubform(context.Background(), "riders", data, "{}", nil))

	sub, err := eval.Subform("riders")
	require.NoError(t, err)
	premium, ok := sub.GetSchemaValueByPath("riders.premium")
	require.True(t, ok)
	assert.Equal(t, float64(20), premium)
}

func TestSubformIndependence(t *testing.T) {
	eval, err := New(riderSchema, "", `{"policy_name": "P-1"}`)
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"policy_name": "P-1"}`, "{}", nil))

	data := `{"riders": {"name": "Accident", "qty": 3, "rate": 7}}`
	require.NoError(t, eval.EvaluateSubform(context.Background(), "riders", data, "{}", nil))

	// Mutating the subform never touches the parent's data.
	parentName, ok := eval.GetSchemaValueByPath("policy_name")
	require.True(t, ok)
	assert.Equal(t, "P-1", parentName)
	_, hasRiderData := eval.GetSchemaValueByPath("riders.premium")
	assert.False(t, hasRiderData)
}

func TestSubformInheritsParams(t *testing.T) {
	eval, err := New(riderSchema, "", "{}")
	require.NoError(t, err)
	sub, err := eval.Subform("riders")
	require.NoError(t, err)

	loading, ok := sub.GetSchemaValueByPath("$params.constants.LOADING")
	require.True(t, ok)
	assert.Equal(t, float64(1.5), loading)
}

func TestSubformValidation(t *testing.T) {
	eval, err := New(riderSchema, "", "{}")
	require.NoError(t, err)

	result, err := eval.ValidateSubform(context.Background(), "riders", `{"riders": {"name": ""}}`, "{}", nil)
	require.NoError(t, err)
	require.True(t, result.HasError)
	verr, ok := result.Error("riders.name")
	require.True(t, ok)
	assert.Equal(t, "required", verr.RuleType)
}

func TestSubformNotFound(t *testing.T) {
	eval, err := New(riderSchema, "", "{}")
	require.NoError(t, err)
	_, err = eval.Subform("nonexistent")
	assert.ErrorIs(t, err, ErrSubformNotFound)
}
