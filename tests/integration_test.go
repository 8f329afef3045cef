package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byrizki/jsoneval"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// The illustration schema combines computed values, params, rules, a
// condition, and a table, exercising the full pipeline the way a form
// consumer would.
const illustrationSchema = `{
  "$params": {
    "constants": {"TAX_RATE": 0.08, "MAX_POL_AGE": 70}
  },
  "properties": {
    "insured": {
      "properties": {
        "birth_year": {
          "type": "number",
          "rules": {"required": {"value": true, "message": "birth year required"}}
        },
        "age": {
          "type": "number",
          "value": {"$evaluation": {"-": [2026, {"var": "insured.birth_year"}]}}
        },
        "eligible": {
          "type": "boolean",
          "value": {"$evaluation": {"<=": [{"var": "insured.age"}, {"var": "$params.constants.MAX_POL_AGE"}]}}
        }
      }
    },
    "premium": {"type": "number"},
    "total": {
      "type": "number",
      "value": {"$evaluation": {"round": [{"*": [{"var": "premium"}, {"+": [1, {"var": "$params.constants.TAX_RATE"}]}]}, 2]}}
    },
    "surcharge_note": {
      "type": "string",
      "condition": {
        "hidden": {"$evaluation": {"var": "insured.eligible"}}
      },
      "rules": {"required": {"value": true, "message": "note required for ineligible insured"}}
    }
  }
}`

func TestFullPipeline(t *testing.T) {
	eval, err := jsoneval.New(illustrationSchema, "", "{}")
	require.NoError(t, err)
	ctx := context.Background()

	data := `{"insured": {"birth_year": 1990}, "premium": 100}`
	require.NoError(t, eval.Evaluate(ctx, data, "{}", nil))

	age, _ := eval.GetSchemaValueByPath("insured.age")
	assert.Equal(t, float64(36), age)
	eligible, _ := eval.GetSchemaValueByPath("insured.eligible")
	assert.Equal(t, true, eligible)
	total, _ := eval.GetSchemaValueByPath("total")
	assert.Equal(t, float64(108), total)

	// Eligible insured hides the surcharge note, so its required rule is
	// skipped.
	result, err := eval.Validate(ctx, data, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)

	// An old birth year flips eligibility and surfaces the note's rule.
	oldData := `{"insured": {"birth_year": 1920}, "premium": 100}`
	result, err = eval.Validate(ctx, oldData, "{}", nil)
	require.NoError(t, err)
	require.True(t, result.HasError)
	_, hasNoteError := result.Error("surcharge_note")
	assert.True(t, hasNoteError)
}

func TestDependentsMatchFullEvaluation(t *testing.T) {
	ctx := context.Background()
	data := `{"insured": {"birth_year": 1990}, "premium": 100}`

	incremental, err := jsoneval.New(illustrationSchema, "", data)
	require.NoError(t, err)
	require.NoError(t, incremental.Evaluate(ctx, data, "{}", nil))

	newData := `{"insured": {"birth_year": 1990}, "premium": 250}`
	events, err := incremental.EvaluateDependents(ctx, []string{"premium"}, newData, "", false)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	fresh, err := jsoneval.New(illustrationSchema, "", newData)
	require.NoError(t, err)
	require.NoError(t, fresh.Evaluate(ctx, newData, "{}", nil))

	got, _ := incremental.GetSchemaValueByPath("total")
	want, _ := fresh.GetSchemaValueByPath("total")
	assert.Equal(t, want, got)
}

func TestEvaluatedSchemaShape(t *testing.T) {
	eval, err := jsoneval.New(illustrationSchema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"insured": {"birth_year": 2000}, "premium": 50}`, "{}", nil))

	schema := eval.GetEvaluatedSchema(true)
	ageField, ok := schema.Get("properties")
	require.True(t, ok)
	insured, _ := ageField.(*ordered.Map).Get("insured")
	props, _ := insured.(*ordered.Map).Get("properties")
	age, _ := props.(*ordered.Map).Get("age")
	// The $evaluation node is replaced by its computed value.
	assert.Equal(t, float64(26), age.(*ordered.Map).GetOr("value", nil))
}
