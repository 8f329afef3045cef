package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

const chainSchema = `{
  "properties": {
    "a": {"type": "number"},
    "x": {
      "type": "number",
      "value": {"$evaluation": {"+": [{"var": "a"}, 1]}}
    },
    "y": {
      "type": "number",
      "value": {"$evaluation": {"*": [{"var": "x"}, 2]}}
    }
  }
}`

func findEvent(events []*ordered.Map, ref string) *ordered.Map {
	for _, e := range events {
		if r, _ := e.GetOr("$ref", "").(string); r == ref {
			return e
		}
	}
	return nil
}

func TestEvaluateDependentsRecursiveChain(t *testing.T) {
	eval, err := New(chainSchema, "", `{"a": 1}`)
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"a": 1}`, "{}", nil))

	x, _ := eval.GetSchemaValueByPath("x")
	assert.Equal(t, float64(2), x)
	y, _ := eval.GetSchemaValueByPath("y")
	assert.Equal(t, float64(4), y)

	events, err := eval.EvaluateDependents(context.Background(), []string{"a"}, `{"a": 2}`, "", false)
	require.NoError(t, err)

	xEvent := findEvent(events, "x")
	require.NotNil(t, xEvent, "x should change")
	assert.Equal(t, float64(3), xEvent.GetOr("value", nil))

	yEvent := findEvent(events, "y")
	require.NotNil(t, yEvent, "y should change recursively")
	assert.Equal(t, float64(6), yEvent.GetOr("value", nil))

	// x precedes y: the plan re-evaluates in topological order.
	xIdx, yIdx := -1, -1
	for i, e := range events {
		switch e.GetOr("$ref", nil) {
		case "x":
			xIdx = i
		case "y":
			yIdx = i
		}
	}
	assert.Less(t, xIdx, yIdx)

	// The data view reflects the propagated values.
	x, _ = eval.GetSchemaValueByPath("x")
	assert.Equal(t, float64(3), x)
	y, _ = eval.GetSchemaValueByPath("y")
	assert.Equal(t, float64(6), y)
}

func TestDependentsCompleteness(t *testing.T) {
	// Re-evaluating the dependents plan then running a full pass produces
	// identical results.
	incremental, err := New(chainSchema, "", `{"a": 5}`)
	require.NoError(t, err)
	require.NoError(t, incremental.Evaluate(context.Background(), `{"a": 5}`, "{}", nil))
	_, err = incremental.EvaluateDependents(context.Background(), []string{"a"}, `{"a": 9}`, "", false)
	require.NoError(t, err)

	full, err := New(chainSchema, "", `{"a": 9}`)
	require.NoError(t, err)
	require.NoError(t, full.Evaluate(context.Background(), `{"a": 9}`, "{}", nil))

	for _, path := range []string{"x", "y"} {
		got, _ := incremental.GetSchemaValueByPath(path)
		want, _ := full.GetSchemaValueByPath(path)
		assert.Equal(t, want, got, path)
	}
}

const hiddenSchema = `{
  "properties": {
    "form_number": {"type": "string"},
    "extra_comments": {
      "type": "string",
      "keepHiddenValue": true,
      "condition": {
        "hidden": {"$evaluation": {"==": [{"var": "form_number"}, "HIDE"]}}
      }
    },
    "notes": {
      "type": "string",
      "condition": {
        "hidden": {"$evaluation": {"==": [{"var": "form_number"}, "HIDE"]}}
      }
    }
  }
}`

func TestDependentsKeepHiddenValue(t *testing.T) {
	data := `{"form_number": "SHOW", "extra_comments": "Existing Data", "notes": "scratch"}`
	eval, err := New(hiddenSchema, "", data)
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), data, "{}", nil))

	newData := `{"form_number": "HIDE", "extra_comments": "Existing Data", "notes": "scratch"}`
	events, err := eval.EvaluateDependents(context.Background(), []string{"form_number"}, newData, "", false)
	require.NoError(t, err)

	// keepHiddenValue: the event reports hidden without clearing.
	commentsEvent := findEvent(events, "extra_comments")
	require.NotNil(t, commentsEvent)
	assert.Equal(t, true, commentsEvent.GetOr("$hidden", nil))
	assert.NotEqual(t, true, commentsEvent.GetOr("clear", nil))

	preserved, _ := eval.GetSchemaValueByPath("extra_comments")
	assert.Equal(t, "Existing Data", preserved)

	// Without keepHiddenValue the field clears.
	notesEvent := findEvent(events, "notes")
	require.NotNil(t, notesEvent)
	assert.Equal(t, true, notesEvent.GetOr("$hidden", nil))
	assert.Equal(t, true, notesEvent.GetOr("clear", nil))

	cleared, _ := eval.GetSchemaValueByPath("notes")
	assert.Nil(t, cleared)
}

const recursiveClearSchema = `{
  "properties": {
    "field_c": {"type": "boolean"},
    "field_b": {
      "type": "boolean",
      "condition": {
        "hidden": {"$evaluation": {"==": [{"var": "field_c"}, true]}}
      }
    },
    "field_a": {
      "type": "string",
      "condition": {
        "hidden": {"$evaluation": {"!": [{"var": "field_b"}]}}
      }
    }
  }
}`

func TestDependentsRecursiveClearing(t *testing.T) {
	data := `{"field_c": false, "field_b": true, "field_a": "Initial"}`
	eval, err := New(recursiveClearSchema, "", data)
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), data, "{}", nil))

	newData := `{"field_c": true, "field_b": true, "field_a": "Initial"}`
	events, err := eval.EvaluateDependents(context.Background(), []string{"field_c"}, newData, "", false)
	require.NoError(t, err)

	bEvent := findEvent(events, "field_b")
	require.NotNil(t, bEvent, "field_b should be reported")
	assert.Equal(t, true, bEvent.GetOr("$hidden", nil))

	// Clearing field_b hides field_a in turn.
	aEvent := findEvent(events, "field_a")
	require.NotNil(t, aEvent, "field_a should be reported recursively")
	assert.Equal(t, true, aEvent.GetOr("$hidden", nil))

	b, _ := eval.GetSchemaValueByPath("field_b")
	assert.Nil(t, b)
	a, _ := eval.GetSchemaValueByPath("field_a")
	assert.Nil(t, a)
}
