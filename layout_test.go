package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

const layoutSchema = `{
  "properties": {
    "name": {"type": "string", "title": "Name"},
    "email": {"type": "string", "title": "Email"}
  },
  "$layout": {
    "elements": [
      {"$ref": "name"},
      {"$ref": "email", "span": 2}
    ]
  }
}`

func TestResolveLayoutExpandsRefs(t *testing.T) {
	eval, err := New(layoutSchema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.ResolveLayout(false))

	schema := eval.GetEvaluatedSchema(true)
	elementsV, ok := getByPointer(schema, "/$layout/elements")
	require.True(t, ok)
	elements := elementsV.([]any)
	require.Len(t, elements, 2)

	first := elements[0].(*ordered.Map)
	assert.Equal(t, "Name", first.GetOr("title", nil))
	assert.Equal(t, "name", first.GetOr("$fullpath", nil))
	assert.Equal(t, false, first.GetOr("$parentHide", nil))
	assert.False(t, first.Has("$ref"))

	// Element overrides survive the merge.
	second := elements[1].(*ordered.Map)
	assert.Equal(t, float64(2), second.GetOr("span", nil))
	assert.Equal(t, "Email", second.GetOr("title", nil))
}

func TestParentHidePropagation(t *testing.T) {
	schema := `{
	  "properties": {
	    "section": {
	      "condition": {"hidden": true},
	      "title": "Section"
	    },
	    "child": {"type": "string", "title": "Child"}
	  },
	  "$layout": {
	    "elements": [
	      {
	        "$ref": "section",
	        "elements": [
	          {"$ref": "child"}
	        ]
	      }
	    ]
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.ResolveLayout(false))

	resolved := eval.GetEvaluatedSchema(true)
	parentV, ok := getByPointer(resolved, "/$layout/elements/0")
	require.True(t, ok)
	parent := parentV.(*ordered.Map)

	children, _ := parent.Get("elements")
	child := children.([]any)[0].(*ordered.Map)

	// The hidden parent propagates into the child's condition and
	// $parentHide marker.
	assert.Equal(t, true, child.GetOr("$parentHide", nil))
	cond, _ := child.Get("condition")
	require.NotNil(t, cond)
	assert.Equal(t, true, cond.(*ordered.Map).GetOr("hidden", nil))
}

func TestOptionsTemplateSubstitution(t *testing.T) {
	schema := `{
	  "properties": {
	    "country": {"type": "string"},
	    "city": {
	      "type": "string",
	      "options": {
	        "url": "https://api.example.com/{country}/cities",
	        "params": {
	          "country": {"var": "country"}
	        }
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"country": "fr"}`, "{}", nil))

	v, ok := eval.GetEvaluatedSchemaByPath("city", true)
	require.True(t, ok)
	opts, _ := v.(*ordered.Map).Get("options")
	url, _ := opts.(*ordered.Map).Get("url")
	assert.Equal(t, "https://api.example.com/fr/cities", url)
}
