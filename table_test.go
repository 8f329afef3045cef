package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

const scheduleSchema = `{
  "properties": {
    "principal": {"type": "number"},
    "years": {"type": "number"},
    "schedule": {
      "type": "array",
      "$datas": {
        "base": {"$evaluation": {"var": "principal"}}
      },
      "$skip": {"$evaluation": {"==": [{"var": "principal"}, 0]}},
      "items": [
        {
          "label": "opening",
          "amount": {"$evaluation": {"var": "base"}}
        },
        {
          "$repeat": {"start": 1, "end": {"$evaluation": {"var": "years"}}},
          "year": {"$evaluation": {"$ref": "$iteration"}},
          "amount": {"$evaluation": {"*": [{"$ref": "$year"}, 100]}}
        }
      ]
    }
  }
}`

func tableRows(t *testing.T, eval *JSONEval, path string) []any {
	t.Helper()
	v, ok := eval.GetSchemaValueByPath(path)
	require.True(t, ok)
	rows, isArr := v.([]any)
	require.True(t, isArr)
	return rows
}

func TestTableStaticAndRepeatRows(t *testing.T) {
	eval, err := New(scheduleSchema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"principal": 1000, "years": 3}`, "{}", nil))

	rows := tableRows(t, eval, "schedule")
	require.Len(t, rows, 4)

	opening := rows[0].(*ordered.Map)
	assert.Equal(t, "opening", opening.GetOr("label", nil))
	assert.Equal(t, float64(1000), opening.GetOr("amount", nil))

	for i, wantYear := range []float64{1, 2, 3} {
		row := rows[i+1].(*ordered.Map)
		assert.Equal(t, wantYear, row.GetOr("year", nil))
		assert.Equal(t, wantYear*100, row.GetOr("amount", nil))
	}
}

func TestTableSkip(t *testing.T) {
	eval, err := New(scheduleSchema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"principal": 0, "years": 3}`, "{}", nil))

	rows := tableRows(t, eval, "schedule")
	assert.Empty(t, rows)
}

func TestTableSandboxIsolation(t *testing.T) {
	eval, err := New(scheduleSchema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{"principal": 500, "years": 1}`, "{}", nil))

	// The $datas helper exists only inside the sandbox; the parent data
	// never sees it.
	_, ok := eval.GetSchemaValueByPath("base")
	assert.False(t, ok)

	// Parent slots other than the table's own are untouched.
	principal, _ := eval.GetSchemaValueByPath("principal")
	assert.Equal(t, float64(500), principal)
}

func TestTableClear(t *testing.T) {
	schema := `{
	  "properties": {
	    "reset": {"type": "boolean"},
	    "rows": {
	      "type": "array",
	      "$clear": {"$evaluation": {"var": "reset"}},
	      "items": [
	        {"n": 1}
	      ]
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	require.NoError(t, eval.Evaluate(context.Background(), `{"reset": false}`, "{}", nil))
	assert.Len(t, tableRows(t, eval, "rows"), 1)

	require.NoError(t, eval.Evaluate(context.Background(), `{"reset": true}`, "{}", nil))
	assert.Empty(t, tableRows(t, eval, "rows"))
}

func TestTableRequiredDependencySkips(t *testing.T) {
	schema := `{
	  "properties": {
	    "amount": {
	      "type": "number",
	      "rules": {"required": {"value": true, "message": "amount required"}}
	    },
	    "rows": {
	      "type": "array",
	      "items": [
	        {"doubled": {"$evaluation": {"*": [{"var": "amount"}, 2]}}}
	      ]
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	// amount is required but unfilled: the table yields no rows.
	require.NoError(t, eval.Evaluate(context.Background(), `{}`, "{}", nil))
	assert.Empty(t, tableRows(t, eval, "rows"))

	require.NoError(t, eval.Evaluate(context.Background(), `{"amount": 21}`, "{}", nil))
	rows := tableRows(t, eval, "rows")
	require.Len(t, rows, 1)
	assert.Equal(t, float64(42), rows[0].(*ordered.Map).GetOr("doubled", nil))
}

func TestTableColumnOrderPreserved(t *testing.T) {
	schema := `{
	  "properties": {
	    "t": {
	      "type": "array",
	      "items": [
	        {"z": 1, "a": 2, "m": 3}
	      ]
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)
	require.NoError(t, eval.Evaluate(context.Background(), `{}`, "{}", nil))

	rows := tableRows(t, eval, "t")
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"z", "a", "m"}, rows[0].(*ordered.Map).Keys())
}
