package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requiredSchema = `{
  "properties": {
    "user": {
      "properties": {
        "name": {
          "type": "string",
          "rules": {
            "required": {"value": true, "message": "Name is required"}
          }
        },
        "age": {"type": "number"}
      }
    }
  }
}`

func TestValidateRequired(t *testing.T) {
	eval, err := New(requiredSchema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"user": {"name": "", "age": 30}}`, "{}", nil)
	require.NoError(t, err)
	require.True(t, result.HasError)

	verr, ok := result.Error("user.name")
	require.True(t, ok)
	assert.Equal(t, "required", verr.RuleType)
	assert.Equal(t, "Name is required", verr.Message)

	result, err = eval.Validate(context.Background(), `{"user": {"name": "Ada", "age": 30}}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidateSkipsHiddenFields(t *testing.T) {
	schema := `{
	  "properties": {
	    "user": {
	      "properties": {
	        "name": {
	          "type": "string",
	          "condition": {"hidden": true},
	          "rules": {
	            "required": {"value": true, "message": "Name is required"}
	          }
	        }
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"user": {"name": ""}}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidateLengthRules(t *testing.T) {
	schema := `{
	  "properties": {
	    "username": {
	      "type": "string",
	      "rules": {
	        "minLength": {"value": 3, "message": "Too short"},
	        "maxLength": {"value": 8, "message": "Too long"}
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"username": "ab"}`, "{}", nil)
	require.NoError(t, err)
	verr, ok := result.Error("username")
	require.True(t, ok)
	assert.Equal(t, "minLength", verr.RuleType)

	result, err = eval.Validate(context.Background(), `{"username": "abcdefghij"}`, "{}", nil)
	require.NoError(t, err)
	verr, ok = result.Error("username")
	require.True(t, ok)
	assert.Equal(t, "maxLength", verr.RuleType)

	// Empty values are ignored by length rules.
	result, err = eval.Validate(context.Background(), `{"username": ""}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidateValueBounds(t *testing.T) {
	schema := `{
	  "properties": {
	    "age": {
	      "type": "number",
	      "rules": {
	        "minValue": {"value": 18, "message": "Too young"},
	        "maxValue": {"value": 99, "message": "Too old"}
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"age": 12}`, "{}", nil)
	require.NoError(t, err)
	verr, ok := result.Error("age")
	require.True(t, ok)
	assert.Equal(t, "minValue", verr.RuleType)

	result, err = eval.Validate(context.Background(), `{"age": 120}`, "{}", nil)
	require.NoError(t, err)
	verr, ok = result.Error("age")
	require.True(t, ok)
	assert.Equal(t, "maxValue", verr.RuleType)

	result, err = eval.Validate(context.Background(), `{"age": 30}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidatePattern(t *testing.T) {
	schema := `{
	  "properties": {
	    "email": {
	      "type": "string",
	      "rules": {
	        "pattern": {"value": "^[^@]+@[^@]+$", "message": "Invalid email"}
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"email": "not-an-email"}`, "{}", nil)
	require.NoError(t, err)
	verr, ok := result.Error("email")
	require.True(t, ok)
	assert.Equal(t, "pattern", verr.RuleType)
	assert.Equal(t, "^[^@]+@[^@]+$", verr.Pattern)
	assert.Equal(t, "not-an-email", verr.FieldValue)

	result, err = eval.Validate(context.Background(), `{"email": "a@b.co"}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidateEvaluationRule(t *testing.T) {
	schema := `{
	  "properties": {
	    "quantity": {"type": "number"},
	    "maxStock": {"type": "number"},
	    "order": {
	      "type": "number",
	      "rules": {
	        "stockCheck": {
	          "value": {"$evaluation": {"<=": [{"var": "order"}, {"var": "maxStock"}]}},
	          "message": "Order exceeds stock"
	        }
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"order": 15, "maxStock": 10}`, "{}", nil)
	require.NoError(t, err)
	verr, ok := result.Error("order")
	require.True(t, ok)
	assert.Equal(t, "evaluation", verr.RuleType)
	assert.Equal(t, "Order exceeds stock", verr.Message)

	result, err = eval.Validate(context.Background(), `{"order": 5, "maxStock": 10}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidateDisabledFieldSkipsRequired(t *testing.T) {
	schema := `{
	  "properties": {
	    "code": {
	      "type": "string",
	      "condition": {"disabled": true},
	      "rules": {
	        "required": {"value": true, "message": "Code required"}
	      }
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{"code": ""}`, "{}", nil)
	require.NoError(t, err)
	assert.False(t, result.HasError)
}

func TestValidationResultJSON(t *testing.T) {
	eval, err := New(requiredSchema, "", "{}")
	require.NoError(t, err)
	result, err := eval.Validate(context.Background(), `{"user": {"name": ""}}`, "{}", nil)
	require.NoError(t, err)

	out, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"hasError":true`)
	assert.Contains(t, string(out), `"user.name"`)
	assert.Contains(t, string(out), `"type":"required"`)
}

func TestValidationPathFilter(t *testing.T) {
	schema := `{
	  "properties": {
	    "first": {
	      "type": "string",
	      "rules": {"required": {"value": true, "message": "first required"}}
	    },
	    "second": {
	      "type": "string",
	      "rules": {"required": {"value": true, "message": "second required"}}
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)

	result, err := eval.Validate(context.Background(), `{}`, "{}", []string{"first"})
	require.NoError(t, err)
	_, hasFirst := result.Error("first")
	_, hasSecond := result.Error("second")
	assert.True(t, hasFirst)
	assert.False(t, hasSecond)
}
