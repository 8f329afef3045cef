package jsoneval

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kaptinlin/go-i18n"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// ValidationError describes one failed rule on a field.
type ValidationError struct {
	Path       string `json:"path"`
	RuleType   string `json:"type"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
	FieldValue any    `json:"fieldValue,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Localize renders the error message through a localizer, trying the
// error code first and the rule type second, falling back to the raw
// message.
func (e *ValidationError) Localize(localizer *i18n.Localizer) string {
	if localizer != nil {
		if msg := localizer.Get(e.Code); msg != "" && msg != e.Code {
			return msg
		}
		if msg := localizer.Get(e.RuleType); msg != "" && msg != e.RuleType {
			return msg
		}
	}
	return e.Message
}

// ValidationResult is the outcome of a validation pass. Errors iterate in
// field discovery order.
type ValidationResult struct {
	HasError bool
	errors   []*ValidationError
	byPath   map[string]*ValidationError
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{byPath: make(map[string]*ValidationError)}
}

func (r *ValidationResult) add(err *ValidationError) {
	if _, exists := r.byPath[err.Path]; exists {
		return
	}
	r.byPath[err.Path] = err
	r.errors = append(r.errors, err)
	r.HasError = true
}

// Errors returns the validation errors in field order.
func (r *ValidationResult) Errors() []*ValidationError {
	return r.errors
}

// Error returns the error recorded for a field path, if any.
func (r *ValidationResult) Error(path string) (*ValidationError, bool) {
	err, ok := r.byPath[path]
	return err, ok
}

// MarshalJSON encodes {"hasError": bool, "error": {<path>: {...}}} with
// fields in discovery order.
func (r *ValidationResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"hasError":`)
	if r.HasError {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	buf.WriteString(`,"error":{`)
	for i, err := range r.errors {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, mErr := json.Marshal(err.Path)
		if mErr != nil {
			return nil, mErr
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, mErr := json.Marshal(err)
		if mErr != nil {
			return nil, mErr
		}
		buf.Write(vb)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Validate runs every rule against the given data, skipping hidden fields.
// Rule expressions are refreshed first so the validator consumes resolved
// shapes. Validation failures never return a Go error; they land in the
// result.
func (je *JSONEval) Validate(ctx context.Context, dataJSON, contextJSON string, paths []string) (*ValidationResult, error) {
	je.mu.Lock()
	defer je.mu.Unlock()
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if err := je.evaluateLocked(ctx, dataJSON, contextJSON, paths); err != nil {
		return nil, err
	}
	je.resolveLayoutInternal()

	result := newValidationResult()
	for _, fieldPath := range je.parsed.fieldsWithRules {
		if len(paths) > 0 && !pathInFilter(fieldPath, paths) {
			continue
		}
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		je.validateField(fieldPath, result)
	}
	return result, nil
}

func pathInFilter(fieldPath string, paths []string) bool {
	for _, p := range paths {
		if strings.HasPrefix(fieldPath, p) || strings.HasPrefix(p, fieldPath) {
			return true
		}
	}
	return false
}

func (je *JSONEval) validateField(fieldPath string, result *ValidationResult) {
	if _, exists := result.byPath[fieldPath]; exists {
		return
	}

	schemaPtr := DotToSchemaPointer(fieldPath)
	fieldSchema, ok := getByPointer(je.evaluatedSchema, schemaPtr)
	if !ok {
		schemaPtr = "/properties" + schemaPtr
		fieldSchema, ok = getByPointer(je.evaluatedSchema, schemaPtr)
		if !ok {
			return
		}
	}
	if je.isEffectiveHidden(schemaPtr) {
		return
	}
	schemaObj, isObj := fieldSchema.(*ordered.Map)
	if !isObj {
		return
	}
	rulesV, ok := schemaObj.Get("rules")
	if !ok {
		return
	}
	rules, isObj := rulesV.(*ordered.Map)
	if !isObj {
		return
	}

	fieldData, _ := je.evalData.Get(DotToPointer(fieldPath))

	rules.Range(func(ruleName string, ruleValue any) bool {
		je.validateRule(fieldPath, ruleName, ruleValue, fieldData, schemaObj, result)
		return true
	})
}

// resolvedRule splits a rule node into its activation value, message,
// code, and data payload.
func resolvedRule(fieldPath, ruleName string, rule any) (active any, message string, code string, data any) {
	message = "Validation failed"
	obj, isObj := rule.(*ordered.Map)
	if !isObj {
		return rule, message, fieldPath + "." + ruleName, nil
	}

	active = obj.GetOr("value", false)
	if msgV, ok := obj.Get("message"); ok {
		switch m := msgV.(type) {
		case string:
			message = m
		case *ordered.Map:
			if inner, has := m.Get("value"); has {
				if s, isStr := inner.(string); isStr {
					message = s
				}
			}
		}
	}
	if codeV, ok := obj.Get("code"); ok {
		if s, isStr := codeV.(string); isStr {
			code = s
		}
	}
	if code == "" {
		code = fieldPath + "." + ruleName
	}
	if dataV, ok := obj.Get("data"); ok {
		data = cleanRuleData(dataV)
	}
	return active, message, code, data
}

// cleanRuleData unwraps {"value": x} leaves produced by evaluated data
// sub-expressions.
func cleanRuleData(data any) any {
	obj, isObj := data.(*ordered.Map)
	if !isObj {
		return data
	}
	cleaned := ordered.NewMapCapacity(obj.Len())
	obj.Range(func(k string, v any) bool {
		if inner, isInnerObj := v.(*ordered.Map); isInnerObj && inner.Len() == 1 && inner.Has("value") {
			cleaned.Set(k, inner.GetOr("value", nil))
			return true
		}
		cleaned.Set(k, v)
		return true
	})
	return cleaned
}

func isFalsyRuleValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func (je *JSONEval) validateRule(fieldPath, ruleName string, ruleValue any, fieldData any, schemaObj *ordered.Map, result *ValidationResult) {
	if _, exists := result.byPath[fieldPath]; exists {
		return
	}

	disabled := false
	if condV, ok := schemaObj.Get("condition"); ok {
		if cond, isObj := condV.(*ordered.Map); isObj {
			disabled, _ = cond.GetOr("disabled", false).(bool)
		}
	}

	// The evaluated schema holds the rule with its $evaluation already
	// resolved; fall back to the raw node.
	rulePtr := DotToSchemaPointer(fieldPath) + "/rules/" + ruleName
	evaluatedRule, ok := getByPointer(je.evaluatedSchema, rulePtr)
	if !ok {
		evaluatedRule, ok = getByPointer(je.evaluatedSchema, "/properties"+rulePtr)
		if !ok {
			evaluatedRule = ruleValue
		}
	}

	active, message, code, data := resolvedRule(fieldPath, ruleName, evaluatedRule)
	empty := isEmptyValue(fieldData)
	if arr, isArr := fieldData.([]any); isArr && len(arr) == 0 {
		empty = true
	}

	switch ruleName {
	case "required":
		if disabled {
			return
		}
		if isTrue(active) && empty {
			result.add(&ValidationError{
				Path: fieldPath, RuleType: "required", Message: message, Code: code,
			})
		}
	case "minLength":
		if empty {
			return
		}
		if min, isNum := active.(float64); isNum {
			if float64(lengthOf(fieldData)) < min {
				result.add(&ValidationError{
					Path: fieldPath, RuleType: "minLength", Message: message, Code: code,
				})
			}
		}
	case "maxLength":
		if empty {
			return
		}
		if max, isNum := active.(float64); isNum {
			if float64(lengthOf(fieldData)) > max {
				result.add(&ValidationError{
					Path: fieldPath, RuleType: "maxLength", Message: message, Code: code,
				})
			}
		}
	case "minValue":
		if empty {
			return
		}
		if min, isNum := active.(float64); isNum {
			if v, isVNum := fieldData.(float64); isVNum && v < min {
				result.add(&ValidationError{
					Path: fieldPath, RuleType: "minValue", Message: message, Code: code,
				})
			}
		}
	case "maxValue":
		if empty {
			return
		}
		if max, isNum := active.(float64); isNum {
			if v, isVNum := fieldData.(float64); isVNum && v > max {
				result.add(&ValidationError{
					Path: fieldPath, RuleType: "maxValue", Message: message, Code: code,
				})
			}
		}
	case "pattern":
		if empty {
			return
		}
		pattern, isStr := active.(string)
		if !isStr {
			return
		}
		text, isText := fieldData.(string)
		if !isText {
			return
		}
		if !je.compiledPattern(pattern).MatchString(text) {
			result.add(&ValidationError{
				Path: fieldPath, RuleType: "pattern", Message: message, Code: code,
				Pattern: pattern, FieldValue: text,
			})
		}
	case "evaluation":
		// Array form: [{code, message, value, data}, …]; first falsy value
		// wins.
		if evalArr, isArr := evaluatedRule.([]any); isArr {
			for idx, item := range evalArr {
				itemObj, isObj := item.(*ordered.Map)
				if !isObj {
					continue
				}
				if !isFalsyRuleValue(itemObj.GetOr("value", true)) {
					continue
				}
				itemCode, _ := itemObj.GetOr("code", "").(string)
				if itemCode == "" {
					itemCode = fieldPath + ".evaluation." + strconv.Itoa(idx)
				}
				itemMessage, _ := itemObj.GetOr("message", "").(string)
				if itemMessage == "" {
					itemMessage = "Validation failed"
				}
				result.add(&ValidationError{
					Path: fieldPath, RuleType: "evaluation", Message: itemMessage,
					Code: itemCode, Data: itemObj.GetOr("data", nil),
				})
				return
			}
			return
		}
		if !empty && isFalsyRuleValue(active) {
			result.add(&ValidationError{
				Path: fieldPath, RuleType: "evaluation", Message: message, Code: code, Data: data,
			})
		}
	default:
		// Custom rules: a falsy resolved value on a filled field is an
		// error.
		if !empty && isFalsyRuleValue(active) {
			result.add(&ValidationError{
				Path: fieldPath, RuleType: "evaluation", Message: message, Code: code, Data: data,
			})
		}
	}
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func lengthOf(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	default:
		return 0
	}
}

// compiledPattern returns a cached compiled regex; invalid patterns
// degrade to a match-anything expression.
func (je *JSONEval) compiledPattern(pattern string) *regexp.Regexp {
	je.regexMu.Lock()
	defer je.regexMu.Unlock()
	if re, ok := je.regexCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile("(?:)")
	}
	je.regexCache[pattern] = re
	return re
}
