package jsoneval

import (
	"context"
	"fmt"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// Subform returns the independent evaluator rooted at an array-items
// template. Subforms inherit $params at creation time and nothing else;
// mutating subform data never touches the parent session.
func (je *JSONEval) Subform(path string) (*JSONEval, error) {
	ptr := normalizeSubformPath(path)
	if sub, ok := je.subforms[ptr]; ok {
		return sub, nil
	}
	// Accept dotted field paths too.
	for _, registered := range je.subformOrder {
		if PointerToDot(SchemaPointerToDataPointer(registered)) == path {
			return je.subforms[registered], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubformNotFound, path)
}

// SubformPaths lists the registered subform positions.
func (je *JSONEval) SubformPaths() []string {
	return append([]string(nil), je.subformOrder...)
}

func normalizeSubformPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '/' || path[0] == '#' {
		return path
	}
	return DotToSchemaPointer(path)
}

// EvaluateSubform forwards an evaluation call to the subform at path.
func (je *JSONEval) EvaluateSubform(ctx context.Context, path, dataJSON, contextJSON string, paths []string) error {
	sub, err := je.Subform(path)
	if err != nil {
		return err
	}
	return sub.Evaluate(ctx, dataJSON, contextJSON, paths)
}

// ValidateSubform forwards a validation call to the subform at path.
func (je *JSONEval) ValidateSubform(ctx context.Context, path, dataJSON, contextJSON string, paths []string) (*ValidationResult, error) {
	sub, err := je.Subform(path)
	if err != nil {
		return nil, err
	}
	return sub.Validate(ctx, dataJSON, contextJSON, paths)
}

// EvaluateDependentsSubform forwards a dependents call to the subform at
// path.
func (je *JSONEval) EvaluateDependentsSubform(ctx context.Context, path string, changedPaths []string, dataJSON, contextJSON string, reEvaluate bool) ([]*ordered.Map, error) {
	sub, err := je.Subform(path)
	if err != nil {
		return nil, err
	}
	return sub.EvaluateDependents(ctx, changedPaths, dataJSON, contextJSON, reEvaluate)
}

// GetEvaluatedSchemaSubform returns the subform's evaluated schema.
func (je *JSONEval) GetEvaluatedSchemaSubform(path string, skipLayout bool) (*ordered.Map, error) {
	sub, err := je.Subform(path)
	if err != nil {
		return nil, err
	}
	return sub.GetEvaluatedSchema(skipLayout), nil
}

// GetSchemaValueSubform returns the subform's data view.
func (je *JSONEval) GetSchemaValueSubform(path string) (*ordered.Map, error) {
	sub, err := je.Subform(path)
	if err != nil {
		return nil, err
	}
	return sub.GetSchemaValue(), nil
}

// ResolveLayoutSubform resolves the subform's layout references.
func (je *JSONEval) ResolveLayoutSubform(path string, evaluate bool) error {
	sub, err := je.Subform(path)
	if err != nil {
		return err
	}
	return sub.ResolveLayout(evaluate)
}
