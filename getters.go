package jsoneval

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// ReturnFormat selects the shape of multi-path results.
type ReturnFormat int

const (
	// ReturnNested returns an object tree.
	ReturnNested ReturnFormat = iota
	// ReturnFlat returns a dotted-key object.
	ReturnFlat
	// ReturnArray returns a sequence in path order.
	ReturnArray
)

// GetEvaluatedSchema returns a deep copy of the evaluated schema. Unless
// skipLayout is set, layout references are resolved first.
func (je *JSONEval) GetEvaluatedSchema(skipLayout bool) *ordered.Map {
	je.mu.Lock()
	defer je.mu.Unlock()
	if !skipLayout {
		je.resolveLayoutInternal()
	}
	return je.evaluatedSchema.Clone()
}

// GetEvaluatedSchemaWithoutParams returns the evaluated schema minus its
// $params subtree.
func (je *JSONEval) GetEvaluatedSchemaWithoutParams(skipLayout bool) *ordered.Map {
	schema := je.GetEvaluatedSchema(skipLayout)
	schema.Delete("$params")
	return schema
}

// GetEvaluatedSchemaJSON marshals the evaluated schema.
func (je *JSONEval) GetEvaluatedSchemaJSON(skipLayout bool) ([]byte, error) {
	return json.Marshal(je.GetEvaluatedSchema(skipLayout))
}

// GetSchemaValue returns a deep copy of the session data object (the
// flattened data view of all computed values).
func (je *JSONEval) GetSchemaValue() *ordered.Map {
	je.mu.Lock()
	defer je.mu.Unlock()
	return je.evalData.Data().Clone()
}

// GetSchemaValueByPath returns one value from the session data.
func (je *JSONEval) GetSchemaValueByPath(path string) (any, bool) {
	je.mu.Lock()
	defer je.mu.Unlock()
	return je.evalData.Get(DotToPointer(path))
}

// GetEvaluatedSchemaByPath returns the evaluated schema node addressed by
// a dotted field path.
func (je *JSONEval) GetEvaluatedSchemaByPath(path string, skipLayout bool) (any, bool) {
	je.mu.Lock()
	defer je.mu.Unlock()
	if !skipLayout {
		je.resolveLayoutInternal()
	}
	return je.evaluatedSchemaByPath(path)
}

func (je *JSONEval) evaluatedSchemaByPath(path string) (any, bool) {
	ptr := DotToSchemaPointer(path)
	if v, ok := getByPointer(je.evaluatedSchema, ptr); ok {
		return ordered.CloneValue(v), true
	}
	if v, ok := getByPointer(je.evaluatedSchema, "/properties"+ptr); ok {
		return ordered.CloneValue(v), true
	}
	return nil, false
}

// GetEvaluatedSchemaByPaths returns evaluated schema parts for multiple
// dotted paths in the requested format.
func (je *JSONEval) GetEvaluatedSchemaByPaths(paths []string, skipLayout bool, format ReturnFormat) any {
	je.mu.Lock()
	defer je.mu.Unlock()
	if !skipLayout {
		je.resolveLayoutInternal()
	}
	return collectByPaths(paths, format, je.evaluatedSchemaByPath)
}

// GetSchemaByPath returns the original (unevaluated) schema node at a
// dotted path.
func (je *JSONEval) GetSchemaByPath(path string) (any, bool) {
	ptr := DotToSchemaPointer(path)
	if v, ok := getByPointer(je.parsed.Schema, ptr); ok {
		return ordered.CloneValue(v), true
	}
	if v, ok := getByPointer(je.parsed.Schema, "/properties"+ptr); ok {
		return ordered.CloneValue(v), true
	}
	return nil, false
}

// GetSchemaByPaths returns original schema parts for multiple paths.
func (je *JSONEval) GetSchemaByPaths(paths []string, format ReturnFormat) any {
	return collectByPaths(paths, format, je.GetSchemaByPath)
}

func collectByPaths(paths []string, format ReturnFormat, lookup func(string) (any, bool)) any {
	switch format {
	case ReturnFlat:
		out := ordered.NewMapCapacity(len(paths))
		for _, path := range paths {
			if v, ok := lookup(path); ok {
				out.Set(path, v)
			}
		}
		return out
	case ReturnArray:
		out := make([]any, 0, len(paths))
		for _, path := range paths {
			v, _ := lookup(path)
			out = append(out, v)
		}
		return out
	default:
		out := ordered.NewMap()
		for _, path := range paths {
			if v, ok := lookup(path); ok {
				insertAtPath(out, path, v)
			}
		}
		return out
	}
}

// insertAtPath nests a value into an object tree at a dotted path.
func insertAtPath(root *ordered.Map, path string, value any) {
	segs := strings.Split(path, ".")
	cur := root
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur.Set(seg, value)
			return
		}
		next, ok := cur.Get(seg)
		child, isObj := next.(*ordered.Map)
		if !ok || !isObj {
			child = ordered.NewMap()
			cur.Set(seg, child)
		}
		cur = child
	}
}

// FlattenObject flattens a nested object into dotted keys.
func FlattenObject(prefix string, value any, out *ordered.Map) {
	obj, isObj := value.(*ordered.Map)
	if !isObj {
		out.Set(prefix, value)
		return
	}
	obj.Range(func(k string, v any) bool {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		FlattenObject(key, v, out)
		return true
	})
}

// ConvertToFormat reshapes a nested value into the requested format.
func ConvertToFormat(value any, format ReturnFormat) any {
	switch format {
	case ReturnFlat:
		out := ordered.NewMap()
		FlattenObject("", value, out)
		return out
	case ReturnArray:
		switch t := value.(type) {
		case *ordered.Map:
			out := make([]any, 0, t.Len())
			t.Range(func(_ string, v any) bool {
				out = append(out, v)
				return true
			})
			return out
		case []any:
			return t
		default:
			return []any{value}
		}
	default:
		return value
	}
}

func (je *JSONEval) marshalData() (string, error) {
	data, err := json.Marshal(je.evalData.CloneDataWithout("$params"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
