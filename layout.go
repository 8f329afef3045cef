package jsoneval

import (
	"strconv"
	"strings"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// ResolveLayout expands every $layout root: $ref elements are replaced by
// copies of the referenced field definitions, each element is stamped with
// $path/$fullpath/$parentHide metadata, and parent hidden or disabled
// conditions propagate into children. When evaluate is true a full
// evaluation pass runs first.
func (je *JSONEval) ResolveLayout(evaluate bool) error {
	if evaluate {
		dataJSON, err := je.marshalData()
		if err != nil {
			return err
		}
		if err := je.Evaluate(nil, dataJSON, "", nil); err != nil {
			return err
		}
	}
	je.mu.Lock()
	je.resolveLayoutInternal()
	je.mu.Unlock()
	return nil
}

func (je *JSONEval) resolveLayoutInternal() {
	for _, layoutPath := range je.parsed.layoutPaths {
		je.resolveLayoutElements(layoutPath + "/elements")
	}
	for _, layoutPath := range je.parsed.layoutPaths {
		je.propagateParentConditions(layoutPath + "/elements")
	}
}

// resolveLayoutElements reads the elements from the original schema (so
// re-resolution sees fresh $ref entries) and writes resolved copies into
// the evaluated schema.
func (je *JSONEval) resolveLayoutElements(elementsPtr string) {
	raw, ok := getByPointer(je.parsed.Schema, elementsPtr)
	if !ok {
		return
	}
	elements, isArr := raw.([]any)
	if !isArr {
		return
	}

	parentPath := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSuffix(elementsPtr, "/elements"), "/"), "/", ".")

	resolved := make([]any, len(elements))
	for i, element := range elements {
		elementPath := "elements." + strconv.Itoa(i)
		if parentPath != "" {
			elementPath = parentPath + "." + elementPath
		}
		resolved[i] = je.resolveElementRecursive(ordered.CloneValue(element), elementPath)
	}
	setByPointer(je.evaluatedSchema, elementsPtr, resolved)
}

func (je *JSONEval) resolveElementRecursive(element any, pathContext string) any {
	resolved := je.resolveElementRef(element)
	obj, isObj := resolved.(*ordered.Map)
	if !isObj {
		return resolved
	}

	if !obj.Has("$parentHide") {
		obj.Set("$parentHide", false)
	}
	if !obj.Has("$fullpath") {
		obj.Set("$fullpath", pathContext)
	}
	if !obj.Has("$path") {
		segs := strings.Split(pathContext, ".")
		obj.Set("$path", segs[len(segs)-1])
	}

	if nested, ok := obj.Get("elements"); ok {
		if nestedArr, isArr := nested.([]any); isArr {
			out := make([]any, len(nestedArr))
			for i, child := range nestedArr {
				out[i] = je.resolveElementRecursive(child, pathContext+".elements."+strconv.Itoa(i))
			}
			obj.Set("elements", out)
		}
	}
	return obj
}

// resolveElementRef replaces a {$ref: <path>} element with a copy of the
// referenced definition; element properties override referenced ones, and
// a referenced $layout object is flattened into the element.
func (je *JSONEval) resolveElementRef(element any) any {
	obj, isObj := element.(*ordered.Map)
	if !isObj {
		return element
	}
	refV, ok := obj.Get("$ref")
	if !ok {
		return element
	}
	refPath, isStr := refV.(string)
	if !isStr {
		return element
	}

	dotted := PointerToDot(refPath)
	segs := strings.Split(dotted, ".")
	obj.Set("$fullpath", dotted)
	obj.Set("$path", segs[len(segs)-1])
	obj.Set("$parentHide", false)

	var pointer string
	if strings.HasPrefix(refPath, "#") || strings.HasPrefix(refPath, "/") {
		pointer = strings.TrimPrefix(refPath, "#")
	} else {
		pointer = DotToSchemaPointer(refPath)
		if _, found := getByPointer(je.evaluatedSchema, pointer); !found {
			pointer = "/properties/" + strings.ReplaceAll(refPath, ".", "/properties/")
		}
	}

	referenced, found := getByPointer(je.evaluatedSchema, pointer)
	if !found {
		return obj
	}
	resolvedMap, isObj := ordered.CloneValue(referenced).(*ordered.Map)
	if !isObj {
		return ordered.CloneValue(referenced)
	}
	obj.Delete("$ref")

	// A referenced $layout flattens into the element itself.
	if layoutV, hasLayout := resolvedMap.Get("$layout"); hasLayout {
		if layoutObj, isLayoutObj := layoutV.(*ordered.Map); isLayoutObj {
			resolvedMap.Delete("$layout")
			result := layoutObj.Clone()
			resolvedMap.Range(func(k string, v any) bool {
				if k == "type" && result.Has("type") {
					return true
				}
				result.Set(k, v)
				return true
			})
			obj.Range(func(k string, v any) bool {
				result.Set(k, v)
				return true
			})
			return result
		}
	}

	obj.Range(func(k string, v any) bool {
		resolvedMap.Set(k, v)
		return true
	})
	return resolvedMap
}

func (je *JSONEval) propagateParentConditions(elementsPtr string) {
	raw, ok := getByPointer(je.evaluatedSchema, elementsPtr)
	if !ok {
		return
	}
	elements, isArr := raw.([]any)
	if !isArr {
		return
	}
	out := make([]any, len(elements))
	for i, element := range elements {
		out[i] = je.applyParentConditions(element, false, false)
	}
	setByPointer(je.evaluatedSchema, elementsPtr, out)
}

func (je *JSONEval) applyParentConditions(element any, parentHidden, parentDisabled bool) any {
	obj, isObj := element.(*ordered.Map)
	if !isObj {
		return element
	}

	elementHidden := parentHidden
	elementDisabled := parentDisabled

	if condV, ok := obj.Get("condition"); ok {
		if cond, isCondObj := condV.(*ordered.Map); isCondObj {
			if h, _ := cond.GetOr("hidden", false).(bool); h {
				elementHidden = true
			}
			if d, _ := cond.GetOr("disabled", false).(bool); d {
				elementDisabled = true
			}
		}
	}
	if hlV, ok := obj.Get("hideLayout"); ok {
		if hl, isHlObj := hlV.(*ordered.Map); isHlObj {
			if all, _ := hl.GetOr("all", false).(bool); all {
				elementHidden = true
			}
		}
	}

	if parentHidden || parentDisabled {
		if obj.Has("condition") || obj.Has("$ref") || obj.Has("$fullpath") {
			var cond *ordered.Map
			if condV, ok := obj.Get("condition"); ok {
				if c, isCondObj := condV.(*ordered.Map); isCondObj {
					cond = c
				}
			}
			if cond == nil {
				cond = ordered.NewMap()
			}
			if parentHidden {
				cond.Set("hidden", true)
				elementHidden = true
			}
			if parentDisabled {
				cond.Set("disabled", true)
				elementDisabled = true
			}
			obj.Set("condition", cond)
		}
		if parentHidden && (obj.Has("hideLayout") || obj.Has("type")) {
			var hl *ordered.Map
			if hlV, ok := obj.Get("hideLayout"); ok {
				if h, isHlObj := hlV.(*ordered.Map); isHlObj {
					hl = h
				}
			}
			if hl == nil {
				hl = ordered.NewMap()
			}
			hl.Set("all", true)
			obj.Set("hideLayout", hl)
		}
	}

	if obj.Has("$parentHide") {
		obj.Set("$parentHide", parentHidden)
	}

	if nested, ok := obj.Get("elements"); ok {
		if nestedArr, isArr := nested.([]any); isArr {
			out := make([]any, len(nestedArr))
			for i, child := range nestedArr {
				out[i] = je.applyParentConditions(child, elementHidden, elementDisabled)
			}
			obj.Set("elements", out)
		}
	}
	return obj
}

// isEffectiveHidden reports whether the field at a schema pointer is
// hidden: its own condition.hidden, a hideLayout.all on itself or any
// structural ancestor, or a propagated $parentHide.
func (je *JSONEval) isEffectiveHidden(schemaPtr string) bool {
	segs := splitPathSegments(schemaPtr)
	for end := len(segs); end > 0; end-- {
		ptr := "/" + strings.Join(segs[:end], "/")
		node, ok := getByPointer(je.evaluatedSchema, ptr)
		if !ok {
			continue
		}
		obj, isObj := node.(*ordered.Map)
		if !isObj {
			continue
		}
		if end == len(segs) {
			if condV, has := obj.Get("condition"); has {
				if cond, isCondObj := condV.(*ordered.Map); isCondObj {
					if h, _ := cond.GetOr("hidden", false).(bool); h {
						return true
					}
				}
			}
		}
		if hidden := layoutHidesAll(obj); hidden {
			return true
		}
		if ph, _ := obj.GetOr("$parentHide", false).(bool); ph {
			return true
		}
	}
	return false
}

func layoutHidesAll(obj *ordered.Map) bool {
	if hlV, ok := obj.Get("hideLayout"); ok {
		if hl, isObj := hlV.(*ordered.Map); isObj {
			if all, _ := hl.GetOr("all", false).(bool); all {
				return true
			}
		}
	}
	if layoutV, ok := obj.Get("$layout"); ok {
		if layout, isObj := layoutV.(*ordered.Map); isObj {
			if hlV, has := layout.Get("hideLayout"); has {
				if hl, isHlObj := hlV.(*ordered.Map); isHlObj {
					if all, _ := hl.GetOr("all", false).(bool); all {
						return true
					}
				}
			}
		}
	}
	return false
}
