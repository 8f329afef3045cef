package jsoneval

import (
	"strconv"
	"strings"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// structuralKeywords are schema tree segments that carry no data-path
// meaning; they are skipped when aligning a schema pointer against a data
// pointer.
var structuralKeywords = map[string]struct{}{
	"properties":  {},
	"definitions": {},
	"$defs":       {},
	"allOf":       {},
	"anyOf":       {},
	"oneOf":       {},
	"not":         {},
	"if":          {},
	"then":        {},
	"else":        {},

	"dependentSchemas": {},
	"$params":          {},
	"dependencies":     {},
}

func isStructuralKeyword(seg string) bool {
	_, ok := structuralKeywords[seg]
	return ok
}

func isNumericSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, ch := range seg {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// DotToPointer converts a dotted path to a JSON pointer: "a.b.0.c" becomes
// "/a/b/0/c". Paths already in pointer form pass through.
func DotToPointer(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + strings.ReplaceAll(path, ".", "/")
}

// PointerToDot converts a JSON pointer to dotted form: "/a/b/0/c" becomes
// "a.b.0.c".
func PointerToDot(ptr string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	return strings.ReplaceAll(trimmed, "/", ".")
}

// DotToSchemaPointer converts a dotted data path into the schema-aware
// pointer form used to address field definitions: "a.b" becomes
// "/a/properties/b". Callers fall back to a "/properties" prefix when the
// top-level segment is itself a property.
func DotToSchemaPointer(path string) string {
	if path == "" {
		return ""
	}
	segs := strings.Split(strings.TrimPrefix(DotToPointer(path), "/"), "/")
	var sb strings.Builder
	for i, seg := range segs {
		if i == 0 {
			sb.WriteString("/" + seg)
			continue
		}
		if isNumericSegment(seg) {
			sb.WriteString("/items")
			continue
		}
		sb.WriteString("/properties/" + seg)
	}
	return sb.String()
}

// SchemaPointerToDataPointer strips structural keywords from a schema
// pointer, yielding the data slot it addresses: "/properties/a/properties/b"
// becomes "/a/b". A branch index after allOf/anyOf/oneOf is dropped too:
// "/oneOf/0/properties/x" becomes "/x". A "$params" prefix is preserved
// because params live in the data object.
func SchemaPointerToDataPointer(ptr string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if trimmed == "" {
		return "/"
	}
	segs := strings.Split(trimmed, "/")
	out := make([]string, 0, len(segs))
	for i, seg := range segs {
		if seg == "$params" {
			out = append(out, seg)
			continue
		}
		if seg == "items" {
			// items is always dropped; a numeric index after it is kept as the
			// array index.
			if i+1 < len(segs) && isNumericSegment(segs[i+1]) {
				continue
			}
			continue
		}
		if isStructuralKeyword(seg) {
			continue
		}
		if i > 0 && isNumericSegment(seg) && (segs[i-1] == "allOf" || segs[i-1] == "anyOf" || segs[i-1] == "oneOf") {
			// A combinator's branch index addresses the schema, not the data.
			continue
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}

// pathsMatchFlexible reports whether a schema-side path structurally
// matches a data-side path, skipping structural keywords and schema
// indices. False positives are acceptable (they cause extra purges); false
// negatives are not.
func pathsMatchFlexible(schemaPath, dataPath string) bool {
	sSegs := splitPathSegments(schemaPath)
	dSegs := splitPathSegments(dataPath)

	dIdx := 0
	for i := 0; i < len(sSegs); i++ {
		if dIdx >= len(dSegs) {
			return true
		}
		sSeg := sSegs[i]
		dSeg := dSegs[dIdx]

		switch {
		case sSeg == dSeg:
			dIdx++
		case sSeg == "items":
			if isNumericSegment(dSeg) {
				dIdx++
			}
		case sSeg == "additionalProperties" || sSeg == "patternProperties":
			dIdx++
		case isStructuralKeyword(sSeg) || isNumericSegment(sSeg):
			continue
		default:
			return false
		}
	}
	return true
}

func splitPathSegments(path string) []string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "#"), "/")
	trimmed = strings.ReplaceAll(trimmed, ".", "/")
	if trimmed == "" {
		return nil
	}
	segs := strings.Split(trimmed, "/")
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getByPointer resolves a JSON pointer (or dotted path) against the ordered
// value model.
func getByPointer(root any, ptr string) (any, bool) {
	segs := splitPathSegments(ptr)
	cur := root
	for _, seg := range segs {
		switch t := cur.(type) {
		case *ordered.Map:
			v, ok := t.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			cur = t[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setByPointer writes a value at a JSON pointer (or dotted path), creating
// intermediate objects as needed. Array segments must already exist.
func setByPointer(root any, ptr string, value any) bool {
	segs := splitPathSegments(ptr)
	if len(segs) == 0 {
		return false
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch t := cur.(type) {
		case *ordered.Map:
			if last {
				t.Set(seg, value)
				return true
			}
			next, ok := t.Get(seg)
			if !ok || next == nil {
				child := ordered.NewMap()
				t.Set(seg, child)
				cur = child
				continue
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return false
			}
			if last {
				t[idx] = value
				return true
			}
			cur = t[idx]
		default:
			return false
		}
	}
	return false
}

// deleteByPointer removes the value at a JSON pointer from its parent
// object, if present.
func deleteByPointer(root any, ptr string) {
	segs := splitPathSegments(ptr)
	if len(segs) == 0 {
		return
	}
	parent, ok := getByPointer(root, "/"+strings.Join(segs[:len(segs)-1], "/"))
	if !ok {
		return
	}
	if obj, isObj := parent.(*ordered.Map); isObj {
		obj.Delete(segs[len(segs)-1])
	}
}
