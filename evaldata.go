package jsoneval

import (
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// EvalData holds the mutable per-session state: the data object, the
// context object, and a version counter bumped on every mutation. It is
// shared under single-writer-many-reader discipline; the owning evaluator
// serializes writers with its call lock.
type EvalData struct {
	data    *ordered.Map
	context *ordered.Map
	version uint64
}

// NewEvalData creates EvalData from data and context objects. Nil inputs
// become empty objects.
func NewEvalData(data, context *ordered.Map) *EvalData {
	if data == nil {
		data = ordered.NewMap()
	}
	if context == nil {
		context = ordered.NewMap()
	}
	return &EvalData{data: data, context: context}
}

// Data returns the data object.
func (d *EvalData) Data() *ordered.Map {
	return d.data
}

// Context returns the context object.
func (d *EvalData) Context() *ordered.Map {
	return d.context
}

// Version returns the mutation counter.
func (d *EvalData) Version() uint64 {
	return d.version
}

// Get resolves a pointer or dotted path against the data object. Paths
// prefixed "$context" resolve against the context object instead.
func (d *EvalData) Get(path string) (any, bool) {
	segs := splitPathSegments(path)
	if len(segs) > 0 && segs[0] == "$context" {
		if len(segs) == 1 {
			return d.context, true
		}
		return getByPointer(d.context, "/"+joinSegments(segs[1:]))
	}
	if len(segs) == 0 {
		return d.data, true
	}
	return getByPointer(d.data, path)
}

// Set writes a value into the data object, bumping the version counter.
func (d *EvalData) Set(path string, value any) {
	if setByPointer(d.data, path, value) {
		d.version++
	}
}

// Delete removes a value from the data object.
func (d *EvalData) Delete(path string) {
	deleteByPointer(d.data, path)
	d.version++
}

// PushToArray appends a value to the array at path, creating the array
// when absent.
func (d *EvalData) PushToArray(path string, value any) {
	existing, ok := d.Get(path)
	arr, isArr := existing.([]any)
	if !ok || !isArr {
		arr = []any{}
	}
	arr = append(arr, value)
	d.Set(path, arr)
}

// GetTableRow returns the row object at index of the table array at path.
func (d *EvalData) GetTableRow(path string, idx int) (*ordered.Map, bool) {
	v, ok := d.Get(path)
	if !ok {
		return nil, false
	}
	arr, isArr := v.([]any)
	if !isArr || idx < 0 || idx >= len(arr) {
		return nil, false
	}
	row, isObj := arr[idx].(*ordered.Map)
	return row, isObj
}

// ReplaceData swaps in new data and context objects.
func (d *EvalData) ReplaceData(data, context *ordered.Map) {
	if data != nil {
		d.data = data
	}
	if context != nil {
		d.context = context
	}
	d.version++
}

// Clone deep-copies the data and context, producing an isolated sandbox.
func (d *EvalData) Clone() *EvalData {
	return &EvalData{
		data:    d.data.Clone(),
		context: d.context.Clone(),
	}
}

// CloneDataWithout deep-copies the data object minus the given top-level
// keys.
func (d *EvalData) CloneDataWithout(skip ...string) *ordered.Map {
	out := d.data.Clone()
	for _, key := range skip {
		out.Delete(key)
	}
	return out
}

func joinSegments(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
