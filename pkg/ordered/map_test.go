package ordered

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreservesKeyOrder(t *testing.T) {
	v, err := Decode([]byte(`{"z": 1, "a": {"y": true, "b": [1, "x", null]}, "m": 2}`))
	require.NoError(t, err)

	obj, ok := v.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	nested, _ := obj.Get("a")
	nestedObj, ok := nested.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"y", "b"}, nestedObj.Keys())

	arr, _ := nestedObj.Get("b")
	assert.Equal(t, []any{float64(1), "x", nil}, arr)
}

func TestMarshalRoundTrip(t *testing.T) {
	src := `{"z":1,"a":{"y":true},"m":[1,2]}`
	v, err := Decode([]byte(src))
	require.NoError(t, err)
	out, err := v.(*Map).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))
	// Byte-identical because key order survives.
	assert.Equal(t, src, string(out))
}

func TestSetPreservesPosition(t *testing.T) {
	m := NewMap()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 3)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, 3, m.GetOr("a", nil))
}

func TestDelete(t *testing.T) {
	m := NewMap()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Delete("b")
	assert.Equal(t, []string{"a", "c"}, m.Keys())
	assert.False(t, m.Has("b"))
}

func TestCloneIsDeep(t *testing.T) {
	v, err := Decode([]byte(`{"a": {"b": [1, 2]}}`))
	require.NoError(t, err)
	orig := v.(*Map)
	clone := orig.Clone()

	inner, _ := clone.Get("a")
	inner.(*Map).Set("b", "mutated")

	origInner, _ := orig.Get("a")
	assert.Equal(t, []any{float64(1), float64(2)}, origInner.(*Map).GetOr("b", nil))
}
