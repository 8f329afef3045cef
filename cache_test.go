package jsoneval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyStability(t *testing.T) {
	values := map[string]any{
		"a": float64(1),
		"b": "two",
	}
	lookup := func(dep string) (any, bool) {
		v, ok := values[dep]
		return v, ok
	}

	k1 := NewCacheKey("/properties/x/value", []string{"a", "b"}, lookup)
	k2 := NewCacheKey("/properties/x/value", []string{"a", "b"}, lookup)
	assert.Equal(t, k1, k2)

	values["a"] = float64(2)
	k3 := NewCacheKey("/properties/x/value", []string{"a", "b"}, lookup)
	assert.NotEqual(t, k1, k3)
}

func TestCacheKeyTypeDiscrimination(t *testing.T) {
	// "1" (string) and 1 (number) must hash differently.
	asString := NewCacheKey("k", []string{"d"}, func(string) (any, bool) { return "1", true })
	asNumber := NewCacheKey("k", []string{"d"}, func(string) (any, bool) { return float64(1), true })
	assert.NotEqual(t, asString, asNumber)
}

func TestCacheOperations(t *testing.T) {
	cache := NewEvalCache()
	key := CacheKey{EvalKey: "test"}

	_, hit := cache.Get(key)
	assert.False(t, hit)
	assert.Equal(t, uint64(1), cache.Stats().Misses)

	cache.Insert(key, float64(42))
	v, hit := cache.Get(key)
	assert.True(t, hit)
	assert.Equal(t, float64(42), v)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 0.5, stats.HitRate)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, uint64(0), cache.Stats().Hits)
}

func TestCacheRetain(t *testing.T) {
	cache := NewEvalCache()
	cache.Insert(CacheKey{EvalKey: "a"}, 1)
	cache.Insert(CacheKey{EvalKey: "b"}, 2)
	cache.Insert(CacheKey{EvalKey: "c"}, 3)

	cache.Retain(func(k CacheKey) bool { return k.EvalKey != "b" })
	assert.Equal(t, 2, cache.Len())
	_, hit := cache.Get(CacheKey{EvalKey: "b"})
	assert.False(t, hit)
}

func TestCachePurgeSoundness(t *testing.T) {
	eval := newOrderEval(t)
	ctx := context.Background()
	require.NoError(t, eval.Evaluate(ctx, `{"price": 2, "quantity": 3}`, "{}", nil))
	require.Greater(t, eval.cache.Len(), 0)

	// Purging for a changed price must drop every entry whose eval key
	// depends on it directly. Entries that read it only through subtotal
	// are keyed on subtotal's value and are not purged here.
	eval.purgeCacheForChangedData([]string{"price"})
	eval.cache.Retain(func(k CacheKey) bool {
		for _, dep := range eval.parsed.dependencies[k.EvalKey] {
			if pathsMatchFlexible(dep, "price") || pathsMatchFlexible("price", dep) {
				t.Fatalf("entry %s still depends on purged path", k.EvalKey)
			}
		}
		return true
	})
}

func TestContextPurge(t *testing.T) {
	schema := `{
	  "properties": {
	    "greeting": {
	      "value": {"$evaluation": {"cat": ["Hi ", {"$ref": "$context.user"}]}}
	    }
	  }
	}`
	eval, err := New(schema, "", "{}")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, eval.Evaluate(ctx, `{}`, `{"user": "Ada"}`, nil))
	v, _ := eval.GetSchemaValueByPath("greeting")
	assert.Equal(t, "Hi Ada", v)

	// A context change purges context-dependent entries, so the new value
	// lands.
	require.NoError(t, eval.Evaluate(ctx, `{}`, `{"user": "Grace"}`, nil))
	v, _ = eval.GetSchemaValueByPath("greeting")
	assert.Equal(t, "Hi Grace", v)
}

func TestEnableDisableCache(t *testing.T) {
	eval := newOrderEval(t)
	require.NoError(t, eval.Evaluate(context.Background(), `{"price": 1, "quantity": 2}`, "{}", nil))
	require.Greater(t, eval.cache.Len(), 0)

	eval.DisableCache()
	assert.False(t, eval.IsCacheEnabled())
	assert.Equal(t, 0, eval.cache.Len())

	eval.EnableCache()
	assert.True(t, eval.IsCacheEnabled())
}
