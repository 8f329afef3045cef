package jsoneval

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// CacheKey identifies a memoized evaluation result: the eval key plus one
// combined hash over all dependency values.
type CacheKey struct {
	EvalKey  string
	DepsHash uint64
}

// hashValueInto hashes a decoded value with type-discriminated prefixes so
// distinct shapes never collide.
func hashValueInto(d *xxhash.Digest, v any) {
	var tag [1]byte
	switch t := v.(type) {
	case nil:
		tag[0] = 0x00
		_, _ = d.Write(tag[:])
	case bool:
		tag[0] = 0x01
		_, _ = d.Write(tag[:])
		if t {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
	case float64:
		tag[0] = 0x02
		_, _ = d.Write(tag[:])
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(t))
		_, _ = d.Write(buf[:])
	case string:
		tag[0] = 0x03
		_, _ = d.Write(tag[:])
		_, _ = d.WriteString(t)
	case []any:
		tag[0] = 0x04
		_, _ = d.Write(tag[:])
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(len(t)))
		_, _ = d.Write(buf[:])
		for _, el := range t {
			hashValueInto(d, el)
		}
	case *ordered.Map:
		tag[0] = 0x05
		_, _ = d.Write(tag[:])
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(t.Len()))
		_, _ = d.Write(buf[:])
		t.Range(func(k string, el any) bool {
			_, _ = d.WriteString(k)
			hashValueInto(d, el)
			return true
		})
	}
}

// NewCacheKey hashes the dependency values of an eval key in insertion
// order.
func NewCacheKey(evalKey string, deps []string, lookup func(string) (any, bool)) CacheKey {
	if len(deps) == 0 {
		return CacheKey{EvalKey: evalKey}
	}
	d := xxhash.New()
	for _, dep := range deps {
		_, _ = d.WriteString(dep)
		if v, ok := lookup(dep); ok {
			hashValueInto(d, v)
		} else {
			_, _ = d.Write([]byte{0xff})
		}
	}
	return CacheKey{EvalKey: evalKey, DepsHash: d.Sum64()}
}

// EvalCache memoizes evaluation results keyed by (eval key, deps hash).
// It is safe for concurrent use.
type EvalCache struct {
	mu      sync.RWMutex
	entries map[CacheKey]any

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewEvalCache creates an empty cache.
func NewEvalCache() *EvalCache {
	return &EvalCache{entries: make(map[CacheKey]any)}
}

// Get returns the cached value for key, recording a hit or miss.
func (c *EvalCache) Get(key CacheKey) (any, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Insert stores a value under key.
func (c *EvalCache) Insert(key CacheKey, value any) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Remove deletes one entry.
func (c *EvalCache) Remove(key CacheKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Retain keeps only the entries for which pred returns true.
func (c *EvalCache) Retain(pred func(CacheKey) bool) {
	c.mu.Lock()
	for k := range c.entries {
		if !pred(k) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries and resets the counters.
func (c *EvalCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[CacheKey]any)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of cached entries.
func (c *EvalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
	HitRate float64
}

// Stats snapshots the counters.
func (c *EvalCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{Hits: hits, Misses: misses, Entries: c.Len(), HitRate: rate}
}

func (s CacheStats) String() string {
	return fmt.Sprintf("Cache Stats: %d entries, %d hits, %d misses, %.2f%% hit rate",
		s.Entries, s.Hits, s.Misses, s.HitRate*100)
}

// shouldCacheDependency reports whether a dependency participates in the
// cache key. Keys starting with "$" are ambient schema params already part
// of the expression content, except $context which is session state.
func shouldCacheDependency(key string) bool {
	if strings.HasPrefix(key, "/$") || strings.HasPrefix(key, "$") {
		return key == "$context" || strings.HasPrefix(key, "$context.") || strings.HasPrefix(key, "/$context")
	}
	return true
}

// cacheKeyFor builds the cache key of an eval key from the current
// dependency values.
func (je *JSONEval) cacheKeyFor(evalKey string) CacheKey {
	deps := je.parsed.dependencies[evalKey]
	if len(deps) == 0 {
		return CacheKey{EvalKey: evalKey}
	}
	filtered := make([]string, 0, len(deps))
	for _, dep := range deps {
		if shouldCacheDependency(dep) {
			filtered = append(filtered, dep)
		}
	}
	return NewCacheKey(evalKey, filtered, func(dep string) (any, bool) {
		return je.evalData.Get(DotToPointer(dep))
	})
}

// purgeCacheForChangedData removes every cache entry whose eval key
// depends on any changed data path, using the flexible matcher in both
// directions. Over-purging is safe; under-purging is not.
func (je *JSONEval) purgeCacheForChangedData(changedPaths []string) {
	if len(changedPaths) == 0 {
		return
	}
	affected := make(map[string]struct{})
	for _, evalKey := range je.parsed.depOrder {
		for _, dep := range je.parsed.dependencies[evalKey] {
			matched := false
			for _, changed := range changedPaths {
				if pathsMatchFlexible(dep, changed) || pathsMatchFlexible(changed, dep) {
					matched = true
					break
				}
			}
			if matched {
				affected[evalKey] = struct{}{}
				break
			}
		}
	}
	je.cache.Retain(func(key CacheKey) bool {
		_, hit := affected[key.EvalKey]
		return !hit
	})
}

// purgeCacheForChangedDataCompared purges only for paths whose value
// actually differs between the old and new data objects.
func (je *JSONEval) purgeCacheForChangedDataCompared(changedPaths []string, oldData, newData *ordered.Map) {
	var actuallyChanged []string
	for _, path := range changedPaths {
		oldV, _ := getByPointer(oldData, DotToPointer(path))
		newV, _ := getByPointer(newData, DotToPointer(path))
		if !logic.DeepEqual(oldV, newV) {
			actuallyChanged = append(actuallyChanged, path)
		}
	}
	je.purgeCacheForChangedData(actuallyChanged)
}

// purgeCacheForContextChange removes entries whose deps include any
// $context path.
func (je *JSONEval) purgeCacheForContextChange() {
	affected := make(map[string]struct{})
	for _, evalKey := range je.parsed.depOrder {
		for _, dep := range je.parsed.dependencies[evalKey] {
			if dep == "$context" || strings.HasPrefix(dep, "$context.") || strings.HasPrefix(dep, "/$context") {
				affected[evalKey] = struct{}{}
				break
			}
		}
	}
	je.cache.Retain(func(key CacheKey) bool {
		_, hit := affected[key.EvalKey]
		return !hit
	})
}
