package jsoneval

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// Evaluate parses the given data and context documents, selectively purges
// the cache for changed paths, and runs every evaluation batch, writing
// computed values into the evaluated schema and the session data. An
// optional paths filter scopes the pass to eval keys under the given
// dotted field paths.
func (je *JSONEval) Evaluate(ctx context.Context, dataJSON, contextJSON string, paths []string) error {
	je.mu.Lock()
	defer je.mu.Unlock()
	return je.evaluateLocked(ctx, dataJSON, contextJSON, paths)
}

func (je *JSONEval) evaluateLocked(ctx context.Context, dataJSON, contextJSON string, paths []string) error {
	oldData := je.evalData.CloneDataWithout("$params")

	data, err := decodeObject(dataJSON)
	if err != nil {
		return fmt.Errorf("%w: data: %w", ErrDataParse, err)
	}
	var contextObj *ordered.Map
	if contextJSON != "" {
		contextObj, err = decodeObject(contextJSON)
		if err != nil {
			return fmt.Errorf("%w: context: %w", ErrDataParse, err)
		}
	}

	je.evalData.ReplaceData(data, contextObj)
	je.injectParams()

	changed := diffDataPaths(oldData, data, "")
	je.purgeCacheForChangedData(changed)
	if contextObj != nil {
		je.purgeCacheForContextChange()
	}

	je.track(&je.evalPasses)
	return je.runBatches(ctx, paths)
}

// runBatches executes the wave-ordered evaluation plan. Keys inside one
// batch are independent; when parallelism is enabled they run
// concurrently.
func (je *JSONEval) runBatches(ctx context.Context, paths []string) error {
	ctxWrapper := je.contextWrapper()

	for _, batch := range je.parsed.sortedEvaluations {
		if err := checkCancelled(ctx); err != nil {
			return err
		}

		selected := batch
		if len(paths) > 0 {
			selected = selected[:0:0]
			for _, key := range batch {
				if keyMatchesFilter(key, paths) {
					selected = append(selected, key)
				}
			}
		}
		if len(selected) == 0 {
			continue
		}

		if je.options.Parallel && len(selected) > 1 {
			results := make([]any, len(selected))
			var g errgroup.Group
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, key := range selected {
				i, key := i, key
				g.Go(func() error {
					v, err := je.evaluateKey(key, ctxWrapper)
					if err != nil {
						return err
					}
					results[i] = v
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for i, key := range selected {
				je.writeEvalResult(key, results[i])
			}
			continue
		}

		for _, key := range selected {
			v, err := je.evaluateKey(key, ctxWrapper)
			if err != nil {
				return err
			}
			je.writeEvalResult(key, v)
		}
	}
	return nil
}

// contextWrapper exposes the context object to expressions under the
// $context prefix; $context is reachable only through Ref access.
func (je *JSONEval) contextWrapper() *ordered.Map {
	wrapper := ordered.NewMapCapacity(1)
	wrapper.Set("$context", je.evalData.Context())
	return wrapper
}

// evaluateKey computes one eval key: table generators run in their
// sandbox; expression sites go through the cache. A per-node evaluation
// error degrades the slot to null (a failed table to an empty array); only
// recursion overflow is returned as an error and aborts the pass.
func (je *JSONEval) evaluateKey(key string, ctxWrapper *ordered.Map) (any, error) {
	if _, isTable := je.parsed.tables[key]; isTable {
		rows, err := je.evaluateTable(key, je.evalData)
		if err != nil {
			return []any{}, nil
		}
		return rows, nil
	}

	id, ok := je.parsed.evaluations.get(key)
	if !ok || id == 0 {
		return nil, nil
	}

	var cacheKey CacheKey
	if je.cacheEnabled {
		cacheKey = je.cacheKeyFor(key)
		if v, hit := je.cache.Get(cacheKey); hit {
			return v, nil
		}
	}

	je.track(&je.exprEvals)
	v, err := je.engine.Run(id, je.evalData.Data(), ctxWrapper)
	if err != nil {
		if errors.Is(err, logic.ErrRecursionLimit) {
			return nil, err
		}
		return nil, nil
	}
	if je.cacheEnabled {
		je.cache.Insert(cacheKey, v)
	}
	return v, nil
}

// writeEvalResult materializes a computed value: every eval key replaces
// its node in the evaluated schema; value sites, $params sites, and table
// generators additionally flow into the session data.
func (je *JSONEval) writeEvalResult(key string, value any) {
	dataPath := dataPathOf(key)

	if _, isTable := je.parsed.tables[key]; isTable {
		je.evalData.Set(DotToPointer(dataPath), value)
		setByPointer(je.evaluatedSchema, key+"/items", ordered.CloneValue(value))
		return
	}

	setByPointer(je.evaluatedSchema, key, ordered.CloneValue(value))

	if je.parsed.valueEvaluations.has(key) || strings.HasPrefix(dataPath, "$params") {
		je.evalData.Set(DotToPointer(dataPath), ordered.CloneValue(value))
	}
}

// keyMatchesFilter reports whether an eval key lies under any filter path,
// tolerating structural schema keywords.
func keyMatchesFilter(key string, paths []string) bool {
	keyDot := dataPathOf(key)
	for _, p := range paths {
		if p == "" {
			return true
		}
		if keyDot == p || strings.HasPrefix(keyDot, p+".") || strings.HasPrefix(p, keyDot+".") {
			return true
		}
		if pathsMatchFlexible(key, p) {
			return true
		}
	}
	return false
}

func checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	default:
		return nil
	}
}

// diffDataPaths walks two data objects and returns the dotted paths whose
// values differ; a type mismatch or a missing branch reports the branch
// root.
func diffDataPaths(oldData, newData any, prefix string) []string {
	if logic.DeepEqual(oldData, newData) {
		return nil
	}
	oldObj, oldIsObj := oldData.(*ordered.Map)
	newObj, newIsObj := newData.(*ordered.Map)
	if !oldIsObj || !newIsObj {
		if prefix == "" {
			return []string{"/"}
		}
		return []string{prefix}
	}

	var out []string
	seen := make(map[string]struct{})
	newObj.Range(func(k string, newV any) bool {
		seen[k] = struct{}{}
		if k == "$params" {
			return true
		}
		childPrefix := k
		if prefix != "" {
			childPrefix = prefix + "." + k
		}
		oldV, _ := oldObj.Get(k)
		out = append(out, diffDataPaths(oldV, newV, childPrefix)...)
		return true
	})
	oldObj.Range(func(k string, oldV any) bool {
		if _, ok := seen[k]; ok || k == "$params" {
			return true
		}
		childPrefix := k
		if prefix != "" {
			childPrefix = prefix + "." + k
		}
		out = append(out, childPrefix)
		return true
	})
	return out
}
