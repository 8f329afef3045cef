package jsoneval

import (
	"context"
	"fmt"
	"strings"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// EvaluateDependents computes the minimal recomputation plan for a set of
// changed data paths, re-evaluates it in topological order, and returns
// the produced change events. Each event is an object shaped
// {"$ref": <dotted field>, "value": <new>, "$hidden"?: bool, "clear"?: bool}.
//
// Propagation is recursive: when a re-evaluated result lands in a data
// slot observed by other expressions, those join the plan until a fixed
// point is reached. When reEvaluate is true, rule expressions of affected
// fields are refreshed as well.
func (je *JSONEval) EvaluateDependents(ctx context.Context, changedPaths []string, dataJSON, contextJSON string, reEvaluate bool) ([]*ordered.Map, error) {
	je.mu.Lock()
	defer je.mu.Unlock()

	if dataJSON != "" {
		data, err := decodeObject(dataJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: data: %w", ErrDataParse, err)
		}
		var contextObj *ordered.Map
		if contextJSON != "" {
			contextObj, err = decodeObject(contextJSON)
			if err != nil {
				return nil, fmt.Errorf("%w: context: %w", ErrDataParse, err)
			}
		}
		je.evalData.ReplaceData(data, contextObj)
		je.injectParams()
		if contextObj != nil {
			je.purgeCacheForContextChange()
		}
	}
	je.purgeCacheForChangedData(changedPaths)

	ctxWrapper := je.contextWrapper()
	var events []*ordered.Map
	evaluated := make(map[string]struct{})
	allChanged := append([]string(nil), changedPaths...)

	frontier := changedPaths
	// The dependency graph is a finite DAG, so propagation reaches a fixed
	// point; the round bound is a defensive ceiling.
	maxRounds := len(je.parsed.evaluations.keys) + 1
	for round := 0; round < maxRounds && len(frontier) > 0; round++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		affected := je.keysAffectedBy(frontier)
		var nextFrontier []string

		for _, batch := range je.parsed.sortedEvaluations {
			for _, key := range batch {
				if _, hit := affected[key]; !hit {
					continue
				}
				// A key may re-run in a later round when another of its
				// dependencies changes; unchanged results stop propagation.
				evaluated[key] = struct{}{}

				newValue, err := je.evaluateKey(key, ctxWrapper)
				if err != nil {
					return nil, err
				}

				dataPath := dataPathOf(key)
				changedSlot := false
				if _, isTable := je.parsed.tables[key]; isTable {
					old, _ := je.evalData.Get(DotToPointer(dataPath))
					changedSlot = !logic.DeepEqual(old, newValue)
				} else if je.parsed.valueEvaluations.has(key) {
					old, _ := je.evalData.Get(DotToPointer(dataPath))
					changedSlot = !logic.DeepEqual(old, newValue)
				}
				je.writeEvalResult(key, newValue)

				if changedSlot {
					events = append(events, changeEvent(dataPath, newValue, nil, false))
					nextFrontier = append(nextFrontier, dataPath)
					allChanged = append(allChanged, dataPath)
				}

				if hiddenEvents, hiddenChanged := je.applyHiddenPolicy(key, newValue); len(hiddenEvents) > 0 {
					events = append(events, hiddenEvents...)
					nextFrontier = append(nextFrontier, hiddenChanged...)
					allChanged = append(allChanged, hiddenChanged...)
				}
			}
		}

		je.purgeCacheForChangedData(nextFrontier)
		frontier = nextFrontier
	}

	if reEvaluate {
		for _, entry := range je.parsed.ruleEvaluations.entries() {
			if _, done := evaluated[entry.Key]; done {
				continue
			}
			if !je.keyDependsOn(entry.Key, allChanged) {
				continue
			}
			v, err := je.evaluateKey(entry.Key, ctxWrapper)
			if err != nil {
				return nil, err
			}
			je.writeEvalResult(entry.Key, v)
		}
	}

	return events, nil
}

// keysAffectedBy returns the eval keys whose dependencies intersect the
// changed paths under the flexible matcher.
func (je *JSONEval) keysAffectedBy(changed []string) map[string]struct{} {
	affected := make(map[string]struct{})
	for _, key := range je.parsed.evaluations.keys {
		if je.keyDependsOn(key, changed) {
			affected[key] = struct{}{}
		}
	}
	return affected
}

func (je *JSONEval) keyDependsOn(key string, changed []string) bool {
	for _, dep := range je.parsed.dependencies[key] {
		for _, c := range changed {
			if pathsMatchFlexible(dep, c) || pathsMatchFlexible(c, dep) {
				return true
			}
		}
	}
	return false
}

// applyHiddenPolicy handles condition.hidden re-evaluations. A newly
// hidden field either keeps its data (keepHiddenValue: true, event carries
// $hidden without a clear) or is cleared, which may itself propagate.
func (je *JSONEval) applyHiddenPolicy(key string, newValue any) ([]*ordered.Map, []string) {
	const suffix = "/condition/hidden"
	if !strings.HasSuffix(key, suffix) {
		return nil, nil
	}
	fieldPtr := strings.TrimSuffix(key, suffix)
	fieldDataPath := PointerToDot(SchemaPointerToDataPointer(fieldPtr))
	if fieldDataPath == "" {
		return nil, nil
	}

	if !logic.Truthy(newValue) {
		return nil, nil
	}

	keep := je.fieldKeepsHiddenValue(fieldPtr)
	if keep {
		hidden := true
		return []*ordered.Map{changeEvent(fieldDataPath, nil, &hidden, false)}, nil
	}

	old, had := je.evalData.Get(DotToPointer(fieldDataPath))
	je.evalData.Set(DotToPointer(fieldDataPath), nil)
	hidden := true
	event := changeEvent(fieldDataPath, nil, &hidden, true)
	if had && old != nil {
		// The cleared slot may feed other expressions.
		return []*ordered.Map{event}, []string{fieldDataPath}
	}
	return []*ordered.Map{event}, nil
}

func (je *JSONEval) fieldKeepsHiddenValue(fieldPtr string) bool {
	field, ok := getByPointer(je.evaluatedSchema, fieldPtr)
	if !ok {
		return false
	}
	obj, isObj := field.(*ordered.Map)
	if !isObj {
		return false
	}
	v, _ := obj.Get("keepHiddenValue")
	b, _ := v.(bool)
	return b
}

func changeEvent(ref string, value any, hidden *bool, clear bool) *ordered.Map {
	event := ordered.NewMapCapacity(3)
	event.Set("$ref", ref)
	if hidden == nil {
		event.Set("value", value)
		return event
	}
	event.Set("$hidden", *hidden)
	if clear {
		event.Set("clear", true)
	}
	return event
}
