package logic

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// parallelThreshold is the minimum element count before array operators
// fan out across goroutines (when parallelism is enabled).
const parallelThreshold = 10

func (e *Evaluator) parallelFor(n int) bool {
	return e.cfg.Parallel && n >= parallelThreshold
}

// evalMap evaluates the body with each element as user data and an empty
// internal context; results keep positional order.
func (e *Evaluator) evalMap(c *Compiled, data, ctx any, depth int) (any, error) {
	arrV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	arr, ok := arrV.([]any)
	if !ok {
		return []any{}, nil
	}
	body := c.Args[1]
	results := make([]any, len(arr))

	if e.parallelFor(len(arr)) {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, item := range arr {
			i, item := i, item
			g.Go(func() error {
				v, err := e.eval(body, item, nil, depth+1)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i, item := range arr {
		v, err := e.eval(body, item, nil, depth+1)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}

func (e *Evaluator) evalFilter(c *Compiled, data, ctx any, depth int) (any, error) {
	arrV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	arr, ok := arrV.([]any)
	if !ok {
		return []any{}, nil
	}
	pred := c.Args[1]

	if e.parallelFor(len(arr)) {
		keep := make([]bool, len(arr))
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, item := range arr {
			i, item := i, item
			g.Go(func() error {
				v, err := e.eval(pred, item, nil, depth+1)
				if err != nil {
					return err
				}
				keep[i] = Truthy(v)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(arr))
		for i, item := range arr {
			if keep[i] {
				out = append(out, item)
			}
		}
		return out, nil
	}

	out := make([]any, 0, len(arr))
	for _, item := range arr {
		v, err := e.eval(pred, item, nil, depth+1)
		if err != nil {
			return nil, err
		}
		if Truthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

// evalReduce exposes a synthetic {current, accumulator} scope to the body.
func (e *Evaluator) evalReduce(c *Compiled, data, ctx any, depth int) (any, error) {
	arrV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	var acc any
	if len(c.Args) > 2 {
		acc, err = e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
	}
	arr, ok := arrV.([]any)
	if !ok {
		return acc, nil
	}
	body := c.Args[1]
	for _, item := range arr {
		scope := ordered.NewMapCapacity(2)
		scope.Set("current", item)
		scope.Set("accumulator", acc)
		acc, err = e.eval(body, scope, nil, depth+1)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (e *Evaluator) evalQuantifier(c *Compiled, data, ctx any, depth int) (any, error) {
	arrV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	arr, ok := arrV.([]any)
	if !ok {
		switch c.Op {
		case OpNone:
			return true, nil
		default:
			return false, nil
		}
	}
	pred := c.Args[1]
	for _, item := range arr {
		v, err := e.eval(pred, item, nil, depth+1)
		if err != nil {
			return nil, err
		}
		truthy := Truthy(v)
		switch c.Op {
		case OpAll:
			if !truthy {
				return false, nil
			}
		case OpSome:
			if truthy {
				return true, nil
			}
		case OpNone:
			if truthy {
				return false, nil
			}
		}
	}
	switch c.Op {
	case OpAll, OpNone:
		return true, nil
	default:
		return false, nil
	}
}

// evalMerge flattens one level of arrays; non-array arguments append as-is.
func (e *Evaluator) evalMerge(args []*Compiled, data, ctx any, depth int) (any, error) {
	merged := []any{}
	for _, arg := range args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if arr, ok := v.([]any); ok {
			merged = append(merged, arr...)
		} else {
			merged = append(merged, v)
		}
	}
	return merged, nil
}

// hashSetThreshold: above this size, "in" over scalar arrays switches to a
// set lookup.
const hashSetThreshold = 32

func (e *Evaluator) evalIn(c *Compiled, data, ctx any, depth int) (any, error) {
	needle, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	haystackV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	switch haystack := haystackV.(type) {
	case []any:
		if len(haystack) > hashSetThreshold {
			if key, ok := scalarKey(needle); ok {
				set := make(map[string]struct{}, len(haystack))
				allScalar := true
				for _, item := range haystack {
					itemKey, ok := scalarKey(item)
					if !ok {
						allScalar = false
						break
					}
					set[itemKey] = struct{}{}
				}
				if allScalar {
					_, found := set[key]
					return found, nil
				}
			}
		}
		for _, item := range haystack {
			if LooseEqual(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		if s, ok := needle.(string); ok {
			return containsSubstring(haystack, s), nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// evalSum tolerates nulls and missing fields, treating them as 0.
func (e *Evaluator) evalSum(c *Compiled, data, ctx any, depth int) (any, error) {
	arrV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	arr, ok := arrV.([]any)
	if !ok {
		return e.numResult(ToNumber(arrV)), nil
	}

	var fieldName string
	hasField := false
	if len(c.Args) > 1 {
		fv, err := e.eval(c.Args[1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if s, ok := fv.(string); ok {
			fieldName = s
			hasField = true
		}
	}

	var sum float64
	for _, item := range arr {
		if hasField {
			if obj, ok := item.(*ordered.Map); ok {
				if v, ok := obj.Get(fieldName); ok {
					sum += ToNumber(v)
				}
			}
			continue
		}
		sum += ToNumber(item)
	}
	return e.numResult(sum), nil
}

// evalFor runs the body for each integer i in [start, end), exposing
// $loopIteration in the internal context and leaving user data untouched.
func (e *Evaluator) evalFor(c *Compiled, data, ctx any, depth int) (any, error) {
	startV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	endV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	start := int64(ToNumber(startV))
	end := int64(ToNumber(endV))
	body := c.Args[2]

	results := []any{}
	for i := start; i < end; i++ {
		loopCtx := ordered.NewMapCapacity(1)
		loopCtx.Set("$loopIteration", float64(i))
		v, err := e.eval(body, data, loopCtx, depth+1)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// evalMultiplies multiplies the flattened argument values. A single FOR
// argument is fused: the product accumulates directly without
// materializing the iteration array.
func (e *Evaluator) evalMultiplies(args []*Compiled, data, ctx any, depth int) (any, error) {
	if len(args) == 1 && args[0].Op == OpFor {
		return e.evalMultipliesFor(args[0], data, ctx, depth)
	}
	values, err := e.flattenNumbers(args, data, ctx, depth)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	result := values[0]
	for _, n := range values[1:] {
		result *= n
	}
	return e.numResult(result), nil
}

func (e *Evaluator) evalMultipliesFor(forNode *Compiled, data, ctx any, depth int) (any, error) {
	startV, err := e.eval(forNode.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	endV, err := e.eval(forNode.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	start := int64(ToNumber(startV))
	end := int64(ToNumber(endV))
	if start >= end {
		return nil, nil
	}
	body := forNode.Args[2]

	if e.parallelFor(int(end - start)) {
		products := make([]float64, end-start)
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				loopCtx := ordered.NewMapCapacity(1)
				loopCtx.Set("$loopIteration", float64(i))
				v, err := e.eval(body, data, loopCtx, depth+1)
				if err != nil {
					return err
				}
				products[i-start] = ToNumber(v)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		product := 1.0
		for _, p := range products {
			product *= p
		}
		return e.numResult(product), nil
	}

	product := 1.0
	for i := start; i < end; i++ {
		loopCtx := ordered.NewMapCapacity(1)
		loopCtx.Set("$loopIteration", float64(i))
		v, err := e.eval(body, data, loopCtx, depth+1)
		if err != nil {
			return nil, err
		}
		product *= ToNumber(v)
	}
	return e.numResult(product), nil
}

// evalDivides folds the flattened values left to right, skipping zero
// divisors.
func (e *Evaluator) evalDivides(args []*Compiled, data, ctx any, depth int) (any, error) {
	values, err := e.flattenNumbers(args, data, ctx, depth)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	result := values[0]
	for _, n := range values[1:] {
		if n != 0 {
			result /= n
		}
	}
	return e.numResult(result), nil
}

// flattenNumbers evaluates each argument and collapses array results into
// their numeric elements.
func (e *Evaluator) flattenNumbers(args []*Compiled, data, ctx any, depth int) ([]float64, error) {
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if arr, ok := v.([]any); ok {
			for _, el := range arr {
				values = append(values, ToNumber(el))
			}
			continue
		}
		values = append(values, ToNumber(v))
	}
	return values, nil
}
