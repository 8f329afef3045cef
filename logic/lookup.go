package logic

import "github.com/byrizki/jsoneval/pkg/ordered"

// resolveTable evaluates a table expression, with a fast path for plain
// Var/Ref access that avoids copying the table.
func (e *Evaluator) resolveTable(tableExpr *Compiled, data, ctx any, depth int) ([]any, bool) {
	var v any
	switch tableExpr.Op {
	case OpVar:
		if got, ok := GetPath(data, tableExpr.Segs); ok {
			v = got
		} else if got, ok := GetPath(ctx, tableExpr.Segs); ok {
			v = got
		}
	case OpRef:
		if got, ok := GetPath(data, tableExpr.Segs); ok {
			v = got
		} else if got, ok := GetPath(ctx, tableExpr.Segs); ok {
			v = got
		}
	default:
		got, err := e.eval(tableExpr, data, ctx, depth+1)
		if err != nil {
			return nil, false
		}
		v = got
	}
	arr, ok := v.([]any)
	return arr, ok
}

// tablesMatch reports whether two table expressions reference the same
// table: both plain Var or Ref nodes with the same path.
func tablesMatch(a, b *Compiled) bool {
	if a == nil || b == nil {
		return false
	}
	if (a.Op != OpVar && a.Op != OpRef) || (b.Op != OpVar && b.Op != OpRef) {
		return false
	}
	return a.Path == b.Path
}

// evalValueAt returns table[idx][col] (or the whole row when col is
// omitted), null when out of range. When the index expression is itself a
// lookup over the same table, the two scans fuse into one pass.
func (e *Evaluator) evalValueAt(c *Compiled, data, ctx any, depth int) (any, error) {
	tableExpr := c.Args[0]
	idxExpr := c.Args[1]
	var colExpr *Compiled
	if len(c.Args) > 2 {
		colExpr = c.Args[2]
	}

	if fused, ok, err := e.tryFusedValueAt(tableExpr, idxExpr, colExpr, data, ctx, depth); err != nil {
		return nil, err
	} else if ok {
		return fused, nil
	}

	idxV, err := e.eval(idxExpr, data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	idx := int(ToNumber(idxV))
	arr, ok := e.resolveTable(tableExpr, data, ctx, depth)
	if !ok || idx < 0 || idx >= len(arr) {
		return nil, nil
	}
	return e.rowColumn(arr[idx], colExpr, data, ctx, depth)
}

func (e *Evaluator) rowColumn(row any, colExpr *Compiled, data, ctx any, depth int) (any, error) {
	if colExpr == nil {
		return row, nil
	}
	colV, err := e.eval(colExpr, data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	col, ok := colV.(string)
	if !ok {
		return nil, nil
	}
	obj, ok := row.(*ordered.Map)
	if !ok {
		return nil, nil
	}
	return obj.GetOr(col, nil), nil
}

// tryFusedValueAt detects valueat(table, <selector>(same table, ...), col)
// and executes a single scan that short-circuits on the first matching
// row.
func (e *Evaluator) tryFusedValueAt(tableExpr, idxExpr *Compiled, colExpr *Compiled, data, ctx any, depth int) (any, bool, error) {
	var innerTable *Compiled
	switch idxExpr.Op {
	case OpIndexAt:
		innerTable = idxExpr.Args[1]
	case OpFindIndex, OpMatch, OpMatchRange, OpChoose:
		innerTable = idxExpr.Args[0]
	default:
		return nil, false, nil
	}
	if !tablesMatch(tableExpr, innerTable) {
		return nil, false, nil
	}

	idxV, err := e.eval(idxExpr, data, ctx, depth+1)
	if err != nil {
		return nil, false, err
	}
	idx := int(ToNumber(idxV))
	arr, ok := e.resolveTable(tableExpr, data, ctx, depth)
	if !ok || idx < 0 || idx >= len(arr) {
		return nil, true, nil
	}
	v, err := e.rowColumn(arr[idx], colExpr, data, ctx, depth)
	return v, true, err
}

// evalMaxAt returns the named column of the last row; the table must be
// pre-sorted.
func (e *Evaluator) evalMaxAt(c *Compiled, data, ctx any, depth int) (any, error) {
	arr, ok := e.resolveTable(c.Args[0], data, ctx, depth)
	if !ok || len(arr) == 0 {
		return nil, nil
	}
	colV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	col, isStr := colV.(string)
	if !isStr {
		return nil, nil
	}
	last, isObj := arr[len(arr)-1].(*ordered.Map)
	if !isObj {
		return nil, nil
	}
	return last.GetOr(col, nil), nil
}

// evalIndexAt finds the first row whose field loose-equals the lookup
// (exact mode) or is <= the lookup (range mode); -1 when none.
func (e *Evaluator) evalIndexAt(c *Compiled, data, ctx any, depth int) (any, error) {
	lookupV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	fieldV, err := e.eval(c.Args[2], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	field, isStr := fieldV.(string)
	if !isStr {
		return float64(-1), nil
	}
	isRange := false
	if len(c.Args) > 3 {
		rv, err := e.eval(c.Args[3], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		isRange = Truthy(rv)
	}

	arr, ok := e.resolveTable(c.Args[1], data, ctx, depth)
	if !ok || len(arr) == 0 {
		return float64(-1), nil
	}

	lookupNum := ToNumber(lookupV)
	for idx, row := range arr {
		obj, isObj := row.(*ordered.Map)
		if !isObj {
			continue
		}
		cell, has := obj.Get(field)
		if !has {
			continue
		}
		if isRange {
			if ToNumber(cell) <= lookupNum {
				return float64(idx), nil
			}
		} else if LooseEqual(lookupV, cell) {
			return float64(idx), nil
		}
	}
	return float64(-1), nil
}

// pairConditions evaluates (value, column) pairs once, before the scan.
type pairCondition struct {
	value any
	field string
}

func (e *Evaluator) evalPairConditions(conditions []*Compiled, data, ctx any, depth int) ([]pairCondition, error) {
	pairs := make([]pairCondition, 0, len(conditions)/2)
	for i := 0; i+1 < len(conditions); i += 2 {
		value, err := e.eval(conditions[i], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		fieldV, err := e.eval(conditions[i+1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if field, ok := fieldV.(string); ok {
			pairs = append(pairs, pairCondition{value: value, field: field})
		}
	}
	return pairs, nil
}

// evalMatch returns the first row index where all (value, column) pairs
// loose-equal; -1 when none.
func (e *Evaluator) evalMatch(c *Compiled, data, ctx any, depth int) (any, error) {
	arr, ok := e.resolveTable(c.Args[0], data, ctx, depth)
	if !ok {
		return nil, nil
	}
	pairs, err := e.evalPairConditions(c.Args[1:], data, ctx, depth)
	if err != nil {
		return nil, err
	}
	for idx, row := range arr {
		obj, isObj := row.(*ordered.Map)
		if !isObj {
			continue
		}
		all := true
		for _, p := range pairs {
			cell, has := obj.Get(p.field)
			if !has || !LooseEqual(p.value, cell) {
				all = false
				break
			}
		}
		if all {
			return float64(idx), nil
		}
	}
	return float64(-1), nil
}

// evalMatchRange returns the first row index where, for each
// (minCol, maxCol, value) triple, row[minCol] <= value <= row[maxCol].
func (e *Evaluator) evalMatchRange(c *Compiled, data, ctx any, depth int) (any, error) {
	arr, ok := e.resolveTable(c.Args[0], data, ctx, depth)
	if !ok {
		return nil, nil
	}

	type rangeCondition struct {
		minCol, maxCol string
		value          float64
	}
	conditions := c.Args[1:]
	triples := make([]rangeCondition, 0, len(conditions)/3)
	for i := 0; i+2 < len(conditions); i += 3 {
		minV, err := e.eval(conditions[i], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		maxV, err := e.eval(conditions[i+1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		checkV, err := e.eval(conditions[i+2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		minCol, okMin := minV.(string)
		maxCol, okMax := maxV.(string)
		if okMin && okMax {
			triples = append(triples, rangeCondition{minCol, maxCol, ToNumber(checkV)})
		}
	}

	for idx, row := range arr {
		obj, isObj := row.(*ordered.Map)
		if !isObj {
			continue
		}
		all := true
		for _, t := range triples {
			minNum := ToNumber(obj.GetOr(t.minCol, nil))
			maxNum := ToNumber(obj.GetOr(t.maxCol, nil))
			if t.value < minNum || t.value > maxNum {
				all = false
				break
			}
		}
		if all {
			return float64(idx), nil
		}
	}
	return float64(-1), nil
}

// evalChoose returns the first row index where any (value, column) pair
// matches; -1 when none.
func (e *Evaluator) evalChoose(c *Compiled, data, ctx any, depth int) (any, error) {
	arr, ok := e.resolveTable(c.Args[0], data, ctx, depth)
	if !ok {
		return nil, nil
	}
	pairs, err := e.evalPairConditions(c.Args[1:], data, ctx, depth)
	if err != nil {
		return nil, err
	}
	for idx, row := range arr {
		obj, isObj := row.(*ordered.Map)
		if !isObj {
			continue
		}
		for _, p := range pairs {
			if cell, has := obj.Get(p.field); has && LooseEqual(p.value, cell) {
				return float64(idx), nil
			}
		}
	}
	return float64(-1), nil
}

// evalFindIndex returns the first row index where every condition is
// truthy, evaluating each condition with the row as user data and the
// outer data as internal context; -1 when none.
func (e *Evaluator) evalFindIndex(c *Compiled, data, ctx any, depth int) (any, error) {
	arr, ok := e.resolveTable(c.Args[0], data, ctx, depth)
	if !ok || len(arr) == 0 {
		return float64(-1), nil
	}
	conditions := c.Args[1:]
	if len(conditions) == 0 {
		return float64(0), nil
	}
	for idx, row := range arr {
		all := true
		for _, cond := range conditions {
			v, err := e.eval(cond, row, data, depth+1)
			if err != nil || !Truthy(v) {
				all = false
				break
			}
		}
		if all {
			return float64(idx), nil
		}
	}
	return float64(-1), nil
}
