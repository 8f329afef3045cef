package jsoneval

import (
	"strings"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// tableExpr is a table cell program: either a compiled expression or a
// literal value.
type tableExpr struct {
	id       logic.ID
	literal  any
	hasLogic bool
}

// TableColumn is one column of a row plan. VarPath is the internal-context
// variable ("$" + name) under which evaluated cells are exposed to later
// columns.
type TableColumn struct {
	Name    string
	VarPath string

	expr tableExpr
	// deps lists the "$column" references this cell reads, used to skip
	// re-evaluation during backward sweeps.
	deps []string
	// forward marks cells that read the table's own rows and therefore need
	// the backward pass.
	forward bool
}

type tableRowPlan struct {
	repeat      bool
	start, end  tableExpr
	columns     []TableColumn
	normalCols  []int
	forwardCols []int
}

type tableDataPlan struct {
	name string
	expr tableExpr
}

// TableMeta is the parse-time plan of one table generator.
type TableMeta struct {
	key      string
	dataPath string

	dataPlans []tableDataPlan
	skip      tableExpr
	clear     tableExpr
	rows      []tableRowPlan
}

// compileTableExpr compiles a cell program. A {"$evaluation": …} wrapper
// compiles its inner expression; other values compile directly and fall
// back to literals when they are not expressions.
func compileTableExpr(v any) tableExpr {
	if obj, ok := v.(*ordered.Map); ok {
		if inner, has := obj.Get("$evaluation"); has {
			if id, err := logic.Compile(inner); err == nil {
				return tableExpr{id: id, hasLogic: true}
			}
		}
	}
	switch v.(type) {
	case *ordered.Map, []any:
		if id, err := logic.Compile(v); err == nil {
			return tableExpr{id: id, hasLogic: true}
		}
	}
	return tableExpr{literal: v}
}

func (p *ParsedSchema) registerTable(ptr string, field *ordered.Map, rows []any) error {
	meta := &TableMeta{
		key:      ptr,
		dataPath: dataPathOf(ptr),
	}

	if datasV, ok := field.Get("$datas"); ok {
		if datas, isObj := datasV.(*ordered.Map); isObj {
			datas.Range(func(name string, v any) bool {
				meta.dataPlans = append(meta.dataPlans, tableDataPlan{name: name, expr: compileTableExpr(v)})
				return true
			})
		}
	}
	if skipV, ok := field.Get("$skip"); ok {
		meta.skip = compileTableExpr(skipV)
	}
	if clearV, ok := field.Get("$clear"); ok {
		meta.clear = compileTableExpr(clearV)
	}

	for _, rowV := range rows {
		rowObj, isObj := rowV.(*ordered.Map)
		if !isObj {
			continue
		}
		plan := tableRowPlan{}
		if repeatV, hasRepeat := rowObj.Get("$repeat"); hasRepeat {
			plan.repeat = true
			if bounds, isObj := repeatV.(*ordered.Map); isObj {
				if startV, ok := bounds.Get("start"); ok {
					plan.start = compileTableExpr(startV)
				}
				if endV, ok := bounds.Get("end"); ok {
					plan.end = compileTableExpr(endV)
				}
			}
		}
		rowObj.Range(func(name string, v any) bool {
			if name == "$repeat" {
				return true
			}
			col := TableColumn{
				Name:    name,
				VarPath: "$" + name,
				expr:    compileTableExpr(v),
			}
			if col.expr.hasLogic {
				for _, dep := range logic.Dependencies(col.expr.id) {
					if strings.HasPrefix(dep, "$") && !strings.HasPrefix(dep, "$context") {
						col.deps = append(col.deps, dep)
					}
					if dep == meta.dataPath || strings.HasPrefix(dep, meta.dataPath+".") {
						col.forward = true
					}
				}
			}
			plan.columns = append(plan.columns, col)
			return true
		})
		for i, col := range plan.columns {
			if col.forward {
				plan.forwardCols = append(plan.forwardCols, i)
			} else {
				plan.normalCols = append(plan.normalCols, i)
			}
		}
		meta.rows = append(meta.rows, plan)
	}

	p.tables[ptr] = meta
	p.tableOrder = append(p.tableOrder, ptr)
	p.evaluations.set(ptr, 0)
	p.registerDependencies(ptr, tableDependencies(meta))
	return nil
}

// tableDependencies unions the data paths read by every cell, skipping
// column variables and loop internals.
func tableDependencies(meta *TableMeta) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(expr tableExpr) {
		if !expr.hasLogic {
			return
		}
		for _, dep := range logic.Dependencies(expr.id) {
			if strings.HasPrefix(dep, "$") && !strings.HasPrefix(dep, "$context") && !strings.HasPrefix(dep, "$params") {
				continue
			}
			if dep == meta.dataPath || strings.HasPrefix(dep, meta.dataPath+".") {
				continue
			}
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
		}
	}
	for _, d := range meta.dataPlans {
		add(d.expr)
	}
	add(meta.skip)
	add(meta.clear)
	for _, row := range meta.rows {
		add(row.start)
		add(row.end)
		for _, col := range row.columns {
			add(col.expr)
		}
	}
	return out
}

// maxBackwardSweeps bounds the alternating convergence passes over
// forward-referencing columns.
const maxBackwardSweeps = 100

// evaluateTable runs one table generator inside a sandbox clone of the
// parent scope. The parent EvalData is never mutated; the produced rows
// are returned for the caller to install.
func (je *JSONEval) evaluateTable(evalKey string, scope *EvalData) ([]any, error) {
	meta, ok := je.parsed.tables[evalKey]
	if !ok {
		return nil, ErrTableNotFound
	}
	tablePointer := DotToPointer(meta.dataPath)
	sandbox := scope.Clone()

	runExpr := func(expr tableExpr, ctx *ordered.Map) any {
		if !expr.hasLogic {
			return ordered.CloneValue(expr.literal)
		}
		var ctxAny any
		if ctx != nil {
			ctxAny = ctx
		}
		v, err := je.engine.Run(expr.id, sandbox.Data(), ctxAny)
		if err != nil {
			return ordered.CloneValue(expr.literal)
		}
		return v
	}

	existing, _ := sandbox.Get(tablePointer)

	// Phase 0: $datas helper variables, evaluated before skip/clear.
	for _, plan := range meta.dataPlans {
		sandbox.Set(DotToPointer(plan.name), runExpr(plan.expr, nil))
	}

	// Phase 1: $skip.
	shouldSkip := tableFlag(meta.skip, runExpr)

	// Phase 2: required dependencies must be filled.
	requirementNotFilled := false
	if !shouldSkip {
		for _, dep := range je.parsed.dependencies[evalKey] {
			if strings.Contains(dep, "$params") ||
				(!strings.Contains(dep, "$context") && strings.HasPrefix(strings.TrimPrefix(dep, "/"), "$")) {
				continue
			}
			v, found := sandbox.Get(DotToPointer(dep))
			if (!found || isEmptyValue(v)) && je.isFieldRequired(dep) {
				requirementNotFilled = true
				break
			}
		}
	}

	// Phase 3: $clear.
	shouldClear := tableFlag(meta.clear, runExpr)

	_, isArr := existing.([]any)
	if shouldClear || shouldSkip || requirementNotFilled || !isArr {
		sandbox.Set(tablePointer, []any{})
	}
	if shouldClear || shouldSkip || requirementNotFilled {
		return []any{}, nil
	}

	for _, plan := range meta.rows {
		if plan.repeat {
			je.evaluateRepeatRow(meta, plan, sandbox, tablePointer, runExpr)
			continue
		}
		// Static rows evaluate columns left to right, exposing prior columns
		// through the internal context.
		ctx := ordered.NewMap()
		row := ordered.NewMapCapacity(len(plan.columns))
		for _, col := range plan.columns {
			v := runExpr(col.expr, ctx)
			ctx.Set(col.VarPath, v)
			row.Set(col.Name, v)
		}
		sandbox.PushToArray(tablePointer, row)
	}

	result, _ := sandbox.Get(tablePointer)
	rows, _ := result.([]any)
	if rows == nil {
		rows = []any{}
	}
	return rows, nil
}

func tableFlag(expr tableExpr, run func(tableExpr, *ordered.Map) any) bool {
	if !expr.hasLogic {
		b, _ := expr.literal.(bool)
		return b
	}
	v := run(expr, nil)
	b, _ := v.(bool)
	return b
}

func (je *JSONEval) evaluateRepeatRow(meta *TableMeta, plan tableRowPlan, sandbox *EvalData, tablePointer string, runExpr func(tableExpr, *ordered.Map) any) {
	startIdx := int(logic.ToNumber(runExpr(plan.start, nil)))
	endIdx := int(logic.ToNumber(runExpr(plan.end, nil)))
	if startIdx > endIdx {
		return
	}

	existingCount := 0
	if v, ok := sandbox.Get(tablePointer); ok {
		if arr, isArr := v.([]any); isArr {
			existingCount = len(arr)
		}
	}

	// Pre-allocate every row with null cells.
	total := endIdx - startIdx + 1
	for i := 0; i < total; i++ {
		row := ordered.NewMapCapacity(len(plan.columns))
		for _, col := range plan.columns {
			row.Set(col.Name, nil)
		}
		sandbox.PushToArray(tablePointer, row)
	}

	// Forward pass: normal columns only, top to bottom.
	ctx := ordered.NewMap()
	ctx.Set("$threshold", float64(endIdx))
	for iteration := startIdx; iteration <= endIdx; iteration++ {
		targetIdx := existingCount + (iteration - startIdx)
		ctx.Set("$iteration", float64(iteration))
		for _, colIdx := range plan.normalCols {
			col := plan.columns[colIdx]
			v := runExpr(col.expr, ctx)
			if row, ok := sandbox.GetTableRow(tablePointer, targetIdx); ok {
				row.Set(col.Name, v)
			}
			ctx.Set(col.VarPath, v)
		}
	}

	if len(plan.forwardCols) == 0 {
		return
	}

	// Backward pass: alternate sweep direction until forward-referencing
	// columns stop changing, re-evaluating a cell only when one of its
	// column dependencies changed in the previous sweep.
	iterCount := endIdx - startIdx + 1
	scanFromDown := false
	prevChanged := make([][]bool, iterCount)
	for i := range prevChanged {
		prevChanged[i] = make([]bool, len(plan.forwardCols))
		for j := range prevChanged[i] {
			prevChanged[i][j] = true
		}
	}

	backCtx := ordered.NewMap()
	backCtx.Set("$threshold", float64(endIdx))

	for sweep := 1; sweep <= maxBackwardSweeps; sweep++ {
		anyChanged := false
		currChanged := make([][]bool, iterCount)
		for i := range currChanged {
			currChanged[i] = make([]bool, len(plan.forwardCols))
		}

		for offset := 0; offset < iterCount; offset++ {
			iteration := startIdx + offset
			if scanFromDown {
				iteration = endIdx - offset
			}
			rowOffset := iteration - startIdx
			targetIdx := existingCount + rowOffset
			backCtx.Set("$iteration", float64(iteration))

			// Refresh the column variables from the current row.
			if row, ok := sandbox.GetTableRow(tablePointer, targetIdx); ok {
				for _, col := range plan.columns {
					if v, has := row.Get(col.Name); has {
						backCtx.Set(col.VarPath, v)
					}
				}
			}

			for fwdIdx, colIdx := range plan.forwardCols {
				col := plan.columns[colIdx]

				shouldEvaluate := sweep == 1
				if !shouldEvaluate && !col.forward {
					for _, dep := range col.deps {
						depName := strings.TrimPrefix(dep, "$")
						for depFwdIdx, depColIdx := range plan.forwardCols {
							if plan.columns[depColIdx].Name == depName && prevChanged[rowOffset][depFwdIdx] {
								shouldEvaluate = true
							}
						}
					}
				} else if !shouldEvaluate {
					shouldEvaluate = true
				}
				if !shouldEvaluate {
					continue
				}

				v := runExpr(col.expr, backCtx)
				if row, ok := sandbox.GetTableRow(tablePointer, targetIdx); ok {
					old, _ := row.Get(col.Name)
					if !logic.DeepEqual(old, v) {
						anyChanged = true
						currChanged[rowOffset][fwdIdx] = true
						row.Set(col.Name, v)
					}
				}
				backCtx.Set(col.VarPath, v)
			}
		}

		scanFromDown = !scanFromDown
		prevChanged = currChanged
		if !anyChanged {
			break
		}
	}
}

// isFieldRequired checks rules.required.value of a field in the evaluated
// schema; fields without a required rule are optional.
func (je *JSONEval) isFieldRequired(depPath string) bool {
	rulesPath := DotToSchemaPointer(PointerToDot(DotToPointer(depPath))) + "/rules/required"
	rule, ok := getByPointer(je.evaluatedSchema, rulesPath)
	if !ok {
		rule, ok = getByPointer(je.evaluatedSchema, "/properties"+rulesPath)
		if !ok {
			return false
		}
	}
	switch t := rule.(type) {
	case bool:
		return t
	case *ordered.Map:
		v, _ := t.Get("value")
		b, _ := v.(bool)
		return b
	}
	return false
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case *ordered.Map:
		return t.Len() == 0
	}
	return false
}
