package logic

import (
	"fmt"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// compileNode translates one raw expression value into a compiled node.
// Scalars and arrays become literals; a single-key object is an operator
// node; a multi-key object is an object literal whose values are compiled.
func compileNode(v any) (*Compiled, error) {
	switch t := v.(type) {
	case nil:
		return &Compiled{Op: OpNull}, nil
	case bool:
		return &Compiled{Op: OpBool, Bool: t}, nil
	case float64:
		return &Compiled{Op: OpNumber, Num: t}, nil
	case string:
		return &Compiled{Op: OpString, Str: t}, nil
	case []any:
		args, err := compileList(t)
		if err != nil {
			return nil, err
		}
		return &Compiled{Op: OpArray, Args: args}, nil
	case *ordered.Map:
		if t.Len() != 1 {
			return compileObjectLiteral(t)
		}
		key := t.Keys()[0]
		payload, _ := t.Get(key)
		op, ok := lookupOp(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, key)
		}
		return compileOperator(op, key, payload)
	default:
		return nil, fmt.Errorf("%w: unsupported value %T", ErrMalformedOperator, v)
	}
}

func compileList(items []any) ([]*Compiled, error) {
	args := make([]*Compiled, len(items))
	for i, item := range items {
		c, err := compileNode(item)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	return args, nil
}

func compileObjectLiteral(m *ordered.Map) (*Compiled, error) {
	node := &Compiled{
		Op:      OpObject,
		ObjKeys: make([]string, 0, m.Len()),
		Args:    make([]*Compiled, 0, m.Len()),
	}
	var err error
	m.Range(func(k string, v any) bool {
		var c *Compiled
		c, err = compileNode(v)
		if err != nil {
			return false
		}
		node.ObjKeys = append(node.ObjKeys, k)
		node.Args = append(node.Args, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// unaryTolerant lists operators whose payload may be a bare value instead
// of a one-element argument array.
func unaryTolerant(op Op) bool {
	switch op {
	case OpNot, OpNotNot, OpAbs, OpLength, OpLen, OpYear, OpMonth, OpDay,
		OpMissing, OpSum, OpMerge:
		return true
	}
	return false
}

func compileOperator(op Op, key string, payload any) (*Compiled, error) {
	switch op {
	case OpVar, OpRef:
		return compileAccess(op, key, payload)
	case OpToday, OpNow:
		// Zero-argument operators accept null or an empty array payload.
		switch p := payload.(type) {
		case nil:
			return &Compiled{Op: op}, nil
		case []any:
			if len(p) == 0 {
				return &Compiled{Op: op}, nil
			}
		}
		return nil, fmt.Errorf("%w: %q takes no arguments", ErrMalformedOperator, key)
	}

	var items []any
	switch p := payload.(type) {
	case []any:
		items = p
	default:
		if !unaryTolerant(op) {
			return nil, fmt.Errorf("%w: %q expects an argument array", ErrMalformedOperator, key)
		}
		items = []any{payload}
	}

	args, err := compileList(items)
	if err != nil {
		return nil, err
	}

	if op == OpFindIndex && len(args) >= 2 {
		// Condition shorthand [op, value, col] compiles to {op: [{var: col}, value]}.
		for i := 1; i < len(args); i++ {
			if rewritten, ok := rewriteConditionShorthand(args[i]); ok {
				args[i] = rewritten
			}
		}
	}

	if err := checkArity(op, key, len(args)); err != nil {
		return nil, err
	}
	return &Compiled{Op: op, Args: args}, nil
}

// rewriteConditionShorthand converts a compiled [op, value, col] array
// literal into the equivalent comparison node reading the column variable.
func rewriteConditionShorthand(c *Compiled) (*Compiled, bool) {
	if c.Op != OpArray || len(c.Args) != 3 {
		return nil, false
	}
	opName := c.Args[0]
	if opName.Op != OpString {
		return nil, false
	}
	op, ok := lookupOp(opName.Str)
	if !ok {
		return nil, false
	}
	col := c.Args[2]
	if col.Op != OpString {
		return nil, false
	}
	varNode := &Compiled{Op: OpVar, Path: col.Str, Segs: SplitPath(col.Str)}
	return &Compiled{Op: op, Args: []*Compiled{varNode, c.Args[1]}}, true
}

func compileAccess(op Op, key string, payload any) (*Compiled, error) {
	switch p := payload.(type) {
	case nil:
		return &Compiled{Op: op}, nil
	case string:
		return &Compiled{Op: op, Path: p, Segs: SplitPath(p)}, nil
	case float64:
		// Numeric var addresses an array index on the root.
		path := ToString(p)
		return &Compiled{Op: op, Path: path, Segs: SplitPath(path)}, nil
	case []any:
		if len(p) == 0 {
			return &Compiled{Op: op}, nil
		}
		path, ok := p[0].(string)
		if !ok {
			if num, isNum := p[0].(float64); isNum {
				path = ToString(num)
			} else {
				return nil, fmt.Errorf("%w: %q path must be a string", ErrMalformedOperator, key)
			}
		}
		node := &Compiled{Op: op, Path: path, Segs: SplitPath(path)}
		if len(p) > 1 {
			def, err := compileNode(p[1])
			if err != nil {
				return nil, err
			}
			node.Default = def
		}
		return node, nil
	default:
		return nil, fmt.Errorf("%w: %q path must be a string", ErrMalformedOperator, key)
	}
}

// arity bounds per operator; max < 0 means unbounded.
func checkArity(op Op, key string, n int) error {
	type bounds struct{ min, max int }
	var b bounds
	switch op {
	case OpIf:
		b = bounds{2, -1}
	case OpAnd, OpOr, OpAdd, OpMul, OpMin, OpMax, OpCat, OpMerge,
		OpMultiplies, OpDivides, OpMissing:
		b = bounds{1, -1}
	case OpNot, OpNotNot, OpAbs, OpLength, OpLen, OpYear, OpMonth, OpDay:
		b = bounds{1, 1}
	case OpSub:
		b = bounds{1, 2}
	case OpDiv, OpMod, OpPow, OpMRound, OpDays, OpSplitValue, OpIn,
		OpMap, OpFilter, OpAll, OpSome, OpNone, OpMaxAt:
		b = bounds{2, 2}
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		b = bounds{2, 2}
	case OpRound, OpRoundUp, OpRoundDown, OpCeiling, OpFloor, OpTrunc,
		OpLeft, OpRight, OpSum, OpDateFormat:
		b = bounds{1, 2}
	case OpSubstr, OpSearch, OpSplitText, OpYearFrac, OpReduce, OpValueAt:
		b = bounds{2, 3}
	case OpMid, OpDateDif, OpDate, OpFor:
		b = bounds{3, 3}
	case OpStringFormat:
		b = bounds{1, 5}
	case OpIndexAt:
		b = bounds{3, 4}
	case OpMatch, OpChoose:
		b = bounds{3, -1}
	case OpMatchRange:
		b = bounds{4, -1}
	case OpFindIndex:
		b = bounds{1, -1}
	case OpMissingSome:
		b = bounds{2, 2}
	default:
		return nil
	}
	if n < b.min || (b.max >= 0 && n > b.max) {
		return fmt.Errorf("%w: %q got %d argument(s)", ErrMalformedOperator, key, n)
	}
	return nil
}
