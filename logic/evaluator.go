package logic

import (
	"fmt"
	"math"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// Config controls evaluation behavior.
type Config struct {
	// SafeNaN collapses non-finite arithmetic results to 0 instead of null.
	SafeNaN bool
	// RecursionLimit caps expression nesting depth.
	RecursionLimit int
	// TimezoneOffsetMinutes shifts today()/now() from UTC when set.
	TimezoneOffsetMinutes *int
	// Parallel enables concurrent iteration inside array operators.
	Parallel bool
}

// DefaultConfig returns the default evaluator configuration.
func DefaultConfig() Config {
	return Config{RecursionLimit: 1000}
}

// Evaluator interprets compiled expressions against a (user data, internal
// context) pair. It is stateless and safe for concurrent use.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an Evaluator with the given configuration.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultConfig().RecursionLimit
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Run evaluates the compiled expression id against userData with an
// optional internal context.
func (e *Evaluator) Run(id ID, userData, internalCtx any) (any, error) {
	node, ok := Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrLogicNotFound, id)
	}
	return e.eval(node, userData, internalCtx, 0)
}

// numResult converts a float result to the value model, collapsing NaN and
// infinities to null (or 0 under SafeNaN).
func (e *Evaluator) numResult(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if e.cfg.SafeNaN {
			return float64(0)
		}
		return nil
	}
	return f
}

func (e *Evaluator) eval(c *Compiled, data, ctx any, depth int) (any, error) {
	if depth > e.cfg.RecursionLimit {
		return nil, fmt.Errorf("%w: depth %d", ErrRecursionLimit, depth)
	}

	switch c.Op {
	case OpNull:
		return nil, nil
	case OpBool:
		return c.Bool, nil
	case OpNumber:
		return c.Num, nil
	case OpString:
		return c.Str, nil
	case OpArray:
		out := make([]any, len(c.Args))
		for i, arg := range c.Args {
			v, err := e.eval(arg, data, ctx, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case OpObject:
		obj := ordered.NewMapCapacity(len(c.Args))
		for i, arg := range c.Args {
			v, err := e.eval(arg, data, ctx, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(c.ObjKeys[i], v)
		}
		return obj, nil

	case OpVar:
		return e.evalVar(c, data, ctx, depth)
	case OpRef:
		return e.evalRef(c, data, ctx, depth)

	case OpIf:
		return e.evalIf(c, data, ctx, depth)
	case OpAnd:
		return e.evalAnd(c.Args, data, ctx, depth)
	case OpOr:
		return e.evalOr(c.Args, data, ctx, depth)
	case OpNot:
		v, err := e.eval(c.Args[0], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	case OpNotNot:
		v, err := e.eval(c.Args[0], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		return Truthy(v), nil

	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return e.evalComparison(c, data, ctx, depth)

	case OpAdd, OpMul, OpMin, OpMax:
		return e.evalVariadicMath(c, data, ctx, depth)
	case OpSub, OpDiv, OpMod, OpPow:
		return e.evalBinaryMath(c, data, ctx, depth)
	case OpAbs:
		v, err := e.eval(c.Args[0], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		return e.numResult(math.Abs(ToNumber(v))), nil
	case OpRound, OpRoundUp, OpRoundDown, OpCeiling, OpFloor, OpTrunc, OpMRound:
		return e.evalRounding(c, data, ctx, depth)

	case OpCat:
		return e.evalCat(c.Args, data, ctx, depth)
	case OpSubstr:
		return e.evalSubstr(c, data, ctx, depth)
	case OpLeft:
		return e.evalTextSide(c, true, data, ctx, depth)
	case OpRight:
		return e.evalTextSide(c, false, data, ctx, depth)
	case OpMid:
		return e.evalMid(c, data, ctx, depth)
	case OpSearch:
		return e.evalSearch(c, data, ctx, depth)
	case OpSplitText:
		return e.evalSplitText(c, data, ctx, depth)
	case OpSplitValue:
		return e.evalSplitValue(c, data, ctx, depth)
	case OpLength:
		return e.evalLength(c, data, ctx, depth)
	case OpLen:
		return e.evalLen(c, data, ctx, depth)
	case OpStringFormat:
		return e.evalStringFormat(c, data, ctx, depth)

	case OpToday:
		return e.evalToday(), nil
	case OpNow:
		return e.evalNow(), nil
	case OpYear:
		return e.evalDateComponent(c, "year", data, ctx, depth)
	case OpMonth:
		return e.evalDateComponent(c, "month", data, ctx, depth)
	case OpDay:
		return e.evalDateComponent(c, "day", data, ctx, depth)
	case OpDays:
		return e.evalDays(c, data, ctx, depth)
	case OpDate:
		return e.evalDate(c, data, ctx, depth)
	case OpYearFrac:
		return e.evalYearFrac(c, data, ctx, depth)
	case OpDateDif:
		return e.evalDateDif(c, data, ctx, depth)
	case OpDateFormat:
		return e.evalDateFormat(c, data, ctx, depth)

	case OpMap:
		return e.evalMap(c, data, ctx, depth)
	case OpFilter:
		return e.evalFilter(c, data, ctx, depth)
	case OpReduce:
		return e.evalReduce(c, data, ctx, depth)
	case OpAll, OpSome, OpNone:
		return e.evalQuantifier(c, data, ctx, depth)
	case OpMerge:
		return e.evalMerge(c.Args, data, ctx, depth)
	case OpIn:
		return e.evalIn(c, data, ctx, depth)
	case OpSum:
		return e.evalSum(c, data, ctx, depth)
	case OpFor:
		return e.evalFor(c, data, ctx, depth)
	case OpMultiplies:
		return e.evalMultiplies(c.Args, data, ctx, depth)
	case OpDivides:
		return e.evalDivides(c.Args, data, ctx, depth)

	case OpValueAt:
		return e.evalValueAt(c, data, ctx, depth)
	case OpMaxAt:
		return e.evalMaxAt(c, data, ctx, depth)
	case OpIndexAt:
		return e.evalIndexAt(c, data, ctx, depth)
	case OpMatch:
		return e.evalMatch(c, data, ctx, depth)
	case OpMatchRange:
		return e.evalMatchRange(c, data, ctx, depth)
	case OpChoose:
		return e.evalChoose(c, data, ctx, depth)
	case OpFindIndex:
		return e.evalFindIndex(c, data, ctx, depth)

	case OpMissing:
		return e.evalMissing(c, data, ctx, depth)
	case OpMissingSome:
		return e.evalMissingSome(c, data, ctx, depth)
	}
	return nil, fmt.Errorf("%w: op %d", ErrUnknownOperator, c.Op)
}

func (e *Evaluator) evalVar(c *Compiled, data, ctx any, depth int) (any, error) {
	if c.Path == "" {
		return data, nil
	}
	if v, ok := GetPath(data, c.Segs); ok {
		return v, nil
	}
	if c.Default != nil {
		return e.eval(c.Default, data, ctx, depth+1)
	}
	return nil, nil
}

func (e *Evaluator) evalRef(c *Compiled, data, ctx any, depth int) (any, error) {
	if c.Path == "" {
		if ctx != nil {
			return ctx, nil
		}
		return data, nil
	}
	if v, ok := GetPath(ctx, c.Segs); ok {
		return v, nil
	}
	if v, ok := GetPath(data, c.Segs); ok {
		return v, nil
	}
	if c.Default != nil {
		return e.eval(c.Default, data, ctx, depth+1)
	}
	return nil, nil
}

// evalIf supports if/elseif chains: [c1, v1, c2, v2, ..., else].
func (e *Evaluator) evalIf(c *Compiled, data, ctx any, depth int) (any, error) {
	args := c.Args
	i := 0
	for i+1 < len(args) {
		cond, err := e.eval(args[i], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(args[i+1], data, ctx, depth+1)
		}
		i += 2
	}
	if i < len(args) {
		return e.eval(args[i], data, ctx, depth+1)
	}
	return nil, nil
}

// evalAnd returns the first falsy argument, or the last value when all are
// truthy. The deciding value is returned as-is, not coerced to bool.
func (e *Evaluator) evalAnd(args []*Compiled, data, ctx any, depth int) (any, error) {
	var last any
	for _, arg := range args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if !Truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

// evalOr returns the first truthy argument, or the last value when all are
// falsy.
func (e *Evaluator) evalOr(args []*Compiled, data, ctx any, depth int) (any, error) {
	var last any
	for _, arg := range args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if Truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func (e *Evaluator) evalComparison(c *Compiled, data, ctx any, depth int) (any, error) {
	a, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	b, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case OpEqual:
		return LooseEqual(a, b), nil
	case OpNotEqual:
		return !LooseEqual(a, b), nil
	case OpLess:
		return ToNumber(a) < ToNumber(b), nil
	case OpLessEqual:
		return ToNumber(a) <= ToNumber(b), nil
	case OpGreater:
		return ToNumber(a) > ToNumber(b), nil
	case OpGreaterEqual:
		return ToNumber(a) >= ToNumber(b), nil
	}
	return nil, nil
}

func (e *Evaluator) evalMissing(c *Compiled, data, ctx any, depth int) (any, error) {
	var keys []any
	for _, arg := range c.Args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		if arr, ok := v.([]any); ok {
			keys = append(keys, arr...)
			continue
		}
		keys = append(keys, v)
	}
	missing := []any{}
	for _, k := range keys {
		path := ToString(k)
		if _, ok := GetPath(data, SplitPath(path)); !ok {
			missing = append(missing, path)
		}
	}
	return missing, nil
}

func (e *Evaluator) evalMissingSome(c *Compiled, data, ctx any, depth int) (any, error) {
	minVal, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	need := int(ToNumber(minVal))
	keysVal, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	keys, _ := keysVal.([]any)
	missing := []any{}
	present := 0
	for _, k := range keys {
		path := ToString(k)
		if _, ok := GetPath(data, SplitPath(path)); ok {
			present++
		} else {
			missing = append(missing, path)
		}
	}
	if present >= need {
		return []any{}, nil
	}
	return missing, nil
}
