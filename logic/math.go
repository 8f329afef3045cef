package logic

import "math"

func (e *Evaluator) evalVariadicMath(c *Compiled, data, ctx any, depth int) (any, error) {
	nums := make([]float64, 0, len(c.Args))
	for _, arg := range c.Args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		// A single array argument spreads into its elements: {"+": [[1,2,3]]}.
		if arr, ok := v.([]any); ok && len(c.Args) == 1 {
			for _, el := range arr {
				nums = append(nums, ToNumber(el))
			}
			continue
		}
		nums = append(nums, ToNumber(v))
	}
	if len(nums) == 0 {
		return nil, nil
	}

	var result float64
	switch c.Op {
	case OpAdd:
		for _, n := range nums {
			result += n
		}
	case OpMul:
		result = 1
		for _, n := range nums {
			result *= n
		}
	case OpMin:
		result = nums[0]
		for _, n := range nums[1:] {
			if n < result {
				result = n
			}
		}
	case OpMax:
		result = nums[0]
		for _, n := range nums[1:] {
			if n > result {
				result = n
			}
		}
	}
	return e.numResult(result), nil
}

func (e *Evaluator) evalBinaryMath(c *Compiled, data, ctx any, depth int) (any, error) {
	a, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	x := ToNumber(a)

	// Unary minus.
	if c.Op == OpSub && len(c.Args) == 1 {
		return e.numResult(-x), nil
	}

	b, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	y := ToNumber(b)

	switch c.Op {
	case OpSub:
		return e.numResult(x - y), nil
	case OpDiv:
		if y == 0 {
			return nil, nil
		}
		return e.numResult(x / y), nil
	case OpMod:
		if y == 0 {
			return nil, nil
		}
		return e.numResult(math.Mod(x, y)), nil
	case OpPow:
		return e.numResult(math.Pow(x, y)), nil
	}
	return nil, nil
}

func (e *Evaluator) evalRounding(c *Compiled, data, ctx any, depth int) (any, error) {
	v, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	x := ToNumber(v)

	second := float64(0)
	hasSecond := len(c.Args) > 1
	if hasSecond {
		sv, err := e.eval(c.Args[1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		second = ToNumber(sv)
	}

	switch c.Op {
	case OpRound:
		return e.numResult(roundToDecimals(x, int(second))), nil
	case OpRoundUp:
		return e.numResult(roundDirected(x, int(second), true)), nil
	case OpRoundDown:
		return e.numResult(roundDirected(x, int(second), false)), nil
	case OpCeiling:
		sig := second
		if !hasSecond {
			sig = 1
		}
		return e.numResult(roundToSignificance(x, sig, true)), nil
	case OpFloor:
		sig := second
		if !hasSecond {
			sig = 1
		}
		return e.numResult(roundToSignificance(x, sig, false)), nil
	case OpTrunc:
		return e.numResult(roundDirected(x, int(second), false)), nil
	case OpMRound:
		if second == 0 {
			return float64(0), nil
		}
		return e.numResult(math.Round(x/second) * second), nil
	}
	return nil, nil
}

// decimalScale multiplies into decimal-place space and back. Negative d
// (tens, hundreds) divides instead of multiplying by a fraction to keep
// results exact.
func decimalScale(x float64, d int) float64 {
	if d >= 0 {
		return x * math.Pow(10, float64(d))
	}
	return x / math.Pow(10, float64(-d))
}

func decimalUnscale(x float64, d int) float64 {
	if d >= 0 {
		return x / math.Pow(10, float64(d))
	}
	return x * math.Pow(10, float64(-d))
}

// roundToDecimals implements half-away-from-zero rounding to d decimal
// places; negative d rounds to tens, hundreds, and so on.
func roundToDecimals(x float64, d int) float64 {
	return decimalUnscale(math.Round(decimalScale(x, d)), d)
}

// roundDirected rounds away from zero (up=true) or toward zero (up=false)
// to d decimal places, matching Excel's ROUNDUP/ROUNDDOWN/TRUNC.
func roundDirected(x float64, d int, up bool) float64 {
	scaled := decimalScale(x, d)
	// Tolerate float representation noise at the boundary.
	const eps = 1e-9
	var out float64
	if up {
		if scaled >= 0 {
			out = math.Ceil(scaled - eps)
		} else {
			out = math.Floor(scaled + eps)
		}
	} else {
		out = math.Trunc(scaled + math.Copysign(eps, scaled))
	}
	return decimalUnscale(out, d)
}

// roundToSignificance implements Excel CEILING/FLOOR for nonnegative
// significance; a zero significance yields zero.
func roundToSignificance(x, sig float64, up bool) float64 {
	if sig == 0 {
		return 0
	}
	q := x / sig
	if up {
		return math.Ceil(q) * sig
	}
	return math.Floor(q) * sig
}
