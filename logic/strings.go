package logic

import (
	"math"
	"strconv"
	"strings"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

func (e *Evaluator) evalCat(args []*Compiled, data, ctx any, depth int) (any, error) {
	var sb strings.Builder
	for _, arg := range args {
		v, err := e.eval(arg, data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		sb.WriteString(ToString(v))
	}
	return sb.String(), nil
}

// evalSubstr implements JsonLogic substr: zero-based start, negative start
// counts from the end, optional length.
func (e *Evaluator) evalSubstr(c *Compiled, data, ctx any, depth int) (any, error) {
	sv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	startV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	runes := []rune(ToString(sv))
	start := int(ToNumber(startV))
	if start < 0 {
		start = len(runes) + start
		if start < 0 {
			start = 0
		}
	} else if start > len(runes) {
		start = len(runes)
	}

	end := len(runes)
	if len(c.Args) > 2 {
		lv, err := e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		length := int(ToNumber(lv))
		if length < 0 {
			end = len(runes) + length
		} else {
			end = start + length
		}
		if end < start {
			end = start
		}
		if end > len(runes) {
			end = len(runes)
		}
	}
	return string(runes[start:end]), nil
}

func (e *Evaluator) evalTextSide(c *Compiled, left bool, data, ctx any, depth int) (any, error) {
	tv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	text := []rune(ToString(tv))
	n := 1
	if len(c.Args) > 1 {
		nv, err := e.eval(c.Args[1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		n = int(ToNumber(nv))
	}
	if n < 0 {
		n = 0
	}
	if n > len(text) {
		n = len(text)
	}
	if left {
		return string(text[:n]), nil
	}
	return string(text[len(text)-n:]), nil
}

// evalMid uses Excel's one-based start index with saturation at both ends.
func (e *Evaluator) evalMid(c *Compiled, data, ctx any, depth int) (any, error) {
	tv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	startV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	numV, err := e.eval(c.Args[2], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	text := []rune(ToString(tv))
	start := int(ToNumber(startV)) - 1
	if start < 0 {
		start = 0
	}
	if start > len(text) {
		start = len(text)
	}
	n := int(ToNumber(numV))
	if n < 0 {
		n = 0
	}
	end := start + n
	if end > len(text) {
		end = len(text)
	}
	return string(text[start:end]), nil
}

// evalSearch finds a needle case-insensitively, returning the one-based
// position or null when absent.
func (e *Evaluator) evalSearch(c *Compiled, data, ctx any, depth int) (any, error) {
	findV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	withinV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	find, okF := findV.(string)
	within, okW := withinV.(string)
	if !okF || !okW {
		return nil, nil
	}
	start := 0
	if len(c.Args) > 2 {
		sv, err := e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		start = int(ToNumber(sv)) - 1
		if start < 0 {
			start = 0
		}
	}
	if start > len(within) {
		return nil, nil
	}
	pos := strings.Index(strings.ToLower(within[start:]), strings.ToLower(find))
	if pos < 0 {
		return nil, nil
	}
	return float64(pos + start + 1), nil
}

func (e *Evaluator) evalSplitText(c *Compiled, data, ctx any, depth int) (any, error) {
	vv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	sepV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	idx := 0
	if len(c.Args) > 2 {
		iv, err := e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		idx = int(ToNumber(iv))
	}
	parts := strings.Split(ToString(vv), ToString(sepV))
	if idx < 0 || idx >= len(parts) {
		return "", nil
	}
	return parts[idx], nil
}

func (e *Evaluator) evalSplitValue(c *Compiled, data, ctx any, depth int) (any, error) {
	vv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	sepV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(ToString(vv), ToString(sepV))
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

// evalLength counts elements of strings, arrays, and objects; other values
// report 0.
func (e *Evaluator) evalLength(c *Compiled, data, ctx any, depth int) (any, error) {
	v, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	return float64(valueLength(v)), nil
}

// evalLen measures the string rendering of its argument.
func (e *Evaluator) evalLen(c *Compiled, data, ctx any, depth int) (any, error) {
	v, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	return float64(len(ToString(v))), nil
}

func (e *Evaluator) evalStringFormat(c *Compiled, data, ctx any, depth int) (any, error) {
	vv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	num := ToNumber(vv)

	decimals := 0
	prefix, suffix := "", ""
	thousands := ","
	if len(c.Args) > 1 {
		dv, err := e.eval(c.Args[1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		decimals = int(ToNumber(dv))
		if decimals < 0 {
			decimals = 0
		}
	}
	if len(c.Args) > 2 {
		pv, err := e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		prefix = ToString(pv)
	}
	if len(c.Args) > 3 {
		sv, err := e.eval(c.Args[3], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		suffix = ToString(sv)
	}
	if len(c.Args) > 4 {
		tv, err := e.eval(c.Args[4], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		thousands = ToString(tv)
	}

	var formatted string
	if decimals == 0 {
		formatted = insertThousands(strconv.FormatInt(int64(math.Round(num)), 10), thousands)
	} else {
		fixed := strconv.FormatFloat(num, 'f', decimals, 64)
		if dot := strings.IndexByte(fixed, '.'); dot >= 0 {
			formatted = insertThousands(fixed[:dot], thousands) + fixed[dot:]
		} else {
			formatted = insertThousands(fixed, thousands)
		}
	}
	return prefix + formatted + suffix, nil
}

func insertThousands(numStr, sep string) string {
	if sep == "" {
		return numStr
	}
	var sb strings.Builder
	n := len(numStr)
	for i := 0; i < n; i++ {
		ch := numStr[i]
		sb.WriteByte(ch)
		if ch == '-' || ch == '+' {
			continue
		}
		remaining := n - i - 1
		if remaining > 0 && remaining%3 == 0 {
			sb.WriteString(sep)
		}
	}
	return sb.String()
}

func valueLength(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case *ordered.Map:
		return t.Len()
	default:
		return 0
	}
}
