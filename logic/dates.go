package logic

import (
	"strings"
	"time"
)

// dateLayouts lists accepted input formats, most specific first.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
	"01-02-2006",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// ParseDate parses a date string against the accepted formats, returning
// the date truncated to midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// isoDateString renders midnight UTC in the engine's canonical date form.
func isoDateString(t time.Time) string {
	return t.Format("2006-01-02") + "T00:00:00.000Z"
}

func (e *Evaluator) currentTime() time.Time {
	now := time.Now().UTC()
	if e.cfg.TimezoneOffsetMinutes != nil {
		now = now.Add(time.Duration(*e.cfg.TimezoneOffsetMinutes) * time.Minute)
	}
	return now
}

func (e *Evaluator) evalToday() any {
	now := e.currentTime()
	return isoDateString(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
}

func (e *Evaluator) evalNow() any {
	return e.currentTime().Format("2006-01-02T15:04:05Z")
}

// unwrapSingle unwraps one-element arrays, a common shape when a date
// expression was written as [{"today": []}].
func unwrapSingle(v any) any {
	if arr, ok := v.([]any); ok && len(arr) == 1 {
		return arr[0]
	}
	return v
}

func (e *Evaluator) evalDateComponent(c *Compiled, component string, data, ctx any, depth int) (any, error) {
	v, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	s, ok := unwrapSingle(v).(string)
	if !ok {
		return nil, nil
	}
	d, ok := ParseDate(s)
	if !ok {
		return nil, nil
	}
	switch component {
	case "year":
		return float64(d.Year()), nil
	case "month":
		return float64(d.Month()), nil
	case "day":
		return float64(d.Day()), nil
	}
	return nil, nil
}

func (e *Evaluator) evalDays(c *Compiled, data, ctx any, depth int) (any, error) {
	endV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	startV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	endS, okE := unwrapSingle(endV).(string)
	startS, okS := unwrapSingle(startV).(string)
	if !okE || !okS {
		return nil, nil
	}
	end, okE := ParseDate(endS)
	start, okS := ParseDate(startS)
	if !okE || !okS {
		return nil, nil
	}
	return float64(int(end.Sub(start).Hours() / 24)), nil
}

// evalDate builds a date from (year, month, day) with JavaScript-style
// normalization: out-of-range months and days roll over, so
// date(2025,10,-16) is 2025-09-14 and date(2023,13,32) is 2024-02-01.
func (e *Evaluator) evalDate(c *Compiled, data, ctx any, depth int) (any, error) {
	yv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	mv, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	dv, err := e.eval(c.Args[2], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	year := int(ToNumber(yv))
	month := int(ToNumber(mv))
	day := int(ToNumber(dv))

	// time.Date normalizes out-of-range month and day exactly like JS Date.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() < -9999 || t.Year() > 9999 {
		return nil, nil
	}
	return isoDateString(t), nil
}

func (e *Evaluator) evalYearFrac(c *Compiled, data, ctx any, depth int) (any, error) {
	startV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	endV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	basis := 0
	if len(c.Args) > 2 {
		bv, err := e.eval(c.Args[2], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		basis = int(ToNumber(bv))
	}
	startS, okS := unwrapSingle(startV).(string)
	endS, okE := unwrapSingle(endV).(string)
	if !okS || !okE {
		return nil, nil
	}
	start, okS := ParseDate(startS)
	end, okE := ParseDate(endS)
	if !okS || !okE {
		return nil, nil
	}
	days := end.Sub(start).Hours() / 24
	var denom float64
	switch basis {
	case 1:
		denom = 365.25
	case 3:
		denom = 365.0
	case 0, 2, 4:
		denom = 360.0
	default:
		denom = 365.0
	}
	return e.numResult(days / denom), nil
}

func (e *Evaluator) evalDateDif(c *Compiled, data, ctx any, depth int) (any, error) {
	startV, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	endV, err := e.eval(c.Args[1], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	unitV, err := e.eval(c.Args[2], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	startS, okS := unwrapSingle(startV).(string)
	endS, okE := unwrapSingle(endV).(string)
	unit, okU := unwrapSingle(unitV).(string)
	if !okS || !okE || !okU {
		return nil, nil
	}
	start, okS := ParseDate(startS)
	end, okE := ParseDate(endS)
	if !okS || !okE {
		return nil, nil
	}

	switch strings.ToUpper(unit) {
	case "D":
		return float64(int(end.Sub(start).Hours() / 24)), nil
	case "M":
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		if end.Day() < start.Day() {
			months--
		}
		return float64(months), nil
	case "Y":
		years := end.Year() - start.Year()
		if end.Month() < start.Month() ||
			(end.Month() == start.Month() && end.Day() < start.Day()) {
			years--
		}
		return float64(years), nil
	case "MD":
		if start.Day() <= end.Day() {
			return float64(end.Day() - start.Day()), nil
		}
		return float64(30 - (start.Day() - end.Day())), nil
	case "YM":
		months := int(end.Month()) - int(start.Month())
		if months < 0 {
			months += 12
		}
		if end.Day() < start.Day() {
			months--
			if months < 0 {
				months += 12
			}
		}
		return float64(months), nil
	case "YD":
		shifted := time.Date(end.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if shifted.After(end) {
			shifted = time.Date(end.Year()-1, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		}
		return float64(int(end.Sub(shifted).Hours() / 24)), nil
	}
	return nil, nil
}

// prebuiltDateFormats maps dateformat tokens to Go time layouts.
var prebuiltDateFormats = map[string]string{
	"short":      "01/02/2006",
	"long":       "January 2, 2006",
	"iso":        "2006-01-02",
	"us":         "01/02/2006",
	"eu":         "02/01/2006",
	"full":       "Monday, January 2, 2006",
	"monthday":   "January 2",
	"yearmonth":  "2006-01",
	"ddmmyyyy":   "02/01/2006",
	"mmddyyyy":   "01/02/2006",
	"yyyymmdd":   "2006-01-02",
	"dd-mm-yyyy": "02-01-2006",
	"mm-dd-yyyy": "01-02-2006",
	"yyyy-mm-dd": "2006-01-02",
	"dd.mm.yyyy": "02.01.2006",
}

func (e *Evaluator) evalDateFormat(c *Compiled, data, ctx any, depth int) (any, error) {
	dv, err := e.eval(c.Args[0], data, ctx, depth+1)
	if err != nil {
		return nil, err
	}
	s, ok := unwrapSingle(dv).(string)
	if !ok {
		return nil, nil
	}
	d, ok := ParseDate(s)
	if !ok {
		return nil, nil
	}

	format := "iso"
	if len(c.Args) > 1 {
		fv, err := e.eval(c.Args[1], data, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		format = ToString(fv)
	}

	if layout, ok := prebuiltDateFormats[strings.ToLower(format)]; ok {
		return d.Format(layout), nil
	}
	return d.Format(strftimeToLayout(format)), nil
}

// strftimeReplacer translates the strftime directives the corpus uses into
// Go time layouts.
var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%B", "January",
	"%b", "Jan",
	"%A", "Monday",
	"%a", "Mon",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%%", "%",
)

func strftimeToLayout(format string) string {
	return strftimeReplacer.Replace(format)
}
