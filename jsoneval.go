package jsoneval

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// JSONEval is a per-session evaluator binding a shared ParsedSchema to
// mutable EvalData. Public calls serialize on an internal lock; the parsed
// schema itself is immutable and freely shared.
type JSONEval struct {
	mu sync.Mutex

	parsed  *ParsedSchema
	options *Options
	engine  *logic.Evaluator

	evalData        *EvalData
	evaluatedSchema *ordered.Map

	cache        *EvalCache
	cacheEnabled bool

	regexMu    sync.Mutex
	regexCache map[string]*regexp.Regexp

	subforms     map[string]*JSONEval
	subformOrder []string

	// Usage metrics, recorded when tracking is enabled.
	evalPasses atomic.Uint64
	exprEvals  atomic.Uint64
}

// New parses a schema and binds a fresh session to it. Empty context or
// data strings are treated as empty objects.
func New(schemaJSON string, contextJSON, dataJSON string, opts ...*Options) (*JSONEval, error) {
	parsed, err := ParseSchema([]byte(schemaJSON))
	if err != nil {
		return nil, err
	}
	return NewWithParsedSchema(parsed, contextJSON, dataJSON, opts...)
}

// NewWithParsedSchema binds a session to an already parsed schema,
// sharing the parse across sessions.
func NewWithParsedSchema(parsed *ParsedSchema, contextJSON, dataJSON string, opts ...*Options) (*JSONEval, error) {
	options := DefaultOptions()
	if len(opts) > 0 && opts[0] != nil {
		options = opts[0]
	}

	data, err := decodeObject(dataJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrDataParse, err)
	}
	context, err := decodeObject(contextJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: context: %w", ErrDataParse, err)
	}

	je := &JSONEval{
		parsed:          parsed,
		options:         options,
		engine:          logic.NewEvaluator(engineConfig(options)),
		evalData:        NewEvalData(data, context),
		evaluatedSchema: parsed.Schema.Clone(),
		cache:           NewEvalCache(),
		cacheEnabled:    options.CacheEnabled,
		regexCache:      make(map[string]*regexp.Regexp),
		subforms:        make(map[string]*JSONEval),
	}
	je.injectParams()

	for _, path := range parsed.subformPaths {
		sub, ok := parsed.subforms[path]
		if !ok {
			continue
		}
		subEval, err := NewWithParsedSchema(sub, "", "", options)
		if err != nil {
			return nil, fmt.Errorf("%w: subform %s: %w", ErrSchemaParse, path, err)
		}
		je.subforms[path] = subEval
		je.subformOrder = append(je.subformOrder, path)
	}
	return je, nil
}

func engineConfig(o *Options) logic.Config {
	return logic.Config{
		SafeNaN:               o.SafeNaNHandling,
		RecursionLimit:        o.RecursionLimit,
		TimezoneOffsetMinutes: o.TimezoneOffsetMinutes,
		Parallel:              o.Parallel,
	}
}

func decodeObject(src string) (*ordered.Map, error) {
	if src == "" {
		return ordered.NewMap(), nil
	}
	v, err := ordered.Decode([]byte(src))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*ordered.Map)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}

// injectParams copies the schema's $params subtree into the data object so
// $params paths resolve like ordinary data.
func (je *JSONEval) injectParams() {
	if je.parsed.params == nil {
		return
	}
	if !je.evalData.Data().Has("$params") {
		je.evalData.Data().Set("$params", je.parsed.params.Clone())
	}
}

// EvalData exposes the session's mutable state.
func (je *JSONEval) EvalData() *EvalData {
	return je.evalData
}

// ParsedSchema returns the bound immutable schema artifact.
func (je *JSONEval) ParsedSchema() *ParsedSchema {
	return je.parsed
}

// CacheStats snapshots the session cache counters.
func (je *JSONEval) CacheStats() CacheStats {
	return je.cache.Stats()
}

// ClearCache drops all memoized results.
func (je *JSONEval) ClearCache() {
	je.cache.Clear()
}

// EnableCache turns memoization on for this session and its subforms.
func (je *JSONEval) EnableCache() {
	je.cacheEnabled = true
	for _, sub := range je.subforms {
		sub.EnableCache()
	}
}

// DisableCache turns memoization off and drops cached entries, here and in
// subforms.
func (je *JSONEval) DisableCache() {
	je.cacheEnabled = false
	je.cache.Clear()
	for _, sub := range je.subforms {
		sub.DisableCache()
	}
}

// IsCacheEnabled reports whether memoization is active.
func (je *JSONEval) IsCacheEnabled() bool {
	return je.cacheEnabled
}

// Metrics reports session usage counters; zero values when tracking is
// disabled.
type Metrics struct {
	EvalPasses      uint64
	ExprEvaluations uint64
}

// Metrics snapshots the usage counters.
func (je *JSONEval) Metrics() Metrics {
	return Metrics{
		EvalPasses:      je.evalPasses.Load(),
		ExprEvaluations: je.exprEvals.Load(),
	}
}

func (je *JSONEval) track(counter *atomic.Uint64) {
	if je.options.EnableTracking {
		counter.Add(1)
	}
}
