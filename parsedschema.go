package jsoneval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

// EvalEntry associates an eval key with its compiled expression id.
type EvalEntry struct {
	Key string
	ID  logic.ID
}

// evalMap is an insertion-ordered EvalKey → logic.ID mapping.
type evalMap struct {
	keys []string
	m    map[string]logic.ID
}

func newEvalMap() *evalMap {
	return &evalMap{m: make(map[string]logic.ID)}
}

func (e *evalMap) set(key string, id logic.ID) {
	if _, ok := e.m[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.m[key] = id
}

func (e *evalMap) get(key string) (logic.ID, bool) {
	id, ok := e.m[key]
	return id, ok
}

func (e *evalMap) has(key string) bool {
	_, ok := e.m[key]
	return ok
}

func (e *evalMap) len() int { return len(e.keys) }

// Entries returns the mapping in insertion order.
func (e *evalMap) entries() []EvalEntry {
	out := make([]EvalEntry, len(e.keys))
	for i, k := range e.keys {
		out[i] = EvalEntry{Key: k, ID: e.m[k]}
	}
	return out
}

// ParsedSchema is the immutable artifact of schema parsing. It is safe to
// share across goroutines and across evaluator sessions.
type ParsedSchema struct {
	// Schema is the parsed schema tree with expression nodes left in place.
	Schema *ordered.Map

	evaluations      *evalMap
	ruleEvaluations  *evalMap
	valueEvaluations *evalMap

	// dependencies maps eval keys to their dependency paths in first-seen
	// order; entries mix data paths and other eval keys.
	dependencies map[string][]string
	depOrder     []string

	// sortedEvaluations holds wave-ordered batches: every key in batch i has
	// all of its dependencies in batches < i.
	sortedEvaluations [][]string

	tables     map[string]*TableMeta
	tableOrder []string

	subformPaths []string
	subforms     map[string]*ParsedSchema

	layoutPaths      []string
	optionsTemplates []string
	fieldsWithRules  []string

	// params holds the schema's $params subtree, copied into session data.
	params *ordered.Map
}

// Evaluations returns all $evaluation sites in discovery order.
func (p *ParsedSchema) Evaluations() []EvalEntry { return p.evaluations.entries() }

// RuleEvaluations returns the rule expression sites in discovery order.
func (p *ParsedSchema) RuleEvaluations() []EvalEntry { return p.ruleEvaluations.entries() }

// ValueEvaluations returns the value-shorthand sites in discovery order.
func (p *ParsedSchema) ValueEvaluations() []EvalEntry { return p.valueEvaluations.entries() }

// Dependencies returns the dependency paths of an eval key.
func (p *ParsedSchema) Dependencies(key string) []string { return p.dependencies[key] }

// DependencyKeys returns every registered eval key in registration order;
// keys with no dependencies are included with an empty list.
func (p *ParsedSchema) DependencyKeys() []string { return p.depOrder }

// SortedEvaluations returns the wave-ordered batches.
func (p *ParsedSchema) SortedEvaluations() [][]string { return p.sortedEvaluations }

// TableKeys returns the eval keys of table generators in discovery order.
func (p *ParsedSchema) TableKeys() []string { return p.tableOrder }

// SubformPaths returns schema positions where an items template was lifted
// into an independent schema.
func (p *ParsedSchema) SubformPaths() []string { return p.subformPaths }

// Subform returns the lifted schema registered at the given parent path.
func (p *ParsedSchema) Subform(path string) (*ParsedSchema, bool) {
	sub, ok := p.subforms[path]
	return sub, ok
}

// LayoutPaths returns the pointers of $layout roots.
func (p *ParsedSchema) LayoutPaths() []string { return p.layoutPaths }

// FieldsWithRules returns the dotted field paths that declare rules.
func (p *ParsedSchema) FieldsWithRules() []string { return p.fieldsWithRules }

// ParseSchema parses a JSON schema document into a ParsedSchema.
func ParseSchema(schemaJSON []byte) (*ParsedSchema, error) {
	root, err := ordered.Decode(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSONUnmarshal, err)
	}
	obj, ok := root.(*ordered.Map)
	if !ok {
		return nil, ErrSchemaNotObject
	}
	return parseSchemaObject(obj)
}

// ParseSchemaYAML parses a YAML schema document into a ParsedSchema.
func ParseSchemaYAML(schemaYAML []byte) (*ParsedSchema, error) {
	jsonBytes, err := yaml.YAMLToJSON(schemaYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrYAMLUnmarshal, err)
	}
	return ParseSchema(jsonBytes)
}

// parsedSchemaCache deduplicates ParsedSchema builds by content hash.
var parsedSchemaCache sync.Map // uint64 → *ParsedSchema

// ParseSchemaCached parses a JSON schema, reusing a previously parsed
// artifact for identical schema bytes. ParsedSchema is immutable, so
// sharing is safe.
func ParseSchemaCached(schemaJSON []byte) (*ParsedSchema, error) {
	hash := xxhash.Sum64(schemaJSON)
	if cached, ok := parsedSchemaCache.Load(hash); ok {
		return cached.(*ParsedSchema), nil
	}
	parsed, err := ParseSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	actual, _ := parsedSchemaCache.LoadOrStore(hash, parsed)
	return actual.(*ParsedSchema), nil
}

// MarshalJSONSchema re-encodes the schema tree.
func (p *ParsedSchema) MarshalJSONSchema() ([]byte, error) {
	return json.Marshal(p.Schema)
}

// dataPathOf maps an eval key to the dotted data path its result occupies,
// stripping structural keywords and a trailing "value" segment.
func dataPathOf(evalKey string) string {
	ptr := SchemaPointerToDataPointer(evalKey)
	dot := PointerToDot(ptr)
	dot = strings.TrimSuffix(dot, ".value")
	if dot == "value" {
		dot = ""
	}
	return dot
}

// buildGraph derives eval-key edges from the dependency table: an edge
// k1 → k2 exists when k2 depends on a path that k1's result occupies (or a
// descendant of it).
func (p *ParsedSchema) buildGraph() map[string][]string {
	keys := p.evaluations.keys
	resultPaths := make(map[string]string, len(keys))
	for _, k := range keys {
		resultPaths[k] = dataPathOf(k)
	}

	edges := make(map[string][]string, len(keys))
	for _, k2 := range keys {
		for _, dep := range p.dependencies[k2] {
			depDot := PointerToDot(SchemaPointerToDataPointer(dep))
			for _, k1 := range keys {
				if k1 == k2 {
					continue
				}
				rp := resultPaths[k1]
				if rp == "" {
					continue
				}
				if rp == depDot || strings.HasPrefix(depDot, rp+".") || k1 == dep {
					edges[k1] = append(edges[k1], k2)
				}
			}
		}
	}
	return edges
}

// topoSort orders eval keys into wave batches with Kahn's algorithm;
// remaining keys indicate a dependency cycle.
func (p *ParsedSchema) topoSort() error {
	keys := p.evaluations.keys
	edges := p.buildGraph()

	indegree := make(map[string]int, len(keys))
	for _, k := range keys {
		indegree[k] = 0
	}
	for _, targets := range edges {
		for _, t := range targets {
			indegree[t]++
		}
	}

	remaining := len(keys)
	current := make([]string, 0, len(keys))
	for _, k := range keys {
		if indegree[k] == 0 {
			current = append(current, k)
		}
	}

	var batches [][]string
	for len(current) > 0 {
		batches = append(batches, current)
		remaining -= len(current)
		var next []string
		for _, k := range current {
			for _, t := range edges[k] {
				indegree[t]--
				if indegree[t] == 0 {
					next = append(next, t)
				}
			}
		}
		current = next
	}

	if remaining > 0 {
		var cycle []string
		for _, k := range keys {
			if indegree[k] > 0 {
				cycle = append(cycle, k)
			}
		}
		return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, ", "))
	}

	p.sortedEvaluations = batches
	return nil
}
