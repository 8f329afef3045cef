package jsoneval

import (
	"fmt"
	"strings"

	"github.com/byrizki/jsoneval/logic"
	"github.com/byrizki/jsoneval/pkg/ordered"
)

func parseSchemaObject(root *ordered.Map) (*ParsedSchema, error) {
	p := &ParsedSchema{
		Schema:           root,
		evaluations:      newEvalMap(),
		ruleEvaluations:  newEvalMap(),
		valueEvaluations: newEvalMap(),
		dependencies:     make(map[string][]string),
		tables:           make(map[string]*TableMeta),
		subforms:         make(map[string]*ParsedSchema),
	}

	if params, ok := root.Get("$params"); ok {
		if paramsObj, isObj := params.(*ordered.Map); isObj {
			p.params = paramsObj
		}
	}

	if err := p.walk(root, ""); err != nil {
		return nil, err
	}
	if err := p.topoSort(); err != nil {
		return nil, err
	}
	if err := p.buildSubforms(); err != nil {
		return nil, err
	}
	return p, nil
}

// walk discovers expression sites, rules, tables, subforms, layout roots,
// and options templates in one depth-first pass.
func (p *ParsedSchema) walk(node any, ptr string) error {
	switch t := node.(type) {
	case *ordered.Map:
		return p.walkObject(t, ptr)
	case []any:
		for i, el := range t {
			if err := p.walk(el, fmt.Sprintf("%s/%d", ptr, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *ParsedSchema) walkObject(obj *ordered.Map, ptr string) error {
	// An object carrying $evaluation is an expression site; its eval key is
	// the pointer to the object itself. The value shorthand
	// value: {$evaluation: …} lands here too with a pointer ending /value.
	if expr, ok := obj.Get("$evaluation"); ok {
		if err := p.registerEvaluation(ptr, expr); err != nil {
			return err
		}
	}

	// Array-of-object template: lift items into an independent subform and
	// stop descending.
	if isSubformField(obj) {
		p.subformPaths = append(p.subformPaths, ptr)
		return nil
	}

	// A literal items array holds table row plans.
	isTable := false
	if items, ok := obj.Get("items"); ok {
		if rows, isArr := items.([]any); isArr {
			isTable = true
			if err := p.registerTable(ptr, obj, rows); err != nil {
				return err
			}
		}
	}

	if layout, ok := obj.Get("$layout"); ok {
		if layoutObj, isObj := layout.(*ordered.Map); isObj && layoutObj.Has("elements") {
			p.layoutPaths = append(p.layoutPaths, ptr+"/$layout")
		}
	}

	if err := p.maybeRegisterOptionsTemplate(obj, ptr); err != nil {
		return err
	}

	if rules, ok := obj.Get("rules"); ok {
		if _, isObj := rules.(*ordered.Map); isObj {
			p.fieldsWithRules = append(p.fieldsWithRules, PointerToDot(SchemaPointerToDataPointer(ptr)))
		}
	}

	var walkErr error
	obj.Range(func(key string, value any) bool {
		if key == "$evaluation" {
			return true
		}
		if isTable && (key == "items" || key == "$datas" || key == "$skip" || key == "$clear") {
			// Table internals are compiled by registerTable, not as free
			// expression sites.
			return true
		}
		walkErr = p.walk(value, ptr+"/"+escapePointerSegment(key))
		return walkErr == nil
	})
	return walkErr
}

func escapePointerSegment(seg string) string {
	if !strings.ContainsAny(seg, "~/") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~", "~0")
	return strings.ReplaceAll(seg, "/", "~1")
}

func isSubformField(obj *ordered.Map) bool {
	typ, _ := obj.Get("type")
	if s, ok := typ.(string); !ok || s != "array" {
		return false
	}
	items, ok := obj.Get("items")
	if !ok {
		return false
	}
	itemsObj, isObj := items.(*ordered.Map)
	return isObj && itemsObj.Has("properties")
}

func (p *ParsedSchema) registerEvaluation(ptr string, expr any) error {
	id, err := logic.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: at %s: %w", ErrSchemaParse, ptr, err)
	}
	p.evaluations.set(ptr, id)
	if strings.HasSuffix(ptr, "/value") && !strings.Contains(ptr, "/rules/") {
		p.valueEvaluations.set(ptr, id)
	}
	if strings.Contains(ptr, "/rules/") {
		p.ruleEvaluations.set(ptr, id)
	}
	p.registerDependencies(ptr, logic.Dependencies(id))
	return nil
}

func (p *ParsedSchema) registerDependencies(key string, deps []string) {
	if _, ok := p.dependencies[key]; !ok {
		p.depOrder = append(p.depOrder, key)
	}
	existing := p.dependencies[key]
outer:
	for _, dep := range deps {
		for _, have := range existing {
			if have == dep {
				continue outer
			}
		}
		existing = append(existing, dep)
	}
	p.dependencies[key] = existing
}

// maybeRegisterOptionsTemplate turns options.url placeholders plus an
// options.params object into a synthetic concatenation expression.
func (p *ParsedSchema) maybeRegisterOptionsTemplate(obj *ordered.Map, ptr string) error {
	optsV, ok := obj.Get("options")
	if !ok {
		return nil
	}
	opts, isObj := optsV.(*ordered.Map)
	if !isObj {
		return nil
	}
	urlV, ok := opts.Get("url")
	if !ok {
		return nil
	}
	url, isStr := urlV.(string)
	if !isStr || !strings.Contains(url, "{") {
		return nil
	}
	paramsV, ok := opts.Get("params")
	if !ok {
		return nil
	}
	params, isObj := paramsV.(*ordered.Map)
	if !isObj {
		return nil
	}

	parts := splitURLTemplate(url)
	catArgs := make([]any, 0, len(parts))
	for _, part := range parts {
		if part.token == "" {
			catArgs = append(catArgs, part.literal)
			continue
		}
		if expr, ok := params.Get(part.token); ok {
			catArgs = append(catArgs, expr)
		} else {
			catArgs = append(catArgs, "{"+part.token+"}")
		}
	}
	catExpr := ordered.NewMap()
	catExpr.Set("cat", catArgs)

	key := ptr + "/options/url"
	id, err := logic.Compile(catExpr)
	if err != nil {
		return fmt.Errorf("%w: options template at %s: %w", ErrSchemaParse, ptr, err)
	}
	p.evaluations.set(key, id)
	p.optionsTemplates = append(p.optionsTemplates, key)
	p.registerDependencies(key, logic.Dependencies(id))
	return nil
}

type urlPart struct {
	literal string
	token   string
}

func splitURLTemplate(url string) []urlPart {
	var parts []urlPart
	for len(url) > 0 {
		open := strings.IndexByte(url, '{')
		if open < 0 {
			parts = append(parts, urlPart{literal: url})
			break
		}
		closeIdx := strings.IndexByte(url[open:], '}')
		if closeIdx < 0 {
			parts = append(parts, urlPart{literal: url})
			break
		}
		if open > 0 {
			parts = append(parts, urlPart{literal: url[:open]})
		}
		parts = append(parts, urlPart{token: url[open+1 : open+closeIdx]})
		url = url[open+closeIdx+1:]
	}
	return parts
}

// buildSubforms lifts each detected items template into a standalone
// schema: {$params: <parent $params>, <field>: <items with type=object>}.
// Subforms inherit $params at creation time and nothing else.
func (p *ParsedSchema) buildSubforms() error {
	for _, ptr := range p.subformPaths {
		field, ok := getByPointer(p.Schema, ptr)
		if !ok {
			continue
		}
		fieldObj, isObj := field.(*ordered.Map)
		if !isObj {
			continue
		}
		itemsV, ok := fieldObj.Get("items")
		if !ok {
			continue
		}
		items, isObj := itemsV.(*ordered.Map)
		if !isObj {
			continue
		}

		lifted := items.Clone()
		lifted.Set("type", "object")

		segs := splitPathSegments(ptr)
		fieldName := "subform"
		if len(segs) > 0 {
			fieldName = segs[len(segs)-1]
		}

		subSchema := ordered.NewMap()
		if p.params != nil {
			subSchema.Set("$params", p.params.Clone())
		}
		subSchema.Set(fieldName, lifted)

		sub, err := parseSchemaObject(subSchema)
		if err != nil {
			return fmt.Errorf("%w: subform at %s: %w", ErrSchemaParse, ptr, err)
		}
		p.subforms[ptr] = sub
	}
	return nil
}
