// Package jsoneval evaluates JSON-Schema-like documents augmented with
// embedded expression trees.
//
// A schema carries declarative computations ($evaluation nodes), validation
// rules, layout references, and tabular generators. ParseSchema walks the
// document once, compiles every expression into the process-wide logic
// store, and derives a dependency graph ordered into parallel-safe batches.
// A JSONEval session binds the immutable ParsedSchema to mutable data and
// context, producing an evaluated schema, a flattened data view, validation
// error lists, and incremental recomputation of the fields affected by a
// change.
//
// Basic usage:
//
//	parsed, err := jsoneval.ParseSchema(schemaBytes)
//	eval, err := jsoneval.NewWithParsedSchema(parsed, "", dataJSON)
//	err = eval.Evaluate(ctx, dataJSON, "{}", nil)
//	schema := eval.GetEvaluatedSchema(false)
//
// Expression semantics live in the logic subpackage; see its documentation
// for the operator set.
package jsoneval
