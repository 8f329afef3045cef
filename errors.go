package jsoneval

import "errors"

// === Schema Parsing Related Errors ===
var (
	// ErrSchemaParse is returned when the schema document cannot be parsed.
	ErrSchemaParse = errors.New("schema parse failed")

	// ErrJSONUnmarshal is returned when there is an error unmarshalling JSON.
	ErrJSONUnmarshal = errors.New("json unmarshal failed")

	// ErrYAMLUnmarshal is returned when there is an error unmarshalling YAML.
	ErrYAMLUnmarshal = errors.New("yaml unmarshal failed")

	// ErrCircularDependency is returned when evaluation dependencies form a
	// cycle; the message lists the keys involved.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrSchemaNotObject is returned when the schema root is not an object.
	ErrSchemaNotObject = errors.New("schema root must be an object")
)

// === Evaluation Related Errors ===
var (
	// ErrCancelled is returned when evaluation is cancelled via the caller's
	// context.
	ErrCancelled = errors.New("cancelled")

	// ErrTableNotFound is returned when a table eval key has no parsed
	// metadata.
	ErrTableNotFound = errors.New("table metadata not found")

	// ErrSubformNotFound is returned when a subform path is not registered.
	ErrSubformNotFound = errors.New("subform not found")

	// ErrDataParse is returned when an input data document cannot be parsed.
	ErrDataParse = errors.New("data parse failed")
)
