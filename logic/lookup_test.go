package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

const peopleTable = `{
  "table": [
    {"id": 100, "name": "Alice", "age": 30, "city": "NYC"},
    {"id": 200, "name": "Bob", "age": 25, "city": "LA"},
    {"id": 300, "name": "Charlie", "age": 35, "city": "NYC"}
  ]
}`

func TestValueAt(t *testing.T) {
	assert.Equal(t, "Bob", run(t, `{"valueat": [{"var": "table"}, 1, "name"]}`, peopleTable))
	assert.Equal(t, float64(35), run(t, `{"valueat": [{"var": "table"}, 2, "age"]}`, peopleTable))

	row := run(t, `{"valueat": [{"var": "table"}, 1]}`, peopleTable)
	obj, ok := row.(*ordered.Map)
	require.True(t, ok)
	assert.Equal(t, "Bob", obj.GetOr("name", nil))

	assert.Nil(t, run(t, `{"valueat": [{"var": "table"}, -1]}`, peopleTable))
	assert.Nil(t, run(t, `{"valueat": [{"var": "table"}, 5]}`, peopleTable))
	assert.Nil(t, run(t, `{"valueat": [{"var": "table"}, 0, "missing"]}`, peopleTable))
}

func TestMaxAt(t *testing.T) {
	// Returns the last row's column (the table is assumed pre-sorted).
	assert.Equal(t, float64(35), run(t, `{"maxat": [{"var": "table"}, "age"]}`, peopleTable))
	assert.Nil(t, run(t, `{"maxat": [{"var": "empty"}, "age"]}`, `{"empty": []}`))
}

func TestIndexAt(t *testing.T) {
	assert.Equal(t, float64(1), run(t, `{"indexat": [200, {"var": "table"}, "id"]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t, `{"indexat": [999, {"var": "table"}, "id"]}`, peopleTable))
	// Range mode: first row where row[field] <= lookup.
	assert.Equal(t, float64(0), run(t, `{"indexat": [250, {"var": "table"}, "id", true]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t, `{"indexat": [50, {"var": "table"}, "id", true]}`, peopleTable))
}

func TestMatch(t *testing.T) {
	assert.Equal(t, float64(0), run(t, `{"match": [{"var": "table"}, "Alice", "name"]}`, peopleTable))
	assert.Equal(t, float64(0), run(t, `{"match": [{"var": "table"}, "Alice", "name", "NYC", "city"]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t, `{"match": [{"var": "table"}, "Alice", "name", "LA", "city"]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t, `{"match": [{"var": "table"}, "David", "name"]}`, peopleTable))
}

func TestMatchRange(t *testing.T) {
	rates := `{"rates": [
		{"min_age": 0, "max_age": 25, "rate": 0.05},
		{"min_age": 26, "max_age": 40, "rate": 0.07},
		{"min_age": 41, "max_age": 60, "rate": 0.09}
	]}`
	assert.Equal(t, float64(1), run(t, `{"matchrange": [{"var": "rates"}, "min_age", "max_age", 30]}`, rates))
	assert.Equal(t, float64(0), run(t, `{"matchrange": [{"var": "rates"}, "min_age", "max_age", 25]}`, rates))
	assert.Equal(t, float64(-1), run(t, `{"matchrange": [{"var": "rates"}, "min_age", "max_age", 99]}`, rates))
}

func TestChoose(t *testing.T) {
	assert.Equal(t, float64(1), run(t, `{"choose": [{"var": "table"}, "Bob", "name", "Paris", "city"]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t, `{"choose": [{"var": "table"}, "David", "name", "Paris", "city"]}`, peopleTable))
}

func TestFindIndex(t *testing.T) {
	// Conditions evaluate with the row as user data.
	assert.Equal(t, float64(2), run(t,
		`{"findindex": [{"var": "table"}, {">": [{"var": "age"}, 30]}]}`, peopleTable))
	assert.Equal(t, float64(-1), run(t,
		`{"findindex": [{"var": "table"}, {">": [{"var": "age"}, 99]}]}`, peopleTable))
	// No conditions matches the first row.
	assert.Equal(t, float64(0), run(t, `{"findindex": [{"var": "table"}]}`, peopleTable))
}

func TestFindIndexConditionShorthand(t *testing.T) {
	// [op, value, col] rewrites to {op: [{var: col}, value]}.
	assert.Equal(t, float64(1), run(t,
		`{"findindex": [{"var": "table"}, ["==", "Bob", "name"]]}`, peopleTable))
}

func TestFindIndexOuterContext(t *testing.T) {
	// The outer data object remains reachable through $ref.
	data := `{
	  "threshold": 28,
	  "table": [
	    {"age": 25},
	    {"age": 30}
	  ]
	}`
	assert.Equal(t, float64(1), run(t,
		`{"findindex": [{"var": "table"}, {">": [{"var": "age"}, {"$ref": "threshold"}]}]}`, data))
}

func TestFusedValueAt(t *testing.T) {
	// valueat(table, indexat(table, …), col) runs as a single scan and
	// matches the unfused semantics.
	assert.Equal(t, "Bob", run(t,
		`{"valueat": [{"var": "table"}, {"indexat": [200, {"var": "table"}, "id"]}, "name"]}`, peopleTable))
	assert.Equal(t, "Charlie", run(t,
		`{"valueat": [{"var": "table"}, {"findindex": [{"var": "table"}, {">": [{"var": "age"}, 30]}]}, "name"]}`, peopleTable))
	assert.Equal(t, "Alice", run(t,
		`{"valueat": [{"var": "table"}, {"match": [{"var": "table"}, "Alice", "name"]}, "name"]}`, peopleTable))
	// A miss inside the fused selector yields null.
	assert.Nil(t, run(t,
		`{"valueat": [{"var": "table"}, {"indexat": [999, {"var": "table"}, "id"]}, "name"]}`, peopleTable))
}
