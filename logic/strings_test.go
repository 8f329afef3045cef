package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCat(t *testing.T) {
	assert.Equal(t, "Hello World", run(t, `{"cat": ["Hello", " ", "World"]}`, ""))
	assert.Equal(t, "x=1", run(t, `{"cat": ["x=", {"var": "n"}]}`, `{"n": 1}`))
	assert.Equal(t, "Hi", run(t, `{"concat": ["H", "i"]}`, ""))
}

func TestSubstr(t *testing.T) {
	data := `{"text": "Hello World"}`
	assert.Equal(t, "World", run(t, `{"substr": [{"var": "text"}, 6, 5]}`, data))
	assert.Equal(t, "Hello", run(t, `{"substr": [{"var": "text"}, 0, 5]}`, data))
	assert.Equal(t, "World", run(t, `{"substr": [{"var": "text"}, 6]}`, data))
	assert.Equal(t, "", run(t, `{"substr": ["hello", 10, 5]}`, ""))
	assert.Equal(t, "o", run(t, `{"substr": ["hello", -1, 5]}`, ""))
	assert.Equal(t, "", run(t, `{"substr": [null, 0, 5]}`, ""))
}

func TestLeftRight(t *testing.T) {
	assert.Equal(t, "Hel", run(t, `{"left": ["Hello", 3]}`, ""))
	assert.Equal(t, "llo", run(t, `{"right": ["Hello", 3]}`, ""))
	assert.Equal(t, "H", run(t, `{"left": ["Hello"]}`, ""))
	assert.Equal(t, "Hello", run(t, `{"left": ["Hello", 99]}`, ""))
}

func TestMid(t *testing.T) {
	// One-based start with saturation at both ends.
	assert.Equal(t, "ell", run(t, `{"mid": ["Hello", 2, 3]}`, ""))
	assert.Equal(t, "Hello", run(t, `{"mid": ["Hello", 1, 99]}`, ""))
	assert.Equal(t, "", run(t, `{"mid": ["Hello", 99, 3]}`, ""))
}

func TestSearch(t *testing.T) {
	data := `{"text": "Hello World"}`
	assert.Equal(t, float64(7), run(t, `{"search": ["World", {"var": "text"}]}`, data))
	assert.Equal(t, float64(1), run(t, `{"search": ["HELLO", {"var": "text"}]}`, data))
	assert.Nil(t, run(t, `{"search": ["notfound", {"var": "text"}]}`, data))
	assert.Equal(t, float64(1), run(t, `{"search": ["", "hello"]}`, ""))
	// Start position is one-based.
	assert.Equal(t, float64(13), run(t, `{"search": ["hello", "hello there hello", 8]}`, ""))
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, "b", run(t, `{"splittext": ["a,b,c", ",", 1]}`, ""))
	assert.Equal(t, "a", run(t, `{"splittext": ["a,b,c", ","]}`, ""))
	assert.Equal(t, "", run(t, `{"splittext": ["a,b,c", ",", 9]}`, ""))
}

func TestSplitValue(t *testing.T) {
	assert.Equal(t, []any{"a", "b", "c"}, run(t, `{"splitvalue": ["a,b,c", ","]}`, ""))
}

func TestLengthAndLen(t *testing.T) {
	assert.Equal(t, float64(3), run(t, `{"length": [{"var": "xs"}]}`, `{"xs": [1, 2, 3]}`))
	assert.Equal(t, float64(5), run(t, `{"length": ["hello"]}`, ""))
	assert.Equal(t, float64(0), run(t, `{"length": [42]}`, ""))
	assert.Equal(t, float64(2), run(t, `{"len": [42]}`, ""))
	assert.Equal(t, float64(4), run(t, `{"len": [true]}`, ""))
}

func TestStringFormat(t *testing.T) {
	assert.Equal(t, "1,234,568", run(t, `{"stringformat": [1234567.89]}`, ""))
	assert.Equal(t, "1,234,567.89", run(t, `{"stringformat": [1234567.89, 2]}`, ""))
	assert.Equal(t, "$1,234,567.89", run(t, `{"stringformat": [1234567.89, 2, "$"]}`, ""))
	assert.Equal(t, "$1,234,567.89 USD", run(t, `{"stringformat": [1234567.89, 2, "$", " USD"]}`, ""))
	assert.Equal(t, "1.234.568", run(t, `{"stringformat": [1234567.89, 0, "", "", "."]}`, ""))
	assert.Equal(t, "-1,234", run(t, `{"stringformat": [-1234]}`, ""))
}
