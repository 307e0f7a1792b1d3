package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeJSONBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"int", `42`, `42`},
		{"negative int", `-100`, `-100`},
		{"bool", `true`, `true`},
		{"null", `null`, `null`},
		{"empty array", `[ ]`, `[]`},
		{"empty object", `{ }`, `{}`},
		{"whitespace removed", `{ "a" : [1, 2, 3] }`, `{"a":[1,2,3]}`},
		{"number kept verbatim", `{"n":1.50}`, `{"n":1.50}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CanonicalizeJSON([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeJSONSortedKeys(t *testing.T) {
	result, err := CanonicalizeJSON([]byte(`{"zebra":1,"alpha":2,"beta":{"y":1,"x":2}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestCanonicalizeJSONUTF16Ordering(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort below U+FF61.
	result, err := CanonicalizeJSON([]byte(`{"｡":1,"😀":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"😀":2,"｡":1}`, string(result))
}

func TestCanonicalizeJSONNoHTMLEscaping(t *testing.T) {
	result, err := CanonicalizeJSON([]byte(`{"content":"<b>&</b>"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"content":"<b>&</b>"}`, string(result))
}

func TestCanonicalizeJSONNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	result, err := CanonicalizeJSON([]byte("\"cafe\u0301\""))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(result))
}

func TestCanonicalizeJSONLineSeparators(t *testing.T) {
	result, err := CanonicalizeJSON([]byte("\"a\u2028b\""))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	result, err = CanonicalizeJSON([]byte(`"a\\u2028b"`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestCanonicalizeJSONErrors(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = CanonicalizeJSON([]byte(`{} {}`))
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)
}
