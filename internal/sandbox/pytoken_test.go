package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenValues(toks []token, kind tokenKind) []string {
	var out []string
	for _, t := range toks {
		if t.kind == kind {
			out = append(out, t.value)
		}
	}
	return out
}

func TestTokenizeStringForms(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		value string
	}{
		{"single quoted", `s = 'abc'`, "abc"},
		{"double quoted", `s = "abc"`, "abc"},
		{"escapes decoded", `s = "a\tb\nc"`, "a\tb\nc"},
		{"escaped quote", `s = "say \"hi\""`, `say "hi"`},
		{"raw keeps backslash", `s = r"a\tb"`, `a\tb`},
		{"bytes prefix", `s = b"data"`, "data"},
		{"f-string body kept", `s = f"{x}!"`, "{x}!"},
		{"triple quoted", "s = '''line1\nline2'''", "line1\nline2"},
		{"empty string", `s = ""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := tokenize(tt.code)
			require.NoError(t, err)
			strs := tokenValues(toks, tokenString)
			require.Len(t, strs, 1)
			assert.Equal(t, tt.value, strs[0])
		})
	}
}

func TestTokenizePrefixVersusIdentifier(t *testing.T) {
	// "rb" directly before a quote is a string prefix; otherwise it is a
	// plain name.
	toks, err := tokenize(`rb = rb"x"`)
	require.NoError(t, err)

	assert.Equal(t, []string{"rb"}, tokenValues(toks, tokenName))
	assert.Equal(t, []string{"x"}, tokenValues(toks, tokenString))
}

func TestTokenizeNewlineSuppressedInBrackets(t *testing.T) {
	toks, err := tokenize("x = (1,\n2,\n3)\ny = 2\n")
	require.NoError(t, err)

	newlines := 0
	for _, tok := range toks {
		if tok.kind == tokenNewline {
			newlines++
		}
	}
	assert.Equal(t, 2, newlines)
}

func TestTokenizeLineContinuation(t *testing.T) {
	toks, err := tokenize("x = 1 + \\\n2\n")
	require.NoError(t, err)

	newlines := 0
	for _, tok := range toks {
		if tok.kind == tokenNewline {
			newlines++
		}
	}
	assert.Equal(t, 1, newlines)
}

func TestTokenizeComments(t *testing.T) {
	toks, err := tokenize("x = 1  # import os\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, tokenValues(toks, tokenName))
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unterminated short", `s = "abc`},
		{"unterminated triple", `s = """abc""`},
		{"newline in short string", "s = \"ab\nc\""},
		{"unclosed bracket", "f(1, 2"},
		{"mismatched bracket", "f(1]"},
		{"bad continuation", "x = \\ 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokenize(tt.code)
			assert.Error(t, err)
		})
	}
}

func TestTokenizeTracksLines(t *testing.T) {
	toks, err := tokenize("a = 1\nb = 2\nc = 3\n")
	require.NoError(t, err)

	var names []int
	for _, tok := range toks {
		if tok.kind == tokenName {
			names = append(names, tok.line)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, names)
}
