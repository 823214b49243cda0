package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perlscan/perlscan/buffer"
)

func TestScanInterpolated_LiteralOnly(t *testing.T) {
	parts := scanInterpolated([]byte("hello world"), 10)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Literal)
	assert.Equal(t, "hello world", parts[0].Text)
	assert.Equal(t, buffer.Span{Start: 10, End: 21}, parts[0].Span)
}

func TestScanInterpolated_ScalarVar(t *testing.T) {
	parts := scanInterpolated([]byte("hi $name!"), 0)
	require.Len(t, parts, 3)
	assert.True(t, parts[0].Literal)
	assert.Equal(t, "hi ", parts[0].Text)
	assert.False(t, parts[1].Literal)
	assert.Equal(t, buffer.Span{Start: 3, End: 8}, parts[1].Expr) // "$name"
	assert.True(t, parts[2].Literal)
	assert.Equal(t, "!", parts[2].Text)
}

func TestScanInterpolated_ArrayVar(t *testing.T) {
	parts := scanInterpolated([]byte("@list here"), 0)
	require.Len(t, parts, 2)
	assert.False(t, parts[0].Literal)
	assert.Equal(t, buffer.Span{Start: 0, End: 5}, parts[0].Expr) // "@list"
	assert.Equal(t, " here", parts[1].Text)
}

func TestScanInterpolated_BraceExpr(t *testing.T) {
	parts := scanInterpolated([]byte("${foo->bar}"), 0)
	require.Len(t, parts, 1)
	assert.False(t, parts[0].Literal)
	assert.Equal(t, buffer.Span{Start: 0, End: 11}, parts[0].Expr)
}

func TestScanInterpolated_NotAVariable(t *testing.T) {
	// '$' followed by whitespace cannot start a variable reference, so it
	// stays part of the literal text.
	parts := scanInterpolated([]byte("cost: $ 5"), 0)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Literal)
	assert.Equal(t, "cost: $ 5", parts[0].Text)
}

func TestScanInterpolated_Subscripts(t *testing.T) {
	parts := scanInterpolated([]byte("$x[0]{key}"), 0)
	require.Len(t, parts, 1)
	assert.False(t, parts[0].Literal)
	assert.Equal(t, buffer.Span{Start: 0, End: 10}, parts[0].Expr)
}

func TestDecodeEscape(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		consumed int
		decoded  string
	}{
		{"newline", `\n`, 2, "\n"},
		{"tab", `\t`, 2, "\t"},
		{"literal_dollar", `\$`, 2, "$"},
		{"unrecognized_passes_through", `\q`, 2, `\q`},
		{"hex_braced", `\x{263A}`, 8, "☺"},
		{"hex_short", `\x41`, 4, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumed, decoded := decodeEscape([]byte(tt.in))
			assert.Equal(t, tt.consumed, consumed)
			assert.Equal(t, tt.decoded, decoded)
		})
	}
}

func TestSkipBalanced(t *testing.T) {
	body := []byte("{a{b}c}rest")
	end := skipBalanced(body, 0, '{', '}')
	assert.Equal(t, "{a{b}c}", string(body[:end]))
}
