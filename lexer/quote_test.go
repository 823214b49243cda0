package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanQuoteBody_PairedNesting(t *testing.T) {
	src := []byte("{outer {inner} tail}rest")
	body, next, closed := scanQuoteBody(src, 0, '{', '}', true)
	require.True(t, closed)
	assert.Equal(t, "outer {inner} tail", string(src[body.Start:body.End]))
	assert.Equal(t, len("{outer {inner} tail}"), next)
}

func TestScanQuoteBody_ArbitraryDelimiterDoesNotNest(t *testing.T) {
	src := []byte("!a!b!")
	body, next, closed := scanQuoteBody(src, 0, '!', '!', false)
	require.True(t, closed)
	assert.Equal(t, "a", string(src[body.Start:body.End]))
	assert.Equal(t, 3, next)
}

func TestScanQuoteBody_EscapedDelimiterIsNotAClose(t *testing.T) {
	src := []byte(`/a\/b/`)
	body, next, closed := scanQuoteBody(src, 0, '/', '/', false)
	require.True(t, closed)
	assert.Equal(t, `a\/b`, string(src[body.Start:body.End]))
	assert.Equal(t, len(src), next)
}

func TestScanQuoteBody_Unterminated(t *testing.T) {
	src := []byte("/abc")
	_, next, closed := scanQuoteBody(src, 0, '/', '/', false)
	assert.False(t, closed)
	assert.Equal(t, len(src), next)
}

func TestScanQuoteDelimiters(t *testing.T) {
	t.Run("paired_after_whitespace", func(t *testing.T) {
		opener, closer, paired, pos, ok := scanQuoteDelimiters([]byte("  (body)"), 0)
		require.True(t, ok)
		assert.True(t, paired)
		assert.Equal(t, '(', opener)
		assert.Equal(t, ')', closer)
		assert.Equal(t, 2, pos)
	})

	t.Run("arbitrary", func(t *testing.T) {
		opener, closer, paired, _, ok := scanQuoteDelimiters([]byte("!body!"), 0)
		require.True(t, ok)
		assert.False(t, paired)
		assert.Equal(t, '!', opener)
		assert.Equal(t, '!', closer)
	})

	t.Run("rejects_identifier_or_whitespace_only", func(t *testing.T) {
		_, _, _, _, ok := scanQuoteDelimiters([]byte("   "), 0)
		assert.False(t, ok)
		_, _, _, _, ok = scanQuoteDelimiters([]byte("abc"), 0)
		assert.False(t, ok)
	})
}

func TestScanModifiers(t *testing.T) {
	mods, next := scanModifiers([]byte("gims;"), 0)
	assert.Equal(t, "gims", mods)
	assert.Equal(t, 4, next)
}

func TestQuoteInterpolates(t *testing.T) {
	assert.False(t, quoteInterpolates(QuoteQ, '('))
	assert.True(t, quoteInterpolates(QuoteQQ, '('))
	assert.True(t, quoteInterpolates(QuoteQQ, '\'')) // qq always interpolates, even single-quote-delimited
	assert.False(t, quoteInterpolates(QuoteTR, '/'))
	assert.False(t, quoteInterpolates(QuoteTR, '\''))
	assert.True(t, quoteInterpolates(QuoteM, '/'))
	assert.False(t, quoteInterpolates(QuoteM, '\'')) // m'...' suppresses interpolation
	assert.False(t, quoteInterpolates(QuoteQW, '\''))
}

func TestDecodeQWWords(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar", "baz"}, decodeQWWords("  foo  bar\tbaz\n"))
	assert.Empty(t, decodeQWWords("   "))
}
