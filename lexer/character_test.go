package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIdentStartAndPart(t *testing.T) {
	assert.True(t, isIdentStartByte('a'))
	assert.True(t, isIdentStartByte('_'))
	assert.False(t, isIdentStartByte('1'))
	assert.False(t, isIdentStartByte('$'))

	assert.True(t, isIdentPartRune('9'))
	assert.True(t, isIdentPartRune('z'))
	assert.False(t, isIdentPartRune('-'))
}

func TestIsSpaceRune(t *testing.T) {
	assert.True(t, isSpaceRune(' '))
	assert.True(t, isSpaceRune('\t'))
	assert.False(t, isSpaceRune('\n')) // newline is a meaningful boundary, not space
}

func TestPairedDelimiter(t *testing.T) {
	tests := []struct {
		opener rune
		closer rune
		paired bool
	}{
		{'(', ')', true},
		{'[', ']', true},
		{'{', '}', true},
		{'<', '>', true},
		{'/', 0, false},
		{'!', 0, false},
	}
	for _, tt := range tests {
		c, ok := isPairedDelimiter(tt.opener)
		assert.Equal(t, tt.paired, ok)
		if tt.paired {
			assert.Equal(t, tt.closer, c)
		}
	}
}

func TestIsValidDelimiter(t *testing.T) {
	assert.True(t, isValidDelimiter('/'))
	assert.True(t, isValidDelimiter('!'))
	assert.True(t, isValidDelimiter('#'))
	assert.False(t, isValidDelimiter(' '))
	assert.False(t, isValidDelimiter('\n'))
	assert.False(t, isValidDelimiter('a')) // identifier continuation, e.g. `q foo` is not a delimiter
	assert.False(t, isValidDelimiter(0))
}
