package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_New(t *testing.T) {
	t.Run("valid_utf8", func(t *testing.T) {
		buf, err := New([]byte("my $x = 1;\nprint $x;\n"))
		require.NoError(t, err)
		assert.Equal(t, 3, buf.LineCount())
	})

	t.Run("invalid_utf8", func(t *testing.T) {
		_, err := New([]byte{'a', 0xff, 'b'})
		require.Error(t, err)
		var encErr *InvalidEncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, 1, encErr.Offset)
	})

	t.Run("empty_source", func(t *testing.T) {
		buf, err := New([]byte(""))
		require.NoError(t, err)
		assert.Equal(t, 1, buf.LineCount())
		assert.Equal(t, 0, buf.Len())
	})
}

func TestBuffer_LineCol(t *testing.T) {
	buf, err := New([]byte("abc\ndéf\nghi"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset int
		want   Position
	}{
		{"start_of_source", 0, Position{Line: 1, Column: 1, Offset: 0}},
		{"mid_line_one", 2, Position{Line: 1, Column: 3, Offset: 2}},
		{"start_of_line_two", 4, Position{Line: 2, Column: 1, Offset: 4}},
		// 'é' is 2 bytes (5 and 6); byte offset 7 is right after 'é' (rune column 3).
		{"after_multibyte_rune", 7, Position{Line: 2, Column: 3, Offset: 7}},
		{"start_of_line_three", 9, Position{Line: 3, Column: 1, Offset: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buf.LineCol(tt.offset)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("clamps_out_of_range_offsets", func(t *testing.T) {
		assert.Equal(t, buf.LineCol(buf.Len()), buf.LineCol(buf.Len()+100))
		assert.Equal(t, buf.LineCol(0), buf.LineCol(-5))
	})
}

func TestBuffer_LineSpan(t *testing.T) {
	buf, err := New([]byte("one\ntwo\nthree"))
	require.NoError(t, err)

	assert.Equal(t, "one\n", buf.Text(buf.LineSpan(1)))
	assert.Equal(t, "two\n", buf.Text(buf.LineSpan(2)))
	assert.Equal(t, "three", buf.Text(buf.LineSpan(3)))
	assert.Equal(t, Span{Start: buf.Len(), End: buf.Len()}, buf.LineSpan(4))
}

func TestBuffer_SliceAndText(t *testing.T) {
	buf, err := New([]byte("hello world"))
	require.NoError(t, err)

	assert.Equal(t, "hello", buf.Text(Span{Start: 0, End: 5}))
	assert.Equal(t, "world", buf.Text(Span{Start: 6, End: 11}))

	t.Run("clamps_and_never_inverts", func(t *testing.T) {
		assert.Equal(t, "", buf.Text(Span{Start: 20, End: 30}))
		assert.Equal(t, "", buf.Text(Span{Start: 8, End: 2}))
	})
}

func TestSpan_ContainsOverlapsUnion(t *testing.T) {
	outer := Span{Start: 0, End: 10}
	inner := Span{Start: 2, End: 5}
	disjoint := Span{Start: 20, End: 25}
	overlapping := Span{Start: 8, End: 15}

	assert.True(t, outer.Contains(inner))
	assert.False(t, inner.Contains(outer))
	assert.False(t, outer.Contains(disjoint))

	assert.True(t, outer.Overlaps(overlapping))
	assert.False(t, outer.Overlaps(disjoint))

	assert.Equal(t, Span{Start: 0, End: 15}, outer.Union(overlapping))
	assert.Equal(t, Span{Start: 0, End: 25}, outer.Union(disjoint))
	assert.Equal(t, 10, outer.Len())
}
