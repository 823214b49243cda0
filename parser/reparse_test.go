package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perlscan/perlscan/buffer"
	"github.com/perlscan/perlscan/lexer"
)

func TestReparse_EditWithinOneStatement(t *testing.T) {
	src := "my $x = 1;\nmy $y = 2;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	// replace "1" with "99" in the first statement.
	offset := len("my $x = ")
	edit := Edit{SpanReplaced: buffer.Span{Start: offset, End: offset + 1}, NewText: []byte("99")}

	next, perr := Reparse(prev, edit)
	require.Nil(t, perr)
	assert.Equal(t, "my $x = 99;\nmy $y = 2;", string(next.Source))
	assert.Empty(t, next.Diagnostics)

	children := next.Root().Children()
	require.Len(t, children, 2)
	assert.Equal(t, "my $x = 99;", children[0].Text())
	assert.Equal(t, "my $y = 2;", children[1].Text())
}

func TestReparse_ShiftsDownstreamSpans(t *testing.T) {
	src := "my $x = 1;\nmy $y = 2;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	offset := len("my $x = ")
	edit := Edit{SpanReplaced: buffer.Span{Start: offset, End: offset + 1}, NewText: []byte("12345")}

	next, perr := Reparse(prev, edit)
	require.Nil(t, perr)

	second := next.Root().Children()[1]
	assert.Equal(t, "my $y = 2;", second.Text())
}

func TestReparse_MatchesFullReparse(t *testing.T) {
	src := "my $x = 1;\nmy $y = 2;\nmy $z = 3;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	offset := len("my $x = 1;\nmy $y = ")
	edit := Edit{SpanReplaced: buffer.Span{Start: offset, End: offset + 1}, NewText: []byte("20")}

	incremental, perr := Reparse(prev, edit)
	require.Nil(t, perr)

	full, perr := Parse([]byte("my $x = 1;\nmy $y = 20;\nmy $z = 3;"))
	require.Nil(t, perr)

	assert.Equal(t, full.SExpr(), incremental.SExpr())
}

func TestReparse_TerminatorMismatchFallsBackToFullReparse(t *testing.T) {
	src := "my $x = 1;\nmy $y = 2;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	// turn the first statement's trailing ";" into "}", changing its
	// terminator category and forcing a full reparse fallback.
	offset := len("my $x = 1")
	edit := Edit{SpanReplaced: buffer.Span{Start: offset, End: offset + 1}, NewText: []byte("}")}

	next, perr := Reparse(prev, edit)
	require.Nil(t, perr)
	assert.Equal(t, "my $x = 1}\nmy $y = 2;", string(next.Source))
}

func TestReparse_InsertAtEndOfSource(t *testing.T) {
	src := "my $x = 1;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	edit := Edit{SpanReplaced: buffer.Span{Start: len(src), End: len(src)}, NewText: []byte("\nmy $y = 2;")}

	next, perr := Reparse(prev, edit)
	require.Nil(t, perr)
	assert.Equal(t, "my $x = 1;\nmy $y = 2;", string(next.Source))
	require.Len(t, next.Root().Children(), 2)
}

func TestReparse_WithReparseAuditNoDivergence(t *testing.T) {
	src := "my $x = 1;\nmy $y = 2;"
	prev, perr := Parse([]byte(src))
	require.Nil(t, perr)

	offset := len("my $x = ")
	edit := Edit{SpanReplaced: buffer.Span{Start: offset, End: offset + 1}, NewText: []byte("7")}

	next, perr := Reparse(prev, edit, WithReparseAudit())
	require.Nil(t, perr)
	assert.Empty(t, next.Diagnostics)
}

func TestTerminatorCategory(t *testing.T) {
	assert.NotEqual(t, terminatorCategory(lexer.SEMICOLON), terminatorCategory(lexer.RBRACE))
	assert.NotEqual(t, terminatorCategory(lexer.RPAREN), terminatorCategory(lexer.RBRACKET))
	assert.Equal(t, terminatorCategory(lexer.EOF), terminatorCategory(lexer.IDENT))
}
