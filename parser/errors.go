package parser

import (
	"fmt"
	"strings"

	"github.com/perlscan/perlscan/buffer"
)

// ErrorKind distinguishes the five fatal conditions spec.md §7 names as
// aborting the whole parse rather than being recoverable in place. Every
// other syntax problem becomes a Diagnostic embedded as a NodeError
// instead of a ParseError.
type ErrorKind int

const (
	ErrInvalidEncoding ErrorKind = iota
	ErrUnterminatedQuote
	ErrUnterminatedHeredoc
	ErrUnexpected
	ErrDelimiterMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidEncoding:
		return "invalid encoding"
	case ErrUnterminatedQuote:
		return "unterminated quote-like construct"
	case ErrUnterminatedHeredoc:
		return "unterminated heredoc"
	case ErrUnexpected:
		return "unexpected token"
	case ErrDelimiterMismatch:
		return "delimiter mismatch"
	default:
		return "parse error"
	}
}

// ParseError is the fatal error type returned from Parse/Reparse: the
// source could not be turned into a Tree at all (spec.md §7). Everything
// recoverable is instead reported through Tree.Diagnostics alongside an
// embedded NodeError.
type ParseError struct {
	Kind    ErrorKind
	Message string
	Span    buffer.Span
	Pos     buffer.Position
	Source  []byte // full source, retained only to render the snippet
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s\n%s", e.Kind, e.Message, e.snippet())
}

// snippet renders a Rust/Clang-style single-line pointer under the error
// location, matching the teacher's own ParseError.createCodeSnippet.
func (e *ParseError) snippet() string {
	if len(e.Source) == 0 || e.Pos.Line == 0 {
		return ""
	}
	lines := strings.Split(string(e.Source), "\n")
	if e.Pos.Line > len(lines) {
		return ""
	}
	line := lines[e.Pos.Line-1]

	var b strings.Builder
	fmt.Fprintf(&b, "  --> %d:%d\n", e.Pos.Line, e.Pos.Column)
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", e.Pos.Line, line)
	b.WriteString("   | ")
	if e.Pos.Column > 0 && e.Pos.Column <= len(line)+1 {
		b.WriteString(strings.Repeat(" ", e.Pos.Column-1) + "^")
	}
	return b.String()
}

// newParseError builds a fatal ParseError anchored at pos, attaching the
// source for its snippet renderer.
func newParseError(kind ErrorKind, message string, span buffer.Span, pos buffer.Position, src []byte) *ParseError {
	return &ParseError{Kind: kind, Message: message, Span: span, Pos: pos, Source: src}
}
