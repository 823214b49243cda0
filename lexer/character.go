package lexer

import "unicode"

// ASCII character lookup tables for fast classification (zero-allocation).
//
// Performance: use inline bounds-checked lookups:
//
//	if ch < 128 && isIdentPart[ch] { ... }  // fastest
//
// For runes >= 128, fall back to the unicode package (rare on real Perl
// source, which is overwhelmingly ASCII identifiers and punctuation).
var (
	isWhitespace [128]bool // space, tab, carriage return, form feed (not newline)
	isLetter     [128]bool // a-z, A-Z, _
	isDigit      [128]bool // 0-9
	isIdentStart [128]bool // letter or _
	isIdentPart  [128]bool // letter, digit, or _
	isHexDigit   [128]bool // 0-9, a-f, A-F
	isOctDigit   [128]bool // 0-7
	isBinDigit   [128]bool // 0-1
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)

		// Newline is excluded: it is a meaningful token boundary (heredoc
		// drain point, statement-ish separator for POD markers).
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f'

		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'

		isIdentStart[i] = isLetter[i]
		isIdentPart[i] = isLetter[i] || isDigit[i]

		isHexDigit[i] = isDigit[i] || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
		isOctDigit[i] = '0' <= ch && ch <= '7'
		isBinDigit[i] = ch == '0' || ch == '1'
	}
}

// Perl identifiers: [a-zA-Z_][a-zA-Z0-9_]*, optionally chained with `::`
// package separators (handled one segment at a time by the lexer, not by
// this classifier). Unlike the generic-language identifier spec this
// lexer was adapted from, Perl allows no hyphens and no extended Unicode
// identifier syntax at the core-grammar level.

// isIdentStartByte reports whether b can begin a bareword/identifier
// segment, honoring runes above ASCII via unicode.IsLetter.
func isIdentStartByte(b byte) bool {
	if b < 128 {
		return isIdentStart[b]
	}
	return unicode.IsLetter(rune(b))
}

// isIdentStartRune is the rune-aware counterpart used once a multi-byte
// UTF-8 sequence has been decoded.
func isIdentStartRune(r rune) bool {
	if r < 128 {
		return isIdentStart[byte(r)]
	}
	return unicode.IsLetter(r)
}

// isIdentPartRune reports whether r can continue an identifier segment.
func isIdentPartRune(r rune) bool {
	if r < 128 {
		return isIdentPart[byte(r)]
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isSpaceRune reports whether r is horizontal whitespace (not newline).
func isSpaceRune(r rune) bool {
	if r < 128 {
		return isWhitespace[byte(r)]
	}
	return unicode.IsSpace(r) && r != '\n'
}

// mirroredDelimiter maps an opening paired-delimiter rune to its closer.
// Quote-like operators (q, qq, qw, qr, qx, m, s, tr, y) accept any of
// these four bracket pairs with nesting; any other non-alphanumeric,
// non-whitespace rune is an "arbitrary" delimiter used verbatim as both
// opener and closer (spec.md §9 Open Questions, resolved in SPEC_FULL.md:
// any single Unicode scalar value that is not whitespace and not
// identifier-continuation).
var mirroredDelimiter = map[rune]rune{
	'(': ')',
	'[': ']',
	'{': '}',
	'<': '>',
}

// isPairedDelimiter reports whether r is one of the four bracket openers
// that nest (as opposed to an arbitrary delimiter, which does not).
func isPairedDelimiter(r rune) (closer rune, paired bool) {
	c, ok := mirroredDelimiter[r]
	return c, ok
}

// isValidDelimiter reports whether r may introduce a quote-like operator
// body: any scalar value that is neither whitespace nor identifier
// continuation (so `q foo` is never read as a delimiter, and `s/.../.../`
// vs `sXXX` both work).
func isValidDelimiter(r rune) bool {
	if r == '\n' {
		return false
	}
	return !isSpaceRune(r) && !isIdentPartRune(r) && r != 0
}
