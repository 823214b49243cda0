package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/perlscan/perlscan/buffer"
)

// scanQuoteBody consumes one delimited body starting at src[pos], where
// src[pos] == opener. It returns the body's interior span (exclusive of
// both delimiters), the byte offset just past the closing delimiter, and
// whether a close was found before EOF. Paired delimiters nest; arbitrary
// delimiters do not (spec.md §4.2 Quote body sublexer).
func scanQuoteBody(src []byte, pos int, opener, closer rune, paired bool) (body buffer.Span, next int, closed bool) {
	return scanQuoteBodyAt(src, pos+utf8.RuneLen(opener), opener, closer, paired)
}

// scanQuoteBodyAt consumes one delimited body whose interior already
// starts at src[start] — used for the replacement/to half of a
// non-paired `s///`/`tr///`, where the shared delimiter closing the
// first body doubles as the second body's opener and so has already
// been consumed (there is no fresh opener left at src[start] to skip).
func scanQuoteBodyAt(src []byte, start int, opener, closer rune, paired bool) (body buffer.Span, next int, closed bool) {
	i := start
	depth := 1

	for i < len(src) {
		r, size := utf8.DecodeRune(src[i:])
		switch {
		case r == '\\' && i+size < len(src):
			_, nsize := utf8.DecodeRune(src[i+size:])
			i += size + nsize
			continue
		case paired && r == opener:
			depth++
		case r == closer:
			depth--
			if depth == 0 {
				return buffer.Span{Start: start, End: i}, i + size, true
			}
		}
		i += size
	}
	return buffer.Span{Start: start, End: len(src)}, len(src), false
}

// scanQuoteDelimiters reads the delimiter immediately following a
// quote-like operator keyword (after any intervening horizontal
// whitespace), classifying it as paired or arbitrary, and returns its
// rune, closer, and the byte offset of the delimiter itself.
func scanQuoteDelimiters(src []byte, pos int) (opener, closer rune, paired bool, delimPos int, ok bool) {
	i := pos
	for i < len(src) {
		r, size := utf8.DecodeRune(src[i:])
		if r == ' ' || r == '\t' {
			i += size
			continue
		}
		if !isValidDelimiter(r) {
			return 0, 0, false, i, false
		}
		if c, isPaired := isPairedDelimiter(r); isPaired {
			return r, c, true, i, true
		}
		return r, r, false, i, true
	}
	return 0, 0, false, i, false
}

// scanModifiers reads the trailing run of lowercase-letter modifiers after
// a closed quote-like body (e.g. `s/a/b/gi`, `m/x/x`, `tr/a/b/cds`).
func scanModifiers(src []byte, pos int) (mods string, next int) {
	start := pos
	for pos < len(src) {
		b := src[pos]
		if b < 'a' || b > 'z' {
			break
		}
		pos++
	}
	return string(src[start:pos]), pos
}

// quoteInterpolates reports whether a quote-like operator's body
// participates in interpolation. `q`, `qw`, and `tr`/`y` never interpolate
// regardless of delimiter; `qq`/`qx` always do, regardless of delimiter;
// `m`, `s`, and `qr` interpolate unless delimited by `'`, matching real
// Perl's single-quoted-pattern rule (`m'...'`/`s'...'...'` are read almost
// like single-quoted strings, with no variable interpolation).
func quoteInterpolates(op QuoteOp, opener rune) bool {
	switch op {
	case QuoteQ, QuoteQW, QuoteTR:
		return false
	case QuoteQQ, QuoteQX:
		return true
	default: // QuoteM, QuoteS, QuoteQR
		return opener != '\''
	}
}

// decodeQWWords splits a qw(...) body on runs of whitespace.
func decodeQWWords(body string) []string {
	return strings.Fields(body)
}
