package lexer

import (
	"strings"

	"github.com/perlscan/perlscan/buffer"
)

// heredocCoordinator owns the FIFO of pending heredoc requests and drains
// them at each newline, splicing resolved bodies back into the token
// stream (spec.md §4.3). A request is enqueued the instant `<<TAG` (in
// any of its four quoting forms) is recognized; the tag's own line keeps
// lexing normally afterward, and the body is only consumed once the
// newline that ends that line is reached.
type heredocCoordinator struct {
	pending []pendingHeredoc
}

func (h *heredocCoordinator) enqueue(tag string, interpolating, indented bool, tokenIndex int) {
	h.pending = append(h.pending, pendingHeredoc{
		tag:           tag,
		interpolating: interpolating,
		indented:      indented,
		tokenIndex:    tokenIndex,
	})
}

func (h *heredocCoordinator) empty() bool { return len(h.pending) == 0 }

// drainOne resolves the oldest pending heredoc against buf starting at
// bodyStart (the byte right after the newline that triggered the drain).
// It returns the resolved payload, the byte offset just past the
// terminator line, and whether the terminator line was found (false means
// the source ended first: spec.md's UnterminatedHeredoc fatal error).
func (h *heredocCoordinator) drainOne(buf *buffer.Buffer, bodyStart int) (HeredocPayload, int, bool) {
	req := h.pending[0]
	h.pending = h.pending[1:]

	src := buf.Bytes()
	pos := bodyStart
	var rawLines []string
	lineStart := pos

	for {
		lineEnd := lineStart
		for lineEnd < len(src) && src[lineEnd] != '\n' {
			lineEnd++
		}
		line := string(src[lineStart:lineEnd])

		candidate := line
		if req.indented {
			candidate = strings.TrimLeft(line, " \t")
		}
		if candidate == req.tag {
			body := joinHeredocLines(rawLines, req.indented)
			terminatorEnd := lineEnd
			if terminatorEnd < len(src) {
				terminatorEnd++ // consume the terminator's own newline
			}
			parts := []StringPart(nil)
			if req.interpolating {
				parts = scanInterpolated([]byte(body), bodyStart)
			}
			return HeredocPayload{
				Tag:           req.tag,
				Interpolating: req.interpolating,
				Indented:      req.indented,
				RawBody:       buffer.Span{Start: bodyStart, End: lineStart},
				StrippedBody:  body,
				Parts:         parts,
			}, terminatorEnd, true
		}

		if lineEnd >= len(src) {
			// EOF reached without finding the terminator.
			body := joinHeredocLines(rawLines, req.indented)
			return HeredocPayload{
				Tag:           req.tag,
				Interpolating: req.interpolating,
				Indented:      req.indented,
				RawBody:       buffer.Span{Start: bodyStart, End: lineEnd},
				StrippedBody:  body,
			}, lineEnd, false
		}

		rawLines = append(rawLines, line)
		lineStart = lineEnd + 1
	}
}

// joinHeredocLines reassembles the body text, stripping the minimum
// leading whitespace common to all non-blank body lines for `<<~TAG` forms
// (spec.md §4.3). This core deliberately bases stripping on the body's own
// minimum indent rather than the terminator line's indent the way real
// Perl does, so that a terminator indented less than the body never turns
// into a fatal error: a parser core serving a language server should keep
// parsing over under-stripping rather than abort.
func joinHeredocLines(lines []string, indented bool) string {
	if !indented || len(lines) == 0 {
		return strings.Join(appendNewlines(lines), "")
	}
	minIndent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := leadingWhitespaceLen(l)
		if minIndent == -1 || n < minIndent {
			minIndent = n
		}
	}
	if minIndent <= 0 {
		return strings.Join(appendNewlines(lines), "")
	}
	stripped := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= minIndent {
			stripped[i] = l[minIndent:]
		} else {
			stripped[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(appendNewlines(stripped), "")
}

func appendNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

func leadingWhitespaceLen(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}
