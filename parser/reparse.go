package parser

import (
	"github.com/perlscan/perlscan/buffer"
	"github.com/perlscan/perlscan/lexer"
)

// Edit describes a single textual replacement: the byte span of the
// previous source being replaced, and the bytes replacing it (spec.md
// §6, `Edit = {span_replaced, new_text}`).
type Edit struct {
	SpanReplaced buffer.Span
	NewText      []byte
}

// Reparse implements the Incremental Reparser (spec.md §4.6): it finds
// the smallest enclosing statement- or block-shaped step strictly
// containing edit.SpanReplaced, re-lexes and re-parses only that byte
// range, and splices the result into prev in place, shifting every
// downstream span by the edit's length delta. If no enclosing step is
// found, or the freshly parsed fragment's terminator no longer matches
// the old one, it falls back to a full reparse of the new source.
//
// When WithReparseAudit is given, it additionally runs a full reparse
// of the new source and compares its SExpr rendering against the spliced
// result's, logging any divergence onto the returned tree's Diagnostics
// as a Note rather than failing (property P5's self-check).
func Reparse(prev *Tree, edit Edit, opts ...ParserOpt) (*Tree, *ParseError) {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	newSource := spliceBytes(prev.Source, edit)

	step, ok := findEnclosingStep(prev, edit.SpanReplaced)
	if !ok {
		return fullReparse(newSource, opts, config, nil)
	}

	delta := len(edit.NewText) - (edit.SpanReplaced.End - edit.SpanReplaced.Start)
	fragStart := step.byteStart
	fragEnd := step.byteEnd + delta
	if fragStart < 0 || fragEnd > len(newSource) || fragStart > fragEnd {
		return fullReparse(newSource, opts, config, nil)
	}
	fragment := newSource[fragStart:fragEnd]

	fragTree, ferr := Parse(fragment, opts...)
	if ferr != nil {
		return fullReparse(newSource, opts, config, nil)
	}
	if len(fragTree.Events) < 2 {
		return fullReparse(newSource, opts, config, nil)
	}

	oldLastType := lexer.EOF
	if step.tokenEnd > step.tokenStart {
		oldLastType = prev.Tokens[step.tokenEnd-1].Type
	}
	newLastType := lexer.EOF
	if n := len(fragTree.Tokens); n > 0 {
		last := fragTree.Tokens[n-1]
		if last.Type == lexer.EOF && n > 1 {
			// The fragment's token stream always ends in EOF; its
			// terminator is the token before that.
			last = fragTree.Tokens[n-2]
		}
		newLastType = last.Type
	}
	if terminatorCategory(oldLastType) != terminatorCategory(newLastType) {
		return fullReparse(newSource, opts, config, nil)
	}

	spliced := spliceTree(prev, step, fragTree, fragStart, delta)

	if config.reparseAudit {
		full, ferr2 := Parse(newSource, opts...)
		if ferr2 == nil {
			note := diffTrees(spliced, full)
			if note != "" {
				spliced.Diagnostics = append(spliced.Diagnostics, Diagnostic{
					Message: "reparse audit: incremental result diverges from full reparse",
					Note:    note,
				})
			}
		}
	}

	return spliced, nil
}

func fullReparse(newSource []byte, opts []ParserOpt, config *ParserConfig, _ *Tree) (*Tree, *ParseError) {
	return Parse(newSource, opts...)
}

func spliceBytes(source []byte, edit Edit) []byte {
	out := make([]byte, 0, len(source)-edit.SpanReplaced.Len()+len(edit.NewText))
	out = append(out, source[:edit.SpanReplaced.Start]...)
	out = append(out, edit.NewText...)
	out = append(out, source[edit.SpanReplaced.End:]...)
	return out
}

// enclosingStep locates one StepEnter/StepExit-bracketed region of the
// previous parse in both event-buffer and token-index coordinates.
type enclosingStep struct {
	eventStart, eventEnd int // index of the StepEnter/StepExit events themselves
	tokenStart, tokenEnd int
	byteStart, byteEnd   int
}

// findEnclosingStep scans prev's event buffer for the innermost
// StepEnter/StepExit pair whose byte range strictly contains target.
func findEnclosingStep(prev *Tree, target buffer.Span) (enclosingStep, bool) {
	type frame struct {
		eventIdx, tokenStart int
	}
	var stack []frame
	var best enclosingStep
	found := false

	for i, ev := range prev.Events {
		switch ev.Kind {
		case EventStepEnter:
			stack = append(stack, frame{eventIdx: i, tokenStart: int(ev.Data)})
		case EventStepExit:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			tokenStart, tokenEnd := top.tokenStart, int(ev.Data)
			if tokenEnd <= tokenStart || tokenStart >= len(prev.Tokens) {
				continue
			}
			byteStart := prev.Tokens[tokenStart].Span.Start
			lastIdx := tokenEnd - 1
			if lastIdx >= len(prev.Tokens) {
				lastIdx = len(prev.Tokens) - 1
			}
			byteEnd := prev.Tokens[lastIdx].Span.End
			if byteStart <= target.Start && byteEnd >= target.End {
				size := byteEnd - byteStart
				if !found || size < (best.byteEnd-best.byteStart) {
					best = enclosingStep{
						eventStart: top.eventIdx, eventEnd: i,
						tokenStart: tokenStart, tokenEnd: tokenEnd,
						byteStart: byteStart, byteEnd: byteEnd,
					}
					found = true
				}
			}
		}
	}
	return best, found
}

// terminatorCategory groups token types spec.md §4.6 treats as
// equivalent "closing bracket / semicolon context" for the splice
// compatibility check.
func terminatorCategory(t lexer.TokenType) int {
	switch t {
	case lexer.SEMICOLON:
		return 1
	case lexer.RBRACE:
		return 2
	case lexer.RPAREN:
		return 3
	case lexer.RBRACKET:
		return 4
	default:
		return 0
	}
}

// spliceTree replaces the old step's token/event range with the freshly
// parsed fragment's, shifting every downstream byte offset by delta and
// recomputing line/column positions from the new source.
func spliceTree(prev *Tree, step enclosingStep, fragTree *Tree, fragByteStart, delta int) *Tree {
	newSource := make([]byte, 0, len(prev.Source)+delta)
	newSource = append(newSource, prev.Source[:fragByteStart]...)
	newSource = append(newSource, fragTree.Source...)
	newSource = append(newSource, prev.Source[step.byteEnd:]...)

	buf, err := buffer.New(newSource)
	if err != nil {
		// Should not happen: both halves were already valid UTF-8 and
		// fragTree.Source was itself successfully parsed.
		buf = nil
	}

	// Build the combined token slice: prefix + fragment tokens (offset
	// into absolute new-source bytes) + shifted suffix.
	tokens := make([]lexer.Token, 0, len(prev.Tokens)+len(fragTree.Tokens))
	tokens = append(tokens, prev.Tokens[:step.tokenStart]...)
	tokenOffset := len(tokens)
	for _, tok := range fragTree.Tokens {
		tok.Span.Start += fragByteStart
		tok.Span.End += fragByteStart
		if buf != nil {
			tok.Start = buf.LineCol(tok.Span.Start)
			tok.End = buf.LineCol(tok.Span.End)
		}
		tokens = append(tokens, tok)
	}
	for _, tok := range prev.Tokens[step.tokenEnd:] {
		tok.Span.Start += delta
		tok.Span.End += delta
		if buf != nil {
			tok.Start = buf.LineCol(tok.Span.Start)
			tok.End = buf.LineCol(tok.Span.End)
		}
		tokens = append(tokens, tok)
	}
	tokenDelta := len(fragTree.Tokens) - (step.tokenEnd - step.tokenStart)

	// Unwrap the fragment's own Source/Close wrapper: Parse always
	// yields [Open(NodeSource), <steps...>, Close(NodeSource)].
	fragInner := fragTree.Events
	if len(fragInner) >= 2 {
		fragInner = fragInner[1 : len(fragInner)-1]
	}
	remapped := make([]Event, 0, len(fragInner))
	for _, ev := range fragInner {
		if ev.Kind == EventToken || ev.Kind == EventStepEnter || ev.Kind == EventStepExit {
			ev.Data += uint32(tokenOffset)
		}
		remapped = append(remapped, ev)
	}

	events := make([]Event, 0, len(prev.Events)+len(remapped))
	events = append(events, prev.Events[:step.eventStart]...)
	events = append(events, remapped...)
	for _, ev := range prev.Events[step.eventEnd+1:] {
		if ev.Kind == EventToken || ev.Kind == EventStepEnter || ev.Kind == EventStepExit {
			ev.Data = uint32(int(ev.Data) + tokenDelta)
		}
		events = append(events, ev)
	}

	diagnostics := make([]Diagnostic, 0, len(prev.Diagnostics)+len(fragTree.Diagnostics))
	for _, d := range prev.Diagnostics {
		if d.Span.Start >= step.byteStart && d.Span.End <= step.byteEnd {
			continue // superseded by the fragment's own diagnostics
		}
		if d.Span.Start >= step.byteEnd {
			d.Span.Start += delta
			d.Span.End += delta
		}
		diagnostics = append(diagnostics, d)
	}
	for _, d := range fragTree.Diagnostics {
		d.Span.Start += fragByteStart
		d.Span.End += fragByteStart
		diagnostics = append(diagnostics, d)
	}

	return &Tree{
		Source:      newSource,
		Tokens:      tokens,
		Events:      events,
		Diagnostics: diagnostics,
	}
}

// diffTrees returns a short human-readable note describing the first
// structural divergence between two trees, or "" if their S-expression
// renderings match. It is only ever invoked under WithReparseAudit.
func diffTrees(a, b *Tree) string {
	sa, sb := a.SExpr(), b.SExpr()
	if sa == sb {
		return ""
	}
	return "incremental: " + truncate(sa, 200) + "\nfull: " + truncate(sb, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
