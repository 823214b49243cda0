package parser

import (
	"fmt"
	"time"

	"github.com/perlscan/perlscan/buffer"
	"github.com/perlscan/perlscan/invariant"
	"github.com/perlscan/perlscan/lexer"
)

// Parse lexes and parses source into a Tree (spec.md §6 External
// Interfaces). It returns a fatal *ParseError only for the five
// conditions spec.md §7 names as aborting the whole parse; every other
// syntax problem is recorded as a Diagnostic alongside an embedded
// NodeError and parsing continues.
func Parse(source []byte, opts ...ParserOpt) (*Tree, *ParseError) {
	buf, err := buffer.New(source)
	if err != nil {
		return nil, newParseError(ErrInvalidEncoding, err.Error(), buffer.Span{}, buffer.Position{Line: 1, Column: 1}, source)
	}

	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	var telemetry *ParseTelemetry
	var startTotal time.Time
	if config.telemetry >= TelemetryBasic {
		telemetry = &ParseTelemetry{}
		if config.telemetry >= TelemetryTiming {
			startTotal = time.Now()
		}
	}

	var startLex time.Time
	if config.telemetry >= TelemetryTiming {
		startLex = time.Now()
	}
	lx := lexer.New(buf)
	tokens := lx.TokenizeToSlice()
	if config.telemetry >= TelemetryBasic {
		telemetry.TokenCount = len(tokens)
		if config.telemetry >= TelemetryTiming {
			telemetry.LexTime = time.Since(startLex)
		}
	}

	if fatal := firstFatalLexToken(tokens, source); fatal != nil {
		return nil, fatal
	}

	tree, debugEvents := parseTokens(source, tokens, config)

	if config.telemetry >= TelemetryBasic {
		telemetry.EventCount = len(tree.Events)
		telemetry.ErrorCount = len(tree.Diagnostics)
		if config.telemetry >= TelemetryTiming {
			telemetry.ParseTime = time.Since(startTotal) - telemetry.LexTime
			telemetry.TotalTime = time.Since(startTotal)
		}
		tree.Telemetry = telemetry
	}
	tree.DebugEvents = debugEvents

	return tree, nil
}

// ParseTokens parses a pre-lexed token stream, mainly for benchmarking
// pure parse performance separate from lexing.
func ParseTokens(source []byte, tokens []lexer.Token, opts ...ParserOpt) (*Tree, *ParseError) {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}
	if fatal := firstFatalLexToken(tokens, source); fatal != nil {
		return nil, fatal
	}
	tree, debugEvents := parseTokens(source, tokens, config)
	tree.DebugEvents = debugEvents
	return tree, nil
}

// firstFatalLexToken scans the already-produced token stream for an
// ILLEGAL token representing one of the lexer-level fatal conditions
// (unterminated quote-like body or heredoc): spec.md §7 treats these as
// aborting the parse rather than becoming a recoverable Diagnostic,
// because no sensible statement boundary can be assumed past them.
func firstFatalLexToken(tokens []lexer.Token, source []byte) *ParseError {
	for _, tok := range tokens {
		if tok.Type != lexer.ILLEGAL {
			continue
		}
		kind := ErrUnexpected
		msg := "illegal token"
		switch {
		case tok.Heredoc != nil:
			kind = ErrUnterminatedHeredoc
			msg = fmt.Sprintf("heredoc <<%s was never terminated", tok.Heredoc.Tag)
		case tok.Quote != nil:
			kind = ErrUnterminatedQuote
			msg = "quote-like construct was never closed"
		}
		return newParseError(kind, msg, tok.Span, tok.Start, source)
	}
	return nil
}

// parser is the internal recursive-descent + precedence-climbing state.
type parser struct {
	source      []byte
	tokens      []lexer.Token
	pos         int
	events      []Event
	diagnostics []Diagnostic
	config      *ParserConfig
	debugEvents []DebugEvent
	subNames    map[string]bool // declared sub names, for bareword-call disambiguation
}

func parseTokens(source []byte, tokens []lexer.Token, config *ParserConfig) (*Tree, []DebugEvent) {
	eventCap := len(tokens) * 3
	if eventCap < 16 {
		eventCap = 16
	}
	p := &parser{
		source:   source,
		tokens:   tokens,
		events:   make([]Event, 0, eventCap),
		config:   config,
		subNames: collectSubNames(tokens),
	}
	if config.debug > DebugOff {
		p.debugEvents = make([]DebugEvent, 0, 64)
	}

	p.parseSource()

	return &Tree{
		Source:      source,
		Tokens:      tokens,
		Events:      p.events,
		Diagnostics: p.diagnostics,
	}, p.debugEvents
}

// builtinFuncs is the set of core Perl list-operator functions a bareword
// call is recognized against even with no `sub NAME` declaration in scope
// (spec.md §4.5 "or is a known built-in").
var builtinFuncs = map[string]bool{
	"print": true, "printf": true, "say": true, "warn": true, "die": true,
	"push": true, "pop": true, "shift": true, "unshift": true, "splice": true,
	"keys": true, "values": true, "each": true, "delete": true, "exists": true,
	"defined": true, "scalar": true, "wantarray": true, "ref": true,
	"sprintf": true, "join": true, "split": true, "map": true, "grep": true,
	"sort": true, "reverse": true, "chomp": true, "chop": true, "lc": true,
	"uc": true, "lcfirst": true, "ucfirst": true, "length": true, "substr": true,
	"index": true, "rindex": true, "bless": true,
}

// collectSubNames prescans the token stream for `sub NAME` declarations
// at any brace depth, so the expression grammar can tell a bareword
// function call (`foo $x`) from a plain string/indirect-object use of the
// same bareword without needing symbol-table semantics (spec.md §4.5
// "subroutine-call vs. indirect-object disambiguation").
func collectSubNames(tokens []lexer.Token) map[string]bool {
	names := make(map[string]bool)
	for i := 0; i < len(tokens); i++ {
		if tokens[i].Type != lexer.KW_SUB {
			continue
		}
		j := i + 1
		for j < len(tokens) && tokens[j].Type == lexer.NEWLINE {
			j++
		}
		if j < len(tokens) && tokens[j].Type == lexer.IDENT {
			names[tokens[j].Text] = true
		}
	}
	return names
}

func (p *parser) recordDebug(event, context string) {
	if p.config == nil || p.config.debug == DebugOff || p.debugEvents == nil {
		return
	}
	p.debugEvents = append(p.debugEvents, DebugEvent{
		Timestamp: time.Now(), Event: event, TokenPos: p.pos, Context: context,
	})
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) at(typ lexer.TokenType) bool { return p.current().Type == typ }

func (p *parser) atAny(types ...lexer.TokenType) bool {
	cur := p.current().Type
	for _, t := range types {
		if cur == t {
			return true
		}
	}
	return false
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) skipNewlines() {
	for p.at(lexer.NEWLINE) || p.at(lexer.COMMENT) || p.at(lexer.POD) {
		p.advance()
	}
}

func (p *parser) start(kind NodeKind) NodeKind {
	p.events = append(p.events, Event{Kind: EventOpen, Data: uint32(kind)})
	return kind
}

func (p *parser) finish(kind NodeKind) {
	p.events = append(p.events, Event{Kind: EventClose, Data: uint32(kind)})
}

func (p *parser) token() {
	p.events = append(p.events, Event{Kind: EventToken, Data: uint32(p.pos)})
	p.advance()
}

// stepEnter/stepExit bracket one statement- or top-level-item-sized parse
// step with the token index it started/ended at, so the Incremental
// Reparser can locate the smallest enclosing step for an edited span
// without re-walking the whole tree (spec.md §4.6).
func (p *parser) stepEnter() {
	p.events = append(p.events, Event{Kind: EventStepEnter, Data: uint32(p.pos)})
}

func (p *parser) stepExit() {
	p.events = append(p.events, Event{Kind: EventStepExit, Data: uint32(p.pos)})
}

func (p *parser) expect(expected lexer.TokenType, context string) bool {
	if p.at(expected) {
		p.token()
		return true
	}
	p.errorExpected(expected, context)
	return false
}

func (p *parser) errorExpected(expected lexer.TokenType, context string) {
	cur := p.current()
	p.diagnostics = append(p.diagnostics, Diagnostic{
		Span:     cur.Span,
		Message:  "missing " + expected.String(),
		Context:  context,
		Expected: []lexer.TokenType{expected},
		Got:      cur.Type,
	})
}

func (p *parser) errorUnexpected(context string) {
	cur := p.current()
	p.diagnostics = append(p.diagnostics, Diagnostic{
		Span: cur.Span, Message: "unexpected " + cur.Type.String(), Context: context, Got: cur.Type,
	})
}

// recover skips tokens until a statement boundary is reached, so one bad
// construct does not derail the rest of the parse (spec.md §7 Error
// recovery).
func (p *parser) recover() {
	for !p.isSyncToken() {
		p.advance()
	}
}

func (p *parser) isSyncToken() bool {
	switch p.current().Type {
	case lexer.SEMICOLON, lexer.RBRACE, lexer.EOF, lexer.NEWLINE:
		return true
	}
	return false
}

// errorNode turns the current token (none if it is a sync token) into a
// NodeError leaf carrying a Diagnostic, per spec.md §7:
// recoverable errors stay embedded in the tree rather than aborting.
func (p *parser) errorNode(context string) {
	kind := p.start(NodeError)
	p.errorUnexpected(context)
	if !p.isSyncToken() {
		p.token()
	}
	p.finish(kind)
}

// parseSource is the top-level grammar entry: a sequence of statements
// and package-scoped declarations (spec.md §4.5 Declarations).
func (p *parser) parseSource() {
	p.recordDebug("enter_source", "")
	kind := p.start(NodeSource)

	for !p.at(lexer.EOF) {
		prevPos := p.pos
		p.skipNewlines()
		if p.at(lexer.EOF) {
			break
		}
		if p.at(lexer.COMMENT) || p.at(lexer.POD) {
			p.token()
			continue
		}
		if p.at(lexer.DATA_SECTION) {
			dkind := p.start(NodeDataSection)
			p.token()
			p.finish(dkind)
			continue
		}
		if p.at(lexer.RBRACE) {
			// A closing brace with no open block: record it and move on.
			ekind := p.start(NodeError)
			p.errorUnexpected("statement")
			p.token()
			p.finish(ekind)
			continue
		}

		p.stepEnter()
		p.topLevelItem()
		p.stepExit()

		invariant.Invariant(p.pos > prevPos || p.at(lexer.EOF),
			"parser made no progress at top level, pos %d", p.pos)
	}

	p.finish(kind)
	p.recordDebug("exit_source", "")
}

func (p *parser) topLevelItem() {
	switch p.current().Type {
	case lexer.KW_PACKAGE:
		p.packageDecl()
	case lexer.KW_USE:
		p.useDecl()
	case lexer.KW_NO:
		p.noDecl()
	case lexer.KW_REQUIRE:
		p.requireStmt()
	case lexer.KW_SUB:
		p.subDecl()
	default:
		p.statement()
	}
}

func (p *parser) packageDecl() {
	kind := p.start(NodePackage)
	p.token() // package
	if p.atAny(lexer.IDENT, lexer.QUALIFIED) {
		nameKind := p.start(NodePackageName)
		p.token()
		p.finish(nameKind)
	} else {
		p.errorExpected(lexer.IDENT, "package name")
	}
	if p.at(lexer.LBRACE) {
		p.block()
	} else {
		p.statementTerminator()
	}
	p.finish(kind)
}

func (p *parser) useDecl() {
	kind := p.start(NodeUse)
	p.token() // use
	p.restOfStatementAsTokens()
	p.statementTerminator()
	p.finish(kind)
}

func (p *parser) noDecl() {
	kind := p.start(NodeNo)
	p.token() // no
	p.restOfStatementAsTokens()
	p.statementTerminator()
	p.finish(kind)
}

func (p *parser) requireStmt() {
	kind := p.start(NodeRequire)
	p.token() // require
	p.restOfStatementAsTokens()
	p.statementTerminator()
	p.finish(kind)
}

// restOfStatementAsTokens consumes every token up to the next statement
// terminator as plain leaves. `use`/`no`/`require` arguments can be
// arbitrarily complex version numbers, import lists, or expressions;
// this core records their tokens without re-deriving full expression
// structure, since no spec.md operation needs to evaluate them.
func (p *parser) restOfStatementAsTokens() {
	for !p.at(lexer.SEMICOLON) && !p.at(lexer.NEWLINE) && !p.at(lexer.EOF) {
		p.token()
	}
}

func (p *parser) statementTerminator() {
	if p.at(lexer.SEMICOLON) {
		p.token()
	} else if p.atAny(lexer.RBRACE, lexer.NEWLINE, lexer.EOF) {
		// Semicolons are optional before a block-closing brace, newline,
		// or end of input.
	} else {
		p.errorExpected(lexer.SEMICOLON, "statement")
	}
}

// subDecl parses `sub NAME SIGNATURE? BLOCK` and the forward-declaration
// form `sub NAME;`.
func (p *parser) subDecl() {
	kind := p.start(NodeSubDecl)
	p.token() // sub
	if p.atAny(lexer.IDENT, lexer.QUALIFIED) {
		p.token()
	} else {
		p.errorExpected(lexer.IDENT, "subroutine name")
	}
	if p.at(lexer.LPAREN) {
		p.subSignature()
	}
	if p.at(lexer.LBRACE) {
		p.block()
	} else {
		p.statementTerminator()
	}
	p.finish(kind)
}

func (p *parser) subSignature() {
	kind := p.start(NodeSubSig)
	p.token() // (
	depth := 1
	for depth > 0 && !p.at(lexer.EOF) {
		switch p.current().Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth == 0 {
				p.token()
				p.finish(kind)
				return
			}
		}
		p.token()
	}
	p.finish(kind)
}

// block parses `{ statement* }`.
func (p *parser) block() {
	kind := p.start(NodeBlock)
	p.expect(lexer.LBRACE, "block")
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		prevPos := p.pos
		p.skipNewlines()
		if p.at(lexer.RBRACE) || p.at(lexer.EOF) {
			break
		}
		p.stepEnter()
		p.statement()
		p.stepExit()
		invariant.Invariant(p.pos > prevPos, "parser made no progress in block() at pos %d", p.pos)
	}
	p.expect(lexer.RBRACE, "block")
	p.finish(kind)
}

// statement parses one statement, including an optional leading LABEL:
// and an optional trailing postfix statement modifier (spec.md §4.5
// Control flow).
func (p *parser) statement() {
	if p.at(lexer.IDENT) && p.peekType(1) == lexer.COLON && p.peekType(2) != lexer.COLON {
		lkind := p.start(NodeLabel)
		p.token() // LABEL
		p.token() // :
		p.finish(lkind)
		p.skipNewlines()
	}

	switch p.current().Type {
	case lexer.KW_PACKAGE:
		p.packageDecl()
		return
	case lexer.KW_USE:
		p.useDecl()
		return
	case lexer.KW_NO:
		p.noDecl()
		return
	case lexer.KW_REQUIRE:
		p.requireStmt()
		return
	case lexer.KW_SUB:
		p.subDecl()
		return
	case lexer.LBRACE:
		p.block()
		return
	case lexer.KW_IF, lexer.KW_UNLESS:
		p.ifStmt()
		return
	case lexer.KW_WHILE, lexer.KW_UNTIL:
		p.whileStmt()
		return
	case lexer.KW_FOR, lexer.KW_FOREACH:
		p.forStmt()
		return
	case lexer.KW_MY, lexer.KW_OUR, lexer.KW_LOCAL, lexer.KW_STATE:
		p.varDeclStmt()
		return
	case lexer.KW_RETURN:
		p.simpleKeywordStmt(NodeReturn)
		return
	case lexer.KW_NEXT:
		p.simpleKeywordStmt(NodeNext)
		return
	case lexer.KW_LAST:
		p.simpleKeywordStmt(NodeLast)
		return
	case lexer.KW_REDO:
		p.simpleKeywordStmt(NodeRedo)
		return
	}

	p.exprStatement()
}

// atAny2 reports whether the token n positions ahead of the current one
// has one of the given types.
func (p *parser) atAny2(n int, types ...lexer.TokenType) bool {
	cur := p.peekType(n)
	for _, t := range types {
		if cur == t {
			return true
		}
	}
	return false
}

func (p *parser) peekType(n int) lexer.TokenType {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return lexer.EOF
	}
	return p.tokens[idx].Type
}

// simpleKeywordStmt parses `return/next/last/redo [EXPR] [MODIFIER];`.
func (p *parser) simpleKeywordStmt(kind NodeKind) {
	k := p.start(kind)
	p.token() // keyword
	if !p.atAny(lexer.SEMICOLON, lexer.NEWLINE, lexer.EOF, lexer.RBRACE) && !p.atStatementModifierKeyword() {
		p.parseListExpr()
	}
	p.maybeStatementModifier()
	p.statementTerminator()
	p.finish(k)
}

func (p *parser) atStatementModifierKeyword() bool {
	return p.atAny(lexer.KW_IF, lexer.KW_UNLESS, lexer.KW_WHILE, lexer.KW_UNTIL, lexer.KW_FOR, lexer.KW_FOREACH)
}

// exprStatement parses an expression statement, including the postfix
// statement-modifier form (`EXPR if COND;`) spec.md §4.5 calls out
// alongside the block forms.
func (p *parser) exprStatement() {
	kind := p.start(NodeExprStmt)
	if p.atAny(lexer.SEMICOLON, lexer.RBRACE, lexer.EOF) {
		p.finish(kind)
		if p.at(lexer.SEMICOLON) {
			p.token()
		}
		return
	}
	p.parseListExpr()
	p.maybeStatementModifier()
	p.statementTerminator()
	p.finish(kind)
}

// maybeStatementModifier wraps the just-parsed statement's events in a
// NodeStatementMod if a postfix if/unless/while/until/for follows.
func (p *parser) maybeStatementModifier() {
	if !p.atStatementModifierKeyword() {
		return
	}
	// Close the already-parsed primary statement here, so it is the most
	// recently completed node, and splice a StatementMod wrapper in before
	// it; the caller's terminator and finish then complete the wrapper.
	p.events = append(p.events, Event{Kind: EventClose})
	p.wrapLast(NodeStatementMod)
	p.token() // if/unless/while/until/for
	p.parseListExpr()
}

// lastOpenStart finds the index of the Open event that began the most
// recently completed top-level node in the current event buffer, so
// wrapLast can wrap it without re-parsing. With no completed node at the
// tail, it returns the innermost Open that is still unclosed.
func (p *parser) lastOpenStart() int {
	depth := 0
	for i := len(p.events) - 1; i >= 0; i-- {
		switch p.events[i].Kind {
		case EventClose:
			depth++
		case EventOpen:
			depth--
			if depth <= 0 {
				return i
			}
		}
	}
	return 0
}

// ifStmt parses `if/unless (COND) BLOCK (elsif (COND) BLOCK)* (else BLOCK)?`.
func (p *parser) ifStmt() {
	kind := p.start(NodeIf)
	p.token() // if/unless
	p.expect(lexer.LPAREN, "condition")
	p.parseListExpr()
	p.expect(lexer.RPAREN, "condition")
	p.block()

	for {
		p.skipNewlines()
		if p.at(lexer.KW_ELSIF) {
			ek := p.start(NodeElsif)
			p.token()
			p.expect(lexer.LPAREN, "condition")
			p.parseListExpr()
			p.expect(lexer.RPAREN, "condition")
			p.block()
			p.finish(ek)
			continue
		}
		break
	}
	p.skipNewlines()
	if p.at(lexer.KW_ELSE) {
		ek := p.start(NodeElse)
		p.token()
		p.block()
		p.finish(ek)
	}
	p.finish(kind)
}

// whileStmt parses `while/until (COND) BLOCK (continue BLOCK)?`.
func (p *parser) whileStmt() {
	kind := p.start(NodeWhile)
	p.token() // while/until
	p.expect(lexer.LPAREN, "condition")
	if !p.at(lexer.RPAREN) {
		p.parseListExpr()
	}
	p.expect(lexer.RPAREN, "condition")
	p.block()
	p.skipNewlines()
	if p.at(lexer.KW_CONTINUE) {
		ck := p.start(NodeContinue)
		p.token()
		p.block()
		p.finish(ck)
	}
	p.finish(kind)
}

// forStmt parses both the C-style `for (INIT; COND; STEP) BLOCK` and the
// foreach `for/foreach [my VAR] (LIST) BLOCK` forms, distinguishing them
// by scanning ahead for the two semicolons of the C-style header.
func (p *parser) forStmt() {
	if p.looksLikeCStyleFor() {
		kind := p.start(NodeCStyleFor)
		p.token() // for
		p.expect(lexer.LPAREN, "for")
		if !p.at(lexer.SEMICOLON) {
			p.parseListExpr()
		}
		p.expect(lexer.SEMICOLON, "for")
		if !p.at(lexer.SEMICOLON) {
			p.parseListExpr()
		}
		p.expect(lexer.SEMICOLON, "for")
		if !p.at(lexer.RPAREN) {
			p.parseListExpr()
		}
		p.expect(lexer.RPAREN, "for")
		p.block()
		p.finish(kind)
		return
	}

	kind := p.start(NodeForeach)
	p.token() // for/foreach
	if p.atAny(lexer.KW_MY, lexer.KW_OUR, lexer.KW_LOCAL, lexer.KW_STATE) {
		p.token()
		p.scalarOrListTarget()
	}
	p.expect(lexer.LPAREN, "foreach list")
	if !p.at(lexer.RPAREN) {
		p.parseListExpr()
	}
	p.expect(lexer.RPAREN, "foreach list")
	p.block()
	p.skipNewlines()
	if p.at(lexer.KW_CONTINUE) {
		ck := p.start(NodeContinue)
		p.token()
		p.block()
		p.finish(ck)
	}
	p.finish(kind)
}

func (p *parser) scalarOrListTarget() {
	if p.at(lexer.SCALAR_VAR) {
		p.token()
	}
}

// looksLikeCStyleFor scans forward from the opening `(` for a top-level
// `;` before the matching `)`, which only the C-style form has.
func (p *parser) looksLikeCStyleFor() bool {
	if p.peekType(1) != lexer.LPAREN {
		return false
	}
	depth := 0
	for i := p.pos + 1; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth == 0 {
				return false
			}
		case lexer.SEMICOLON:
			if depth == 1 {
				return true
			}
		case lexer.EOF:
			return false
		}
	}
	return false
}

// varDeclStmt parses `my/our/local/state (LIST)|VAR [= EXPR] [MODIFIER];`.
func (p *parser) varDeclStmt() {
	kind := p.start(NodeVarDecl)
	p.token() // my/our/local/state
	p.declList()

	if p.at(lexer.ASSIGN) {
		p.token()
		p.parseListExpr()
	}
	p.maybeStatementModifier()
	p.statementTerminator()
	p.finish(kind)
}

// declList parses the `(LIST)` or single-VAR target of a declaration,
// shared by varDeclStmt and the declaration-as-expression case in
// parsePrimary (spec.md §4.5 note on "my" usable in expression position,
// most commonly a C-style for loop's init clause).
func (p *parser) declList() {
	if p.at(lexer.LPAREN) {
		p.token()
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			dk := p.start(NodeDeclItem)
			if p.atAny(lexer.SCALAR_VAR, lexer.ARRAY_VAR, lexer.HASH_VAR) {
				p.token()
			} else {
				p.errorUnexpected("variable declaration list")
			}
			p.finish(dk)
			if p.at(lexer.COMMA) {
				p.token()
			} else {
				break
			}
		}
		p.expect(lexer.RPAREN, "variable declaration list")
	} else if p.atAny(lexer.SCALAR_VAR, lexer.ARRAY_VAR, lexer.HASH_VAR) {
		dk := p.start(NodeDeclItem)
		p.token()
		p.finish(dk)
	} else {
		p.errorUnexpected("variable declaration")
	}
}

// ---------------------------------------------------------------------
// Expression grammar: precedence-climbing recursive descent over the
// operator ladder spec.md §4.5 specifies, from lowest to highest:
// or/xor, and, not, list/comma, assignment (right), ?: (right),
// range, ||//, &&, |^, &, equality, relational, named unary (file test),
// shift, additive, multiplicative, match/bind, unary, **(right),
// prefix ++/--, postfix ++/-- and arrow/subscript, primary.
// ---------------------------------------------------------------------

func (p *parser) parseListExpr() {
	kind := p.start(NodeListExpr)
	p.parseLowOr()
	for p.at(lexer.COMMA) || p.at(lexer.FAT_COMMA) {
		p.token()
		if p.atAny(lexer.SEMICOLON, lexer.RPAREN, lexer.RBRACE, lexer.RBRACKET, lexer.EOF) {
			break
		}
		p.parseLowOr()
	}
	p.finish(kind)
}

func (p *parser) parseLowOr() {
	p.parseLowAnd()
	for p.atAny(lexer.KW_OR, lexer.KW_XOR) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseLowAnd()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseLowAnd() {
	p.parseLowNot()
	for p.at(lexer.KW_AND) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseLowNot()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseLowNot() {
	if p.at(lexer.KW_NOT) {
		p.start(NodeUnaryExpr)
		p.token()
		p.parseLowNot()
		p.finish(NodeUnaryExpr)
		return
	}
	p.parseAssign()
}

func (p *parser) parseAssign() {
	p.parseTernary()
	if p.isAssignOp(p.current().Type) {
		p.wrapLast(NodeAssignExpr)
		p.token()
		p.parseAssign() // right-associative
		p.finish(NodeAssignExpr)
	}
}

func (p *parser) isAssignOp(t lexer.TokenType) bool {
	switch t {
	case lexer.ASSIGN, lexer.PLUSEQ, lexer.MINUSEQ, lexer.STAREQ, lexer.SLASHEQ,
		lexer.PERCENTEQ, lexer.STARSTAREQ, lexer.DOTEQ, lexer.XEQ, lexer.AMPEQ,
		lexer.PIPEEQ, lexer.CARETEQ, lexer.LSHIFTEQ, lexer.RSHIFTEQ,
		lexer.AMPAMPEQ, lexer.PIPEPIPEEQ, lexer.DOTDOTEQ, lexer.DEFINEDOREQ:
		return true
	}
	return false
}

func (p *parser) parseTernary() {
	p.parseRange()
	if p.at(lexer.QUESTION) {
		p.wrapLast(NodeTernaryExpr)
		p.token()
		p.parseAssign()
		p.expect(lexer.COLON, "ternary expression")
		p.parseAssign()
		p.finish(NodeTernaryExpr)
	}
}

func (p *parser) parseRange() {
	p.parseOrOr()
	if p.atAny(lexer.DOTDOT, lexer.DOTDOTDOT) {
		p.wrapLast(NodeRangeExpr)
		p.token()
		p.parseOrOr()
		p.finish(NodeRangeExpr)
	}
}

func (p *parser) parseOrOr() {
	p.parseAndAnd()
	for p.atAny(lexer.PIPEPIPE, lexer.DEFINEDOR) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseAndAnd()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseAndAnd() {
	p.parseBitOr()
	for p.at(lexer.AMPAMP) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseBitOr()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseBitOr() {
	p.parseBitAnd()
	for p.atAny(lexer.PIPE, lexer.CARET) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseBitAnd()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseBitAnd() {
	p.parseEquality()
	for p.at(lexer.AMP) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseEquality()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseEquality() {
	p.parseRelational()
	for p.atAny(lexer.EQEQ, lexer.NE, lexer.SPACESHIP, lexer.STREQ, lexer.STRNE, lexer.STRCMP) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseRelational()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseRelational() {
	p.parseNamedUnary()
	for p.atAny(lexer.LT, lexer.GT, lexer.LE, lexer.GE, lexer.STRLT, lexer.STRGT, lexer.STRLE, lexer.STRGE) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseNamedUnary()
		p.finish(NodeBinaryExpr)
	}
}

// parseNamedUnary handles the file-test operators at their own
// precedence slot (SPEC_FULL.md Supplemental features; spec.md §4.5
// names the slot without enumerating the operator set).
func (p *parser) parseNamedUnary() {
	if p.at(lexer.FILE_TEST_OP) {
		kind := p.start(NodeFileTest)
		p.token()
		if !p.atAny(lexer.SEMICOLON, lexer.RPAREN, lexer.RBRACE, lexer.COMMA, lexer.EOF) {
			p.parseShift()
		}
		p.finish(kind)
		return
	}
	p.parseShift()
}

func (p *parser) parseShift() {
	p.parseAdditive()
	for p.atAny(lexer.LSHIFT, lexer.RSHIFT) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseAdditive()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseAdditive() {
	p.parseMultiplicative()
	for p.atAny(lexer.PLUS, lexer.MINUS, lexer.DOT) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseMultiplicative()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseMultiplicative() {
	p.parseMatchBind()
	for p.atAny(lexer.STAR, lexer.SLASH, lexer.PERCENT, lexer.REPEAT) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseMatchBind()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseMatchBind() {
	p.parseUnary()
	for p.atAny(lexer.MATCH, lexer.NOMATCH) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseUnary()
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parseUnary() {
	switch p.current().Type {
	case lexer.BANG, lexer.TILDE, lexer.MINUS, lexer.PLUS, lexer.BACKSLASH:
		kind := p.start(NodeUnaryExpr)
		p.token()
		p.parseUnary()
		p.finish(kind)
	default:
		p.parsePow()
	}
}

func (p *parser) parsePow() {
	p.parsePrefixIncDec()
	if p.at(lexer.STARSTAR) {
		p.wrapLast(NodeBinaryExpr)
		p.token()
		p.parseUnary() // right-associative, binds tighter than unary minus on the right
		p.finish(NodeBinaryExpr)
	}
}

func (p *parser) parsePrefixIncDec() {
	if p.atAny(lexer.PLUSPLUS, lexer.MINUSMINUS) {
		kind := p.start(NodeUnaryExpr)
		p.token()
		p.parsePrefixIncDec()
		p.finish(kind)
		return
	}
	p.parsePostfix()
}

// parsePostfix handles postfix ++/--, ->method/->[...]/->{...}/->(...),
// and chained subscripts (spec.md §4.5).
func (p *parser) parsePostfix() {
	p.parsePrimary()
	for {
		switch p.current().Type {
		case lexer.PLUSPLUS, lexer.MINUSMINUS:
			p.wrapLast(NodePostfixExpr)
			p.token()
			p.finish(NodePostfixExpr)
		case lexer.ARROW:
			// ->method/->method(...) is a distinct node from ->[...]/->{...}/
			// ->(...)/->@*  dereference forms (spec.md §3 node taxonomy).
			if p.atAny2(1, lexer.IDENT, lexer.QUALIFIED, lexer.SCALAR_VAR) {
				p.wrapLast(NodeMethodCall)
				p.token()
				p.parseArrowTail()
				p.finish(NodeMethodCall)
			} else {
				p.wrapLast(NodeArrowDeref)
				p.token()
				p.parseArrowTail()
				p.finish(NodeArrowDeref)
			}
		case lexer.LBRACKET:
			// @array[...] / @hash{...} index the sigil as a slice (a list
			// result); $scalar forms index a single element.
			kind := NodeIndexExpr
			if p.lastOpenKind() == NodeArrayVar {
				kind = NodeSliceExpr
			}
			p.wrapLast(kind)
			p.token()
			if !p.at(lexer.RBRACKET) {
				p.parseListExpr()
			}
			p.expect(lexer.RBRACKET, "subscript")
			p.finish(kind)
		case lexer.LBRACE:
			// Only a subscript when immediately following an indexable
			// operand; parsePrimary never leaves a dangling operand
			// before a block, so this is unambiguous in postfix position.
			kind := NodeHashIndexExpr
			if k := p.lastOpenKind(); k == NodeArrayVar || k == NodeHashVar {
				kind = NodeSliceExpr
			}
			p.wrapLast(kind)
			p.token()
			if !p.at(lexer.RBRACE) {
				p.parseListExpr()
			}
			p.expect(lexer.RBRACE, "hash subscript")
			p.finish(kind)
		default:
			return
		}
	}
}

func (p *parser) parseArrowTail() {
	switch p.current().Type {
	case lexer.IDENT, lexer.QUALIFIED, lexer.SCALAR_VAR:
		p.token()
		if p.at(lexer.LPAREN) {
			p.argList()
		}
	case lexer.LBRACKET:
		p.token()
		if !p.at(lexer.RBRACKET) {
			p.parseListExpr()
		}
		p.expect(lexer.RBRACKET, "arrow subscript")
	case lexer.LBRACE:
		p.token()
		if !p.at(lexer.RBRACE) {
			p.parseListExpr()
		}
		p.expect(lexer.RBRACE, "arrow subscript")
	case lexer.LPAREN:
		p.argList()
	case lexer.STAR, lexer.PERCENT, lexer.AMP, lexer.ARRAY_VAR:
		p.token() // ->@* (one ARRAY_VAR token) / ->%* / ->&* postfix dereference sigil
		if p.at(lexer.STAR) {
			p.token()
		}
	default:
		p.errorUnexpected("method call or dereference")
	}
}

func (p *parser) argList() {
	p.token() // (
	if !p.at(lexer.RPAREN) {
		p.parseListExpr()
	}
	p.expect(lexer.RPAREN, "argument list")
}

// lastOpenKind reports the NodeKind of the Open event lastOpenStart would
// wrap next, used to tell a slice subscript (@array[...], @hash{...})
// from a single-element index (spec.md §3 node taxonomy).
func (p *parser) lastOpenKind() NodeKind {
	at := p.lastOpenStart()
	if at >= len(p.events) || p.events[at].Kind != EventOpen {
		return 0
	}
	return NodeKind(p.events[at].Data)
}

// wrapLast wraps the most recently completed top-level expression (found
// via lastOpenStart) in a new Open event of kind, leaving it unclosed for
// the caller to finish once the right-hand side has been parsed. This
// lets the precedence ladder build left-associative trees without
// needing a separate AST to rotate.
func (p *parser) wrapLast(kind NodeKind) {
	at := p.lastOpenStart()
	p.events = append(p.events[:at], append([]Event{{Kind: EventOpen, Data: uint32(kind)}}, p.events[at:]...)...)
}

// parsePrimary parses one operand: literals, variables, parenthesized
// and bracketed expressions, sub/method calls, anonymous subs, do/eval
// blocks, and barewords (spec.md §4.5 Subroutine/method/package-qualified
// name handling).
func (p *parser) parsePrimary() {
	switch p.current().Type {
	case lexer.INTEGER:
		k := p.start(NodeIntLiteral)
		p.token()
		p.finish(k)
	case lexer.FLOAT:
		k := p.start(NodeFloatLiteral)
		p.token()
		p.finish(k)
	case lexer.STRING_SEGMENT:
		p.stringLiteral()
	case lexer.QW_LIST:
		k := p.start(NodeQwList)
		p.token()
		p.finish(k)
	case lexer.REGEX_LITERAL:
		k := p.start(NodeRegexLiteral)
		p.token()
		p.finish(k)
	case lexer.SUBSTITUTION:
		k := p.start(NodeSubstitution)
		p.token()
		p.finish(k)
	case lexer.TRANSLITERATE:
		k := p.start(NodeTransliteration)
		p.token()
		p.finish(k)
	case lexer.HEREDOC:
		k := p.start(NodeHeredoc)
		p.token()
		p.finish(k)
	case lexer.READLINE:
		k := p.start(NodeReadline)
		p.token()
		p.finish(k)
	case lexer.SCALAR_VAR:
		k := p.start(NodeScalarVar)
		p.token()
		p.finish(k)
	case lexer.ARRAY_VAR:
		k := p.start(NodeArrayVar)
		p.token()
		p.finish(k)
	case lexer.HASH_VAR:
		k := p.start(NodeHashVar)
		p.token()
		p.finish(k)
	case lexer.SUB_VAR:
		k := p.start(NodeSubVar)
		p.token()
		if p.at(lexer.LPAREN) {
			p.argList()
		}
		p.finish(k)
	case lexer.GLOB_VAR:
		k := p.start(NodeGlobVar)
		p.token()
		p.finish(k)
	case lexer.LPAREN:
		k := p.start(NodeParenExpr)
		p.token()
		if !p.at(lexer.RPAREN) {
			p.parseListExpr()
		}
		p.expect(lexer.RPAREN, "parenthesized expression")
		p.finish(k)
	case lexer.LBRACKET:
		k := p.start(NodeAnonArrayRef)
		p.token()
		if !p.at(lexer.RBRACKET) {
			p.parseListExpr()
		}
		p.expect(lexer.RBRACKET, "array reference")
		p.finish(k)
	case lexer.LBRACE:
		k := p.start(NodeAnonHashRef)
		p.token()
		if !p.at(lexer.RBRACE) {
			p.parseListExpr()
		}
		p.expect(lexer.RBRACE, "hash reference")
		p.finish(k)
	case lexer.KW_SUB:
		p.anonSub()
	case lexer.KW_DO:
		p.doBlock()
	case lexer.KW_EVAL:
		p.evalExpr()
	case lexer.KW_MY, lexer.KW_OUR, lexer.KW_LOCAL, lexer.KW_STATE:
		// A declaration used in expression position, most commonly a
		// C-style for loop's init clause: `for (my $i = 0; ...)`.
		k := p.start(NodeVarDecl)
		p.token()
		p.declList()
		if p.at(lexer.ASSIGN) {
			p.token()
			p.parseAssign()
		}
		p.finish(k)
	case lexer.IDENT, lexer.QUALIFIED:
		p.identifierPrimary()
	default:
		p.errorNode("expression")
	}
}

func (p *parser) stringLiteral() {
	cur := p.current()
	if cur.Quote != nil && len(cur.Quote.Parts1) > 0 {
		k := p.start(NodeInterpString)
		p.token()
		p.finish(k)
		return
	}
	k := p.start(NodeStringLiteral)
	p.token()
	p.finish(k)
}

func (p *parser) anonSub() {
	k := p.start(NodeAnonSub)
	p.token() // sub
	if p.at(lexer.LPAREN) {
		p.subSignature()
	}
	p.block()
	p.finish(k)
}

func (p *parser) doBlock() {
	k := p.start(NodeDoBlock)
	p.token() // do
	if p.at(lexer.LBRACE) {
		p.block()
	} else {
		p.parsePostfix()
	}
	p.finish(k)
}

func (p *parser) evalExpr() {
	p.token() // eval
	if p.at(lexer.LBRACE) {
		k := p.start(NodeEvalBlock)
		p.block()
		p.finish(k)
		return
	}
	k := p.start(NodeEvalString)
	if !p.atAny(lexer.SEMICOLON, lexer.RBRACE, lexer.EOF) {
		p.parsePostfix()
	}
	p.finish(k)
}

// identifierPrimary disambiguates a bareword as a declared subroutine
// call (`foo(...)`, `foo LIST`, or a known sub name used bare), a
// class-method / indirect-object call (`Class->method`, `new Class`),
// or a plain bareword/package name leaf (spec.md §4.5).
func (p *parser) identifierPrimary() {
	name := p.current().Text
	if p.peekType(1) == lexer.ARROW {
		k := p.start(NodePackageName)
		p.token()
		p.finish(k)
		return
	}

	if p.peekType(1) == lexer.LPAREN {
		k := p.start(NodeSubCall)
		p.token()
		p.argList()
		p.finish(k)
		return
	}

	if (p.subNames[name] || builtinFuncs[name]) && p.peekCanStartListArgs(1) {
		k := p.start(NodeSubCall)
		p.token()
		p.parseListExpr()
		p.finish(k)
		return
	}

	if name == "new" && p.atAny2(1, lexer.IDENT, lexer.QUALIFIED) {
		k := p.start(NodeIndirectCall)
		p.token() // new
		p.token() // Class
		if p.at(lexer.LPAREN) {
			p.argList()
		} else if p.canStartListArgs() {
			p.parseListExpr()
		}
		p.finish(k)
		return
	}

	k := p.start(NodeBareword)
	p.token()
	p.finish(k)
}

// canStartListArgs reports whether the token after a bareword could
// begin a no-parens argument list (spec.md's "terms and list operators
// (leftward)" precedence slot), so `foo;` and `foo + 1` aren't
// misparsed as zero-arg calls followed by a stray expression.
func (p *parser) canStartListArgs() bool { return p.peekCanStartListArgs(0) }

func (p *parser) peekCanStartListArgs(n int) bool {
	switch p.peekType(n) {
	case lexer.SCALAR_VAR, lexer.ARRAY_VAR, lexer.HASH_VAR, lexer.INTEGER,
		lexer.FLOAT, lexer.STRING_SEGMENT, lexer.IDENT, lexer.QUALIFIED,
		lexer.QW_LIST, lexer.LBRACKET, lexer.BANG, lexer.BACKSLASH,
		lexer.MINUS, lexer.SUB_VAR, lexer.HEREDOC, lexer.REGEX_LITERAL,
		lexer.SUBSTITUTION, lexer.TRANSLITERATE, lexer.READLINE,
		lexer.FILE_TEST_OP, lexer.LPAREN:
		return true
	}
	return false
}
