// Package lexer implements the context-sensitive Mode Lexer for Perl 5
// source (spec.md §4.2): a single forward pass with no backtracking that
// disambiguates every mode-dependent token using only the current
// character, the lexer's Term/Operator mode, and (while a quote-like
// construct's delimiters are being scanned) the delimiter in progress.
package lexer

import (
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/perlscan/perlscan/buffer"
)

func init() {
	logLevel := slog.LevelWarn
	if os.Getenv("PERLSCAN_DEBUG_LEXER") != "" {
		logLevel = slog.LevelDebug
	}
	debugLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

var debugLogger *slog.Logger

// Lexer turns a buffer.Buffer into a Token stream. It is not safe for
// concurrent use; each parse gets its own Lexer (spec.md Concurrency &
// Resource Model).
type Lexer struct {
	buf *buffer.Buffer
	src []byte

	pos int // byte offset of the current rune
	ch  rune
	chW int // width in bytes of ch

	mode Mode

	heredoc heredocCoordinator

	// lastWasOperand mirrors Mode but survives across synthetic tokens
	// (e.g. heredoc bodies) so PrecededByOperand stays accurate.
	lastWasOperand bool

	sawDataSection bool

	// lastSigType is the type of the last non-trivia token emitted,
	// used only to classify a following `{` as a block or an
	// expression/hash opener; zero-valued (EOF) before the first
	// token, which is itself treated as a block-opening context.
	lastSigType TokenType

	// braceStack records, for every still-open `{`, whether it opened
	// a block (true) or an expression/hash-ref (false), so the
	// matching `}` can tell updateMode which row of spec.md §4.2's
	// mode table applies.
	braceStack []bool

	// lastClosedBraceWasBlock remembers the kind of the most recently
	// popped brace, since braceOpensBlock needs it after the stack
	// entry itself is gone.
	lastClosedBraceWasBlock bool

	// queuedHeredocTokens holds heredoc tokens already resolved by a
	// single newline's drain beyond the first, since NextToken can only
	// return one token per call (e.g. `print <<A, <<B;` resolves both
	// A and B's bodies at the same newline).
	queuedHeredocTokens []Token
}

// Option configures a Lexer constructed by New.
type Option func(*Lexer)

// New constructs a Lexer over buf starting at byte offset 0 in Term mode,
// the mode every Perl program and every Statement begins in (spec.md §3
// Mode).
func New(buf *buffer.Buffer, opts ...Option) *Lexer {
	l := &Lexer{buf: buf, src: buf.Bytes(), mode: Term}
	for _, opt := range opts {
		opt(l)
	}
	l.readRune()
	return l
}

func (l *Lexer) readRune() {
	if l.pos >= len(l.src) {
		l.ch = 0
		l.chW = 0
		return
	}
	r, size := utf8.DecodeRune(l.src[l.pos:])
	l.ch = r
	l.chW = size
}

func (l *Lexer) advance() {
	if l.chW == 0 {
		return
	}
	l.pos += l.chW
	l.readRune()
}

func (l *Lexer) peekRuneAfter() rune {
	if l.pos+l.chW >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRune(l.src[l.pos+l.chW:])
	return r
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.src) }

func (l *Lexer) makeToken(typ TokenType, start int) Token {
	tok := Token{
		Type:              typ,
		Span:              buffer.Span{Start: start, End: l.pos},
		Text:              string(l.src[start:l.pos]),
		Start:             l.buf.LineCol(start),
		End:               l.buf.LineCol(l.pos),
		PrecededByOperand: l.lastWasOperand,
	}
	return tok
}

// NextToken scans and returns the next token, advancing internal state.
// Callers reaching EOF get a single EOF token and every subsequent call
// also returns EOF (the final token per invariant I1).
func (l *Lexer) NextToken() Token {
	for {
		if len(l.queuedHeredocTokens) > 0 {
			tok := l.queuedHeredocTokens[0]
			l.queuedHeredocTokens = l.queuedHeredocTokens[1:]
			return tok
		}

		if l.sawDataSection {
			return l.scanDataSection()
		}

		if l.ch == '\n' {
			nl := l.pos
			l.advance()
			if !l.heredoc.empty() {
				toks := l.drainAllHeredocs()
				if len(toks) > 0 {
					first := toks[0]
					l.queuedHeredocTokens = toks[1:]
					return first
				}
			}
			return l.finish(NEWLINE, nl)
		}

		if isSpaceRune(l.ch) {
			l.skipHorizontalSpace()
			continue
		}

		if l.ch == '#' {
			return l.scanComment()
		}

		if l.atLineStart() && l.ch == '=' && isIdentStartByte(byte(l.peekRuneAfter())) {
			if tok, ok := l.scanPod(); ok {
				return tok
			}
		}

		if l.atEOF() {
			return l.makeToken(EOF, l.pos)
		}

		if l.atLineStart() && l.matchKeyword("__END__") {
			l.sawDataSection = true
			continue
		}
		if l.atLineStart() && l.matchKeyword("__DATA__") {
			l.sawDataSection = true
			continue
		}

		return l.scanToken()
	}
}

func (l *Lexer) finish(typ TokenType, start int) Token {
	tok := l.makeToken(typ, start)
	l.updateMode(tok)
	if typ != NEWLINE && typ != WHITESPACE && typ != COMMENT && typ != POD {
		l.lastSigType = typ
	}
	return tok
}

// braceOpensBlock classifies an about-to-be-scanned `{` as a block
// (if/while/for/sub body, do-block, bare block, else-clause, or a block
// nested directly inside one of those) versus an expression/hash-ref
// opener, based on the last significant token emitted. This is a
// heuristic, not a grammar: real disambiguation needs the parser, but
// these are the contexts spec.md §4.2 and ordinary Perl style actually
// use before a block brace.
func (l *Lexer) braceOpensBlock() bool {
	switch l.lastSigType {
	case EOF: // nothing lexed yet: a program may open with a bare block
		return true
	case SEMICOLON, KW_DO, KW_SUB, KW_ELSE, RPAREN:
		return true
	case LBRACE:
		return len(l.braceStack) > 0 && l.braceStack[len(l.braceStack)-1]
	case RBRACE:
		return l.lastClosedBraceWasBlock
	default:
		return false
	}
}

func (l *Lexer) pushBrace(isBlock bool) {
	l.braceStack = append(l.braceStack, isBlock)
}

// popBraceWasBlock pops the innermost open brace's kind, recording it
// for braceOpensBlock's RBRACE case. An unmatched `}` (malformed input)
// reports false rather than panicking.
func (l *Lexer) popBraceWasBlock() bool {
	if len(l.braceStack) == 0 {
		l.lastClosedBraceWasBlock = false
		return false
	}
	top := len(l.braceStack) - 1
	wasBlock := l.braceStack[top]
	l.braceStack = l.braceStack[:top]
	l.lastClosedBraceWasBlock = wasBlock
	return wasBlock
}

func (l *Lexer) atLineStart() bool {
	return l.pos == 0 || (l.pos > 0 && l.src[l.pos-1] == '\n')
}

func (l *Lexer) matchKeyword(kw string) bool {
	end := l.pos + len(kw)
	if end > len(l.src) || string(l.src[l.pos:end]) != kw {
		return false
	}
	for l.pos < end {
		l.advance()
	}
	return true
}

func (l *Lexer) skipHorizontalSpace() {
	for isSpaceRune(l.ch) {
		l.advance()
	}
}

func (l *Lexer) scanComment() Token {
	start := l.pos
	for l.ch != '\n' && !l.atEOF() {
		l.advance()
	}
	return l.makeToken(COMMENT, start)
}

// scanDataSection consumes the remainder of the source as a single
// DataSection leaf once __END__ or __DATA__ has been recognized
// (SPEC_FULL.md Supplemental features).
func (l *Lexer) scanDataSection() Token {
	start := l.pos
	for !l.atEOF() {
		l.advance()
	}
	l.sawDataSection = false // one DATA_SECTION token, then EOF forever after
	if start == l.pos {
		return l.makeToken(EOF, start)
	}
	return l.makeToken(DATA_SECTION, start)
}

// scanPod recognizes a `^=word ... ^=cut` POD block and returns it as a
// single POD token, or returns ok=false if the `=` at the line start does
// not actually introduce a POD directive.
func (l *Lexer) scanPod() (Token, bool) {
	start := l.pos
	if !l.ch2Match('=') {
		return Token{}, false
	}
	for {
		lineStart := l.pos
		for l.ch != '\n' && !l.atEOF() {
			l.advance()
		}
		line := string(l.src[lineStart:l.pos])
		if strings.HasPrefix(line, "=cut") {
			if !l.atEOF() {
				l.advance()
			}
			return l.makeToken(POD, start), true
		}
		if l.atEOF() {
			return l.makeToken(POD, start), true
		}
		l.advance() // consume the newline
	}
}

func (l *Lexer) ch2Match(r rune) bool { return l.ch == r }

// drainAllHeredocs resolves every request enqueued before this newline,
// in FIFO order (spec.md §4.3: "for each pending request in order: scan
// forward..."), leaving l.pos just past the last one's terminator line.
func (l *Lexer) drainAllHeredocs() []Token {
	var toks []Token
	for !l.heredoc.empty() {
		tok, ok := l.drainNextHeredoc()
		if !ok {
			break
		}
		toks = append(toks, tok)
	}
	return toks
}

func (l *Lexer) drainNextHeredoc() (Token, bool) {
	start := l.pos
	payload, next, closed := l.heredoc.drainOne(l.buf, l.pos)
	_ = closed // an unclosed body is marked ILLEGAL below, which Parse reports as a fatal UnterminatedHeredoc
	l.pos = next
	l.readRune()
	tok := Token{
		Type:    HEREDOC,
		Span:    buffer.Span{Start: start, End: l.pos},
		Start:   l.buf.LineCol(start),
		End:     l.buf.LineCol(l.pos),
		Heredoc: &payload,
	}
	if !closed {
		tok.Type = ILLEGAL
	}
	l.lastWasOperand = true
	return tok, true
}

// scanToken dispatches on the current rune, the single entry point for
// every "real" (non-trivia) token.
func (l *Lexer) scanToken() Token {
	start := l.pos
	r := l.ch

	switch {
	case r >= '0' && r <= '9':
		return l.finish(l.scanNumberType(), start)
	case isIdentStartByte(byte(r)) || r >= 128:
		return l.scanIdentOrKeyword(start)
	case r == '$':
		return l.scanSigilVar(start, SCALAR_VAR)
	case r == '@':
		return l.scanSigilVar(start, ARRAY_VAR)
	case r == '%':
		return l.scanPercent(start)
	case r == '&':
		return l.scanAmp(start)
	case r == '*':
		return l.scanStar(start)
	case r == '/':
		return l.scanSlash(start)
	case r == '-':
		return l.scanMinus(start)
	case r == '<':
		return l.scanLess(start)
	case r == '"':
		return l.scanDelimitedQuote(start, QuoteQQ, '"', '"', true)
	case r == '\'':
		return l.scanDelimitedQuote(start, QuoteQ, '\'', '\'', false)
	case r == '`':
		return l.scanDelimitedQuote(start, QuoteQX, '`', '`', true)
	}

	return l.scanOperatorOrPunct(start)
}

// scanNumberType recognizes integers and floats, including 0x/0b/0o
// radix prefixes and underscore digit separators.
func (l *Lexer) scanNumberType() TokenType {
	if l.ch == '0' && (l.peekRuneAfter() == 'x' || l.peekRuneAfter() == 'X') {
		l.advance()
		l.advance()
		for isHexDigitRune(l.ch) || l.ch == '_' {
			l.advance()
		}
		return INTEGER
	}
	if l.ch == '0' && (l.peekRuneAfter() == 'b' || l.peekRuneAfter() == 'B') {
		l.advance()
		l.advance()
		for l.ch == '0' || l.ch == '1' || l.ch == '_' {
			l.advance()
		}
		return INTEGER
	}
	if l.ch == '0' && (l.peekRuneAfter() == 'o' || l.peekRuneAfter() == 'O') {
		l.advance()
		l.advance()
		for (l.ch >= '0' && l.ch <= '7') || l.ch == '_' {
			l.advance()
		}
		return INTEGER
	}

	typ := INTEGER
	for isDigitRune(l.ch) || l.ch == '_' {
		l.advance()
	}
	if l.ch == '.' && isDigitRune(l.peekRuneAfter()) {
		typ = FLOAT
		l.advance()
		for isDigitRune(l.ch) || l.ch == '_' {
			l.advance()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		save := l.pos
		l.advance()
		if l.ch == '+' || l.ch == '-' {
			l.advance()
		}
		if isDigitRune(l.ch) {
			typ = FLOAT
			for isDigitRune(l.ch) {
				l.advance()
			}
		} else {
			l.pos = save
			l.readRune()
		}
	}
	return typ
}

func isDigitRune(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigitRune(r rune) bool {
	return isDigitRune(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanIdentOrKeyword scans a bareword, optionally package-qualified with
// `::`, classifies it against the keyword table, and recognizes the
// quote-like operator keywords (q qq qw qr qx s tr y m) and named
// file-test operators (spec.md §4.2, §4.5; SPEC_FULL.md Named unary
// operators).
func (l *Lexer) scanIdentOrKeyword(start int) Token {
	for isIdentPartRune(l.ch) {
		l.advance()
	}
	qualified := false
	for l.ch == ':' && l.peekRuneAfter() == ':' {
		qualified = true
		l.advance()
		l.advance()
		for isIdentPartRune(l.ch) {
			l.advance()
		}
	}
	name := string(l.src[start:l.pos])

	if !qualified && l.mode == Term && !l.followedByFatComma() {
		if op, ok := quoteOpKeyword(name); ok {
			if tok, matched := l.tryScanQuoteLike(start, op); matched {
				return tok
			}
		}
	}

	if qualified {
		return l.finish(QUALIFIED, start)
	}
	if typ, ok := Keywords[name]; ok {
		return l.finish(typ, start)
	}
	return l.finish(IDENT, start)
}

// followedByFatComma reports whether, skipping horizontal whitespace, the
// upcoming bytes are "=>". A bareword immediately before a fat comma is
// always auto-quoted in Perl, which takes precedence over reading it as a
// quote-like operator keyword: `q => 1` is the string "q", never the start
// of a `q...` quote body.
func (l *Lexer) followedByFatComma() bool {
	i := l.pos
	for i < len(l.src) && (l.src[i] == ' ' || l.src[i] == '\t') {
		i++
	}
	return i+1 < len(l.src) && l.src[i] == '=' && l.src[i+1] == '>'
}

func quoteOpKeyword(name string) (QuoteOp, bool) {
	switch name {
	case "q":
		return QuoteQ, true
	case "qq":
		return QuoteQQ, true
	case "qw":
		return QuoteQW, true
	case "qr":
		return QuoteQR, true
	case "qx":
		return QuoteQX, true
	case "m":
		return QuoteM, true
	case "s":
		return QuoteS, true
	case "tr", "y":
		return QuoteTR, true
	}
	return QuoteNone, false
}

// tryScanQuoteLike attempts to read a quote-like operator's delimiter
// after its keyword and any blanks. If no valid delimiter follows (e.g. the
// bareword is followed by a newline or an identifier character), it rewinds and returns matched=false
// so the caller treats it as a plain identifier.
func (l *Lexer) tryScanQuoteLike(kwStart int, op QuoteOp) (Token, bool) {
	savePos, saveCh, saveW := l.pos, l.ch, l.chW

	opener, closer, paired, delimPos, ok := scanQuoteDelimiters(l.src, l.pos)
	if !ok {
		l.pos, l.ch, l.chW = savePos, saveCh, saveW
		return Token{}, false
	}
	l.pos = delimPos
	l.readRune()

	body1, next, closed1 := scanQuoteBody(l.src, l.pos, opener, closer, paired)
	l.pos = next
	l.readRune()

	interpolating := quoteInterpolates(op, opener)

	payload := &QuotePayload{
		Op: op, Opener: opener, Closer: closer,
		Body1: body1, Interpolating: interpolating,
	}

	if interpolating && op != QuoteQW {
		payload.Parts1 = scanInterpolated(l.buf.Slice(body1), body1.Start)
	}
	if op == QuoteQW {
		payload.Words = decodeQWWords(l.buf.Text(body1))
	}

	needsSecondBody := op == QuoteS || op == QuoteTR
	if needsSecondBody {
		opener2, closer2 := opener, closer
		paired2 := paired
		var body2 buffer.Span
		var next2 int
		var closed2 bool
		if paired {
			// Bracket-delimited s/tr forms require a second bracket pair
			// introduced right after the first, e.g. s{a}{b}.
			o2, c2, p2, dp2, ok2 := scanQuoteDelimiters(l.src, l.pos)
			if ok2 {
				opener2, closer2, paired2 = o2, c2, p2
				l.pos = dp2
				l.readRune()
			}
			body2, next2, closed2 = scanQuoteBody(l.src, l.pos, opener2, closer2, paired2)
		} else {
			// Non-paired forms share one delimiter across both bodies
			// (e.g. s/x/y/): the first body's closer already sits just
			// before l.pos, so the second body starts right here with
			// no fresh opener to skip.
			body2, next2, closed2 = scanQuoteBodyAt(l.src, l.pos, opener2, closer2, paired2)
		}
		l.pos = next2
		l.readRune()
		payload.Body2 = body2
		if op == QuoteS && interpolating {
			payload.Parts2 = scanInterpolated(l.buf.Slice(body2), body2.Start)
		}
		_ = closed2
	}

	mods, next3 := scanModifiers(l.src, l.pos)
	payload.Modifiers = mods
	l.pos = next3
	l.readRune()

	tok := l.makeToken(quoteOpTokenType(op), kwStart)
	tok.Quote = payload
	if !closed1 {
		tok.Type = ILLEGAL
	}
	l.lastWasOperand = true
	return tok, true
}

// quoteOpTokenType maps a quote-like operator to the TokenType its closed
// body produces, shared by tryScanQuoteLike (keyword-introduced forms) and
// scanDelimitedQuote (the `"`/`'`/`` ` ``/bare-`//` punctuation forms).
func quoteOpTokenType(op QuoteOp) TokenType {
	switch op {
	case QuoteS:
		return SUBSTITUTION
	case QuoteTR:
		return TRANSLITERATE
	case QuoteQW:
		return QW_LIST
	case QuoteM, QuoteQR:
		return REGEX_LITERAL
	default:
		return STRING_SEGMENT
	}
}

// scanDelimitedQuote handles the three always-active quote punctuation
// characters `"`, `'`, and `` ` `` that need no leading keyword, plus the
// bare `/regex/` match form (scanSlash passes op=QuoteM).
func (l *Lexer) scanDelimitedQuote(start int, op QuoteOp, opener, closer rune, interpolating bool) Token {
	body, next, closed := scanQuoteBody(l.src, l.pos, opener, closer, false)
	l.pos = next
	l.readRune()

	payload := &QuotePayload{Op: op, Opener: opener, Closer: closer, Body1: body, Interpolating: interpolating}
	if interpolating {
		payload.Parts1 = scanInterpolated(l.buf.Slice(body), body.Start)
	}

	tok := l.makeToken(quoteOpTokenType(op), start)
	tok.Quote = payload
	if !closed {
		tok.Type = ILLEGAL
	}
	l.lastWasOperand = true
	return tok
}

// scanSigilVar reads a scalar or array variable reference: a bareword
// name, a punctuation variable ($_, $!, $1, $/, ...), or a `${...}` /
// `@{...}` brace-enclosed expression.
func (l *Lexer) scanSigilVar(start int, typ TokenType) Token {
	l.advance() // sigil
	if l.ch == '{' {
		depth := 0
		for {
			if l.ch == '{' {
				depth++
			} else if l.ch == '}' {
				depth--
			}
			l.advance()
			if depth == 0 || l.atEOF() {
				break
			}
		}
		return l.finish(typ, start)
	}
	if l.ch == '#' && typ == SCALAR_VAR && isIdentStartByte(byte(l.peekRuneAfter())) {
		// $#array last-index form is lexed as a scalar variable.
		l.advance()
	}
	if isIdentStartByte(byte(l.ch)) {
		for isIdentPartRune(l.ch) {
			l.advance()
		}
		for l.ch == ':' && l.peekRuneAfter() == ':' {
			l.advance()
			l.advance()
			for isIdentPartRune(l.ch) {
				l.advance()
			}
		}
		return l.finish(typ, start)
	}
	if isDigitRune(l.ch) {
		for isDigitRune(l.ch) {
			l.advance()
		}
		return l.finish(typ, start)
	}
	// Punctuation variable: a single special character ($_, $!, $@, $0,
	// $$, $/, $\, $,, $;).
	if !l.atEOF() {
		l.advance()
	}
	return l.finish(typ, start)
}

// scanPercent disambiguates `%` as a sigil (hash variable, Term mode) from
// the modulo operator (Operator mode), and `%=` in either mode.
func (l *Lexer) scanPercent(start int) Token {
	if l.mode == Term && (isIdentStartByte(byte(l.peekRuneAfter())) || l.peekRuneAfter() == '{' || l.peekRuneAfter() == '$') {
		return l.scanSigilVar(start, HASH_VAR)
	}
	l.advance()
	if l.ch == '=' {
		l.advance()
		return l.finish(PERCENTEQ, start)
	}
	return l.finish(PERCENT, start)
}

// scanAmp disambiguates `&` as a sub-call/reference sigil (Term mode)
// from bitwise-and (Operator mode), plus `&&`, `&&=`, `&=`.
func (l *Lexer) scanAmp(start int) Token {
	if l.mode == Term && isIdentStartByte(byte(l.peekRuneAfter())) {
		return l.scanSigilVar(start, SUB_VAR)
	}
	l.advance()
	switch l.ch {
	case '&':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.finish(AMPAMPEQ, start)
		}
		return l.finish(AMPAMP, start)
	case '=':
		l.advance()
		return l.finish(AMPEQ, start)
	}
	return l.finish(AMP, start)
}

// scanStar disambiguates `*` as a glob sigil (Term mode) from
// multiplication (Operator mode), plus `**`, `**=`, `*=`.
func (l *Lexer) scanStar(start int) Token {
	if l.mode == Term && isIdentStartByte(byte(l.peekRuneAfter())) {
		return l.scanSigilVar(start, GLOB_VAR)
	}
	l.advance()
	switch l.ch {
	case '*':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.finish(STARSTAREQ, start)
		}
		return l.finish(STARSTAR, start)
	case '=':
		l.advance()
		return l.finish(STAREQ, start)
	}
	return l.finish(STAR, start)
}

// scanSlash disambiguates `/` as the start of a bare regex match (Term
// mode) from division (Operator mode), plus `//`, `//=`, `/=`.
func (l *Lexer) scanSlash(start int) Token {
	if l.mode == Term {
		return l.scanDelimitedQuote(start, QuoteM, '/', '/', true)
	}
	l.advance()
	if l.ch == '/' {
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.finish(DEFINEDOREQ, start)
		}
		return l.finish(DEFINEDOR, start)
	}
	if l.ch == '=' {
		l.advance()
		return l.finish(SLASHEQ, start)
	}
	return l.finish(SLASH, start)
}

// scanMinus disambiguates unary minus and file-test operators (Term mode)
// from binary subtraction (Operator mode), plus `--`, `-=`, `->`.
func (l *Lexer) scanMinus(start int) Token {
	if l.mode == Term {
		p := l.peekRuneAfter()
		if fileTestLetters[byte(p)] && !isIdentPartRune(l.peekRuneAt(2)) {
			l.advance()
			l.advance()
			return l.finish(FILE_TEST_OP, start)
		}
	}
	l.advance()
	switch l.ch {
	case '-':
		l.advance()
		return l.finish(MINUSMINUS, start)
	case '=':
		l.advance()
		return l.finish(MINUSEQ, start)
	case '>':
		l.advance()
		return l.finish(ARROW, start)
	}
	return l.finish(MINUS, start)
}

func (l *Lexer) peekRuneAt(n int) rune {
	p := l.pos
	for i := 0; i < n; i++ {
		if p >= len(l.src) {
			return 0
		}
		_, size := utf8.DecodeRune(l.src[p:])
		p += size
	}
	if p >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRune(l.src[p:])
	return r
}

// scanLess disambiguates readline (`<FH>`, `<$fh>`, `<>`, `<STDIN>`) and
// heredoc introducers (`<<TAG`, `<<"TAG"`, `<<'TAG'`, `` <<`TAG` ``,
// each optionally `~`-indented) in Term mode, from less-than and shift-left
// in Operator mode.
func (l *Lexer) scanLess(start int) Token {
	if l.mode == Term {
		if l.peekRuneAfter() == '<' {
			if tok, ok := l.tryScanHeredocIntroducer(start); ok {
				return tok
			}
		}
		if tok, ok := l.tryScanReadline(start); ok {
			return tok
		}
	}
	l.advance()
	switch l.ch {
	case '<':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.finish(LSHIFTEQ, start)
		}
		return l.finish(LSHIFT, start)
	case '=':
		l.advance()
		if l.ch == '>' {
			l.advance()
			return l.finish(SPACESHIP, start)
		}
		return l.finish(LE, start)
	}
	return l.finish(LT, start)
}

func (l *Lexer) tryScanReadline(start int) (Token, bool) {
	save, saveCh, saveW := l.pos, l.ch, l.chW
	l.advance() // <
	for isIdentPartRune(l.ch) || l.ch == '$' {
		l.advance()
	}
	if l.ch == '>' {
		l.advance()
		tok := l.makeToken(READLINE, start)
		l.lastWasOperand = true
		return tok, true
	}
	l.pos, l.ch, l.chW = save, saveCh, saveW
	return Token{}, false
}

// tryScanHeredocIntroducer recognizes `<<TAG` and its variants, enqueues
// a pendingHeredoc with the Heredoc Coordinator, and returns a
// HEREDOC_MARKER token covering just the introducer (spec.md §4.3). The
// body is resolved later by drainNextHeredoc when the triggering newline
// is reached.
func (l *Lexer) tryScanHeredocIntroducer(start int) (Token, bool) {
	save, saveCh, saveW := l.pos, l.ch, l.chW
	l.advance() // first <
	l.advance() // second <

	indented := false
	if l.ch == '~' {
		indented = true
		l.advance()
	}

	interpolating := true
	var tag string

	switch l.ch {
	case '"':
		l.advance()
		s := l.pos
		for l.ch != '"' && !l.atEOF() {
			l.advance()
		}
		tag = string(l.src[s:l.pos])
		if l.ch == '"' {
			l.advance()
		}
	case '\'':
		interpolating = false
		l.advance()
		s := l.pos
		for l.ch != '\'' && !l.atEOF() {
			l.advance()
		}
		tag = string(l.src[s:l.pos])
		if l.ch == '\'' {
			l.advance()
		}
	case '`':
		l.advance()
		s := l.pos
		for l.ch != '`' && !l.atEOF() {
			l.advance()
		}
		tag = string(l.src[s:l.pos])
		if l.ch == '`' {
			l.advance()
		}
	default:
		if !isIdentStartByte(byte(l.ch)) {
			l.pos, l.ch, l.chW = save, saveCh, saveW
			return Token{}, false
		}
		s := l.pos
		for isIdentPartRune(l.ch) {
			l.advance()
		}
		tag = string(l.src[s:l.pos])
	}

	if tag == "" {
		l.pos, l.ch, l.chW = save, saveCh, saveW
		return Token{}, false
	}

	tok := l.makeToken(HEREDOC_MARKER, start)
	l.heredoc.enqueue(tag, interpolating, indented, -1)
	l.lastWasOperand = true
	return tok, true
}

// scanOperatorOrPunct handles every remaining single- and multi-character
// operator and punctuation token (spec.md §4.5 precedence table covers
// their grammatical role; this just recognizes them lexically).
func (l *Lexer) scanOperatorOrPunct(start int) Token {
	r := l.ch
	l.advance()

	two := func(next rune, t2, t1 TokenType) Token {
		if l.ch == next {
			l.advance()
			return l.finish(t2, start)
		}
		return l.finish(t1, start)
	}

	switch r {
	case '(':
		return l.finish(LPAREN, start)
	case ')':
		return l.finish(RPAREN, start)
	case '{':
		l.pushBrace(l.braceOpensBlock())
		return l.finish(LBRACE, start)
	case '}':
		return l.finish(RBRACE, start)
	case '[':
		return l.finish(LBRACKET, start)
	case ']':
		return l.finish(RBRACKET, start)
	case ';':
		return l.finish(SEMICOLON, start)
	case ',':
		return l.finish(COMMA, start)
	case '\\':
		return l.finish(BACKSLASH, start)
	case '?':
		return l.finish(QUESTION, start)
	case '~':
		return l.finish(TILDE, start)
	case ':':
		return two(':', DCOLON, COLON)
	case '+':
		switch l.ch {
		case '+':
			l.advance()
			return l.finish(PLUSPLUS, start)
		case '=':
			l.advance()
			return l.finish(PLUSEQ, start)
		}
		return l.finish(PLUS, start)
	case '.':
		if l.ch == '.' {
			l.advance()
			if l.ch == '.' {
				l.advance()
				return l.finish(DOTDOTDOT, start)
			}
			return l.finish(DOTDOT, start)
		}
		if l.ch == '=' {
			l.advance()
			return l.finish(DOTEQ, start)
		}
		return l.finish(DOT, start)
	case '!':
		if l.ch == '~' {
			l.advance()
			return l.finish(NOMATCH, start)
		}
		return two('=', NE, BANG)
	case '=':
		switch l.ch {
		case '=':
			l.advance()
			return l.finish(EQEQ, start)
		case '~':
			l.advance()
			return l.finish(MATCH, start)
		case '>':
			l.advance()
			return l.finish(FAT_COMMA, start)
		}
		return l.finish(ASSIGN, start)
	case '>':
		if l.ch == '=' {
			l.advance()
			return l.finish(GE, start)
		}
		if l.ch == '>' {
			l.advance()
			if l.ch == '=' {
				l.advance()
				return l.finish(RSHIFTEQ, start)
			}
			return l.finish(RSHIFT, start)
		}
		return l.finish(GT, start)
	case '|':
		if l.ch == '|' {
			l.advance()
			if l.ch == '=' {
				l.advance()
				return l.finish(PIPEPIPEEQ, start)
			}
			return l.finish(PIPEPIPE, start)
		}
		if l.ch == '=' {
			l.advance()
			return l.finish(PIPEEQ, start)
		}
		return l.finish(PIPE, start)
	case '^':
		if l.ch == '=' {
			l.advance()
			return l.finish(CARETEQ, start)
		}
		return l.finish(CARET, start)
	}

	return l.finish(ILLEGAL, start)
}

// listOperatorIdents holds bareword names that read as Perl list
// operators (print, push, ...) rather than as a completed operand: the
// token right after one of these still starts a term, so `print <<EOF`
// and `push @a, <STDIN>` scan the same way they would after a comma.
var listOperatorIdents = map[string]bool{
	"print": true, "printf": true, "say": true, "warn": true, "die": true,
	"push": true, "pop": true, "shift": true, "unshift": true, "splice": true,
	"keys": true, "values": true, "each": true, "delete": true, "exists": true,
	"defined": true, "scalar": true, "wantarray": true, "ref": true,
	"sprintf": true, "join": true, "split": true, "map": true, "grep": true,
	"sort": true, "reverse": true,
}

// updateMode sets the lexer's Mode for the token that follows tok,
// implementing spec.md §4.2's mode transition table: tokens that
// complete an operand put the lexer in Operator mode; everything else
// (operators, most punctuation, keywords that introduce an expression)
// puts it back in Term mode.
func (l *Lexer) updateMode(tok Token) {
	switch tok.Type {
	case PLUSPLUS, MINUSMINUS:
		// ++/-- is ambiguous between prefix and postfix, distinguished
		// only by the mode already in effect when it was scanned:
		// Operator means the previous token completed an operand, so
		// this is postfix and the operand stays complete (Operator);
		// Term means an operand hasn't started yet, so this is prefix
		// and its operand is still ahead (stays Term). Either way the
		// mode carries through unchanged.
		return
	case IDENT, QUALIFIED, SCALAR_VAR, ARRAY_VAR, HASH_VAR, SUB_VAR, GLOB_VAR,
		INTEGER, FLOAT, STRING_SEGMENT, QW_LIST, REGEX_LITERAL, SUBSTITUTION,
		TRANSLITERATE, HEREDOC, READLINE, RPAREN, RBRACKET, RBRACE:
		if tok.Type == IDENT && listOperatorIdents[tok.Text] {
			l.mode = Term
			l.lastWasOperand = false
			return
		}
		if tok.Type == RBRACE && l.popBraceWasBlock() {
			l.mode = Term
			l.lastWasOperand = false
			return
		}
		l.mode = Operator
		l.lastWasOperand = true
	default:
		l.mode = Term
		l.lastWasOperand = false
	}
}

// TokenizeToSlice drains the lexer fully, mainly for tests and for the
// Incremental Reparser's full-reparse fallback path.
func (l *Lexer) TokenizeToSlice() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks
		}
	}
}
