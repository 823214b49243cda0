package parser

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/perlscan/perlscan/buffer"
	"github.com/perlscan/perlscan/lexer"
)

// Tree is the result of a parse: the flat token stream, the event log
// that encodes the nested node structure over it (a "green tree" in the
// sense that nodes are positions into the event log rather than boxed
// objects), and any recoverable diagnostics collected along the way
// (spec.md §6 External Interfaces, §3 Syntax tree node).
type Tree struct {
	Source      []byte
	Tokens      []lexer.Token
	Events      []Event
	Diagnostics []Diagnostic
	Telemetry   *ParseTelemetry
	DebugEvents []DebugEvent
}

// Event is one step of the node-construction log. Open/Close bracket a
// node's children; Token consumes one lexer.Token as a leaf; StepEnter/
// StepExit bracket one statement (top-level or inside a block) for the
// Incremental Reparser's smallest-enclosing-statement search (spec.md §4.6).
type Event struct {
	Kind EventKind
	Data uint32 // NodeKind for Open, token index for Token/StepEnter/StepExit, unused for Close
}

// EventKind identifies what an Event records.
type EventKind uint8

const (
	EventOpen EventKind = iota
	EventClose
	EventToken
	EventStepEnter
	EventStepExit
)

// NodeKind enumerates the closed syntax-node taxonomy (spec.md §3). New
// kinds are always appended at the end: reordering would renumber
// existing nodes and break any caller that persists a NodeKind value
// (e.g. in an EncodeSnapshot blob) across a core version upgrade.
type NodeKind uint32

const (
	NodeSource NodeKind = iota // the whole parsed unit

	// Structural
	NodeBlock      // { ... }
	NodePackage    // package Foo::Bar; or package Foo { ... }
	NodeUse        // use Module LIST;
	NodeNo         // no Module LIST;
	NodeRequire    // require Module; or require EXPR;
	NodeSubDecl    // sub name { ... } or sub name; (forward decl)
	NodeSubSig     // parenthesized signature of a sub, if present
	NodeLabel      // LABEL: preceding a loop or block

	// Statements
	NodeExprStmt     // an expression used as a statement, EXPR;
	NodeVarDecl      // my/our/local/state DECLLIST [= EXPR]
	NodeIf           // if/unless (...) { } elsif ... else ...
	NodeElsif        // one elsif arm
	NodeElse         // the trailing else arm
	NodeWhile        // while/until (...) { } continue { }
	NodeCStyleFor    // for (INIT; COND; STEP) { }
	NodeForeach      // for/foreach [my VAR] (LIST) { }
	NodeContinue     // continue { } block attached to a loop
	NodeReturn       // return [EXPR];
	NodeNext         // next [LABEL];
	NodeLast         // last [LABEL];
	NodeRedo         // redo [LABEL];
	NodeStatementMod // EXPR if/unless/while/until/for EXPR (postfix form)

	// Expressions
	NodeBinaryExpr    // a OP b
	NodeUnaryExpr     // OP a (prefix)
	NodePostfixExpr   // a OP (postfix ++/--)
	NodeAssignExpr    // a = b, a += b, ...
	NodeTernaryExpr   // a ? b : c
	NodeRangeExpr     // a .. b, a ... b
	NodeListExpr      // (a, b, c) or a, b, c
	NodeParenExpr     // (EXPR), grouping
	NodeAnonSub       // sub { ... } anonymous subroutine
	NodeSubCall       // name(args) or name args (&name is NodeSubVar)
	NodeMethodCall    // invocant->method(args)
	NodeIndirectCall  // new Class(args) (indirect-object call form)
	NodeIndexExpr     // expr[index]
	NodeHashIndexExpr // expr{key}
	NodeSliceExpr     // @a[...] / @h{...} / %h{...}
	NodeArrowDeref    // expr->[...] / expr->{...} / expr->(...) / expr->@* etc.
	NodeAnonArrayRef  // [ ... ]
	NodeAnonHashRef   // { ... } in expression position
	NodeFileTest      // -X EXPR
	NodeDoBlock       // do { ... } used as an expression
	NodeEvalBlock     // eval { ... }
	NodeEvalString    // eval EXPR

	// Variables and names
	NodeScalarVar // $name
	NodeArrayVar  // @name
	NodeHashVar   // %name
	NodeSubVar    // &name
	NodeGlobVar   // *name
	NodeBareword  // unquoted word used as a string/function name
	NodePackageName

	// Literals
	NodeIntLiteral
	NodeFloatLiteral
	NodeStringLiteral  // q//, qq//, "...", '...' as one leaf with its StringPart payload
	NodeQwList         // qw(...)
	NodeRegexLiteral   // m//, qr//, bare //
	NodeSubstitution   // s///
	NodeTransliteration // tr/// or y///
	NodeHeredoc        // <<TAG...TAG

	// Interpolation
	NodeInterpString // an interpolating literal's decomposition into parts
	NodeStringPart   // one literal or expression segment of an interpolating literal

	// Declarations list
	NodeDeclItem // one variable in a my/our/local/state list, or a list-assignment target

	// Supplemental
	NodePod         // =pod ... =cut block
	NodeDataSection // everything after __END__ / __DATA__

	// Error recovery
	NodeError // a span the parser could not make sense of; see Diagnostics

	// Appended after the initial taxonomy was closed out; see the
	// "always append new kinds at the end" rule above.
	NodeReadline // <FH>, <$fh>, <>, <STDIN>
)

var nodeKindNames = [...]string{
	"Source", "Block", "Package", "Use", "No", "Require", "SubDecl", "SubSig",
	"Label", "ExprStmt", "VarDecl", "If", "Elsif", "Else", "While", "CStyleFor",
	"Foreach", "Continue", "Return", "Next", "Last", "Redo", "StatementMod",
	"BinaryExpr", "UnaryExpr", "PostfixExpr", "AssignExpr", "TernaryExpr",
	"RangeExpr", "ListExpr", "ParenExpr", "AnonSub", "SubCall", "MethodCall",
	"IndirectCall", "IndexExpr", "HashIndexExpr", "SliceExpr", "ArrowDeref",
	"AnonArrayRef", "AnonHashRef", "FileTest", "DoBlock", "EvalBlock",
	"EvalString", "ScalarVar", "ArrayVar", "HashVar", "SubVar", "GlobVar",
	"Bareword", "PackageName", "IntLiteral", "FloatLiteral", "StringLiteral",
	"QwList", "RegexLiteral", "Substitution", "Transliteration", "Heredoc",
	"InterpString", "StringPart", "DeclItem", "Pod", "DataSection", "Error",
	"Readline",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", uint32(k))
}

// Diagnostic is a recoverable syntax error captured as an embedded Error
// node rather than a fatal ParseError (spec.md §7). Fields mirror the
// teacher's educational error style: what went wrong, what was expected,
// and, where one is obvious, how to fix it.
type Diagnostic struct {
	Span       buffer.Span
	Message    string
	Context    string
	Expected   []lexer.TokenType
	Got        lexer.TokenType
	Suggestion string
	Example    string
	Note       string
}

// snapshot is the CBOR-serializable projection of a Tree used by
// EncodeSnapshot/DecodeSnapshot. It omits Telemetry/DebugEvents, which are
// developer-facing and never need to round-trip.
type snapshot struct {
	Source      []byte
	Tokens      []lexer.Token
	Events      []Event
	Diagnostics []Diagnostic
}

// EncodeSnapshot serializes the tree's token stream and event log to CBOR
// for cheap in-memory caching or test-fixture storage (SPEC_FULL.md DOMAIN
// STACK). This is not persisted state in the sense spec.md §6 disclaims;
// it is an opt-in convenience a caller or the test suite may use.
func (t *Tree) EncodeSnapshot() ([]byte, error) {
	return cbor.Marshal(snapshot{
		Source:      t.Source,
		Tokens:      t.Tokens,
		Events:      t.Events,
		Diagnostics: t.Diagnostics,
	})
}

// DecodeSnapshot reconstructs a Tree from bytes produced by EncodeSnapshot.
// Telemetry and DebugEvents are left nil.
func DecodeSnapshot(data []byte) (*Tree, error) {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &Tree{
		Source:      s.Source,
		Tokens:      s.Tokens,
		Events:      s.Events,
		Diagnostics: s.Diagnostics,
	}, nil
}

// SExpr renders the tree as an S-expression, the textual form spec.md §6
// names for test fixtures and debugging: `(Kind child child ...)`, with
// token leaves rendered as their literal text.
func (t *Tree) SExpr() string {
	var b strings.Builder
	var walk func(pos int) int
	walk = func(pos int) int {
		for pos < len(t.Events) {
			ev := t.Events[pos]
			switch ev.Kind {
			case EventOpen:
				b.WriteByte('(')
				b.WriteString(NodeKind(ev.Data).String())
				pos = walk(pos + 1)
				b.WriteByte(')')
			case EventClose:
				return pos + 1
			case EventToken:
				b.WriteByte(' ')
				b.WriteString(t.Tokens[ev.Data].String())
				pos++
			default: // EventStepEnter, EventStepExit
				pos++
			}
		}
		return pos
	}
	walk(0)
	return b.String()
}

// Root returns the single NodeSource node spanning the whole tree, as a
// Cursor positioned at event index 0.
func (t *Tree) Root() Cursor {
	return Cursor{tree: t, eventIdx: 0}
}

// Cursor is a lightweight, read-only traversal handle into a Tree's event
// log (spec.md §6 Tree traversal: Root/Children/Kind/Span/Text). It holds
// no allocation beyond an index, so walking a Tree is cheap even for
// large files.
type Cursor struct {
	tree     *Tree
	eventIdx int
}

// Kind returns the node kind at the cursor, or false if the cursor does
// not point at an Open event (e.g. it has walked off the end).
func (c Cursor) Kind() (NodeKind, bool) {
	if c.eventIdx >= len(c.tree.Events) || c.tree.Events[c.eventIdx].Kind != EventOpen {
		return 0, false
	}
	return NodeKind(c.tree.Events[c.eventIdx].Data), true
}

// Span returns the byte span covered by the cursor's node, computed from
// the first and last token spans in its subtree.
func (c Cursor) Span() buffer.Span {
	first, last, ok := c.tokenRange()
	if !ok {
		return buffer.Span{}
	}
	return c.tree.Tokens[first].Span.Union(c.tree.Tokens[last].Span)
}

// Text returns the source text covered by the cursor's node.
func (c Cursor) Text() string {
	sp := c.Span()
	if sp.End > len(c.tree.Source) {
		return ""
	}
	return string(c.tree.Source[sp.Start:sp.End])
}

func (c Cursor) tokenRange() (first, last int, ok bool) {
	depth := 0
	first, last = -1, -1
	for i := c.eventIdx; i < len(c.tree.Events); i++ {
		ev := c.tree.Events[i]
		switch ev.Kind {
		case EventOpen:
			depth++
		case EventClose:
			depth--
			if depth == 0 {
				return first, last, first != -1
			}
		case EventToken:
			if first == -1 {
				first = int(ev.Data)
			}
			last = int(ev.Data)
		}
	}
	return first, last, first != -1
}

// Children returns cursors for the cursor's immediate child nodes (token
// leaves are not included; use Tokens for those).
func (c Cursor) Children() []Cursor {
	var children []Cursor
	depth := 0
	for i := c.eventIdx; i < len(c.tree.Events); i++ {
		ev := c.tree.Events[i]
		if ev.Kind == EventOpen {
			depth++
			if depth == 2 {
				children = append(children, Cursor{tree: c.tree, eventIdx: i})
			}
		} else if ev.Kind == EventClose {
			depth--
			if depth == 0 {
				return children
			}
		}
	}
	return children
}

// Tokens returns the leaf tokens directly owned by this node (not
// including tokens owned by child nodes).
func (c Cursor) Tokens() []lexer.Token {
	var toks []lexer.Token
	depth := 0
	for i := c.eventIdx; i < len(c.tree.Events); i++ {
		ev := c.tree.Events[i]
		switch ev.Kind {
		case EventOpen:
			depth++
		case EventClose:
			depth--
			if depth == 0 {
				return toks
			}
		case EventToken:
			if depth == 1 {
				toks = append(toks, c.tree.Tokens[ev.Data])
			}
		}
	}
	return toks
}

// FindBySpan returns the innermost node whose span contains offset,
// descending from root (spec.md §6 Tree traversal).
func (t *Tree) FindBySpan(offset int) Cursor {
	cur := t.Root()
	for {
		next, ok := cur.childContaining(offset)
		if !ok {
			return cur
		}
		cur = next
	}
}

func (c Cursor) childContaining(offset int) (Cursor, bool) {
	for _, child := range c.Children() {
		sp := child.Span()
		if sp.Start <= offset && offset < sp.End {
			return child, true
		}
	}
	return Cursor{}, false
}
