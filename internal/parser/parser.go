// Package parser builds a statement tree from the logical token stream.
//
// Expressions are not modeled: the parser keeps their source text and the
// call sites inside them. Constructs outside the supported grammar are
// skipped up to the next statement boundary and reported as diagnostics.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/indent"
	"github.com/jward/outline/internal/lexer"
)

// TokenSource yields logical tokens. *indent.Resolver satisfies it.
type TokenSource interface {
	Next() (lexer.Token, error)
}

// unsupportedError aborts the current statement. The caller skips to the
// next statement boundary and records a SkippedConstruct diagnostic.
type unsupportedError struct {
	span diag.Span
	msg  string
}

func (e *unsupportedError) Error() string {
	return fmt.Sprintf("unsupported construct at %s: %s", e.span.Start, e.msg)
}

func unsupported(span diag.Span, format string, args ...any) error {
	return &unsupportedError{span: span, msg: fmt.Sprintf(format, args...)}
}

// Parser is a recursive-descent parser over a TokenSource.
type Parser struct {
	src  string
	toks TokenSource

	buf  []lexer.Token
	prev lexer.Token
	// last is the most recent consumed token that carries source text.
	// Definition spans end here rather than at a synthesized marker.
	last lexer.Token
	// err is the first error from the token source. Once set, peek
	// reports EOF so every loop unwinds.
	err error

	// blocks mirrors the resolver's indentation stack. Each entry is the
	// Indent token that opened the block.
	blocks []lexer.Token
	diags  []diag.Diagnostic
}

// Parse tokenizes src, resolves indentation and parses the result.
func Parse(src string, opts ...indent.Option) (*File, error) {
	return New(src, indent.New(lexer.New(src), opts...)).ParseFile()
}

// New returns a Parser. src must be the text the tokens were produced from.
func New(src string, toks TokenSource) *Parser {
	return &Parser{src: src, toks: toks}
}

// ParseFile parses a whole source unit.
func (p *Parser) ParseFile() (*File, error) {
	body, err := p.parseStatements(false)
	if p.err != nil {
		return nil, p.err
	}
	if err != nil {
		return nil, err
	}
	if len(p.blocks) != 0 {
		open := p.blocks[len(p.blocks)-1]
		return nil, diag.Structural(open.Span, "%d block(s) still open at end of input", len(p.blocks))
	}
	return &File{Body: body, Diagnostics: p.diags}, nil
}

func (p *Parser) peekAt(i int) lexer.Token {
	for len(p.buf) <= i {
		if p.err != nil {
			return p.eof()
		}
		tok, err := p.toks.Next()
		if err != nil {
			p.err = err
			return p.eof()
		}
		p.buf = append(p.buf, tok)
	}
	return p.buf[i]
}

func (p *Parser) peek() lexer.Token {
	return p.peekAt(0)
}

func (p *Parser) next() lexer.Token {
	tok := p.peek()
	if len(p.buf) > 0 {
		p.buf = p.buf[1:]
	}
	p.prev = tok
	switch tok.Kind {
	case lexer.Newline, lexer.Indent, lexer.Dedent, lexer.EOF:
	default:
		p.last = tok
	}
	return tok
}

func (p *Parser) eof() lexer.Token {
	at := p.prev.Span.End
	return lexer.Token{Kind: lexer.EOF, Span: diag.Span{Start: at, End: at}}
}

func (p *Parser) text(start, end int) string {
	if start < 0 || end > len(p.src) || start >= end {
		return ""
	}
	return strings.TrimSpace(p.src[start:end])
}

func (p *Parser) exprText(e *expr) string {
	if e == nil || e.empty {
		return ""
	}
	return p.text(e.span.Start.Offset, e.span.End.Offset)
}

func (p *Parser) expectOp(op string) (lexer.Token, error) {
	tok := p.peek()
	if !tok.IsOp(op) {
		return tok, unsupported(tok.Span, "expected %q, found %q", op, tok.Text)
	}
	return p.next(), nil
}

func (p *Parser) expectName() (lexer.Token, error) {
	tok := p.peek()
	if tok.Kind != lexer.Identifier {
		return tok, unsupported(tok.Span, "expected a name, found %q", tok.Text)
	}
	return p.next(), nil
}

func spanFrom(start lexer.Token, end lexer.Token) diag.Span {
	return diag.Span{Start: start.Span.Start, End: end.Span.End}
}

// parseStatements parses statements until EOF, or until the Dedent that
// closes the current block when inBlock is set. The Dedent is not consumed.
func (p *Parser) parseStatements(inBlock bool) ([]Stmt, error) {
	var out []Stmt
	for {
		tok := p.peek()
		switch tok.Kind {
		case lexer.EOF:
			if inBlock {
				return nil, diag.Structural(tok.Span, "end of input inside an open block")
			}
			return out, nil
		case lexer.Dedent:
			if !inBlock {
				return nil, diag.Structural(tok.Span, "dedent without an open block")
			}
			return out, nil
		case lexer.Indent:
			return nil, diag.Indentation(tok.Span, "unexpected indent")
		case lexer.Newline:
			p.next()
			continue
		}

		stmts, err := p.parseStatement()
		if err != nil {
			var ue *unsupportedError
			if !errors.As(err, &ue) || p.err != nil {
				return nil, err
			}
			out = append(out, p.skip(tok, ue))
			continue
		}
		out = append(out, stmts...)
	}
}

// skip discards the rest of the logical line and any block nested under it,
// then records the construct as skipped.
func (p *Parser) skip(start lexer.Token, ue *unsupportedError) *Skipped {
	for {
		tok := p.peek()
		if tok.Kind == lexer.EOF || tok.Kind == lexer.Dedent {
			break
		}
		p.next()
		if tok.Kind == lexer.Newline {
			break
		}
	}
	if p.peek().Kind == lexer.Indent {
		depth := 0
		for {
			tok := p.peek()
			if tok.Kind == lexer.EOF {
				break
			}
			p.next()
			if tok.Kind == lexer.Indent {
				depth++
			} else if tok.Kind == lexer.Dedent {
				depth--
				if depth == 0 {
					break
				}
			}
		}
	}
	end := p.last
	if end.Span.End.Offset < start.Span.End.Offset {
		end = start
	}
	s := &Skipped{Span: spanFrom(start, end), Reason: ue.msg}
	p.diags = append(p.diags, diag.Diagnostic{
		Kind: diag.SkippedConstruct,
		Span: s.Span,
		Msg:  ue.msg,
	})
	return s
}

func (p *Parser) parseStatement() ([]Stmt, error) {
	tok := p.peek()
	switch {
	case tok.IsOp("@"):
		d, err := p.parseDecorator()
		if err != nil {
			return nil, err
		}
		return []Stmt{d}, nil

	case tok.Kind == lexer.Keyword:
		var s Stmt
		var err error
		switch tok.Text {
		case "def":
			s, err = p.parseFuncDef(tok, false)
		case "class":
			s, err = p.parseClassDef()
		case "async":
			s, err = p.parseAsync()
		case "if", "elif", "else", "while", "for", "try", "except", "finally", "with":
			s, err = p.parseCompound(tok, false)
		default:
			return p.parseSimpleStmts()
		}
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil

	case tok.Is(lexer.Identifier, "match") && p.lineEndsWithColon():
		return nil, unsupported(tok.Span, "match statement")

	case tok.Is(lexer.Identifier, "type") && p.peekAt(1).Kind == lexer.Identifier:
		return nil, unsupported(tok.Span, "type alias statement")
	}
	return p.parseSimpleStmts()
}

// lineEndsWithColon reports whether the current logical line ends in ':'.
// A line that starts with the soft keyword match and ends that way can only
// be a match statement.
func (p *Parser) lineEndsWithColon() bool {
	var last lexer.Token
	for i := 0; ; i++ {
		tok := p.peekAt(i)
		if tok.Kind == lexer.Newline || tok.Kind == lexer.EOF {
			return last.IsOp(":")
		}
		last = tok
	}
}

func (p *Parser) parseAsync() (Stmt, error) {
	async := p.peek()
	next := p.peekAt(1)
	switch {
	case next.IsKeyword("def"):
		p.next()
		return p.parseFuncDef(async, true)
	case next.IsKeyword("for"), next.IsKeyword("with"):
		p.next()
		return p.parseCompound(async, true)
	}
	return nil, unsupported(next.Span, "unexpected %q after async", next.Text)
}

func (p *Parser) parseDecorator() (*Decorator, error) {
	at := p.next()
	e, err := p.scanExpr(func(lexer.Token) bool { return false })
	if err != nil {
		return nil, err
	}
	if e.empty {
		return nil, unsupported(at.Span, "empty decorator")
	}
	if tok := p.peek(); tok.Kind != lexer.Newline && tok.Kind != lexer.EOF {
		return nil, unsupported(tok.Span, "unexpected %q in decorator", tok.Text)
	}
	p.next()

	text := p.exprText(e)
	d := &Decorator{
		Span:  diag.Span{Start: at.Span.Start, End: e.span.End},
		Text:  text,
		Name:  text,
		Calls: e.calls,
	}
	// The outermost call spanning the whole expression makes this a
	// decorator factory invocation.
	for _, c := range e.calls {
		if c.Span.Start.Offset == e.span.Start.Offset && c.Span.End.Offset == e.span.End.Offset {
			d.Name = c.Callee
			d.Args = c.Args
			d.Call = true
			break
		}
	}
	return d, nil
}

func (p *Parser) parseFuncDef(start lexer.Token, async bool) (*FuncDef, error) {
	p.next() // def
	name, err := p.expectName()
	if err != nil {
		return nil, err
	}
	fn := &FuncDef{Name: name.Text, Async: async}

	if p.peek().IsOp("[") {
		if fn.TypeParams, err = p.parseTypeParams(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	if fn.Params, fn.HeaderCalls, err = p.parseParams(); err != nil {
		return nil, err
	}
	if p.peek().IsOp("->") {
		p.next()
		ret, err := p.scanExpr(stopAt(":"))
		if err != nil {
			return nil, err
		}
		fn.Returns = p.exprText(ret)
		fn.HeaderCalls = append(fn.HeaderCalls, ret.calls...)
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if fn.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	fn.Span = spanFrom(start, p.last)
	return fn, nil
}

func (p *Parser) parseTypeParams() (string, error) {
	open := p.next()
	e := newExpr()
	e.extend(open)
	if err := p.scanGroup("]", e); err != nil {
		return "", err
	}
	return p.exprText(e), nil
}

// parseParams parses a parameter list after its "(" and consumes the ")".
func (p *Parser) parseParams() ([]Param, []Call, error) {
	var (
		params []Param
		calls  []Call
		kwOnly bool
	)
	add := func(start lexer.Token, kind ParamKind) error {
		prm, c, err := p.parseParam(start, kind)
		if err != nil {
			return err
		}
		params = append(params, prm)
		calls = append(calls, c...)
		return nil
	}

	for {
		tok := p.peek()
		if tok.IsOp(")") {
			p.next()
			return params, calls, nil
		}
		switch {
		case tok.IsOp("/"):
			p.next()
		case tok.IsOp("*"):
			p.next()
			kwOnly = true
			if nt := p.peek(); !nt.IsOp(",") && !nt.IsOp(")") {
				if err := add(tok, VarPositional); err != nil {
					return nil, nil, err
				}
			}
		case tok.IsOp("**"):
			p.next()
			if err := add(tok, VarKeyword); err != nil {
				return nil, nil, err
			}
		case tok.Kind == lexer.Identifier:
			kind := Positional
			if kwOnly {
				kind = KeywordOnly
			}
			if err := add(tok, kind); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, unsupported(tok.Span, "unexpected %q in parameter list", tok.Text)
		}

		switch next := p.peek(); {
		case next.IsOp(","):
			p.next()
		case next.IsOp(")"):
		default:
			return nil, nil, unsupported(next.Span, "unexpected %q in parameter list", next.Text)
		}
	}
}

func (p *Parser) parseParam(start lexer.Token, kind ParamKind) (Param, []Call, error) {
	name, err := p.expectName()
	if err != nil {
		return Param{}, nil, err
	}
	prm := Param{Name: name.Text, Kind: kind}
	var calls []Call
	if p.peek().IsOp(":") {
		p.next()
		ann, err := p.scanExpr(stopAt(",", ")", "="))
		if err != nil {
			return Param{}, nil, err
		}
		prm.Annotation = p.exprText(ann)
		calls = append(calls, ann.calls...)
	}
	if p.peek().IsOp("=") {
		p.next()
		def, err := p.scanExpr(stopAt(",", ")"))
		if err != nil {
			return Param{}, nil, err
		}
		if def.empty {
			return Param{}, nil, unsupported(p.peek().Span, "missing default for %s", prm.Name)
		}
		prm.Default = p.exprText(def)
		calls = append(calls, def.calls...)
	}
	prm.Span = spanFrom(start, p.prev)
	return prm, calls, nil
}

func (p *Parser) parseClassDef() (*ClassDef, error) {
	start := p.next() // class
	name, err := p.expectName()
	if err != nil {
		return nil, err
	}
	cls := &ClassDef{Name: name.Text}

	if p.peek().IsOp("[") {
		if cls.TypeParams, err = p.parseTypeParams(); err != nil {
			return nil, err
		}
	}
	if p.peek().IsOp("(") {
		p.next()
		if err := p.parseClassArgs(cls); err != nil {
			return nil, err
		}
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if cls.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	cls.Span = spanFrom(start, p.last)
	return cls, nil
}

// parseClassArgs parses the base list after its "(" and consumes the ")".
func (p *Parser) parseClassArgs(cls *ClassDef) error {
	for {
		tok := p.peek()
		if tok.IsOp(")") {
			p.next()
			return nil
		}
		switch {
		case tok.Kind == lexer.Identifier && p.peekAt(1).IsOp("="):
			p.next()
			p.next()
			v, err := p.scanExpr(stopAt(",", ")"))
			if err != nil {
				return err
			}
			cls.Keywords = append(cls.Keywords, Keyword{Name: tok.Text, Value: p.exprText(v)})
			cls.HeaderCalls = append(cls.HeaderCalls, v.calls...)
		case tok.IsOp("**"):
			p.next()
			v, err := p.scanExpr(stopAt(",", ")"))
			if err != nil {
				return err
			}
			cls.Keywords = append(cls.Keywords, Keyword{Name: "**", Value: p.exprText(v)})
			cls.HeaderCalls = append(cls.HeaderCalls, v.calls...)
		default:
			b, err := p.scanExpr(stopAt(",", ")"))
			if err != nil {
				return err
			}
			if b.empty {
				return unsupported(tok.Span, "unexpected %q in class bases", tok.Text)
			}
			cls.Bases = append(cls.Bases, p.exprText(b))
			cls.HeaderCalls = append(cls.HeaderCalls, b.calls...)
		}

		switch next := p.peek(); {
		case next.IsOp(","):
			p.next()
		case next.IsOp(")"):
		default:
			return unsupported(next.Span, "unexpected %q in class bases", next.Text)
		}
	}
}

func (p *Parser) parseCompound(start lexer.Token, async bool) (*Compound, error) {
	kw := p.next()
	hdr, err := p.scanExpr(stopAt(":"))
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	c := &Compound{
		Keyword: kw.Text,
		Async:   async,
		Header:  p.exprText(hdr),
		Calls:   hdr.calls,
	}
	if c.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	c.Span = spanFrom(start, p.last)
	return c, nil
}

// parseBlock parses the body after a header's ':'. The body is either an
// indented block or simple statements on the same line.
func (p *Parser) parseBlock() ([]Stmt, error) {
	if p.peek().Kind != lexer.Newline {
		return p.parseSimpleStmts()
	}
	p.next()

	ind := p.peek()
	if ind.Kind != lexer.Indent {
		if p.err != nil {
			return nil, p.err
		}
		return nil, diag.Indentation(ind.Span, "expected an indented block")
	}
	p.next()
	if ind.Depth != len(p.blocks)+1 {
		return nil, diag.Structural(ind.Span, "indent to depth %d with %d open block(s)", ind.Depth, len(p.blocks))
	}
	p.blocks = append(p.blocks, ind)

	body, err := p.parseStatements(true)
	if err != nil {
		return nil, err
	}

	ded := p.next()
	if ded.Kind != lexer.Dedent || ded.Depth != len(p.blocks)-1 {
		return nil, diag.Structural(ded.Span, "block opened at %s closed out of order", ind.Span.Start)
	}
	p.blocks = p.blocks[:len(p.blocks)-1]
	return body, nil
}

// parseSimpleStmts parses ';'-separated simple statements and the logical
// line end.
func (p *Parser) parseSimpleStmts() ([]Stmt, error) {
	var out []Stmt
	for {
		s, err := p.parseSmall()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if !p.peek().IsOp(";") {
			break
		}
		p.next()
		if k := p.peek().Kind; k == lexer.Newline || k == lexer.EOF {
			break
		}
	}
	switch tok := p.peek(); tok.Kind {
	case lexer.Newline:
		p.next()
	case lexer.EOF:
	default:
		return nil, unsupported(tok.Span, "unexpected %q", tok.Text)
	}
	return out, nil
}

func (p *Parser) parseSmall() (Stmt, error) {
	tok := p.peek()
	if tok.Kind == lexer.Keyword {
		switch tok.Text {
		case "pass", "break", "continue":
			p.next()
			return &Simple{Span: tok.Span, Keyword: tok.Text}, nil
		case "return", "raise", "del", "assert", "global", "nonlocal":
			p.next()
			e, err := p.scanExpr(stopAt(";"))
			if err != nil {
				return nil, err
			}
			return &Simple{
				Span:    spanFrom(tok, p.prev),
				Keyword: tok.Text,
				Text:    p.exprText(e),
				Calls:   e.calls,
			}, nil
		case "import":
			return p.parseImport()
		case "from":
			return p.parseFromImport()
		case "def", "class", "if", "elif", "else", "while", "for", "try", "except", "finally", "with", "async":
			return nil, unsupported(tok.Span, "compound statement %q in a simple statement list", tok.Text)
		}
	}
	return p.parseExprOrAssign()
}

func (p *Parser) parseExprOrAssign() (Stmt, error) {
	start := p.peek()
	first, err := p.scanExpr(stopAssign)
	if err != nil {
		return nil, err
	}
	if first.empty {
		return nil, unsupported(start.Span, "unexpected %q", start.Text)
	}

	tok := p.peek()
	switch {
	case tok.IsOp("="):
		exprs := []*expr{first}
		for p.peek().IsOp("=") {
			p.next()
			v, err := p.scanExpr(stopAt("=", ";"))
			if err != nil {
				return nil, err
			}
			if v.empty {
				return nil, unsupported(p.peek().Span, "missing value in assignment")
			}
			exprs = append(exprs, v)
		}
		a := &Assign{Op: "="}
		for _, e := range exprs[:len(exprs)-1] {
			a.Targets = append(a.Targets, p.exprText(e))
			a.Calls = append(a.Calls, e.calls...)
		}
		value := exprs[len(exprs)-1]
		a.Value = p.exprText(value)
		a.Literal = value.literal
		a.Calls = append(a.Calls, value.calls...)
		a.Span = spanFrom(start, p.prev)
		return a, nil

	case tok.IsOp(":"):
		p.next()
		ann, err := p.scanExpr(stopAt("=", ";"))
		if err != nil {
			return nil, err
		}
		a := &Assign{
			Op:         ":",
			Targets:    []string{p.exprText(first)},
			Annotation: p.exprText(ann),
			Calls:      append(first.calls, ann.calls...),
		}
		if p.peek().IsOp("=") {
			p.next()
			v, err := p.scanExpr(stopAt(";"))
			if err != nil {
				return nil, err
			}
			a.Op = "="
			a.Value = p.exprText(v)
			a.Literal = !v.empty && v.literal
			a.Calls = append(a.Calls, v.calls...)
		}
		a.Span = spanFrom(start, p.prev)
		return a, nil

	case tok.Kind == lexer.Operator && augAssignOps[tok.Text]:
		p.next()
		v, err := p.scanExpr(stopAt(";"))
		if err != nil {
			return nil, err
		}
		return &Assign{
			Span:    spanFrom(start, p.prev),
			Op:      tok.Text,
			Targets: []string{p.exprText(first)},
			Value:   p.exprText(v),
			Calls:   append(first.calls, v.calls...),
		}, nil
	}

	return &ExprStmt{
		Span:       first.span,
		Text:       p.exprText(first),
		StringOnly: first.stringOnly,
		Calls:      first.calls,
	}, nil
}

func (p *Parser) dottedName() ([]string, error) {
	first, err := p.expectName()
	if err != nil {
		return nil, err
	}
	path := []string{first.Text}
	for p.peek().IsOp(".") {
		p.next()
		part, err := p.expectName()
		if err != nil {
			return nil, err
		}
		path = append(path, part.Text)
	}
	return path, nil
}

func (p *Parser) alias() (string, error) {
	if !p.peek().IsKeyword("as") {
		return "", nil
	}
	p.next()
	name, err := p.expectName()
	if err != nil {
		return "", err
	}
	return name.Text, nil
}

func (p *Parser) parseImport() (*Import, error) {
	start := p.next()
	imp := &Import{}
	for {
		first := p.peek()
		path, err := p.dottedName()
		if err != nil {
			return nil, err
		}
		as, err := p.alias()
		if err != nil {
			return nil, err
		}
		imp.Names = append(imp.Names, ImportName{Path: path, Alias: as, Span: spanFrom(first, p.prev)})
		if !p.peek().IsOp(",") {
			break
		}
		p.next()
	}
	imp.Span = spanFrom(start, p.prev)
	return imp, nil
}

func (p *Parser) parseFromImport() (*Import, error) {
	start := p.next()
	imp := &Import{From: true}
	for {
		if tok := p.peek(); tok.IsOp(".") {
			imp.Level++
		} else if tok.IsOp("...") {
			imp.Level += 3
		} else {
			break
		}
		p.next()
	}
	if !p.peek().IsKeyword("import") {
		mod, err := p.dottedName()
		if err != nil {
			return nil, err
		}
		imp.Module = mod
	}
	if imp.Level == 0 && len(imp.Module) == 0 {
		return nil, unsupported(p.peek().Span, "from-import without a module")
	}
	if tok := p.peek(); !tok.IsKeyword("import") {
		return nil, unsupported(tok.Span, "expected \"import\", found %q", tok.Text)
	}
	p.next()

	if tok := p.peek(); tok.IsOp("*") {
		p.next()
		imp.Wildcard = true
		imp.Span = spanFrom(start, tok)
		return imp, nil
	}

	paren := p.peek().IsOp("(")
	if paren {
		p.next()
	}
	for {
		if paren && p.peek().IsOp(")") {
			break
		}
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		as, err := p.alias()
		if err != nil {
			return nil, err
		}
		imp.Names = append(imp.Names, ImportName{Name: name.Text, Alias: as, Span: spanFrom(name, p.prev)})
		if !p.peek().IsOp(",") {
			break
		}
		p.next()
	}
	if paren {
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	if len(imp.Names) == 0 {
		return nil, unsupported(start.Span, "from-import without names")
	}
	imp.Span = spanFrom(start, p.prev)
	return imp, nil
}
