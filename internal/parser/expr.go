package parser

import (
	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/lexer"
)

// expr is the result of scanning one expression region. Only call sites and
// the overall source range are recovered; the expression grammar itself is
// not modeled.
type expr struct {
	empty      bool
	span       diag.Span
	calls      []Call
	literal    bool
	stringOnly bool
}

func newExpr() *expr {
	return &expr{empty: true, literal: true, stringOnly: true}
}

func (e *expr) extend(tok lexer.Token) {
	if e.empty {
		e.span.Start = tok.Span.Start
		e.empty = false
	}
	e.span.End = tok.Span.End
}

// isFormatted reports whether a string token carries an f prefix.
func isFormatted(text string) bool {
	for _, r := range text {
		switch r {
		case 'f', 'F':
			return true
		case '\'', '"':
			return false
		}
	}
	return false
}

type stopFn func(tok lexer.Token) bool

// stopAt stops on any of the given operators.
func stopAt(ops ...string) stopFn {
	return func(tok lexer.Token) bool {
		if tok.Kind != lexer.Operator {
			return false
		}
		for _, op := range ops {
			if tok.Text == op {
				return true
			}
		}
		return false
	}
}

var augAssignOps = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true,
	"@=": true, "&=": true, "|=": true, "^=": true, ">>=": true, "<<=": true, "**=": true,
}

func stopAssign(tok lexer.Token) bool {
	if tok.Kind != lexer.Operator {
		return false
	}
	return tok.Text == "=" || tok.Text == ":" || tok.Text == ";" || augAssignOps[tok.Text]
}

// literal-safe operators: unary signs, separators and dict colons.
var literalOps = map[string]bool{"-": true, "+": true, ",": true, ":": true}

// scanExpr scans one expression region up to a stop token (not consumed).
// A logical line end always stops the scan.
func (p *Parser) scanExpr(stop stopFn) (*expr, error) {
	e := newExpr()
	if err := p.scan(stop, e); err != nil {
		return nil, err
	}
	return e, nil
}

// primary tracks the start of the atom that a trailing call, attribute or
// subscript applies to.
type primary struct {
	active     bool
	start      diag.Pos
	expectName bool
	lastString bool
}

func (pr *primary) begin(tok lexer.Token) {
	pr.active = true
	pr.start = tok.Span.Start
	pr.expectName = false
	pr.lastString = false
}

func (pr *primary) reset() {
	*pr = primary{}
}

// scan consumes tokens into e until stop matches at this bracket level.
// Nested bracket groups are scanned recursively with their closer as stop.
func (p *Parser) scan(stop stopFn, e *expr) error {
	var pr primary
	lambdas := 0
	for {
		tok := p.peek()
		switch tok.Kind {
		case lexer.EOF, lexer.Newline, lexer.Indent, lexer.Dedent:
			return nil
		}
		if tok.IsOp(":") && lambdas > 0 {
			lambdas--
			p.next()
			e.extend(tok)
			e.literal = false
			e.stringOnly = false
			pr.reset()
			continue
		}
		if lambdas == 0 && stop(tok) {
			return nil
		}

		p.next()
		e.extend(tok)
		if tok.Kind != lexer.String {
			e.stringOnly = false
		}

		switch tok.Kind {
		case lexer.Identifier:
			e.literal = false
			if pr.active && pr.expectName {
				pr.expectName = false
				pr.lastString = false
				continue
			}
			pr.begin(tok)

		case lexer.Number:
			pr.begin(tok)

		case lexer.String:
			if isFormatted(tok.Text) {
				e.literal = false
			}
			if pr.active && pr.lastString {
				continue
			}
			pr.begin(tok)
			pr.lastString = true

		case lexer.Keyword:
			switch tok.Text {
			case "True", "False", "None":
				pr.begin(tok)
			case "lambda":
				lambdas++
				e.literal = false
				pr.reset()
			default:
				e.literal = false
				pr.reset()
			}

		case lexer.Operator:
			if err := p.scanOperator(tok, &pr, e); err != nil {
				return err
			}
		}
	}
}

func (p *Parser) scanOperator(tok lexer.Token, pr *primary, e *expr) error {
	switch tok.Text {
	case "(":
		if pr.active && !pr.expectName {
			return p.scanCall(tok, pr, e)
		}
		start := tok
		if err := p.scanGroup(")", e); err != nil {
			return err
		}
		pr.begin(start)
		return nil

	case "[":
		if pr.active && !pr.expectName {
			e.literal = false
			return p.scanGroup("]", e)
		}
		start := tok
		if err := p.scanGroup("]", e); err != nil {
			return err
		}
		pr.begin(start)
		return nil

	case "{":
		start := tok
		if err := p.scanGroup("}", e); err != nil {
			return err
		}
		pr.begin(start)
		return nil

	case ".":
		if pr.active && !pr.expectName {
			e.literal = false
			pr.expectName = true
			return nil
		}
		pr.reset()
		return nil

	case "...":
		pr.begin(tok)
		return nil

	case ":=":
		return unsupported(tok.Span, "assignment expression (:=)")

	case ")", "]", "}":
		return unsupported(tok.Span, "unexpected %q", tok.Text)
	}

	if !literalOps[tok.Text] {
		e.literal = false
	}
	// A sign after an operand is binary arithmetic.
	if (tok.Text == "-" || tok.Text == "+") && pr.active {
		e.literal = false
	}
	pr.reset()
	return nil
}

// scanGroup scans the contents of a bracket group whose opener was just
// consumed, and consumes the closer.
func (p *Parser) scanGroup(closer string, e *expr) error {
	if err := p.scan(stopAt(closer), e); err != nil {
		return err
	}
	tok := p.peek()
	if !tok.IsOp(closer) {
		return unsupported(tok.Span, "expected %q", closer)
	}
	p.next()
	e.extend(tok)
	return nil
}

// scanCall records the call whose "(" was just consumed. The slot is
// reserved before the arguments are scanned so that an outer call precedes
// the calls nested in its arguments.
func (p *Parser) scanCall(open lexer.Token, pr *primary, e *expr) error {
	e.literal = false
	calleeStart := pr.start
	idx := len(e.calls)
	e.calls = append(e.calls, Call{})

	args, closeTok, err := p.scanArgs(")", e)
	if err != nil {
		return err
	}
	e.calls[idx] = Call{
		Callee: p.text(calleeStart.Offset, open.Span.Start.Offset),
		Args:   args,
		Span:   diag.Span{Start: calleeStart, End: closeTok.Span.End},
	}
	pr.expectName = false
	pr.lastString = false
	return nil
}

// scanArgs scans comma-separated arguments up to and including closer and
// returns the raw text of each argument.
func (p *Parser) scanArgs(closer string, e *expr) ([]string, lexer.Token, error) {
	var args []string
	for {
		tok := p.peek()
		if tok.IsOp(closer) {
			p.next()
			e.extend(tok)
			return args, tok, nil
		}
		startOff := tok.Span.Start.Offset
		if err := p.scan(stopAt(",", closer), e); err != nil {
			return nil, tok, err
		}
		if end := p.prev.Span.End.Offset; end > startOff {
			args = append(args, p.text(startOff, end))
		}
		next := p.peek()
		switch {
		case next.IsOp(","):
			p.next()
			e.extend(next)
		case next.IsOp(closer):
		default:
			return nil, next, unsupported(next.Span, "expected %q or \",\"", closer)
		}
	}
}
