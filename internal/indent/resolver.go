// Package indent turns the raw token stream into a logical token stream with
// synthesized Newline, Indent and Dedent markers.
package indent

import (
	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/lexer"
)

// DefaultTabSize is the tab stop used to measure indentation.
const DefaultTabSize = 8

// altTabSize is the second tab stop used to detect ambiguous tab/space
// mixes: a comparison that flips between the two stops cannot be trusted.
// When the primary stop is itself 1, DefaultTabSize takes its place.
const altTabSize = 1

func altStop(primary int) int {
	if primary == altTabSize {
		return DefaultTabSize
	}
	return altTabSize
}

// Source yields raw tokens. *lexer.Lexer satisfies it.
type Source interface {
	Next() (lexer.Token, error)
}

type width struct {
	primary int
	alt     int
}

// Stats counts the block markers emitted so far.
type Stats struct {
	Indents int
	Dedents int
}

// Resolver consumes raw tokens and emits the logical stream: Identifier,
// Keyword, Operator, String, Number, Newline, Indent, Dedent and EOF.
// Whitespace, comments and continuation markers are dropped.
type Resolver struct {
	src     Source
	tabSize int
	altSize int

	stack    []width
	brackets []lexer.Token

	// bol is true until the first significant token of a logical line.
	bol   bool
	lead  *lexer.Token // leading whitespace of the current physical line
	queue []lexer.Token
	last  lexer.Token // the EOF token, replayed once the stream is done
	done  bool
	err   error
	stats Stats
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTabSize sets the primary tab stop. Values < 1 are ignored.
func WithTabSize(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.tabSize = n
		}
	}
}

// New returns a Resolver reading from src.
func New(src Source, opts ...Option) *Resolver {
	r := &Resolver{
		src:     src,
		tabSize: DefaultTabSize,
		stack:   []width{{}},
		bol:     true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.altSize = altStop(r.tabSize)
	return r
}

// Resolve runs a Resolver over a complete raw token slice.
func Resolve(raw []lexer.Token, opts ...Option) ([]lexer.Token, error) {
	r := New(&sliceSource{toks: raw}, opts...)
	var out []lexer.Token
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == lexer.EOF {
			return out, nil
		}
	}
}

type sliceSource struct {
	toks []lexer.Token
	i    int
}

func (s *sliceSource) Next() (lexer.Token, error) {
	if s.i >= len(s.toks) {
		var end diag.Pos
		if len(s.toks) > 0 {
			end = s.toks[len(s.toks)-1].Span.End
		}
		return lexer.Token{Kind: lexer.EOF, Span: diag.Span{Start: end, End: end}}, nil
	}
	tok := s.toks[s.i]
	s.i++
	return tok, nil
}

// Stats returns the Indent/Dedent counts emitted so far.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// Depth returns the current indentation stack depth (0 at module level).
func (r *Resolver) Depth() int {
	return len(r.stack) - 1
}

// Next returns the next logical token. After EOF it keeps returning EOF.
func (r *Resolver) Next() (lexer.Token, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return lexer.Token{}, r.err
		}
		if r.done {
			return r.last, nil
		}
		if err := r.step(); err != nil {
			r.err = err
			return lexer.Token{}, err
		}
	}
	tok := r.queue[0]
	r.queue = r.queue[1:]
	if tok.Kind == lexer.EOF {
		r.last = tok
	}
	return tok, nil
}

func (r *Resolver) emit(tok lexer.Token) {
	r.queue = append(r.queue, tok)
}

// step pulls one raw token and queues zero or more logical tokens.
func (r *Resolver) step() error {
	tok, err := r.src.Next()
	if err != nil {
		return err
	}

	switch tok.Kind {
	case lexer.Whitespace:
		if r.bol && len(r.brackets) == 0 {
			t := tok
			r.lead = &t
		}
		return nil

	case lexer.Comment, lexer.Continuation:
		return nil

	case lexer.Newline:
		if len(r.brackets) > 0 {
			return nil
		}
		r.lead = nil
		if r.bol {
			// Blank or comment-only line.
			return nil
		}
		r.bol = true
		r.emit(tok)
		return nil

	case lexer.EOF:
		if len(r.brackets) > 0 {
			open := r.brackets[len(r.brackets)-1]
			return diag.Parse(open.Span, "unbalanced brackets at end of input: %q is never closed", open.Text)
		}
		at := diag.Span{Start: tok.Span.Start, End: tok.Span.Start}
		if !r.bol {
			r.emit(lexer.Token{Kind: lexer.Newline, Span: at})
			r.bol = true
		}
		for len(r.stack) > 1 {
			r.stack = r.stack[:len(r.stack)-1]
			r.stats.Dedents++
			r.emit(lexer.Token{Kind: lexer.Dedent, Span: at, Depth: len(r.stack) - 1})
		}
		r.emit(tok)
		r.done = true
		return nil
	}

	if r.bol {
		if err := r.indentation(tok); err != nil {
			return err
		}
		r.bol = false
		r.lead = nil
	}
	if err := r.trackBrackets(tok); err != nil {
		return err
	}
	r.emit(tok)
	return nil
}

// indentation compares the leading whitespace of the logical line starting
// at tok with the stack and queues Indent/Dedent markers.
func (r *Resolver) indentation(tok lexer.Token) error {
	w := width{}
	span := diag.Span{Start: tok.Span.Start, End: tok.Span.Start}
	if r.lead != nil {
		w = r.measure(r.lead.Text)
		span = r.lead.Span
	}
	top := r.stack[len(r.stack)-1]

	switch {
	case w.primary == top.primary:
		if w.alt != top.alt {
			return diag.Indentation(span, "inconsistent use of tabs and spaces in indentation")
		}
		return nil

	case w.primary > top.primary:
		if w.alt <= top.alt {
			return diag.Indentation(span, "inconsistent use of tabs and spaces in indentation")
		}
		r.stack = append(r.stack, w)
		r.stats.Indents++
		r.emit(lexer.Token{Kind: lexer.Indent, Text: textOf(r.lead), Span: span, Depth: len(r.stack) - 1})
		return nil
	}

	at := diag.Span{Start: tok.Span.Start, End: tok.Span.Start}
	for len(r.stack) > 1 && r.stack[len(r.stack)-1].primary > w.primary {
		r.stack = r.stack[:len(r.stack)-1]
		r.stats.Dedents++
		r.emit(lexer.Token{Kind: lexer.Dedent, Span: at, Depth: len(r.stack) - 1})
	}
	top = r.stack[len(r.stack)-1]
	if top.primary != w.primary {
		return diag.Indentation(span, "unindent does not match any outer indentation level")
	}
	if top.alt != w.alt {
		return diag.Indentation(span, "inconsistent use of tabs and spaces in indentation")
	}
	return nil
}

// measure computes the indentation width of leading whitespace under both
// tab stops. A form feed resets the count.
func (r *Resolver) measure(ws string) width {
	var w width
	for i := 0; i < len(ws); i++ {
		switch ws[i] {
		case ' ':
			w.primary++
			w.alt++
		case '\t':
			w.primary = (w.primary/r.tabSize + 1) * r.tabSize
			w.alt = (w.alt/r.altSize + 1) * r.altSize
		case '\f':
			w = width{}
		}
	}
	return w
}

var closers = map[string]string{")": "(", "]": "[", "}": "{"}

func (r *Resolver) trackBrackets(tok lexer.Token) error {
	if tok.Kind != lexer.Operator {
		return nil
	}
	switch tok.Text {
	case "(", "[", "{":
		r.brackets = append(r.brackets, tok)
	case ")", "]", "}":
		if len(r.brackets) == 0 {
			return diag.Parse(tok.Span, "unmatched %q", tok.Text)
		}
		open := r.brackets[len(r.brackets)-1]
		if open.Text != closers[tok.Text] {
			return diag.Parse(tok.Span, "closing %q does not match opening %q at %s", tok.Text, open.Text, open.Span.Start)
		}
		r.brackets = r.brackets[:len(r.brackets)-1]
	}
	return nil
}

func textOf(t *lexer.Token) string {
	if t == nil {
		return ""
	}
	return t.Text
}
