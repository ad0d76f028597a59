// Package lexer converts Python-style source text into a flat, lossless
// sequence of tokens with line/column spans.
package lexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jward/outline/internal/diag"
)

// Lexer produces tokens on demand. A Lexer holds the only state of a
// tokenization run, so the same input can be tokenized again independently
// by creating a new Lexer.
type Lexer struct {
	src    string
	off    int
	line   int
	col    int
	decode func(s string) (rune, int)
	err    error
}

// New returns a Lexer over src. The declared source encoding is taken from a
// coding cookie on the first two lines; UTF-8 is assumed otherwise.
func New(src string) *Lexer {
	return &Lexer{
		src:    src,
		line:   1,
		decode: decoderFor(DeclaredEncoding(src)),
	}
}

// Tokenize runs a Lexer to completion and returns every token including the
// trailing EOF token.
func Tokenize(src string) ([]Token, error) {
	l := New(src)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

var codingRe = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)

// DeclaredEncoding returns the normalized encoding named by a PEP 263 coding
// cookie in the first two lines of src, or "utf-8" when there is none.
func DeclaredEncoding(src string) string {
	lines := strings.SplitN(src, "\n", 3)
	for i, line := range lines {
		if i == 2 {
			break
		}
		if m := codingRe.FindStringSubmatch(line); m != nil {
			return normalizeEncoding(m[1])
		}
		// The cookie may only sit on line two if line one is a comment or blank.
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
			break
		}
	}
	return "utf-8"
}

func normalizeEncoding(name string) string {
	n := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	switch {
	case n == "utf8" || strings.HasPrefix(n, "utf-8"):
		return "utf-8"
	case n == "latin-1" || n == "latin1" || n == "l1" || strings.HasPrefix(n, "iso-8859") ||
		strings.HasPrefix(n, "iso8859") || strings.HasPrefix(n, "cp125") || strings.HasPrefix(n, "windows-125"):
		return "latin-1"
	case n == "ascii" || n == "us-ascii":
		return "ascii"
	}
	return n
}

// decoderFor returns a rune decoder for the declared encoding. Single-byte
// encodings map every byte to one rune; ASCII rejects bytes >= 0x80.
func decoderFor(enc string) func(string) (rune, int) {
	switch enc {
	case "latin-1":
		return func(s string) (rune, int) {
			return rune(s[0]), 1
		}
	case "ascii":
		return func(s string) (rune, int) {
			if s[0] < utf8.RuneSelf {
				return rune(s[0]), 1
			}
			return utf8.RuneError, 1
		}
	}
	return utf8.DecodeRuneInString
}

func (l *Lexer) pos() diag.Pos {
	return diag.Pos{Line: l.line, Col: l.col, Offset: l.off}
}

// advance moves n bytes forward, tracking line and column.
func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		c := l.src[l.off]
		l.off++
		if c == '\n' || (c == '\r' && (l.off >= len(l.src) || l.src[l.off] != '\n')) {
			l.line++
			l.col = 0
		} else {
			l.col++
		}
	}
}

func (l *Lexer) peekByte(k int) byte {
	if l.off+k < len(l.src) {
		return l.src[l.off+k]
	}
	return 0
}

func (l *Lexer) token(kind Kind, start diag.Pos) Token {
	return Token{
		Kind: kind,
		Text: l.src[start.Offset:l.off],
		Span: diag.Span{Start: start, End: l.pos()},
	}
}

func (l *Lexer) fail(err *diag.Error) (Token, error) {
	l.err = err
	return Token{}, err
}

// Next returns the next token. After the input is exhausted it returns an
// EOF token on every call. After an error it returns the same error.
func (l *Lexer) Next() (Token, error) {
	if l.err != nil {
		return Token{}, l.err
	}
	start := l.pos()
	if l.off >= len(l.src) {
		return Token{Kind: EOF, Span: diag.Span{Start: start, End: start}}, nil
	}

	c := l.src[l.off]
	switch {
	case c == ' ' || c == '\t' || c == '\f':
		for l.off < len(l.src) {
			b := l.src[l.off]
			if b != ' ' && b != '\t' && b != '\f' {
				break
			}
			l.advance(1)
		}
		return l.token(Whitespace, start), nil

	case c == '\n':
		l.advance(1)
		return l.token(Newline, start), nil

	case c == '\r':
		if l.peekByte(1) == '\n' {
			l.advance(2)
		} else {
			l.advance(1)
		}
		return l.token(Newline, start), nil

	case c == '#':
		for l.off < len(l.src) && l.src[l.off] != '\n' && l.src[l.off] != '\r' {
			l.advance(1)
		}
		if err := l.checkText(start); err != nil {
			return l.fail(err)
		}
		return l.token(Comment, start), nil

	case c == '\\':
		switch {
		case l.peekByte(1) == '\n':
			l.advance(2)
		case l.peekByte(1) == '\r' && l.peekByte(2) == '\n':
			l.advance(3)
		case l.peekByte(1) == '\r':
			l.advance(2)
		default:
			l.advance(1)
			return l.fail(diag.Lex(diag.InvalidCharacter, diag.Span{Start: start, End: l.pos()},
				"unexpected character after line continuation character"))
		}
		return l.token(Continuation, start), nil

	case isDigit(c) || (c == '.' && isDigit(l.peekByte(1))):
		l.scanNumber()
		return l.token(Number, start), nil

	case c == '"' || c == '\'':
		if err := l.scanString(start); err != nil {
			return l.fail(err)
		}
		return l.token(String, start), nil
	}

	r, size := l.decode(l.src[l.off:])
	if r == utf8.RuneError && size <= 1 {
		l.advance(1)
		return l.fail(diag.Lex(diag.InvalidCharacter, diag.Span{Start: start, End: l.pos()},
			"byte 0x%02x is not valid in the declared source encoding", c))
	}
	if r == '\uFEFF' && l.off == 0 {
		l.advance(size)
		return l.token(Whitespace, start), nil
	}
	if isIdentStart(r) {
		l.advance(size)
		for l.off < len(l.src) {
			r, size = l.decode(l.src[l.off:])
			if (r == utf8.RuneError && size <= 1) || !isIdentPart(r) {
				break
			}
			l.advance(size)
		}
		text := l.src[start.Offset:l.off]
		if isStringPrefix(text) && l.off < len(l.src) && (l.src[l.off] == '"' || l.src[l.off] == '\'') {
			if err := l.scanString(start); err != nil {
				return l.fail(err)
			}
			return l.token(String, start), nil
		}
		if IsKeyword(text) {
			return l.token(Keyword, start), nil
		}
		return l.token(Identifier, start), nil
	}

	rest := l.src[l.off:]
	for _, op := range ops3 {
		if strings.HasPrefix(rest, op) {
			l.advance(3)
			return l.token(Operator, start), nil
		}
	}
	for _, op := range ops2 {
		if strings.HasPrefix(rest, op) {
			l.advance(2)
			return l.token(Operator, start), nil
		}
	}
	if strings.IndexByte(ops1, c) >= 0 {
		l.advance(1)
		return l.token(Operator, start), nil
	}

	l.advance(size)
	return l.fail(diag.Lex(diag.InvalidCharacter, diag.Span{Start: start, End: l.pos()},
		"invalid character %q", r))
}

// checkText validates the encoding of free text (comments) between start
// and the current offset.
func (l *Lexer) checkText(start diag.Pos) *diag.Error {
	s := l.src[start.Offset:l.off]
	for i := 0; i < len(s); {
		r, size := l.decode(s[i:])
		if r == utf8.RuneError && size <= 1 {
			p := diag.Pos{Line: start.Line, Col: start.Col + i, Offset: start.Offset + i}
			return diag.Lex(diag.InvalidCharacter, diag.Span{Start: p, End: diag.Pos{Line: p.Line, Col: p.Col + 1, Offset: p.Offset + 1}},
				"byte 0x%02x is not valid in the declared source encoding", s[i])
		}
		i += size
	}
	return nil
}

func (l *Lexer) scanNumber() {
	if l.src[l.off] == '0' {
		switch l.peekByte(1) {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			l.advance(2)
			for l.off < len(l.src) && (isHexDigit(l.src[l.off]) || l.src[l.off] == '_') {
				l.advance(1)
			}
			return
		}
	}
	l.scanDigits()
	if l.off < len(l.src) && l.src[l.off] == '.' {
		l.advance(1)
		l.scanDigits()
	}
	if l.off < len(l.src) && (l.src[l.off] == 'e' || l.src[l.off] == 'E') {
		next := l.peekByte(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekByte(2))) {
			l.advance(2)
			l.scanDigits()
		}
	}
	if l.off < len(l.src) && (l.src[l.off] == 'j' || l.src[l.off] == 'J') {
		l.advance(1)
	}
}

func (l *Lexer) scanDigits() {
	for l.off < len(l.src) && (isDigit(l.src[l.off]) || l.src[l.off] == '_') {
		l.advance(1)
	}
}

// scanString scans a string literal whose prefix (if any) starts at start
// and whose opening quote is at the current offset.
func (l *Lexer) scanString(start diag.Pos) *diag.Error {
	prefix := strings.ToLower(l.src[start.Offset:l.off])
	return l.scanQuoted(start, strings.Contains(prefix, "f"))
}

func (l *Lexer) scanQuoted(start diag.Pos, format bool) *diag.Error {
	q := l.src[l.off]
	triple := l.peekByte(1) == q && l.peekByte(2) == q
	if triple {
		l.advance(3)
	} else {
		l.advance(1)
	}

	unterminated := func() *diag.Error {
		return diag.Lex(diag.UnterminatedString, diag.Span{Start: start, End: l.pos()},
			"unterminated string literal")
	}

	depth := 0 // replacement-field nesting inside an f-string
	for {
		if l.off >= len(l.src) {
			return unterminated()
		}
		c := l.src[l.off]
		switch {
		case c == '\\':
			if l.off+1 >= len(l.src) {
				l.advance(1)
				return unterminated()
			}
			if l.peekByte(1) == '\r' && l.peekByte(2) == '\n' {
				l.advance(3)
			} else {
				l.advance(2)
			}
			continue

		case (c == '\n' || c == '\r') && !triple && depth == 0:
			return unterminated()

		case format && c == '{':
			if depth == 0 && l.peekByte(1) == '{' {
				l.advance(2)
				continue
			}
			depth++

		case format && c == '}' && depth > 0:
			depth--

		case format && depth > 0 && (c == '"' || c == '\''):
			// Nested literal inside a replacement field.
			if err := l.scanQuoted(l.pos(), false); err != nil {
				return err
			}
			continue

		case c == q:
			if !triple {
				l.advance(1)
				return nil
			}
			if l.peekByte(1) == q && l.peekByte(2) == q {
				l.advance(3)
				return nil
			}

		case c >= utf8.RuneSelf:
			r, size := l.decode(l.src[l.off:])
			if r == utf8.RuneError && size <= 1 {
				bad := l.pos()
				l.advance(1)
				return diag.Lex(diag.InvalidCharacter, diag.Span{Start: bad, End: l.pos()},
					"byte 0x%02x is not valid in the declared source encoding", c)
			}
			l.advance(size)
			continue
		}
		l.advance(1)
	}
}

func isStringPrefix(s string) bool {
	if len(s) > 2 {
		return false
	}
	switch strings.ToLower(s) {
	case "r", "u", "b", "f", "br", "rb", "fr", "rf":
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.Is(unicode.Nl, r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) ||
		unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Pc, r) || unicode.Is(unicode.Nd, r)
}
