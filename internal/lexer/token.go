package lexer

import (
	"fmt"

	"github.com/jward/outline/internal/diag"
)

// Kind identifies the lexical class of a Token.
type Kind int

const (
	EOF Kind = iota
	Identifier
	Keyword
	Operator
	String
	Number
	Newline
	Indent
	Dedent
	Comment

	// Trivia. The tokenizer emits these so that the concatenated token
	// texts reproduce the input exactly; the indentation resolver drops them.
	Whitespace
	Continuation
)

var kindNames = [...]string{
	EOF:          "EOF",
	Identifier:   "Identifier",
	Keyword:      "Keyword",
	Operator:     "Operator",
	String:       "String",
	Number:       "Number",
	Newline:      "Newline",
	Indent:       "Indent",
	Dedent:       "Dedent",
	Comment:      "Comment",
	Whitespace:   "Whitespace",
	Continuation: "Continuation",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexical token. Text is a slice of the original input.
type Token struct {
	Kind Kind
	Text string
	Span diag.Span

	// Depth is the indentation stack depth after an Indent or Dedent token
	// was applied. Zero for every other kind.
	Depth int
}

// Is reports whether the token has the given kind and text.
func (t Token) Is(kind Kind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// IsOp reports whether the token is the given operator.
func (t Token) IsOp(text string) bool {
	return t.Kind == Operator && t.Text == text
}

// IsKeyword reports whether the token is the given keyword.
func (t Token) IsKeyword(text string) bool {
	return t.Kind == Keyword && t.Text == text
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q @%s", t.Kind, t.Text, t.Span.Start)
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// IsKeyword reports whether name is a hard keyword. Soft keywords such as
// match, case and type are identifiers.
func IsKeyword(name string) bool {
	return keywords[name]
}

// Operators ordered longest first within each length for maximal munch.
var (
	ops3 = []string{"**=", "//=", ">>=", "<<=", "..."}
	ops2 = []string{
		"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "->",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=", ":=",
	}
	ops1 = "+-*/%@&|^~<>()[]{},:;.=!"
)
