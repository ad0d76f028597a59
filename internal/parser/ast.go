package parser

import "github.com/jward/outline/internal/diag"

// File is the parse tree of one source unit.
type File struct {
	Body        []Stmt
	Diagnostics []diag.Diagnostic
}

// Stmt is a statement node.
type Stmt interface {
	Pos() diag.Span
}

// Call is a call expression found inside a statement. Callee and Args are
// raw source text.
type Call struct {
	Callee string
	Args   []string
	Span   diag.Span
}

// ImportName is one imported name. For a plain import, Path holds the dotted
// module path; for a from-import, Name is the imported symbol.
type ImportName struct {
	Path  []string
	Name  string
	Alias string
	Span  diag.Span
}

// Import is `import a.b as c` or `from ..m import x as y`.
type Import struct {
	Span     diag.Span
	From     bool
	Level    int      // leading dots of a from-import
	Module   []string // from-import module path, empty for `from . import x`
	Wildcard bool
	Names    []ImportName
}

// Decorator is one `@expr` line.
type Decorator struct {
	Span diag.Span
	Text string // expression text after '@'
	Name string // callee text with a trailing call stripped
	Args []string
	Call bool // the decorator expression is a call
	// Calls are call sites inside the decorator expression.
	Calls []Call
}

// ParamKind classifies a formal parameter.
type ParamKind int

const (
	Positional ParamKind = iota
	KeywordOnly
	VarPositional
	VarKeyword
)

func (k ParamKind) String() string {
	switch k {
	case KeywordOnly:
		return "keyword-only"
	case VarPositional:
		return "var-positional"
	case VarKeyword:
		return "var-keyword"
	}
	return "positional"
}

// Param is a formal parameter with raw annotation and default text.
type Param struct {
	Name       string
	Annotation string
	Default    string
	Kind       ParamKind
	Span       diag.Span
}

// FuncDef is `[async] def name(params) [-> returns]: body`.
type FuncDef struct {
	Span       diag.Span
	Name       string
	Async      bool
	TypeParams string
	Params     []Param
	Returns    string
	Body       []Stmt
	// HeaderCalls are calls in defaults and annotations. They run in the
	// enclosing scope.
	HeaderCalls []Call
}

// Keyword is a `name=value` argument in a class header.
type Keyword struct {
	Name  string
	Value string
}

// ClassDef is `class Name[(bases)]: body`.
type ClassDef struct {
	Span        diag.Span
	Name        string
	TypeParams  string
	Bases       []string
	Keywords    []Keyword
	Body        []Stmt
	HeaderCalls []Call
}

// Assign is a plain, annotated or augmented assignment.
type Assign struct {
	Span       diag.Span
	Targets    []string
	Op         string // "=", ":" for annotation-only, or an augmented operator
	Annotation string
	Value      string
	// Literal is true when Value consists solely of literal tokens.
	Literal bool
	Calls   []Call
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	Span diag.Span
	Text string
	// StringOnly is true for a bare string literal (docstring candidate).
	StringOnly bool
	Calls      []Call
}

// Simple is a keyword-led simple statement such as return or raise.
type Simple struct {
	Span    diag.Span
	Keyword string
	Text    string
	Calls   []Call
}

// Compound is one clause of a control-flow statement (if, elif, else, for,
// while, try, except, finally, with). Each clause is its own node.
type Compound struct {
	Span    diag.Span
	Keyword string
	Async   bool
	Header  string
	Calls   []Call
	Body    []Stmt
}

// Skipped marks a construct outside the supported grammar.
type Skipped struct {
	Span   diag.Span
	Reason string
}

func (s *Import) Pos() diag.Span    { return s.Span }
func (s *Decorator) Pos() diag.Span { return s.Span }
func (s *FuncDef) Pos() diag.Span   { return s.Span }
func (s *ClassDef) Pos() diag.Span  { return s.Span }
func (s *Assign) Pos() diag.Span    { return s.Span }
func (s *ExprStmt) Pos() diag.Span  { return s.Span }
func (s *Simple) Pos() diag.Span    { return s.Span }
func (s *Compound) Pos() diag.Span  { return s.Span }
func (s *Skipped) Pos() diag.Span   { return s.Span }
