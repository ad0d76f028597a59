package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/lexer"
)

func mustParse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse(src)
	require.NoError(t, err)
	return f
}

func as[T Stmt](t *testing.T, s Stmt) T {
	t.Helper()
	v, ok := s.(T)
	require.Truef(t, ok, "statement is %T", s)
	return v
}

// =============================================================================
// Definitions
// =============================================================================

func TestParse_ClassWithMethod(t *testing.T) {
	t.Parallel()
	src := "class Greeter(Base, metaclass=Meta):\n" +
		"    \"\"\"Says hi.\"\"\"\n" +
		"\n" +
		"    def greet(self, name: str = \"x\") -> str:\n" +
		"        return format_name(name)\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 1)

	cls := as[*ClassDef](t, f.Body[0])
	assert.Equal(t, "Greeter", cls.Name)
	assert.Equal(t, []string{"Base"}, cls.Bases)
	assert.Equal(t, []Keyword{{Name: "metaclass", Value: "Meta"}}, cls.Keywords)
	assert.Equal(t, 1, cls.Span.Start.Line)
	assert.Equal(t, 5, cls.Span.End.Line)
	require.Len(t, cls.Body, 2)

	doc := as[*ExprStmt](t, cls.Body[0])
	assert.True(t, doc.StringOnly)
	assert.Equal(t, `"""Says hi."""`, doc.Text)

	fn := as[*FuncDef](t, cls.Body[1])
	assert.Equal(t, "greet", fn.Name)
	assert.Equal(t, "str", fn.Returns)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "self", fn.Params[0].Name)
	assert.Equal(t, Param{Name: "name", Annotation: "str", Default: `"x"`, Kind: Positional, Span: fn.Params[1].Span}, fn.Params[1])

	ret := as[*Simple](t, fn.Body[0])
	assert.Equal(t, "return", ret.Keyword)
	require.Len(t, ret.Calls, 1)
	assert.Equal(t, "format_name", ret.Calls[0].Callee)
	assert.Equal(t, []string{"name"}, ret.Calls[0].Args)
}

func TestParse_MultiLineBaseList(t *testing.T) {
	t.Parallel()
	src := "class A(\n" +
		"    B,\n" +
		"    # mixins\n" +
		"    mixins.C,\n" +
		"    metaclass=M,\n" +
		"):\n" +
		"    pass\n" +
		"x = 1\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 2)

	cls := as[*ClassDef](t, f.Body[0])
	assert.Equal(t, "A", cls.Name)
	assert.Equal(t, []string{"B", "mixins.C"}, cls.Bases)
	assert.Equal(t, []Keyword{{Name: "metaclass", Value: "M"}}, cls.Keywords)
	assert.Equal(t, 1, cls.Span.Start.Line)
	assert.Equal(t, 7, cls.Span.End.Line)
	require.Len(t, cls.Body, 1)

	as[*Assign](t, f.Body[1])
}

func TestParse_ParameterKinds(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "def f(a, /, b, *args, c, d=1, **kw): pass\ndef g(*, key): pass\n")
	require.Len(t, f.Body, 2)

	fn := as[*FuncDef](t, f.Body[0])
	var got []string
	for _, p := range fn.Params {
		got = append(got, p.Name+":"+p.Kind.String())
	}
	assert.Equal(t, []string{
		"a:positional", "b:positional", "args:var-positional",
		"c:keyword-only", "d:keyword-only", "kw:var-keyword",
	}, got)
	assert.Equal(t, "1", fn.Params[4].Default)
	require.Len(t, fn.Body, 1)
	assert.Equal(t, "pass", as[*Simple](t, fn.Body[0]).Keyword)

	g := as[*FuncDef](t, f.Body[1])
	require.Len(t, g.Params, 1)
	assert.Equal(t, KeywordOnly, g.Params[0].Kind)
}

func TestParse_HeaderCalls(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "def f(x=default_value(), y: make_type() = 2) -> ret():\n    pass\n")
	fn := as[*FuncDef](t, f.Body[0])

	var callees []string
	for _, c := range fn.HeaderCalls {
		callees = append(callees, c.Callee)
	}
	assert.Equal(t, []string{"default_value", "make_type", "ret"}, callees)
}

func TestParse_AsyncDefAndWith(t *testing.T) {
	t.Parallel()
	src := "async def fetch(url):\n" +
		"    async with session.get(url) as resp:\n" +
		"        return await resp.json()\n"
	f := mustParse(t, src)

	fn := as[*FuncDef](t, f.Body[0])
	assert.True(t, fn.Async)
	with := as[*Compound](t, fn.Body[0])
	assert.Equal(t, "with", with.Keyword)
	assert.True(t, with.Async)
	assert.Equal(t, "session.get(url) as resp", with.Header)
	require.Len(t, with.Calls, 1)
	assert.Equal(t, "session.get", with.Calls[0].Callee)

	ret := as[*Simple](t, with.Body[0])
	require.Len(t, ret.Calls, 1)
	assert.Equal(t, "resp.json", ret.Calls[0].Callee)
}

func TestParse_TypeParams(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "def first[T](xs: list[T]) -> T:\n    return xs[0]\nclass Box[T](Generic):\n    pass\n")
	assert.Equal(t, "[T]", as[*FuncDef](t, f.Body[0]).TypeParams)
	cls := as[*ClassDef](t, f.Body[1])
	assert.Equal(t, "[T]", cls.TypeParams)
	assert.Equal(t, []string{"Generic"}, cls.Bases)
}

// =============================================================================
// Decorators
// =============================================================================

func TestParse_Decorators(t *testing.T) {
	t.Parallel()
	src := "@property\n" +
		"@app.route(\"/x\", methods=[\"GET\"])\n" +
		"@retry(\n" +
		"    times=3,\n" +
		")\n" +
		"def h(): pass\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 4)

	plain := as[*Decorator](t, f.Body[0])
	assert.Equal(t, "property", plain.Name)
	assert.False(t, plain.Call)

	route := as[*Decorator](t, f.Body[1])
	assert.Equal(t, "app.route", route.Name)
	assert.True(t, route.Call)
	assert.Equal(t, []string{`"/x"`, `methods=["GET"]`}, route.Args)

	retry := as[*Decorator](t, f.Body[2])
	assert.Equal(t, "retry", retry.Name)
	assert.Equal(t, []string{"times=3"}, retry.Args)
	assert.Equal(t, 3, retry.Span.Start.Line)
	assert.Equal(t, 5, retry.Span.End.Line)

	as[*FuncDef](t, f.Body[3])
}

func TestParse_DecoratorAttributeAfterCall(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "@registry().handler\ndef h(): pass\n")
	d := as[*Decorator](t, f.Body[0])
	assert.Equal(t, "registry().handler", d.Name)
	assert.False(t, d.Call)
	require.Len(t, d.Calls, 1)
	assert.Equal(t, "registry", d.Calls[0].Callee)
}

// =============================================================================
// Imports
// =============================================================================

func TestParse_Imports(t *testing.T) {
	t.Parallel()
	src := "import os.path as osp, sys\n" +
		"from ..pkg.mod import (a, b as c,)\n" +
		"from . import x\n" +
		"from m import *\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 4)

	plain := as[*Import](t, f.Body[0])
	assert.False(t, plain.From)
	require.Len(t, plain.Names, 2)
	assert.Equal(t, []string{"os", "path"}, plain.Names[0].Path)
	assert.Equal(t, "osp", plain.Names[0].Alias)
	assert.Equal(t, []string{"sys"}, plain.Names[1].Path)

	rel := as[*Import](t, f.Body[1])
	assert.True(t, rel.From)
	assert.Equal(t, 2, rel.Level)
	assert.Equal(t, []string{"pkg", "mod"}, rel.Module)
	require.Len(t, rel.Names, 2)
	assert.Equal(t, "a", rel.Names[0].Name)
	assert.Equal(t, "b", rel.Names[1].Name)
	assert.Equal(t, "c", rel.Names[1].Alias)

	dot := as[*Import](t, f.Body[2])
	assert.Equal(t, 1, dot.Level)
	assert.Empty(t, dot.Module)
	assert.Equal(t, "x", dot.Names[0].Name)

	star := as[*Import](t, f.Body[3])
	assert.True(t, star.Wildcard)
	assert.Equal(t, []string{"m"}, star.Module)
}

// =============================================================================
// Expressions and simple statements
// =============================================================================

func TestParse_CallsInSourceOrder(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "result = outer(inner(1), other.method(2))\n")
	a := as[*Assign](t, f.Body[0])
	require.Len(t, a.Calls, 3)
	assert.Equal(t, "outer", a.Calls[0].Callee)
	assert.Equal(t, []string{"inner(1)", "other.method(2)"}, a.Calls[0].Args)
	assert.Equal(t, "inner", a.Calls[1].Callee)
	assert.Equal(t, "other.method", a.Calls[2].Callee)
}

func TestParse_ChainedCallee(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "super().__init__(name)\n")
	e := as[*ExprStmt](t, f.Body[0])
	require.Len(t, e.Calls, 2)
	assert.Equal(t, "super", e.Calls[0].Callee)
	assert.Equal(t, "super().__init__", e.Calls[1].Callee)
}

func TestParse_Assignments(t *testing.T) {
	t.Parallel()
	src := "X = 1\n" +
		"Y = -2.5\n" +
		"Z = foo()\n" +
		"A = B = \"s\"\n" +
		"n: int = 3\n" +
		"count += 1\n" +
		"P = (1, \"a\", None)\n" +
		"Q = [x for x in y]\n" +
		"F = f\"{name}\"\n" +
		"key = lambda v: v[0]\n" +
		"M = 1 + 2\n" +
		"S = 3 - 1\n" +
		"D = {\"k\": -1, \"j\": (+2, -3)}\n" +
		"T = \"a\" + \"b\"\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 14)

	literal := func(i int) bool { return as[*Assign](t, f.Body[i]).Literal }
	assert.True(t, literal(0))
	assert.True(t, literal(1))
	assert.False(t, literal(2))
	assert.True(t, literal(3))
	assert.True(t, literal(4))
	assert.True(t, literal(6))
	assert.False(t, literal(7))
	assert.False(t, literal(8))
	assert.False(t, literal(9))
	assert.False(t, literal(10), "binary plus")
	assert.False(t, literal(11), "binary minus")
	assert.True(t, literal(12), "unary signs inside a literal")
	assert.False(t, literal(13), "string concatenation")

	chain := as[*Assign](t, f.Body[3])
	assert.Equal(t, []string{"A", "B"}, chain.Targets)
	assert.Equal(t, `"s"`, chain.Value)

	ann := as[*Assign](t, f.Body[4])
	assert.Equal(t, "int", ann.Annotation)
	assert.Equal(t, "3", ann.Value)

	aug := as[*Assign](t, f.Body[5])
	assert.Equal(t, "+=", aug.Op)

	lam := as[*Assign](t, f.Body[9])
	assert.Equal(t, "lambda v: v[0]", lam.Value)
}

func TestParse_OneLineBodiesAndSemicolons(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "if ok: a = 1; b()\nelse: pass\n")
	require.Len(t, f.Body, 2)

	ifc := as[*Compound](t, f.Body[0])
	assert.Equal(t, "if", ifc.Keyword)
	assert.Equal(t, "ok", ifc.Header)
	require.Len(t, ifc.Body, 2)
	as[*Assign](t, ifc.Body[0])
	as[*ExprStmt](t, ifc.Body[1])

	elsec := as[*Compound](t, f.Body[1])
	assert.Equal(t, "else", elsec.Keyword)
	assert.Empty(t, elsec.Header)
}

// =============================================================================
// Skipped constructs
// =============================================================================

func TestParse_MatchStatementSkipped(t *testing.T) {
	t.Parallel()
	src := "match cmd:\n" +
		"    case \"go\":\n" +
		"        run()\n" +
		"x = 1\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 2)

	s := as[*Skipped](t, f.Body[0])
	assert.Equal(t, "match statement", s.Reason)
	assert.Equal(t, 1, s.Span.Start.Line)
	assert.Equal(t, 3, s.Span.End.Line)
	as[*Assign](t, f.Body[1])

	require.Len(t, f.Diagnostics, 1)
	assert.Equal(t, diag.SkippedConstruct, f.Diagnostics[0].Kind)
}

func TestParse_MatchAsIdentifier(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "match = re.match(p, s)\n")
	a := as[*Assign](t, f.Body[0])
	assert.Equal(t, []string{"match"}, a.Targets)
	assert.Empty(t, f.Diagnostics)
}

func TestParse_WalrusSkipped(t *testing.T) {
	t.Parallel()
	src := "if (n := len(a)) > 10:\n" +
		"    pass\n" +
		"print(n)\n"
	f := mustParse(t, src)
	require.Len(t, f.Body, 2)
	as[*Skipped](t, f.Body[0])
	e := as[*ExprStmt](t, f.Body[1])
	assert.Equal(t, "print", e.Calls[0].Callee)
	require.Len(t, f.Diagnostics, 1)
}

func TestParse_TypeAliasSkipped(t *testing.T) {
	t.Parallel()
	f := mustParse(t, "type Point = tuple[int, int]\ndef f(): pass\n")
	require.Len(t, f.Body, 2)
	as[*Skipped](t, f.Body[0])
	as[*FuncDef](t, f.Body[1])
}

func TestParse_SkippedInsideBlockKeepsSiblings(t *testing.T) {
	t.Parallel()
	src := "class A:\n" +
		"    def m(self):\n" +
		"        if (y := 1):\n" +
		"            pass\n" +
		"        return y\n" +
		"    def n(self): pass\n"
	f := mustParse(t, src)
	cls := as[*ClassDef](t, f.Body[0])
	require.Len(t, cls.Body, 2)
	m := as[*FuncDef](t, cls.Body[0])
	require.Len(t, m.Body, 2)
	as[*Skipped](t, m.Body[0])
	as[*Simple](t, m.Body[1])
	assert.Equal(t, "n", as[*FuncDef](t, cls.Body[1]).Name)
}

// =============================================================================
// Fatal errors
// =============================================================================

func TestParse_UnexpectedIndent(t *testing.T) {
	t.Parallel()
	_, err := Parse("x = 1\n    y = 2\n")
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindIndentation))
}

func TestParse_ExpectedIndentedBlock(t *testing.T) {
	t.Parallel()
	_, err := Parse("def f():\nreturn 1\n")
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindIndentation))
	assert.Contains(t, err.Error(), "expected an indented block")
}

func TestParse_LexErrorPropagates(t *testing.T) {
	t.Parallel()
	_, err := Parse("def f():\n    x = \"abc\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.KindLex, de.Kind)
	assert.Equal(t, diag.UnterminatedString, de.Reason)
}

func TestParse_UnbalancedBrackets(t *testing.T) {
	t.Parallel()
	_, err := Parse("f(1,\n")
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindParse))
}

type fixedTokens struct {
	toks []lexer.Token
	i    int
}

func (f *fixedTokens) Next() (lexer.Token, error) {
	if f.i >= len(f.toks) {
		return lexer.Token{Kind: lexer.EOF}, nil
	}
	tok := f.toks[f.i]
	f.i++
	return tok, nil
}

func headerTokens() []lexer.Token {
	return []lexer.Token{
		{Kind: lexer.Keyword, Text: "def"},
		{Kind: lexer.Identifier, Text: "f"},
		{Kind: lexer.Operator, Text: "("},
		{Kind: lexer.Operator, Text: ")"},
		{Kind: lexer.Operator, Text: ":"},
		{Kind: lexer.Newline},
	}
}

func TestParse_StructuralDivergence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body []lexer.Token
	}{
		{
			name: "indent skips a level",
			body: []lexer.Token{
				{Kind: lexer.Indent, Depth: 2},
				{Kind: lexer.Keyword, Text: "pass"},
				{Kind: lexer.Newline},
				{Kind: lexer.Dedent, Depth: 0},
			},
		},
		{
			name: "dedent to the wrong depth",
			body: []lexer.Token{
				{Kind: lexer.Indent, Depth: 1},
				{Kind: lexer.Keyword, Text: "pass"},
				{Kind: lexer.Newline},
				{Kind: lexer.Dedent, Depth: 1},
			},
		},
		{
			name: "block never closed",
			body: []lexer.Token{
				{Kind: lexer.Indent, Depth: 1},
				{Kind: lexer.Keyword, Text: "pass"},
				{Kind: lexer.Newline},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			toks := append(headerTokens(), tt.body...)
			_, err := New("", &fixedTokens{toks: toks}).ParseFile()
			require.Error(t, err)
			var de *diag.Error
			require.ErrorAs(t, err, &de)
			assert.True(t, de.Structural)
			assert.Equal(t, diag.KindParse, de.Kind)
		})
	}
}
