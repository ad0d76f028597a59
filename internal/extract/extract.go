// Package extract walks a parse tree once, in source order, and builds the
// structural model: scopes, definitions, decorator attachment, imports,
// assignments and call sites.
package extract

import (
	"sort"
	"strings"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
)

// Extractor converts parse trees into Modules. It holds configuration only
// and is safe for concurrent use.
type Extractor struct {
	markers Markers
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMarkers replaces the decorator marker names.
func WithMarkers(m Markers) Option {
	return func(x *Extractor) {
		x.markers = m
	}
}

func New(opts ...Option) *Extractor {
	x := &Extractor{markers: DefaultMarkers()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract builds the Module for f. path is used only to derive the module
// label.
func (x *Extractor) Extract(path string, f *parser.File) *model.Module {
	name, pkg := model.ModuleLabel(path)
	mod := &model.Module{Path: path, Name: name, IsPackage: pkg}
	root := &model.Scope{Kind: model.ScopeModule, Name: name, Span: bodySpan(f.Body)}
	mod.Root = root
	mod.Docstring = docstring(f.Body)

	w := &walker{markers: x.markers, mod: mod}
	w.block(root, f.Body)
	w.resolveBases()

	mod.Diagnostics = append(append([]diag.Diagnostic(nil), f.Diagnostics...), w.diags...)
	sort.SliceStable(mod.Diagnostics, func(i, j int) bool {
		return mod.Diagnostics[i].Span.Start.Offset < mod.Diagnostics[j].Span.Start.Offset
	})
	return mod
}

type walker struct {
	markers Markers
	mod     *model.Module
	diags   []diag.Diagnostic
	classes []*model.ClassDef
}

// block walks one body. Decorators collect until the next definition; any
// other statement, or the end of the body, orphans them.
func (w *walker) block(s *model.Scope, body []parser.Stmt) {
	var pending []*parser.Decorator
	orphan := func() {
		for _, d := range pending {
			w.diags = append(w.diags, diag.Diagnostic{
				Kind: diag.OrphanedDecorator,
				Span: d.Span,
				Msg:  "decorator @" + d.Text + " is not followed by a definition",
			})
		}
		pending = nil
	}

	for _, st := range body {
		switch n := st.(type) {
		case *parser.Decorator:
			pending = append(pending, n)
			w.calls(s, n.Calls)
		case *parser.FuncDef:
			w.function(s, n, pending)
			pending = nil
		case *parser.ClassDef:
			w.class(s, n, pending)
			pending = nil
		default:
			orphan()
			w.statement(s, st)
		}
	}
	orphan()
}

func (w *walker) statement(s *model.Scope, st parser.Stmt) {
	switch n := st.(type) {
	case *parser.Import:
		w.imports(s, n)
	case *parser.Assign:
		w.assign(s, n)
	case *parser.ExprStmt:
		w.calls(s, n.Calls)
	case *parser.Simple:
		w.calls(s, n.Calls)
	case *parser.Compound:
		w.calls(s, n.Calls)
		w.block(s, n.Body)
	}
}

func qualify(s *model.Scope, name string) string {
	if s.QualifiedName == "" {
		return name
	}
	return s.QualifiedName + "." + name
}

func (w *walker) calls(s *model.Scope, calls []parser.Call) {
	for _, c := range calls {
		s.Calls = append(s.Calls, &model.CallSite{
			Callee: c.Callee,
			Args:   c.Args,
			Scope:  s.QualifiedName,
			Span:   c.Span,
		})
	}
}

func (w *walker) imports(s *model.Scope, n *parser.Import) {
	add := func(e *model.ImportEntry) {
		e.Scope = s.QualifiedName
		s.Imports = append(s.Imports, e)
		w.mod.Imports = append(w.mod.Imports, e)
	}
	if n.Wildcard {
		add(&model.ImportEntry{Module: n.Module, Wildcard: true, Level: n.Level, Span: n.Span})
		return
	}
	for _, name := range n.Names {
		if n.From {
			add(&model.ImportEntry{Module: n.Module, Symbol: name.Name, Alias: name.Alias, Level: n.Level, Span: name.Span})
			continue
		}
		add(&model.ImportEntry{Module: name.Path, Alias: name.Alias, Span: name.Span})
	}
}

func (w *walker) assign(s *model.Scope, n *parser.Assign) {
	a := &model.Assignment{
		Targets:    n.Targets,
		Op:         n.Op,
		Annotation: n.Annotation,
		Value:      n.Value,
		Literal:    n.Literal,
		Scope:      s.QualifiedName,
		Span:       n.Span,
	}
	s.Assignments = append(s.Assignments, a)
	w.calls(s, n.Calls)

	if s.Kind == model.ScopeModule && n.Op == "=" && n.Literal && len(n.Targets) == 1 && isName(n.Targets[0]) {
		w.mod.Constants = append(w.mod.Constants, &model.Constant{
			Name:  n.Targets[0],
			Value: n.Value,
			Span:  n.Span,
		})
	}
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 0x7f {
			continue
		}
		if i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func (w *walker) decorators(ds []*parser.Decorator) []model.Decorator {
	out := make([]model.Decorator, 0, len(ds))
	for _, d := range ds {
		out = append(out, model.Decorator{
			Name:   d.Name,
			Text:   d.Text,
			Args:   d.Args,
			IsCall: d.Call,
			Span:   d.Span,
		})
	}
	return out
}

var paramKinds = map[parser.ParamKind]model.ParamKind{
	parser.Positional:    model.ParamPositional,
	parser.KeywordOnly:   model.ParamKeywordOnly,
	parser.VarPositional: model.ParamVarPositional,
	parser.VarKeyword:    model.ParamVarKeyword,
}

func (w *walker) function(s *model.Scope, n *parser.FuncDef, decos []*parser.Decorator) {
	qn := qualify(s, n.Name)
	fn := &model.FunctionDef{
		Name:          n.Name,
		QualifiedName: qn,
		TypeParams:    n.TypeParams,
		Returns:       n.Returns,
		IsAsync:       n.Async,
		IsMethod:      s.Kind == model.ScopeClass,
		Decorators:    w.decorators(decos),
		Docstring:     docstring(n.Body),
		Span:          n.Span,
	}
	for _, d := range fn.Decorators {
		switch {
		case w.markers.isStatic(d.Name):
			fn.IsStatic = true
		case w.markers.isClassMethod(d.Name):
			fn.IsClassMethod = true
		case w.markers.isProperty(d.Name):
			fn.IsProperty = true
		}
	}
	for _, p := range n.Params {
		fn.Params = append(fn.Params, model.Parameter{
			Name:       p.Name,
			Annotation: p.Annotation,
			Default:    p.Default,
			Kind:       paramKinds[p.Kind],
			Span:       p.Span,
		})
	}
	w.calls(s, n.HeaderCalls)

	fn.Body = &model.Scope{
		Kind:          model.ScopeFunction,
		Name:          n.Name,
		QualifiedName: qn,
		Span:          n.Span,
		Parent:        s,
		Owner:         fn,
	}
	s.Children = append(s.Children, fn)
	w.block(fn.Body, n.Body)
}

func (w *walker) class(s *model.Scope, n *parser.ClassDef, decos []*parser.Decorator) {
	qn := qualify(s, n.Name)
	cls := &model.ClassDef{
		Name:          n.Name,
		QualifiedName: qn,
		TypeParams:    n.TypeParams,
		Decorators:    w.decorators(decos),
		Docstring:     docstring(n.Body),
		Span:          n.Span,
	}
	for _, b := range n.Bases {
		cls.Bases = append(cls.Bases, model.BaseRef{Text: b})
	}
	for _, k := range n.Keywords {
		cls.Keywords = append(cls.Keywords, model.Keyword{Name: k.Name, Value: k.Value})
	}
	w.calls(s, n.HeaderCalls)

	cls.Body = &model.Scope{
		Kind:          model.ScopeClass,
		Name:          n.Name,
		QualifiedName: qn,
		Span:          n.Span,
		Parent:        s,
		Owner:         cls,
	}
	s.Children = append(s.Children, cls)
	w.classes = append(w.classes, cls)
	w.block(cls.Body, n.Body)
}

// resolveBases links each base to a class in this module. A base is looked
// up relative to the scope the class is defined in, then each enclosing
// scope outward, then as written.
func (w *walker) resolveBases() {
	known := make(map[string]bool, len(w.classes))
	for _, c := range w.classes {
		known[c.QualifiedName] = true
	}
	for _, c := range w.classes {
		parent := c.Body.Parent
		for i := range c.Bases {
			c.Bases[i].Resolved = resolve(known, parent, c.Bases[i].Text)
		}
	}
}

func resolve(known map[string]bool, s *model.Scope, text string) string {
	for sc := s; sc != nil; sc = sc.Parent {
		cand := qualify(sc, text)
		if known[cand] {
			return cand
		}
	}
	return ""
}

func bodySpan(body []parser.Stmt) diag.Span {
	if len(body) == 0 {
		return diag.Span{}
	}
	return body[0].Pos().Join(body[len(body)-1].Pos())
}

// docstring returns the contents of a leading string-literal statement.
func docstring(body []parser.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	e, ok := body[0].(*parser.ExprStmt)
	if !ok || !e.StringOnly {
		return ""
	}
	return unquote(e.Text)
}

// unquote strips the prefix and quotes of a string literal. Escapes are
// kept as written.
func unquote(lit string) string {
	i := strings.IndexAny(lit, `'"`)
	if i < 0 {
		return lit
	}
	if strings.ContainsAny(lit[:i], "fF") {
		return ""
	}
	body := lit[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			return body[len(q) : len(body)-len(q)]
		}
	}
	return body
}
