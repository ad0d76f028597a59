// Package model holds the structural model of one analyzed source unit and
// the read-only indexes over it.
//
// Entities are built once by the extractor and never mutated afterwards.
// Parent links are for lookup only; every entity is owned by exactly one
// Scope.
package model

import (
	"strings"

	"github.com/jward/outline/internal/diag"
)

// Kind identifies an entity type.
type Kind string

const (
	KindModule     Kind = "module"
	KindClass      Kind = "class"
	KindFunction   Kind = "function"
	KindImport     Kind = "import"
	KindAssignment Kind = "assignment"
	KindCall       Kind = "call"
)

// Entity is any extracted structural fact.
type Entity interface {
	EntityKind() Kind
	Position() diag.Span
}

// Definition is a function or class: an entity with a qualified name and a
// body scope.
type Definition interface {
	Entity
	QName() string
	Scope() *Scope
}

// ScopeKind is the kind of definition that owns a Scope.
type ScopeKind string

const (
	ScopeModule   ScopeKind = "module"
	ScopeClass    ScopeKind = "class"
	ScopeFunction ScopeKind = "function"
)

// Scope is a node in the scope tree. It owns the definitions and the
// statement-level facts that occur directly in it, in source order.
type Scope struct {
	Kind ScopeKind
	Name string
	// QualifiedName is "" for the module scope.
	QualifiedName string
	Span          diag.Span

	Parent *Scope `json:"-"`
	Owner  Definition `json:"-"`

	Children    []Definition
	Imports     []*ImportEntry
	Assignments []*Assignment
	Calls       []*CallSite
}

// ParamKind classifies a parameter.
type ParamKind string

const (
	ParamPositional    ParamKind = "positional"
	ParamKeywordOnly   ParamKind = "keyword-only"
	ParamVarPositional ParamKind = "var-positional"
	ParamVarKeyword    ParamKind = "var-keyword"
)

type Parameter struct {
	Name       string
	Annotation string
	Default    string
	Kind       ParamKind
	Span       diag.Span
}

// Decorator is one decorator line attached to a definition. Name has call
// arguments stripped; Text is the full expression after '@'.
type Decorator struct {
	Name   string
	Text   string
	Args   []string
	IsCall bool
	Span   diag.Span
}

// ImportEntry is one imported name. A plain `import a.b` has Module [a b]
// and no Symbol; `from a import b` has Module [a] and Symbol b.
type ImportEntry struct {
	Module   []string
	Symbol   string
	Wildcard bool
	Alias    string
	Level    int
	// Scope is the qualified name of the enclosing scope.
	Scope string
	Span  diag.Span
}

func (i *ImportEntry) EntityKind() Kind    { return KindImport }
func (i *ImportEntry) Position() diag.Span { return i.Span }

// ModulePath returns the module as written, leading dots included.
func (i *ImportEntry) ModulePath() string {
	return strings.Repeat(".", i.Level) + strings.Join(i.Module, ".")
}

// BoundName returns the local name the import binds, or "" for a wildcard.
func (i *ImportEntry) BoundName() string {
	switch {
	case i.Wildcard:
		return ""
	case i.Alias != "":
		return i.Alias
	case i.Symbol != "":
		return i.Symbol
	case len(i.Module) > 0:
		return i.Module[0]
	}
	return ""
}

// CallSite is a call expression. Callee is opaque source text.
type CallSite struct {
	Callee string
	Args   []string
	// Scope is the qualified name of the innermost enclosing definition,
	// "" at module level.
	Scope string
	Span  diag.Span
}

func (c *CallSite) EntityKind() Kind    { return KindCall }
func (c *CallSite) Position() diag.Span { return c.Span }

// Assignment is a binding statement in a scope.
type Assignment struct {
	Targets    []string
	Op         string
	Annotation string
	Value      string
	Literal    bool
	Scope      string
	Span       diag.Span
}

func (a *Assignment) EntityKind() Kind    { return KindAssignment }
func (a *Assignment) Position() diag.Span { return a.Span }

// Constant is a top-level single-name assignment of a literal value.
type Constant struct {
	Name  string
	Value string
	Span  diag.Span
}

type FunctionDef struct {
	Name          string
	QualifiedName string
	TypeParams    string
	Params        []Parameter
	Returns       string
	IsAsync       bool
	IsStatic      bool
	IsClassMethod bool
	IsProperty    bool
	// IsMethod is set when the directly enclosing scope is a class body.
	IsMethod   bool
	Decorators []Decorator
	Docstring  string
	Body       *Scope
	Span       diag.Span
}

func (f *FunctionDef) EntityKind() Kind    { return KindFunction }
func (f *FunctionDef) Position() diag.Span { return f.Span }
func (f *FunctionDef) QName() string       { return f.QualifiedName }
func (f *FunctionDef) Scope() *Scope       { return f.Body }

// DecoratorNames returns the decorator names in source order.
func (f *FunctionDef) DecoratorNames() []string {
	return decoratorNames(f.Decorators)
}

// BaseRef is a base-class reference. Resolved holds the qualified name of a
// ClassDef in the same module, or "" when the base is defined elsewhere.
type BaseRef struct {
	Text     string
	Resolved string
}

type Keyword struct {
	Name  string
	Value string
}

type ClassDef struct {
	Name          string
	QualifiedName string
	TypeParams    string
	Bases         []BaseRef
	Keywords      []Keyword
	Decorators    []Decorator
	Docstring     string
	Body          *Scope
	Span          diag.Span
}

func (c *ClassDef) EntityKind() Kind    { return KindClass }
func (c *ClassDef) Position() diag.Span { return c.Span }
func (c *ClassDef) QName() string       { return c.QualifiedName }
func (c *ClassDef) Scope() *Scope       { return c.Body }

// BaseNames returns the raw base texts in source order.
func (c *ClassDef) BaseNames() []string {
	out := make([]string, len(c.Bases))
	for i, b := range c.Bases {
		out[i] = b.Text
	}
	return out
}

// DecoratorNames returns the decorator names in source order.
func (c *ClassDef) DecoratorNames() []string {
	return decoratorNames(c.Decorators)
}

// Methods returns the functions defined directly in the class body.
func (c *ClassDef) Methods() []*FunctionDef {
	var out []*FunctionDef
	for _, d := range c.Body.Children {
		if fn, ok := d.(*FunctionDef); ok {
			out = append(out, fn)
		}
	}
	return out
}

func decoratorNames(ds []Decorator) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

// Module is the structural model of one source unit.
type Module struct {
	Path string
	// Name is the dotted module label derived from Path.
	Name      string
	IsPackage bool
	Docstring string
	Root      *Scope
	// Imports lists every import in the unit in source order, including
	// imports inside function and class bodies.
	Imports     []*ImportEntry
	Constants   []*Constant
	Diagnostics []diag.Diagnostic
}

func (m *Module) EntityKind() Kind { return KindModule }
func (m *Module) Position() diag.Span {
	if m.Root == nil {
		return diag.Span{}
	}
	return m.Root.Span
}

// Walk visits every definition in preorder, source order.
func (m *Module) Walk(fn func(d Definition) bool) {
	if m.Root != nil {
		walk(m.Root, fn)
	}
}

func walk(s *Scope, fn func(d Definition) bool) bool {
	for _, d := range s.Children {
		if !fn(d) {
			return false
		}
		if !walk(d.Scope(), fn) {
			return false
		}
	}
	return true
}
