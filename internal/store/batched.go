package store

import (
	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
)

// Batch holds the rows of one analyzed module in memory, keyed by fake
// (negative) IDs. Workers build batches concurrently; CommitBatch writes a
// batch to SQLite in a single transaction and remaps the fake IDs.
type Batch struct {
	File        File
	Scopes      []Scope
	Definitions []Definition
	Parameters  []Parameter
	Decorators  []Decorator
	Bases       []Base
	Imports     []Import
	CallSites   []CallSite
	Assignments []Assignment
	Diagnostics []Diagnostic

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch flattens mod into rows. The scope tree is emitted parents
// first and definitions in preorder.
func NewBatch(mod *model.Module) *Batch {
	b := &Batch{
		File: File{
			Path:      mod.Path,
			Module:    mod.Name,
			IsPackage: mod.IsPackage,
			Docstring: mod.Docstring,
		},
		nextFakeID: -1,
	}
	for _, d := range mod.Diagnostics {
		b.Diagnostics = append(b.Diagnostics, Diagnostic{
			Kind:    string(d.Kind),
			Message: d.Msg,
			Line:    d.Span.Start.Line,
			Col:     d.Span.Start.Col,
			EndLine: d.Span.End.Line,
			EndCol:  d.Span.End.Col,
		})
	}
	if mod.Root == nil {
		return b
	}
	consts := make(map[int]bool, len(mod.Constants))
	for _, c := range mod.Constants {
		consts[c.Span.Start.Offset] = true
	}
	b.addScope(b.allocFakeID(), mod.Root, nil, consts)
	return b
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *Batch) addScope(id int64, s *model.Scope, parent *int64, consts map[int]bool) {
	b.Scopes = append(b.Scopes, Scope{
		ID:            id,
		ParentScopeID: parent,
		Kind:          string(s.Kind),
		Name:          s.Name,
		QualifiedName: s.QualifiedName,
		StartLine:     s.Span.Start.Line,
		StartCol:      s.Span.Start.Col,
		EndLine:       s.Span.End.Line,
		EndCol:        s.Span.End.Col,
	})
	for _, imp := range s.Imports {
		b.Imports = append(b.Imports, Import{
			Scope:    imp.Scope,
			Module:   imp.ModulePath(),
			Symbol:   imp.Symbol,
			Alias:    imp.Alias,
			Level:    imp.Level,
			Wildcard: imp.Wildcard,
			Line:     imp.Span.Start.Line,
			Col:      imp.Span.Start.Col,
		})
	}
	for _, a := range s.Assignments {
		b.Assignments = append(b.Assignments, Assignment{
			ScopeID:    id,
			Scope:      a.Scope,
			Targets:    a.Targets,
			Op:         a.Op,
			Annotation: a.Annotation,
			Value:      a.Value,
			Literal:    a.Literal,
			IsConstant: s.Kind == model.ScopeModule && consts[a.Span.Start.Offset],
			Line:       a.Span.Start.Line,
			Col:        a.Span.Start.Col,
		})
	}
	for _, c := range s.Calls {
		b.CallSites = append(b.CallSites, CallSite{
			ScopeID:   id,
			Scope:     c.Scope,
			Callee:    c.Callee,
			Args:      c.Args,
			StartLine: c.Span.Start.Line,
			StartCol:  c.Span.Start.Col,
			EndLine:   c.Span.End.Line,
			EndCol:    c.Span.End.Col,
		})
	}
	for _, d := range s.Children {
		switch d := d.(type) {
		case *model.FunctionDef:
			b.addFunction(id, d, consts)
		case *model.ClassDef:
			b.addClass(id, d, consts)
		}
	}
}

func (b *Batch) addDefinition(scopeID int64, kind model.Kind, name, qname, doc string, span diag.Span) *Definition {
	body := b.allocFakeID()
	b.Definitions = append(b.Definitions, Definition{
		ID:            b.allocFakeID(),
		ScopeID:       scopeID,
		BodyScopeID:   &body,
		Kind:          string(kind),
		Name:          name,
		QualifiedName: qname,
		Docstring:     doc,
		StartLine:     span.Start.Line,
		StartCol:      span.Start.Col,
		EndLine:       span.End.Line,
		EndCol:        span.End.Col,
	})
	return &b.Definitions[len(b.Definitions)-1]
}

func (b *Batch) addDecorators(defID int64, ds []model.Decorator) {
	for i, d := range ds {
		b.Decorators = append(b.Decorators, Decorator{
			DefinitionID: defID,
			Ordinal:      i,
			Name:         d.Name,
			Text:         d.Text,
			Args:         d.Args,
			IsCall:       d.IsCall,
			Line:         d.Span.Start.Line,
		})
	}
}

func (b *Batch) addFunction(scopeID int64, fn *model.FunctionDef, consts map[int]bool) {
	def := b.addDefinition(scopeID, model.KindFunction, fn.Name, fn.QualifiedName, fn.Docstring, fn.Span)
	def.Returns = fn.Returns
	def.TypeParams = fn.TypeParams
	def.Modifiers = FunctionModifiers(fn)
	id, body := def.ID, *def.BodyScopeID

	params := make([]Parameter, 0, len(fn.Params))
	for i, p := range fn.Params {
		params = append(params, Parameter{
			DefinitionID: id,
			Ordinal:      i,
			Name:         p.Name,
			Kind:         string(p.Kind),
			Annotation:   p.Annotation,
			DefaultExpr:  p.Default,
		})
	}
	def.SignatureHash = ComputeSignatureHash(def.Name, def.Kind, def.Returns, def.Modifiers, fn.DecoratorNames(), params, nil)
	b.Parameters = append(b.Parameters, params...)
	b.addDecorators(id, fn.Decorators)
	b.addScope(body, fn.Body, &scopeID, consts)
}

func (b *Batch) addClass(scopeID int64, cls *model.ClassDef, consts map[int]bool) {
	def := b.addDefinition(scopeID, model.KindClass, cls.Name, cls.QualifiedName, cls.Docstring, cls.Span)
	def.TypeParams = cls.TypeParams
	id, body := def.ID, *def.BodyScopeID

	var bases []Base
	for _, br := range cls.Bases {
		bases = append(bases, Base{DefinitionID: id, Ordinal: len(bases), Text: br.Text, Resolved: br.Resolved})
	}
	for _, kw := range cls.Keywords {
		bases = append(bases, Base{DefinitionID: id, Ordinal: len(bases), Keyword: kw.Name, Text: kw.Value})
	}
	def.SignatureHash = ComputeSignatureHash(def.Name, def.Kind, "", nil, cls.DecoratorNames(), nil, bases)
	b.Bases = append(b.Bases, bases...)
	b.addDecorators(id, cls.Decorators)
	b.addScope(body, cls.Body, &scopeID, consts)
}

// FunctionModifiers returns the flag names set on fn, in a fixed order.
func FunctionModifiers(fn *model.FunctionDef) []string {
	var mods []string
	for _, m := range []struct {
		set  bool
		name string
	}{
		{fn.IsAsync, "async"},
		{fn.IsMethod, "method"},
		{fn.IsStatic, "static"},
		{fn.IsClassMethod, "classmethod"},
		{fn.IsProperty, "property"},
	} {
		if m.set {
			mods = append(mods, m.name)
		}
	}
	return mods
}
