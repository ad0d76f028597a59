package outline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

var (
	// ErrModuleNotFound is returned for a module label not in the project.
	ErrModuleNotFound = errors.New("module not found")
	// ErrScopeNotFound is returned for a qualified name with no body scope.
	ErrScopeNotFound = errors.New("scope not found")
	// ErrNoStore is returned by queries that need a database when the
	// Engine was created without WithDatabase.
	ErrNoStore = errors.New("query needs a database")
)

// QueryBuilder answers structural questions over the project index and,
// when present, the Store. Call-site callees and base classes are source
// text; matching across modules is textual.
type QueryBuilder struct {
	project *model.Project
	store   *store.Store
}

// Location represents a source code position range. Lines are 1-based,
// columns 0-based.
type Location struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.StartLine, l.StartCol)
}

func spanLocation(path string, sp diag.Span) Location {
	return Location{
		File:      path,
		StartLine: sp.Start.Line,
		StartCol:  sp.Start.Col,
		EndLine:   sp.End.Line,
		EndCol:    sp.End.Col,
	}
}

// DefinitionResult is a function or class located in the project.
type DefinitionResult struct {
	Module string
	// QualifiedName is relative to Module.
	QualifiedName string
	Kind          model.Kind
	Definition    model.Definition
	Location      Location
}

// FullName returns the project-wide name module.qname.
func (d DefinitionResult) FullName() string {
	if d.Module == "" {
		return d.QualifiedName
	}
	return d.Module + "." + d.QualifiedName
}

func newDefinitionResult(ix *model.Index, d model.Definition) DefinitionResult {
	return DefinitionResult{
		Module:        ix.Name(),
		QualifiedName: d.QName(),
		Kind:          d.EntityKind(),
		Definition:    d,
		Location:      spanLocation(ix.Module().Path, d.Position()),
	}
}

// ImportResult is an import located in the project. Target is the
// absolute dotted module the import names, or "" when a relative import
// climbs above the top-level package.
type ImportResult struct {
	Module   string
	Entry    *model.ImportEntry
	Target   string
	Location Location
}

// CallResult is a call site located in the project.
type CallResult struct {
	Module   string
	Call     *model.CallSite
	Location Location
}

func (q *QueryBuilder) module(name string) (*model.Index, error) {
	ix, ok := q.project.Module(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrModuleNotFound)
	}
	return ix, nil
}

// Modules lists the module labels of the project, sorted.
func (q *QueryBuilder) Modules() []string {
	mods := q.project.Modules()
	out := make([]string, len(mods))
	for i, ix := range mods {
		out[i] = ix.Name()
	}
	return out
}

// Lookup resolves a fully qualified name such as pkg.mod.Class.method.
// Returns nil if no module defines it.
func (q *QueryBuilder) Lookup(fq string) *DefinitionResult {
	d, ix, ok := q.project.Lookup(fq)
	if !ok {
		return nil
	}
	r := newDefinitionResult(ix, d)
	return &r
}

// Classes lists every class of a module in source order, nested ones
// included.
func (q *QueryBuilder) Classes(module string) ([]DefinitionResult, error) {
	ix, err := q.module(module)
	if err != nil {
		return nil, fmt.Errorf("classes: %w", err)
	}
	out := make([]DefinitionResult, 0, len(ix.Classes()))
	for _, c := range ix.Classes() {
		out = append(out, newDefinitionResult(ix, c))
	}
	return out, nil
}

// Functions lists every function and method of a module in source order.
func (q *QueryBuilder) Functions(module string) ([]DefinitionResult, error) {
	ix, err := q.module(module)
	if err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}
	out := make([]DefinitionResult, 0, len(ix.Functions()))
	for _, fn := range ix.Functions() {
		out = append(out, newDefinitionResult(ix, fn))
	}
	return out, nil
}

// Children lists the definitions directly inside qname; "" is the module
// scope.
func (q *QueryBuilder) Children(module, qname string) ([]DefinitionResult, error) {
	ix, err := q.module(module)
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	kids, ok := ix.Children(qname)
	if !ok {
		return nil, fmt.Errorf("children: %s.%s: %w", module, qname, ErrScopeNotFound)
	}
	out := make([]DefinitionResult, 0, len(kids))
	for _, d := range kids {
		out = append(out, newDefinitionResult(ix, d))
	}
	return out, nil
}

// Imports lists the imports of a module in source order.
func (q *QueryBuilder) Imports(module string) ([]ImportResult, error) {
	ix, err := q.module(module)
	if err != nil {
		return nil, fmt.Errorf("imports: %w", err)
	}
	out := make([]ImportResult, 0, len(ix.Imports()))
	for _, imp := range ix.Imports() {
		out = append(out, newImportResult(ix, imp))
	}
	return out, nil
}

func newImportResult(ix *model.Index, imp *model.ImportEntry) ImportResult {
	target, _ := ix.ResolveRelative(imp)
	return ImportResult{
		Module:   ix.Name(),
		Entry:    imp,
		Target:   target,
		Location: spanLocation(ix.Module().Path, imp.Span),
	}
}

// Importers lists the imports across the project that name module, either
// directly (`import a.b`, `from a.b import x`) or as a submodule
// (`from a import b`).
func (q *QueryBuilder) Importers(module string) []ImportResult {
	var out []ImportResult
	for _, ix := range q.project.Modules() {
		for _, imp := range ix.Imports() {
			r := newImportResult(ix, imp)
			if r.Target == "" {
				continue
			}
			if r.Target == module || (imp.Symbol != "" && r.Target+"."+imp.Symbol == module) {
				out = append(out, r)
			}
		}
	}
	return out
}

// CallsIn lists the call sites directly inside qname, excluding nested
// definitions; "" is module level.
func (q *QueryBuilder) CallsIn(module, qname string) ([]CallResult, error) {
	ix, err := q.module(module)
	if err != nil {
		return nil, fmt.Errorf("calls in: %w", err)
	}
	calls, ok := ix.CallsIn(qname)
	if !ok {
		return nil, fmt.Errorf("calls in: %s.%s: %w", module, qname, ErrScopeNotFound)
	}
	out := make([]CallResult, 0, len(calls))
	for _, c := range calls {
		out = append(out, CallResult{Module: ix.Name(), Call: c, Location: spanLocation(ix.Module().Path, c.Span)})
	}
	return out, nil
}

// CallsTo lists the call sites across the project whose callee text is
// name or ends in "."+name, so CallsTo("load") matches both load(f) and
// json.load(f).
func (q *QueryBuilder) CallsTo(name string) []CallResult {
	var out []CallResult
	for _, ix := range q.project.Modules() {
		for _, c := range ix.Calls() {
			if c.Callee == name || strings.HasSuffix(c.Callee, "."+name) {
				out = append(out, CallResult{Module: ix.Name(), Call: c, Location: spanLocation(ix.Module().Path, c.Span)})
			}
		}
	}
	return out
}

// DecoratedBy lists the definitions across the project carrying a
// decorator named name, arguments ignored.
func (q *QueryBuilder) DecoratedBy(name string) []DefinitionResult {
	var out []DefinitionResult
	for _, ix := range q.project.Modules() {
		ix.Module().Walk(func(d model.Definition) bool {
			if hasDecorator(d, name) {
				out = append(out, newDefinitionResult(ix, d))
			}
			return true
		})
	}
	return out
}

func hasDecorator(d model.Definition, name string) bool {
	var names []string
	switch v := d.(type) {
	case *model.FunctionDef:
		names = v.DecoratorNames()
	case *model.ClassDef:
		names = v.DecoratorNames()
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
