package model

import (
	"errors"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrRelativeBeyondTop is returned when a relative import climbs above the
// top-level package of the importing module.
var ErrRelativeBeyondTop = errors.New("relative import beyond top-level package")

// ModuleLabel derives the dotted module label from a source path:
// pkg/sub/mod.py is pkg.sub.mod and pkg/sub/__init__.py is the package
// pkg.sub.
func ModuleLabel(p string) (name string, isPackage bool) {
	p = filepath.ToSlash(p)
	p = strings.TrimSuffix(p, path.Ext(p))
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	if n := len(parts); n > 0 && parts[n-1] == "__init__" {
		parts = parts[:n-1]
		isPackage = true
	}
	return strings.Join(parts, "."), isPackage
}

// Index is a read-only view over one Module.
type Index struct {
	mod       *Module
	defs      map[string][]Definition
	scopes    map[string]*Scope
	classes   []*ClassDef
	functions []*FunctionDef
}

// NewIndex builds the lookup tables for m. The module must not be modified
// afterwards.
func NewIndex(m *Module) *Index {
	ix := &Index{
		mod:    m,
		defs:   make(map[string][]Definition),
		scopes: make(map[string]*Scope),
	}
	if m.Root != nil {
		ix.scopes[""] = m.Root
	}
	m.Walk(func(d Definition) bool {
		ix.defs[d.QName()] = append(ix.defs[d.QName()], d)
		ix.scopes[d.QName()] = d.Scope()
		switch v := d.(type) {
		case *ClassDef:
			ix.classes = append(ix.classes, v)
		case *FunctionDef:
			ix.functions = append(ix.functions, v)
		}
		return true
	})
	return ix
}

// Module returns the indexed module.
func (ix *Index) Module() *Module { return ix.mod }

// Name returns the module label.
func (ix *Index) Name() string { return ix.mod.Name }

func (ix *Index) local(qname string) string {
	if _, ok := ix.defs[qname]; ok {
		return qname
	}
	if ix.mod.Name != "" {
		if rest, ok := strings.CutPrefix(qname, ix.mod.Name+"."); ok {
			return rest
		}
	}
	return qname
}

// Lookup returns the definition with the given qualified name. The name may
// be module-relative (A.m) or module-prefixed (pkg.mod.A.m). When a name is
// defined more than once, the last definition in source order wins, as it
// does at runtime.
func (ix *Index) Lookup(qname string) (Definition, bool) {
	all := ix.defs[ix.local(qname)]
	if len(all) == 0 {
		return nil, false
	}
	return all[len(all)-1], true
}

// LookupAll returns every definition with the given qualified name in
// source order.
func (ix *Index) LookupAll(qname string) []Definition {
	return ix.defs[ix.local(qname)]
}

// Class returns the class with the given qualified name.
func (ix *Index) Class(qname string) (*ClassDef, bool) {
	d, ok := ix.Lookup(qname)
	if !ok {
		return nil, false
	}
	c, ok := d.(*ClassDef)
	return c, ok
}

// Function returns the function with the given qualified name.
func (ix *Index) Function(qname string) (*FunctionDef, bool) {
	d, ok := ix.Lookup(qname)
	if !ok {
		return nil, false
	}
	f, ok := d.(*FunctionDef)
	return f, ok
}

// Classes lists every class in preorder.
func (ix *Index) Classes() []*ClassDef { return ix.classes }

// Functions lists every function and method in preorder.
func (ix *Index) Functions() []*FunctionDef { return ix.functions }

// Imports lists every import in source order.
func (ix *Index) Imports() []*ImportEntry { return ix.mod.Imports }

// Constants lists the module-level constants in source order.
func (ix *Index) Constants() []*Constant { return ix.mod.Constants }

// Scope returns the body scope of qname; "" is the module scope.
func (ix *Index) Scope(qname string) (*Scope, bool) {
	if qname == "" || qname == ix.mod.Name {
		s, ok := ix.scopes[""]
		return s, ok
	}
	s, ok := ix.scopes[ix.local(qname)]
	return s, ok
}

// Children returns the definitions directly inside qname.
func (ix *Index) Children(qname string) ([]Definition, bool) {
	s, ok := ix.Scope(qname)
	if !ok {
		return nil, false
	}
	return s.Children, true
}

// CallsIn returns the call sites directly inside qname, excluding nested
// definitions.
func (ix *Index) CallsIn(qname string) ([]*CallSite, bool) {
	s, ok := ix.Scope(qname)
	if !ok {
		return nil, false
	}
	return s.Calls, true
}

// Calls returns every call site in the module ordered by position.
func (ix *Index) Calls() []*CallSite {
	if ix.mod.Root == nil {
		return nil
	}
	out := append([]*CallSite(nil), ix.mod.Root.Calls...)
	ix.mod.Walk(func(d Definition) bool {
		out = append(out, d.Scope().Calls...)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Span.Start.Offset < out[j].Span.Start.Offset
	})
	return out
}

// Subclasses returns the classes in this module whose bases resolve to
// qname.
func (ix *Index) Subclasses(qname string) []*ClassDef {
	target := ix.local(qname)
	var out []*ClassDef
	for _, c := range ix.classes {
		for _, b := range c.Bases {
			if b.Resolved == target {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ResolveRelative returns the absolute dotted module an import refers to,
// anchored at this module's label. Absolute imports are returned as
// written. No filesystem lookup takes place.
func (ix *Index) ResolveRelative(imp *ImportEntry) (string, error) {
	if imp.Level == 0 {
		return strings.Join(imp.Module, "."), nil
	}
	var pkg []string
	if ix.mod.Name != "" {
		pkg = strings.Split(ix.mod.Name, ".")
	}
	if !ix.mod.IsPackage && len(pkg) > 0 {
		pkg = pkg[:len(pkg)-1]
	}
	up := imp.Level - 1
	if up > len(pkg) {
		return "", ErrRelativeBeyondTop
	}
	parts := append(append([]string{}, pkg[:len(pkg)-up]...), imp.Module...)
	if len(parts) == 0 {
		return "", ErrRelativeBeyondTop
	}
	return strings.Join(parts, "."), nil
}
