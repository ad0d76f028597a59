package outline

import (
	"fmt"

	"github.com/jward/outline/internal/model"
)

// BaseRelation is one base-class reference of a class. Class is nil when
// the base text names no class in the project.
type BaseRelation struct {
	Text  string
	Class *DefinitionResult
}

// ClassHierarchy is the inheritance view of a single class. Bases are in
// source order; Ancestors is the transitive closure of resolvable bases in
// breadth-first order.
type ClassHierarchy struct {
	Class      DefinitionResult
	Bases      []BaseRelation
	Ancestors  []DefinitionResult
	Subclasses []DefinitionResult
}

// ClassHierarchy returns the bases, ancestors and direct subclasses of the
// class named by the fully qualified name fq. Returns nil with no error if
// fq names no class.
//
// A base resolves to a class of its own module when the extractor resolved
// it, or to any project class whose fully qualified name equals the base
// text. Imported aliases are not followed.
func (q *QueryBuilder) ClassHierarchy(fq string) (*ClassHierarchy, error) {
	d, ix, ok := q.project.Lookup(fq)
	if !ok {
		return nil, nil
	}
	cls, ok := d.(*model.ClassDef)
	if !ok {
		return nil, fmt.Errorf("class hierarchy: %s is a %s", fq, d.EntityKind())
	}

	h := &ClassHierarchy{Class: newDefinitionResult(ix, cls)}
	for _, b := range cls.Bases {
		rel := BaseRelation{Text: b.Text}
		if base, bix, ok := q.resolveBase(ix, b); ok {
			r := newDefinitionResult(bix, base)
			rel.Class = &r
		}
		h.Bases = append(h.Bases, rel)
	}

	// Ancestors, cycle-safe.
	seen := map[string]bool{h.Class.FullName(): true}
	type node struct {
		ix  *model.Index
		cls *model.ClassDef
	}
	queue := []node{{ix, cls}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, b := range n.cls.Bases {
			base, bix, ok := q.resolveBase(n.ix, b)
			if !ok {
				continue
			}
			r := newDefinitionResult(bix, base)
			if seen[r.FullName()] {
				continue
			}
			seen[r.FullName()] = true
			h.Ancestors = append(h.Ancestors, r)
			queue = append(queue, node{bix, base})
		}
	}

	h.Subclasses = q.Subclasses(h.Class.FullName())
	return h, nil
}

// Subclasses lists the classes across the project with a base that
// resolves to the class named fq.
func (q *QueryBuilder) Subclasses(fq string) []DefinitionResult {
	var out []DefinitionResult
	for _, ix := range q.project.Modules() {
		for _, c := range ix.Classes() {
			for _, b := range c.Bases {
				base, bix, ok := q.resolveBase(ix, b)
				if ok && bix.Name()+"."+base.QualifiedName == fq {
					out = append(out, newDefinitionResult(ix, c))
					break
				}
			}
		}
	}
	return out
}

func (q *QueryBuilder) resolveBase(ix *model.Index, b model.BaseRef) (*model.ClassDef, *model.Index, bool) {
	if b.Resolved != "" {
		if c, ok := ix.Class(b.Resolved); ok {
			return c, ix, true
		}
	}
	d, bix, ok := q.project.Lookup(b.Text)
	if !ok {
		return nil, nil, false
	}
	c, ok := d.(*model.ClassDef)
	return c, bix, ok
}
