package outline

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

// DefinitionDetail is a combined response that bundles a persisted
// definition with all of its structural metadata. One call replaces four
// separate Store lookups.
type DefinitionDetail struct {
	Definition StoredDefinition
	Parameters []*store.Parameter // empty for classes
	Decorators []*store.Decorator
	Bases      []*store.Base // positional bases and class keywords; empty for functions
}

// DefinitionDetail returns the persisted definition with its parameters,
// decorators and bases. Returns nil with no error if the ID does not exist.
func (q *QueryBuilder) DefinitionDetail(id int64) (*DefinitionDetail, error) {
	if q.store == nil {
		return nil, fmt.Errorf("definition detail: %w", ErrNoStore)
	}
	row := q.store.DB().QueryRow(
		`SELECT `+prefixDefinitionCols("d")+`, f.path, f.module
		 FROM definitions d JOIN files f ON d.file_id = f.id
		 WHERE d.id = ?`, id)
	sd, err := scanStoredDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("definition detail: %w", err)
	}

	params, err := q.store.Parameters(id)
	if err != nil {
		return nil, fmt.Errorf("definition detail: parameters: %w", err)
	}
	decos, err := q.store.Decorators(id)
	if err != nil {
		return nil, fmt.Errorf("definition detail: decorators: %w", err)
	}
	bases, err := q.store.Bases(id)
	if err != nil {
		return nil, fmt.Errorf("definition detail: bases: %w", err)
	}

	if params == nil {
		params = []*store.Parameter{}
	}
	if decos == nil {
		decos = []*store.Decorator{}
	}
	if bases == nil {
		bases = []*store.Base{}
	}
	return &DefinitionDetail{Definition: sd, Parameters: params, Decorators: decos, Bases: bases}, nil
}

// DefinitionAt returns the innermost definition whose span contains the
// position in the module at path. Line is 1-based, col 0-based. Returns
// nil if no definition contains the position or the path is unknown.
func (q *QueryBuilder) DefinitionAt(path string, line, col int) *DefinitionResult {
	ix := q.moduleByPath(path)
	if ix == nil {
		return nil
	}
	var best model.Definition
	ix.Module().Walk(func(d model.Definition) bool {
		// Preorder: a later containing definition is nested deeper.
		if contains(d.Position(), line, col) {
			best = d
		}
		return true
	})
	if best == nil {
		return nil
	}
	r := newDefinitionResult(ix, best)
	return &r
}

// ScopeAt returns the scope chain at a position, ordered from innermost to
// the module scope. Returns nil if the path is unknown.
func (q *QueryBuilder) ScopeAt(path string, line, col int) []*model.Scope {
	ix := q.moduleByPath(path)
	if ix == nil {
		return nil
	}
	s := ix.Module().Root
	if d := q.DefinitionAt(path, line, col); d != nil {
		s = d.Definition.Scope()
	}
	var chain []*model.Scope
	for ; s != nil; s = s.Parent {
		chain = append(chain, s)
	}
	return chain
}

func (q *QueryBuilder) moduleByPath(path string) *model.Index {
	for _, ix := range q.project.Modules() {
		if ix.Module().Path == path {
			return ix
		}
	}
	return nil
}

// contains reports whether (line, col) falls within the half-open span.
func contains(sp diag.Span, line, col int) bool {
	if line < sp.Start.Line || (line == sp.Start.Line && col < sp.Start.Col) {
		return false
	}
	if line > sp.End.Line || (line == sp.End.Line && col >= sp.End.Col) {
		return false
	}
	return true
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
