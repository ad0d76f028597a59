// Package oracle cross-checks analyzed modules against the tree-sitter
// Python grammar. It counts the same entities the extractor records so a
// disagreement points at a construct the hand-written front end mishandles.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/outline/internal/model"
)

// ErrSyntax is returned when tree-sitter itself finds syntax errors; the
// counts of a broken tree are not comparable.
var ErrSyntax = errors.New("oracle: source has syntax errors")

// Counts tallies the structural entities of one module.
type Counts struct {
	Functions  int
	Classes    int
	Imports    int
	Decorators int
}

// Mismatch is one entity kind on which the two front ends disagree.
type Mismatch struct {
	Entity string
	Oracle int
	Model  int
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: tree-sitter %d, model %d", m.Entity, m.Oracle, m.Model)
}

// Each query captures exactly one node per counted entity. Import names
// are counted individually to match one ImportEntry per bound name.
var queries = map[string]string{
	"functions":  "(function_definition) @f",
	"classes":    "(class_definition) @c",
	"decorators": "(decorator) @d",
	"imports": `(import_statement name: (_) @n)
(import_from_statement name: (_) @n)
(import_from_statement (wildcard_import) @w)
(future_import_statement name: (_) @n)`,
}

var (
	grammar     *sitter.Language
	compiled    map[string]*sitter.Query
	compileErr  error
	grammarOnce sync.Once
)

func initQueries() {
	grammarOnce.Do(func() {
		grammar = python.GetLanguage()
		compiled = make(map[string]*sitter.Query, len(queries))
		for name, pattern := range queries {
			q, err := sitter.NewQuery([]byte(pattern), grammar)
			if err != nil {
				compileErr = fmt.Errorf("oracle: query %s: %w", name, err)
				return
			}
			compiled[name] = q
		}
	})
}

// CountPython parses src with tree-sitter and tallies its entities.
func CountPython(ctx context.Context, src []byte) (Counts, error) {
	initQueries()
	if compileErr != nil {
		return Counts{}, compileErr
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Counts{}, fmt.Errorf("oracle: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return Counts{}, ErrSyntax
	}
	return Counts{
		Functions:  count(compiled["functions"], root, src),
		Classes:    count(compiled["classes"], root, src),
		Imports:    count(compiled["imports"], root, src),
		Decorators: count(compiled["decorators"], root, src),
	}, nil
}

func count(q *sitter.Query, root *sitter.Node, src []byte) int {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, root)

	n := 0
	for {
		match, found := cursor.NextMatch()
		if !found {
			break
		}
		match = cursor.FilterPredicates(match, src)
		n += len(match.Captures)
	}
	return n
}

// CountModule tallies the same entities from an extracted module.
func CountModule(m *model.Module) Counts {
	c := Counts{Imports: len(m.Imports)}
	m.Walk(func(d model.Definition) bool {
		switch v := d.(type) {
		case *model.FunctionDef:
			c.Functions++
			c.Decorators += len(v.Decorators)
		case *model.ClassDef:
			c.Classes++
			c.Decorators += len(v.Decorators)
		}
		return true
	})
	return c
}

// Compare returns the entity kinds on which want and got disagree, in a
// fixed order.
func Compare(want, got Counts) []Mismatch {
	var out []Mismatch
	check := func(entity string, w, g int) {
		if w != g {
			out = append(out, Mismatch{Entity: entity, Oracle: w, Model: g})
		}
	}
	check("functions", want.Functions, got.Functions)
	check("classes", want.Classes, got.Classes)
	check("imports", want.Imports, got.Imports)
	check("decorators", want.Decorators, got.Decorators)
	return out
}

// Verify counts src with tree-sitter and compares it against m.
func Verify(ctx context.Context, src []byte, m *model.Module) ([]Mismatch, error) {
	want, err := CountPython(ctx, src)
	if err != nil {
		return nil, err
	}
	return Compare(want, CountModule(m)), nil
}
