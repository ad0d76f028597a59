package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestBatch analyzes src and flattens the result.
func newTestBatch(t *testing.T, path, src string) *Batch {
	t.Helper()
	f, err := parser.Parse(src)
	require.NoError(t, err)
	b := NewBatch(extract.New().Extract(path, f))
	b.File.Hash = ContentHash([]byte(src))
	return b
}

// commitTestSource analyzes and commits src, returning the file ID.
func commitTestSource(t *testing.T, s *Store, path, src string) int64 {
	t.Helper()
	id, err := s.CommitBatch(newTestBatch(t, path, src))
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}

const storeSource = `"""Shapes."""
import os
from .base import Shape as S

SIDES = 4

@dataclass
class Square(S, metaclass=Meta):
    def __init__(self, side: int = 1):
        self.side = side

    @property
    def area(self) -> int:
        return self.side * self.side

async def build(*args, **kw):
    return Square(max(args))
`

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"metadata", "files", "scopes", "definitions", "parameters", "decorators",
		"bases", "imports", "call_sites", "assignments", "diagnostics",
	}
	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("settings_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("settings_hash", "a"))
	require.NoError(t, s.SetMetadata("settings_hash", "b"))
	v, err = s.GetMetadata("settings_hash")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

// =============================================================================
// Batches
// =============================================================================

func TestNewBatch_Flattens(t *testing.T) {
	t.Parallel()
	b := newTestBatch(t, "geo/shapes.py", storeSource)

	assert.Equal(t, "geo.shapes", b.File.Module)
	assert.Equal(t, "Shapes.", b.File.Docstring)

	var qnames []string
	for _, d := range b.Definitions {
		qnames = append(qnames, d.QualifiedName)
		assert.Negative(t, d.ID)
	}
	assert.Equal(t, []string{"Square", "Square.__init__", "Square.area", "build"}, qnames)

	// Module scope first, then one body scope per definition.
	require.Len(t, b.Scopes, 5)
	assert.Nil(t, b.Scopes[0].ParentScopeID)
	assert.Equal(t, "module", b.Scopes[0].Kind)

	require.Len(t, b.Bases, 2)
	assert.Equal(t, "S", b.Bases[0].Text)
	assert.Equal(t, "metaclass", b.Bases[1].Keyword)

	require.Len(t, b.Assignments, 2)
	assert.True(t, b.Assignments[0].IsConstant)
	assert.False(t, b.Assignments[1].IsConstant)

	area := b.Definitions[2]
	assert.Equal(t, []string{"method", "property"}, area.Modifiers)
	assert.Equal(t, "int", area.Returns)

	assert.Equal(t, []string{"async"}, b.Definitions[3].Modifiers)
}

func TestComputeSignatureHash(t *testing.T) {
	t.Parallel()
	params := []Parameter{{Ordinal: 0, Name: "a", Kind: "positional"}}
	h1 := ComputeSignatureHash("f", "function", "", []string{"async", "method"}, nil, params, nil)
	h2 := ComputeSignatureHash("f", "function", "", []string{"method", "async"}, nil, params, nil)
	assert.Equal(t, h1, h2, "modifier order does not matter")

	h3 := ComputeSignatureHash("f", "function", "int", []string{"async", "method"}, nil, params, nil)
	assert.NotEqual(t, h1, h3)

	// Body edits keep the hash.
	a := newTestBatch(t, "m.py", "def f(x):\n    return 1\n")
	b := newTestBatch(t, "m.py", "def f(x):\n    y = 2\n    return y\n")
	assert.Equal(t, a.Definitions[0].SignatureHash, b.Definitions[0].SignatureHash)

	c := newTestBatch(t, "m.py", "def f(x, y):\n    return 1\n")
	assert.NotEqual(t, a.Definitions[0].SignatureHash, c.Definitions[0].SignatureHash)
}

// =============================================================================
// Commit & Reads
// =============================================================================

func TestCommitBatch_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	fileID := commitTestSource(t, s, "geo/shapes.py", storeSource)

	f, err := s.FileByPath("geo/shapes.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, fileID, f.ID)
	assert.Equal(t, "geo.shapes", f.Module)
	assert.Equal(t, ContentHash([]byte(storeSource)), f.Hash)

	defs, err := s.DefinitionsByFile(fileID)
	require.NoError(t, err)
	require.Len(t, defs, 4)
	for _, d := range defs {
		assert.Positive(t, d.ID)
		require.NotNil(t, d.BodyScopeID)
		assert.Positive(t, *d.BodyScopeID)
	}

	sq, err := s.DefinitionsByQualifiedName("geo.shapes", "Square")
	require.NoError(t, err)
	require.Len(t, sq, 1)
	bases, err := s.Bases(sq[0].ID)
	require.NoError(t, err)
	require.Len(t, bases, 2)
	assert.Equal(t, "S", bases[0].Text)
	assert.Equal(t, "Meta", bases[1].Text)

	decos, err := s.Decorators(sq[0].ID)
	require.NoError(t, err)
	require.Len(t, decos, 1)
	assert.Equal(t, "dataclass", decos[0].Name)

	methods, err := s.DefinitionsInScope(*sq[0].BodyScopeID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "Square.__init__", methods[0].QualifiedName)

	params, err := s.Parameters(methods[0].ID)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "side", params[1].Name)
	assert.Equal(t, "int", params[1].Annotation)
	assert.Equal(t, "1", params[1].DefaultExpr)

	imps, err := s.ImportsByFile(fileID)
	require.NoError(t, err)
	require.Len(t, imps, 2)
	assert.Equal(t, "os", imps[0].Module)
	assert.Equal(t, ".base", imps[1].Module)
	assert.Equal(t, "S", imps[1].Alias)

	consts, err := s.ConstantsByFile(fileID)
	require.NoError(t, err)
	require.Len(t, consts, 1)
	assert.Equal(t, []string{"SIDES"}, consts[0].Targets)

	calls, err := s.CallSitesByCallee("max")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "build", calls[0].Scope)
	assert.Equal(t, []string{"args"}, calls[0].Args)
}

func TestCommitBatch_ReplacesExisting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	first := commitTestSource(t, s, "m.py", "def a(): pass\ndef b(): pass\n")
	second := commitTestSource(t, s, "m.py", "def c(): pass\n")
	assert.NotEqual(t, first, second)

	old, err := s.DefinitionsByFile(first)
	require.NoError(t, err)
	assert.Empty(t, old)

	defs, err := s.DefinitionsByFile(second)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "c", defs[0].Name)

	files, err := s.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCommitBatch_Diagnostics(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id := commitTestSource(t, s, "m.py", "@orphan\nx = 1\nmatch x:\n    case 1:\n        pass\n")

	diags, err := s.DiagnosticsByFile(id)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "OrphanedDecorator", diags[0].Kind)
	assert.Equal(t, 1, diags[0].Line)
	assert.Equal(t, "SkippedConstruct", diags[1].Kind)
	assert.Equal(t, 3, diags[1].Line)
}

func TestDeleteFileData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id := commitTestSource(t, s, "geo/shapes.py", storeSource)
	keep := commitTestSource(t, s, "other.py", "def f(): g()\n")

	require.NoError(t, s.DeleteFileData(id))

	f, err := s.FileByPath("geo/shapes.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	for _, table := range []string{"scopes", "definitions", "imports", "call_sites", "assignments"} {
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE file_id = ?", id).Scan(&n))
		assert.Zero(t, n, table)
	}
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM parameters").Scan(&n))
	assert.Zero(t, n)

	defs, err := s.DefinitionsByFile(keep)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestBasesNaming(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestSource(t, s, "a.py", "class Base: pass\nclass Child(Base): pass\n")
	commitTestSource(t, s, "b.py", "from a import Base\nclass Other(Base, metaclass=Base): pass\n")

	bases, err := s.BasesNaming("Base")
	require.NoError(t, err)
	require.Len(t, bases, 2)
	for _, b := range bases {
		assert.Empty(t, b.Keyword)
	}

	byDeco, err := s.DefinitionsDecoratedBy("nothing")
	require.NoError(t, err)
	assert.Empty(t, byDeco)
}

func TestImportersOf(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestSource(t, s, "a.py", "import os.path\n")
	commitTestSource(t, s, "b.py", "from os.path import join\n")
	commitTestSource(t, s, "c.py", "import sys\n")

	imps, err := s.ImportersOf("os.path")
	require.NoError(t, err)
	require.Len(t, imps, 2)
	assert.Empty(t, imps[0].Symbol)
	assert.Equal(t, "join", imps[1].Symbol)
}

func TestFunctionModifiers(t *testing.T) {
	t.Parallel()
	fn := &model.FunctionDef{IsAsync: true, IsStatic: true}
	assert.Equal(t, []string{"async", "static"}, FunctionModifiers(fn))
	assert.Nil(t, FunctionModifiers(&model.FunctionDef{}))
}
