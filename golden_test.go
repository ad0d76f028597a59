package outline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format.
type goldenFile struct {
	Modules     []string         `json:"modules,omitempty"`
	Definitions []goldenDef      `json:"definitions,omitempty"`
	Calls       []goldenCall     `json:"calls,omitempty"`
	Imports     []goldenImport   `json:"imports,omitempty"`
	Bases       []goldenBase     `json:"bases,omitempty"`
	Ancestors   []goldenAncestry `json:"ancestors,omitempty"`
	Edges       []goldenEdge     `json:"edges,omitempty"`
	Cycles      [][]string       `json:"cycles"`
	Diagnostics []goldenDiag     `json:"diagnostics"`
}

type goldenDef struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Line int    `json:"line"`
}

type goldenCall struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

type goldenImport struct {
	Module string `json:"module"`
	Target string `json:"target"`
	Symbol string `json:"symbol,omitempty"`
}

type goldenBase struct {
	Class    string `json:"class"`
	Base     string `json:"base"`
	Resolved string `json:"resolved"`
}

type goldenAncestry struct {
	Class     string   `json:"class"`
	Ancestors []string `json:"ancestors"`
}

type goldenEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

type goldenDiag struct {
	File string `json:"file"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// TestGolden walks testdata/{language}/ directories and runs a golden test
// for every level that has a golden.json and a src/ tree.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		levels, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, level := range levels {
			if !level.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, level.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			srcDir := filepath.Join(testDir, "src")

			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}
			if _, err := os.Stat(srcDir); err != nil {
				continue
			}

			t.Run(lang+"/"+level.Name(), func(t *testing.T) {
				runGoldenTest(t, srcDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	dbPath := filepath.Join(t.TempDir(), "golden.db")
	engine, err := New(WithDatabase(dbPath), WithRoot(srcDir))
	require.NoError(t, err)
	defer engine.Close()

	// Walk explicitly: src/ may sit inside a git checkout.
	paths, err := engine.walkListFiles(srcDir)
	require.NoError(t, err)
	_, err = engine.AnalyzeFiles(context.Background(), paths)
	require.NoError(t, err)

	q := engine.Query()

	if len(golden.Modules) > 0 {
		t.Run("modules", func(t *testing.T) {
			assert.Equal(t, golden.Modules, q.Modules())
		})
	}
	if len(golden.Definitions) > 0 {
		t.Run("definitions", func(t *testing.T) {
			verifyDefinitions(t, engine, golden.Definitions)
		})
	}
	if len(golden.Calls) > 0 {
		t.Run("calls", func(t *testing.T) {
			verifyCalls(t, q, golden.Calls)
		})
	}
	if len(golden.Imports) > 0 {
		t.Run("imports", func(t *testing.T) {
			verifyImports(t, q, golden.Imports)
		})
	}
	if len(golden.Bases) > 0 {
		t.Run("bases", func(t *testing.T) {
			verifyBases(t, q, golden.Bases)
		})
	}
	if len(golden.Ancestors) > 0 {
		t.Run("ancestors", func(t *testing.T) {
			verifyAncestors(t, q, golden.Ancestors)
		})
	}
	if len(golden.Edges) > 0 {
		t.Run("edges", func(t *testing.T) {
			verifyEdges(t, q, golden.Edges)
		})
	}
	// Cycles and diagnostics are compared exactly when present.
	if golden.Cycles != nil {
		t.Run("cycles", func(t *testing.T) {
			cycles, err := q.CircularDependencies()
			require.NoError(t, err)
			assert.Equal(t, golden.Cycles, cycles)
		})
	}
	if golden.Diagnostics != nil {
		t.Run("diagnostics", func(t *testing.T) {
			verifyDiagnostics(t, engine, golden.Diagnostics)
		})
	}
	if len(golden.Diagnostics) == 0 {
		// Clean levels must also agree with the tree-sitter oracle.
		t.Run("oracle", func(t *testing.T) {
			reports, err := engine.Verify(context.Background())
			require.NoError(t, err)
			for _, r := range reports {
				assert.True(t, r.OK(), "%s: %v %v", r.Path, r.Mismatches, r.Err)
			}
		})
	}
}

func verifyDefinitions(t *testing.T, engine *Engine, expected []goldenDef) {
	t.Helper()
	s := engine.Store()

	type defKey struct {
		Name string
		Kind string
		File string
		Line int
	}
	actual := make(map[defKey]bool)

	rows, err := s.DB().Query(
		`SELECT f.module, d.qualified_name, d.kind, f.path, d.start_line
		 FROM definitions d JOIN files f ON f.id = d.file_id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var module, qname, kind, path string
		var line int
		require.NoError(t, rows.Scan(&module, &qname, &kind, &path, &line))
		name := qname
		if module != "" {
			name = module + "." + qname
		}
		actual[defKey{name, kind, path, line}] = true
	}
	require.NoError(t, rows.Err())

	for _, exp := range expected {
		key := defKey{exp.Name, exp.Kind, exp.File, exp.Line}
		assert.True(t, actual[key], "missing definition: %+v", exp)
	}
}

func verifyCalls(t *testing.T, q *QueryBuilder, expected []goldenCall) {
	t.Helper()
	for _, exp := range expected {
		module, qname := exp.Caller, ""
		if _, ok := q.project.Module(exp.Caller); !ok {
			d := q.Lookup(exp.Caller)
			require.NotNil(t, d, "caller %s not found", exp.Caller)
			module, qname = d.Module, d.QualifiedName
		}
		calls, err := q.CallsIn(module, qname)
		require.NoError(t, err)

		found := false
		for _, c := range calls {
			if c.Call.Callee == exp.Callee {
				found = true
				break
			}
		}
		assert.True(t, found, "missing call: %s -> %s", exp.Caller, exp.Callee)
	}
}

func verifyImports(t *testing.T, q *QueryBuilder, expected []goldenImport) {
	t.Helper()
	for _, exp := range expected {
		imports, err := q.Imports(exp.Module)
		require.NoError(t, err)

		found := false
		for _, imp := range imports {
			if imp.Target == exp.Target && imp.Entry.Symbol == exp.Symbol {
				found = true
				break
			}
		}
		assert.True(t, found, "missing import: %+v", exp)
	}
}

func verifyBases(t *testing.T, q *QueryBuilder, expected []goldenBase) {
	t.Helper()
	for _, exp := range expected {
		h, err := q.ClassHierarchy(exp.Class)
		require.NoError(t, err)
		require.NotNil(t, h, "class %s not found", exp.Class)

		found := false
		for _, b := range h.Bases {
			if b.Text != exp.Base {
				continue
			}
			found = true
			if exp.Resolved == "" {
				assert.Nil(t, b.Class, "base %s of %s should be unresolved", exp.Base, exp.Class)
			} else if assert.NotNil(t, b.Class, "base %s of %s should resolve", exp.Base, exp.Class) {
				assert.Equal(t, exp.Resolved, b.Class.FullName())
			}
		}
		assert.True(t, found, "missing base: %s(%s)", exp.Class, exp.Base)
	}
}

func verifyAncestors(t *testing.T, q *QueryBuilder, expected []goldenAncestry) {
	t.Helper()
	for _, exp := range expected {
		h, err := q.ClassHierarchy(exp.Class)
		require.NoError(t, err)
		require.NotNil(t, h)

		var got []string
		for _, a := range h.Ancestors {
			got = append(got, a.FullName())
		}
		assert.Equal(t, exp.Ancestors, got, "ancestors of %s", exp.Class)
	}
}

func verifyEdges(t *testing.T, q *QueryBuilder, expected []goldenEdge) {
	t.Helper()
	var got []goldenEdge
	for _, e := range q.ModuleDependencyGraph().Edges {
		got = append(got, goldenEdge{From: e.FromModule, To: e.ToModule, Count: e.ImportCount})
	}
	assert.Equal(t, expected, got)
}

func verifyDiagnostics(t *testing.T, engine *Engine, expected []goldenDiag) {
	t.Helper()
	rows, err := engine.Store().DB().Query(
		`SELECT f.path, d.kind, d.line
		 FROM diagnostics d JOIN files f ON f.id = d.file_id
		 ORDER BY f.path, d.line`)
	require.NoError(t, err)
	defer rows.Close()

	got := []goldenDiag{}
	for rows.Next() {
		var g goldenDiag
		require.NoError(t, rows.Scan(&g.File, &g.Kind, &g.Line))
		got = append(got, g)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, expected, got)
}
