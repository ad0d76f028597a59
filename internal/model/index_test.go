package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
)

func newTestIndex(t *testing.T, path, src string) *model.Index {
	t.Helper()
	f, err := parser.Parse(src)
	require.NoError(t, err)
	return model.NewIndex(extract.New().Extract(path, f))
}

const indexSource = `import os

class Base:
    def run(self):
        os.getcwd()

class Child(Base):
    def run(self):
        super().run()

    class Nested:
        pass

def helper():
    return 1

def helper():
    return Child().run()
`

func TestModuleLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		name string
		pkg  bool
	}{
		{"mod.py", "mod", false},
		{"pkg/sub/mod.py", "pkg.sub.mod", false},
		{"./pkg/sub/__init__.py", "pkg.sub", true},
		{"pkg/stubs.pyi", "pkg.stubs", false},
		{"__init__.py", "", true},
		{"", "", false},
	}
	for _, tt := range tests {
		name, pkg := model.ModuleLabel(tt.path)
		assert.Equal(t, tt.name, name, tt.path)
		assert.Equal(t, tt.pkg, pkg, tt.path)
	}
}

func TestIndex_Lookup(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t, "app/core.py", indexSource)

	d, ok := ix.Lookup("Child.run")
	require.True(t, ok)
	assert.Equal(t, "Child.run", d.QName())

	prefixed, ok := ix.Lookup("app.core.Child.run")
	require.True(t, ok)
	assert.Same(t, d, prefixed)

	_, ok = ix.Lookup("Missing")
	assert.False(t, ok)

	all := ix.LookupAll("helper")
	require.Len(t, all, 2)
	last, ok := ix.Function("helper")
	require.True(t, ok)
	assert.Same(t, all[1], last)
	assert.Equal(t, 17, last.Span.Start.Line)

	_, ok = ix.Class("helper")
	assert.False(t, ok)
}

func TestIndex_KindListings(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t, "app/core.py", indexSource)

	var classes []string
	for _, c := range ix.Classes() {
		classes = append(classes, c.QualifiedName)
	}
	assert.Equal(t, []string{"Base", "Child", "Child.Nested"}, classes)

	var funcs []string
	for _, f := range ix.Functions() {
		funcs = append(funcs, f.QualifiedName)
	}
	assert.Equal(t, []string{"Base.run", "Child.run", "helper", "helper"}, funcs)

	require.Len(t, ix.Imports(), 1)
	assert.Equal(t, []string{"os"}, ix.Imports()[0].Module)
}

func TestIndex_Children(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t, "app/core.py", indexSource)

	top, ok := ix.Children("")
	require.True(t, ok)
	assert.Len(t, top, 4)

	sameTop, ok := ix.Children("app.core")
	require.True(t, ok)
	assert.Equal(t, top, sameTop)

	kids, ok := ix.Children("Child")
	require.True(t, ok)
	require.Len(t, kids, 2)
	assert.Equal(t, model.KindFunction, kids[0].EntityKind())
	assert.Equal(t, model.KindClass, kids[1].EntityKind())

	_, ok = ix.Children("nope")
	assert.False(t, ok)
}

func TestIndex_Calls(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t, "app/core.py", indexSource)

	in, ok := ix.CallsIn("Base.run")
	require.True(t, ok)
	require.Len(t, in, 1)
	assert.Equal(t, "os.getcwd", in[0].Callee)

	var all []string
	for _, c := range ix.Calls() {
		all = append(all, c.Callee)
	}
	assert.Equal(t, []string{"os.getcwd", "super", "super().run", "Child", "Child().run"}, all)
}

func TestIndex_Subclasses(t *testing.T) {
	t.Parallel()
	ix := newTestIndex(t, "app/core.py", indexSource)
	subs := ix.Subclasses("Base")
	require.Len(t, subs, 1)
	assert.Equal(t, "Child", subs[0].QualifiedName)
	assert.Empty(t, ix.Subclasses("Child"))
}

func TestIndex_ResolveRelative(t *testing.T) {
	t.Parallel()
	mod := newTestIndex(t, "pkg/sub/m.py", "x = 1\n")
	pkg := newTestIndex(t, "pkg/sub/__init__.py", "x = 1\n")

	tests := []struct {
		name    string
		ix      *model.Index
		imp     model.ImportEntry
		want    string
		wantErr bool
	}{
		{"absolute", mod, model.ImportEntry{Module: []string{"os", "path"}}, "os.path", false},
		{"sibling package", mod, model.ImportEntry{Level: 1}, "pkg.sub", false},
		{"sibling module", mod, model.ImportEntry{Level: 1, Module: []string{"util"}}, "pkg.sub.util", false},
		{"parent", mod, model.ImportEntry{Level: 2, Module: []string{"core"}}, "pkg.core", false},
		{"to the root", mod, model.ImportEntry{Level: 3, Module: []string{"top"}}, "top", false},
		{"nothing left", mod, model.ImportEntry{Level: 3}, "", true},
		{"beyond the root", mod, model.ImportEntry{Level: 4, Module: []string{"x"}}, "", true},
		{"package self", pkg, model.ImportEntry{Level: 1, Module: []string{"m"}}, "pkg.sub.m", false},
		{"package parent", pkg, model.ImportEntry{Level: 2}, "pkg", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.ix.ResolveRelative(&tt.imp)
			if tt.wantErr {
				require.ErrorIs(t, err, model.ErrRelativeBeyondTop)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportEntry_BoundName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "os", (&model.ImportEntry{Module: []string{"os", "path"}}).BoundName())
	assert.Equal(t, "p", (&model.ImportEntry{Module: []string{"os", "path"}, Alias: "p"}).BoundName())
	assert.Equal(t, "Counter", (&model.ImportEntry{Module: []string{"collections"}, Symbol: "Counter"}).BoundName())
	assert.Empty(t, (&model.ImportEntry{Module: []string{"m"}, Wildcard: true}).BoundName())
}
