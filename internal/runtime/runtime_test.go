package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
	"github.com/jward/outline/internal/store"
)

const billingSource = `"""Billing."""
from .base import Model
import os

RATE = 3

class Invoice(Model):
    """An invoice."""

    @property
    def total(self):
        return compute(self)

    @staticmethod
    def make():
        pass

def compute(inv):
    print(inv)
    return helper(inv, RATE)
`

const billingPath = "shop/billing.py"

// newTestIndex analyzes src as the module at path.
func newTestIndex(t *testing.T, path, src string) *model.Index {
	t.Helper()
	f, err := parser.Parse(src)
	require.NoError(t, err)
	return model.NewIndex(extract.New().Extract(path, f))
}

func runInline(t *testing.T, rt *Runtime, script string) []Finding {
	t.Helper()
	findings, err := rt.RunSource(context.Background(), script, newTestIndex(t, billingPath, billingSource))
	require.NoError(t, err)
	return findings
}

// =============================================================================
// Host functions
// =============================================================================

func TestRunSource_Module(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
m := module()
assert(m["name"] == "shop.billing", "module name")
assert(m["path"] == "shop/billing.py", "module path")
assert(!m["is_package"], "not a package")
assert(m["docstring"] == "Billing.", "docstring")
`)
}

func TestRunSource_ClassesAndReport(t *testing.T) {
	t.Parallel()
	findings := runInline(t, NewRuntime(""), `
for _, c := range classes() {
	if len(c["bases"]) > 0 {
		report("derives from " + c["bases"][0], c["qualified_name"])
	}
}
`)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "<inline>", f.Rule)
	assert.Equal(t, "shop.billing", f.Module)
	assert.Equal(t, billingPath, f.Path)
	assert.Equal(t, "Invoice", f.QualifiedName)
	assert.Equal(t, 7, f.Line)
	assert.Equal(t, "derives from Model", f.Message)
}

func TestRunSource_ClassMap(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
c := classes()[0]
assert(c["kind"] == "class", "kind")
assert(c["docstring"] == "An invoice.", "docstring")
assert(len(c["methods"]) == 2, "methods")
assert(c["methods"][0] == "total", "first method")
`)
}

func TestRunSource_FunctionFlags(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
total := lookup("Invoice.total")
assert(total["is_property"], "total is a property")
assert(total["is_method"], "total is a method")
assert(total["decorators"][0] == "property", "decorator name")

mk := lookup("shop.billing.Invoice.make")
assert(mk["is_static"], "make is static")

compute := lookup("compute")
assert(!compute["is_method"], "compute is module level")
assert(compute["params"][0]["name"] == "inv", "param name")
assert(len(functions()) == 3, "function count")
`)
}

func TestRunSource_LookupMissing(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
assert(lookup("Nope") == nil, "missing definition is nil")
`)
}

func TestRunSource_Imports(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
imps := imports()
assert(len(imps) == 2, "import count")
assert(imps[0]["symbol"] == "Model", "symbol")
assert(imps[0]["level"] == 1, "level")
assert(imps[0]["target"] == "shop.base", "relative target")
assert(imps[1]["target"] == "os", "absolute target")
assert(imps[1]["bound"] == "os", "bound name")
`)
}

func TestRunSource_Calls(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
assert(len(calls()) == 3, "all calls")

cs := calls("compute")
assert(len(cs) == 2, "calls in compute")
assert(cs[0]["callee"] == "print", "first callee")
assert(cs[1]["args"][1] == "RATE", "second arg")

assert(calls("Invoice.total")[0]["callee"] == "compute", "call in method")
assert(len(calls("")) == 0, "no module-level calls")
`)
}

func TestRunSource_ConstantsAndChildren(t *testing.T) {
	t.Parallel()
	runInline(t, NewRuntime(""), `
cs := constants()
assert(len(cs) == 1, "constant count")
assert(cs[0]["name"] == "RATE", "constant name")
assert(cs[0]["value"] == "3", "constant value")

kids := children("Invoice")
assert(len(kids) == 2, "class children")
assert(kids[1]["name"] == "make", "second child")
assert(len(children("")) == 2, "module children")
assert(len(diagnostics()) == 0, "no diagnostics")
`)
}

func TestRunSource_ChildrenUnknownScope(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").RunSource(context.Background(), `children("Nope")`, newTestIndex(t, billingPath, billingSource))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scope named")
}

func TestRunSource_ScriptError(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").RunSource(context.Background(), `assert(false, "boom")`, newTestIndex(t, billingPath, billingSource))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop.billing")
}

func TestRunSource_Log(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rt := NewRuntime("", WithRuntimeLogger(logger))
	runInline(t, rt, `log.Info("checked")`)
	assert.Contains(t, buf.String(), "checked")
	assert.Contains(t, buf.String(), "module=shop.billing")
}

func TestFinding_String(t *testing.T) {
	t.Parallel()
	f := Finding{Rule: "r", Path: "a.py", Line: 3, QualifiedName: "A.f", Message: "bad"}
	assert.Equal(t, "a.py:3: [r] A.f: bad", f.String())
	assert.Equal(t, "a.py: [r] bad", Finding{Rule: "r", Path: "a.py", Message: "bad"}.String())
}

// =============================================================================
// db_query
// =============================================================================

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	ix := newTestIndex(t, billingPath, billingSource)
	_, err = s.CommitBatch(store.NewBatch(ix.Module()))
	require.NoError(t, err)
	return s
}

func TestDBQuery(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeStore(newTestStore(t)))
	runInline(t, rt, `
rows := db_query("SELECT name FROM definitions WHERE kind = ? ORDER BY id", "class")
assert(len(rows) == 1, "one class row")
assert(rows[0]["name"] == "Invoice", "class name")
`)
}

func TestDBQuery_RejectsWrites(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeStore(newTestStore(t)))
	_, err := rt.RunSource(context.Background(), `db_query("DELETE FROM files")`, newTestIndex(t, billingPath, billingSource))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SELECT")
}

func TestDBQuery_StackedWriteHasNoEffect(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SetMetadata("owner", "rules"))
	rt := NewRuntime("", WithRuntimeStore(s))

	// The query fails or returns rows; either way the DELETE must not land.
	_, _ = rt.RunSource(context.Background(), `db_query("SELECT 1; DELETE FROM metadata")`, newTestIndex(t, billingPath, billingSource))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&n))
	assert.Equal(t, 1, n)
	got, err := s.GetMetadata("owner")
	require.NoError(t, err)
	assert.Equal(t, "rules", got)

	// The pooled connection is writable again afterwards.
	require.NoError(t, s.SetMetadata("owner", "engine"))
}

func TestDBQuery_AbsentWithoutStore(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").RunSource(context.Background(), `db_query("SELECT 1")`, newTestIndex(t, billingPath, billingSource))
	require.Error(t, err)
}

// =============================================================================
// Script loading
// =============================================================================

const docstringRule = `
for _, fn := range functions() {
	if fn["docstring"] == "" {
		report("missing docstring", fn["qualified_name"])
	}
}
`

func TestRunRule_FromDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no_docstring.risor"), []byte(docstringRule), 0o644))

	rt := NewRuntime(dir)
	findings, err := rt.RunRule(context.Background(), "no_docstring.risor", newTestIndex(t, billingPath, billingSource))
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "no_docstring", findings[0].Rule)
	assert.Equal(t, "Invoice.total", findings[0].QualifiedName)
}

func TestRunRule_MissingFile(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(t.TempDir())
	_, err := rt.RunRule(context.Background(), "nonexistent.risor", newTestIndex(t, billingPath, billingSource))
	require.Error(t, err)
}

func TestRunRule_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"no_docstring.risor": &fstest.MapFile{Data: []byte(docstringRule)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	findings, err := rt.RunRule(context.Background(), "no_docstring.risor", newTestIndex(t, billingPath, billingSource))
	require.NoError(t, err)
	assert.Len(t, findings, 3)
}

func TestLoadScript(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.risor")
	content := `x := 42`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := NewRuntime(dir).LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	content := `x := 42`
	mapFS := fstest.MapFS{
		"lib/naming.risor": &fstest.MapFile{Data: []byte(content)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("lib/naming.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Absolute-style path should be resolved within the FS.
	got, err = rt.LoadScript("/lib/naming.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestRuleScripts(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"b.risor":          &fstest.MapFile{Data: []byte(``)},
		"a.risor":          &fstest.MapFile{Data: []byte(``)},
		"notes.txt":        &fstest.MapFile{Data: []byte(``)},
		"lib/helper.risor": &fstest.MapFile{Data: []byte(``)},
	}
	got, err := NewRuntime("", WithRuntimeFS(mapFS)).RuleScripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.risor", "b.risor"}, got)

	got, err = NewRuntime("").RuleScripts()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewRuntime(filepath.Join(t.TempDir(), "missing")).RuleScripts()
	require.Error(t, err)
}

// =============================================================================
// Importers
// =============================================================================

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	// FSImporter resolves "helpers" by trying name + ".risor".
	mapFS := fstest.MapFS{
		"helpers.risor": &fstest.MapFile{Data: []byte(`
func is_private(name) {
	return len(name) > 0 && name[0] == "_"
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	runInline(t, rt, `
import helpers
assert(helpers.is_private("_x"), "private")
assert(!helpers.is_private("x"), "public")
`)
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0o644))

	runInline(t, NewRuntime(dir), `
import math_utils
result := math_utils.double(21)
assert(result == 42, 'expected 42, got {result}')
`)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	t.Parallel()
	// Imported modules see the host globals.
	mapFS := fstest.MapFS{
		"counts.risor": &fstest.MapFile{Data: []byte(`
func class_count() {
	return len(classes())
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	runInline(t, rt, `
import counts
assert(counts.class_count() == 1, "one class")
`)
}
