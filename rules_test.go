package outline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noDocstringRule = `
for _, fn := range functions() {
	if fn["docstring"] == "" {
		report("missing docstring", fn["qualified_name"])
	}
}
`

const importCountRule = `
rows := db_query("SELECT COUNT(*) AS n FROM imports")
if rows[0]["n"] == 0 {
	report("no imports recorded")
}
`

func TestCheck(t *testing.T) {
	t.Parallel()
	rules := fstest.MapFS{
		"no_docstring.risor": &fstest.MapFile{Data: []byte(noDocstringRule)},
		"lib/helpers.risor":  &fstest.MapFile{Data: []byte(`undefined_fn()`)},
	}
	e := newQueryEngine(t, WithRulesFS(rules))

	findings, err := e.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 9)

	// Sorted by path, then line.
	assert.Equal(t, "app.py", findings[0].Path)
	assert.Equal(t, "main", findings[0].QualifiedName)
	assert.Equal(t, 5, findings[0].Line)
	assert.Equal(t, "shop/models.py", findings[1].Path)
	assert.Equal(t, "Base.save", findings[1].QualifiedName)
	assert.Equal(t, "shop/util.py", findings[8].Path)
	assert.Equal(t, "unused", findings[8].QualifiedName)
	for _, f := range findings {
		assert.Equal(t, "no_docstring", f.Rule)
	}
}

func TestCheck_RulesFromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no_docstring.risor"), []byte(noDocstringRule), 0o644))

	e := newQueryEngine(t, WithRules(dir))
	findings, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.Len(t, findings, 9)
}

func TestCheck_WithStore(t *testing.T) {
	t.Parallel()
	rules := fstest.MapFS{
		"imports.risor": &fstest.MapFile{Data: []byte(importCountRule)},
	}
	dbPath := filepath.Join(t.TempDir(), "rules.db")
	e := newQueryEngine(t, WithDatabase(dbPath), WithRulesFS(rules))

	findings, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheck_FailingRuleKeepsOthers(t *testing.T) {
	t.Parallel()
	rules := fstest.MapFS{
		"broken.risor":       &fstest.MapFile{Data: []byte(`undefined_fn()`)},
		"no_docstring.risor": &fstest.MapFile{Data: []byte(noDocstringRule)},
	}
	e := newQueryEngine(t, WithRulesFS(rules))

	findings, err := e.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules had 4 error(s)")
	assert.Contains(t, err.Error(), "rule broken")
	assert.Len(t, findings, 9)
}

func TestCheck_ErrorsAreJoinedInStableOrder(t *testing.T) {
	t.Parallel()
	rules := fstest.MapFS{
		"beta.risor":  &fstest.MapFile{Data: []byte(`undefined_fn()`)},
		"alpha.risor": &fstest.MapFile{Data: []byte(`undefined_fn()`)},
	}
	e := newQueryEngine(t, WithRulesFS(rules))

	_, err := e.Check(context.Background())
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "rules had 8 error(s)")
	alpha := strings.Index(msg, "rule alpha on")
	beta := strings.Index(msg, "rule beta on")
	require.NotEqual(t, -1, alpha)
	require.NotEqual(t, -1, beta)
	assert.Less(t, alpha, beta)

	for i := 0; i < 5; i++ {
		_, again := e.Check(context.Background())
		require.Error(t, again)
		assert.Equal(t, msg, again.Error())
	}
}

func TestCheck_NoRules(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, err := e.Check(context.Background())
	assert.True(t, errors.Is(err, ErrNoRules))
}

func TestCheck_Cancelled(t *testing.T) {
	t.Parallel()
	rules := fstest.MapFS{
		"no_docstring.risor": &fstest.MapFile{Data: []byte(noDocstringRule)},
	}
	e := newQueryEngine(t, WithRulesFS(rules))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Check(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
