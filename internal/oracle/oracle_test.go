package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
)

const oracleSource = `from __future__ import annotations
import os, sys as system
from .util import *
from pkg import a, b as c

@dataclass
class Point:
    x: int = 0

    @property
    def norm(self):
        def inner():
            return 1
        return inner()

if os.name == "nt":
    def windows_only():
        pass

async def fetch(url):
    return await get(url)
`

func newTestModule(t *testing.T, src string) *model.Module {
	t.Helper()
	f, err := parser.Parse(src)
	require.NoError(t, err)
	return extract.New().Extract("geo.py", f)
}

func TestCountPython(t *testing.T) {
	t.Parallel()
	got, err := CountPython(context.Background(), []byte(oracleSource))
	require.NoError(t, err)
	assert.Equal(t, Counts{Functions: 4, Classes: 1, Imports: 6, Decorators: 2}, got)
}

func TestCountPython_SyntaxError(t *testing.T) {
	t.Parallel()
	_, err := CountPython(context.Background(), []byte("def broken(:\n"))
	require.ErrorIs(t, err, ErrSyntax)
}

func TestVerify_Agrees(t *testing.T) {
	t.Parallel()
	m := newTestModule(t, oracleSource)
	assert.Equal(t, Counts{Functions: 4, Classes: 1, Imports: 6, Decorators: 2}, CountModule(m))

	mismatches, err := Verify(context.Background(), []byte(oracleSource), m)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestCompare(t *testing.T) {
	t.Parallel()
	got := Compare(Counts{Functions: 2, Imports: 1}, Counts{Functions: 1, Imports: 1, Classes: 1})
	require.Len(t, got, 2)
	assert.Equal(t, Mismatch{Entity: "functions", Oracle: 2, Model: 1}, got[0])
	assert.Equal(t, "classes: tree-sitter 0, model 1", got[1].String())
}
