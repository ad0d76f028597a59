package indent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/lexer"
)

func resolveSource(t *testing.T, src string, opts ...Option) ([]lexer.Token, error) {
	t.Helper()
	raw, err := lexer.Tokenize(src)
	require.NoError(t, err)
	return Resolve(raw, opts...)
}

// shape renders the logical stream compactly: structural markers by name,
// everything else by text.
func shape(toks []lexer.Token) []string {
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		switch tok.Kind {
		case lexer.Newline:
			out = append(out, "NL")
		case lexer.Indent:
			out = append(out, "IN")
		case lexer.Dedent:
			out = append(out, "DE")
		case lexer.EOF:
			out = append(out, "EOF")
		default:
			out = append(out, tok.Text)
		}
	}
	return out
}

func TestResolve_NestedBlocks(t *testing.T) {
	t.Parallel()
	src := "class A:\n" +
		"    def f(self):\n" +
		"        pass\n" +
		"\n" +
		"    # comment at a shallower depth\n" +
		"x = 1\n"
	toks, err := resolveSource(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"class", "A", ":", "NL",
		"IN", "def", "f", "(", "self", ")", ":", "NL",
		"IN", "pass", "NL",
		"DE", "DE", "x", "=", "1", "NL",
		"EOF",
	}, shape(toks))
}

func TestResolve_DedentDepths(t *testing.T) {
	t.Parallel()
	toks, err := resolveSource(t, "if a:\n  if b:\n    c\nd\n")
	require.NoError(t, err)

	var depths []int
	for _, tok := range toks {
		if tok.Kind == lexer.Indent || tok.Kind == lexer.Dedent {
			depths = append(depths, tok.Depth)
		}
	}
	assert.Equal(t, []int{1, 2, 1, 0}, depths)
}

func TestResolve_BalancedAtEOF(t *testing.T) {
	t.Parallel()
	r := New(lexer.New("def f():\n    if x:\n        return 1"))
	var last lexer.Token
	for {
		tok, err := r.Next()
		require.NoError(t, err)
		last = tok
		if tok.Kind == lexer.EOF {
			break
		}
	}
	assert.Equal(t, lexer.EOF, last.Kind)
	assert.Equal(t, Stats{Indents: 2, Dedents: 2}, r.Stats())
	assert.Equal(t, 0, r.Depth())

	again, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, lexer.EOF, again.Kind)
}

func TestResolve_BracketsSuppressLayout(t *testing.T) {
	t.Parallel()
	src := "x = f(1,\n" +
		"        2,\n" +
		"  3)\n" +
		"y = [\n" +
		"]\n"
	toks, err := resolveSource(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"x", "=", "f", "(", "1", ",", "2", ",", "3", ")", "NL",
		"y", "=", "[", "]", "NL",
		"EOF",
	}, shape(toks))
}

func TestResolve_ContinuationJoinsLines(t *testing.T) {
	t.Parallel()
	toks, err := resolveSource(t, "x = 1 + \\\n        2\ny = 3\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "=", "1", "+", "2", "NL", "y", "=", "3", "NL", "EOF"}, shape(toks))
}

func TestResolve_MissingTrailingNewline(t *testing.T) {
	t.Parallel()
	toks, err := resolveSource(t, "x = 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "=", "1", "NL", "EOF"}, shape(toks))
}

func TestResolve_TabsAndSpaces(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "tab matches eight spaces only under ambiguity check",
			src:  "if a:\n\tb\n        c\n",
			// Equal under tab stop 8, different under tab stop 1.
			wantErr: "inconsistent use of tabs and spaces",
		},
		{
			name: "consistent tabs",
			src:  "if a:\n\tb\n\tc\n",
		},
		{
			name:    "unindent to unknown level",
			src:     "if a:\n    b\n  c\n",
			wantErr: "unindent does not match any outer indentation level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := resolveSource(t, tt.src)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, diag.IsKind(err, diag.KindIndentation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolve_TabSizeOption(t *testing.T) {
	t.Parallel()
	// Under tab size 4 a tab and four spaces are the same width, but the
	// alternate stop still flags the mix.
	_, err := resolveSource(t, "if a:\n\tb\n    c\n", WithTabSize(4))
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindIndentation))

	toks, err := resolveSource(t, "if a:\n\tb\n", WithTabSize(4))
	require.NoError(t, err)
	assert.Equal(t, "\t", toks[4].Text)
	assert.Equal(t, lexer.Indent, toks[4].Kind)
}

func TestResolve_TabSizeOneStillFlagsMix(t *testing.T) {
	t.Parallel()
	// A tab and one space agree under tab size 1 but not under a stop of 8.
	_, err := resolveSource(t, "if a:\n\tb\n c\n", WithTabSize(1))
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindIndentation))
	assert.Contains(t, err.Error(), "inconsistent use of tabs and spaces")

	_, err = resolveSource(t, "if a:\n\tb\n\tc\n", WithTabSize(1))
	require.NoError(t, err)
}

func TestResolve_UnbalancedBrackets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
	}{
		{"never closed", "x = (1,\n"},
		{"unmatched closer", "x = 1)\n"},
		{"mismatched closer", "x = [1)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := resolveSource(t, tt.src)
			require.Error(t, err)
			assert.True(t, diag.IsKind(err, diag.KindParse))
		})
	}
}

func TestResolve_LexErrorPassesThrough(t *testing.T) {
	t.Parallel()
	r := New(lexer.New("x = 'open\n"))
	var err error
	for err == nil {
		var tok lexer.Token
		tok, err = r.Next()
		if tok.Kind == lexer.EOF && err == nil {
			t.Fatal("expected an error before EOF")
		}
	}
	assert.True(t, diag.IsKind(err, diag.KindLex))
}
