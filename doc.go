// Package outline provides deterministic structural analysis of Python
// source. It recognizes the definitions, imports, decorators, docstrings
// and call sites of a module without evaluating it, and answers questions
// about them across a whole project.
//
// # Pipeline
//
// Each source unit passes through four stages:
//
//  1. Tokenize: the lexer turns bytes into tokens with line and column
//     spans, tracking bracket depth and physical line starts.
//
//  2. Resolve indentation: a logical-line pass emits NEWLINE, INDENT and
//     DEDENT tokens. Inconsistent dedents are fatal IndentationErrors.
//
//  3. Parse: a recursive-descent parser builds a statement tree. Statements
//     outside the structural subset are kept as skipped constructs and
//     reported as diagnostics rather than errors.
//
//  4. Extract: the statement tree becomes a [Module] of nested scopes,
//     indexed by qualified name into an [Index].
//
// Units share no state, so a fatal error in one never affects another.
//
// # Usage
//
// Create an Engine, analyze a directory and query:
//
//	e, err := outline.New(outline.WithDatabase("outline.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	results, err := e.AnalyzeDirectory(ctx, "path/to/project")
//
//	q := e.Query()
//	h, err := q.ClassHierarchy("shop.models.Invoice")
//
// [Analyze] runs the pipeline on a single buffer without an Engine.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers in-memory queries
// over the merged [Project] (lookup, children, imports, calls, class
// hierarchy, dependency cycles) and, when a database is configured,
// paginated discovery queries over the persisted rows.
//
// # Incremental Indexing
//
// With a database, [Engine.AnalyzeFiles] hashes each file and skips the
// commit for files whose content and analysis settings are unchanged.
//
// # Rules
//
// Rule scripts written in Risor run against each module through
// [Engine.Check]. See the internal/runtime package for the globals exposed
// to scripts.
package outline
