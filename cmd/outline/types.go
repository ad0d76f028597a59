package main

import (
	"github.com/jward/outline"
	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIDefinition is a JSON-friendly class or function. ID is set only for
// rows read from the database.
type CLIDefinition struct {
	ID            int64    `json:"id,omitempty"`
	Module        string   `json:"module"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	Kind          string   `json:"kind"`
	Modifiers     []string `json:"modifiers,omitempty"`
	File          string   `json:"file"`
	StartLine     int      `json:"start_line"`
	StartCol      int      `json:"start_col"`
	EndLine       int      `json:"end_line"`
	EndCol        int      `json:"end_col"`
}

// CLIImport is a JSON-friendly import. Target is the absolute module the
// import names.
type CLIImport struct {
	Module   string `json:"module"`
	Path     string `json:"path"`
	Symbol   string `json:"symbol,omitempty"`
	Alias    string `json:"alias,omitempty"`
	Wildcard bool   `json:"wildcard,omitempty"`
	Target   string `json:"target,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// CLICall is a JSON-friendly call site.
type CLICall struct {
	Module string   `json:"module"`
	Scope  string   `json:"scope"`
	Callee string   `json:"callee"`
	Args   []string `json:"args"`
	File   string   `json:"file"`
	Line   int      `json:"line"`
	Col    int      `json:"col"`
}

// CLIDiagnostic is a non-fatal notice or a fatal unit error.
type CLIDiagnostic struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
}

// CLIModule is the analysis of one source unit.
type CLIModule struct {
	Path        string          `json:"path"`
	Module      string          `json:"module,omitempty"`
	IsPackage   bool            `json:"is_package,omitempty"`
	Docstring   string          `json:"docstring,omitempty"`
	Definitions []CLIDefinition `json:"definitions"`
	Imports     []CLIImport     `json:"imports"`
	Calls       []CLICall       `json:"calls"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
	Error       *CLIDiagnostic  `json:"error,omitempty"`
}

// CLIFile is a JSON-friendly stored file.
type CLIFile struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Module      string `json:"module"`
	IsPackage   bool   `json:"is_package"`
	Hash        string `json:"hash"`
	LastIndexed string `json:"last_indexed"`
}

// CLIProjectSummary is a JSON-friendly project summary.
type CLIProjectSummary struct {
	FileCount       int            `json:"file_count"`
	PackageCount    int            `json:"package_count"`
	KindCounts      map[string]int `json:"kind_counts"`
	ImportCount     int            `json:"import_count"`
	CallCount       int            `json:"call_count"`
	DiagnosticKinds map[string]int `json:"diagnostic_kinds"`
}

// CLIParameter is a JSON-friendly function parameter.
type CLIParameter struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Annotation string `json:"annotation,omitempty"`
	Default    string `json:"default,omitempty"`
}

// CLIDefinitionDetail bundles a stored definition with its metadata.
type CLIDefinitionDetail struct {
	Definition CLIDefinition  `json:"definition"`
	Docstring  string         `json:"docstring,omitempty"`
	Returns    string         `json:"returns,omitempty"`
	Parameters []CLIParameter `json:"parameters"`
	Decorators []string       `json:"decorators"`
	Bases      []string       `json:"bases"`
}

// CLIHierarchy is the inheritance view of a class.
type CLIHierarchy struct {
	Class      CLIDefinition   `json:"class"`
	Bases      []CLIBase       `json:"bases"`
	Ancestors  []CLIDefinition `json:"ancestors"`
	Subclasses []CLIDefinition `json:"subclasses"`
}

// CLIBase is one base-class reference. Resolved is the fully qualified
// name of the class it names, if any.
type CLIBase struct {
	Text     string `json:"text"`
	Resolved string `json:"resolved,omitempty"`
}

// CLIDependencyGraph is the module import graph.
type CLIDependencyGraph struct {
	Modules []CLIModuleNode `json:"modules"`
	Edges   []CLIEdge       `json:"edges"`
}

type CLIModuleNode struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	IsPackage       bool   `json:"is_package"`
	DefinitionCount int    `json:"definition_count"`
}

type CLIEdge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	ImportCount int    `json:"import_count"`
}

// CLIHotspot is a callee ranked by call count.
type CLIHotspot struct {
	Callee    string `json:"callee"`
	CallCount int    `json:"call_count"`
	FileCount int    `json:"file_count"`
}

// CLIFinding is one rule finding.
type CLIFinding struct {
	Rule          string `json:"rule"`
	Module        string `json:"module"`
	File          string `json:"file"`
	QualifiedName string `json:"qualified_name,omitempty"`
	Line          int    `json:"line,omitempty"`
	Message       string `json:"message"`
}

// CLIVerifyReport is the oracle comparison of one unit.
type CLIVerifyReport struct {
	File       string        `json:"file"`
	OK         bool          `json:"ok"`
	Skipped    bool          `json:"skipped,omitempty"`
	Mismatches []CLIMismatch `json:"mismatches,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type CLIMismatch struct {
	Entity string `json:"entity"`
	Model  int    `json:"model"`
	Oracle int    `json:"oracle"`
}

// --- Conversions ---

func definitionResultToCLI(r outline.DefinitionResult) CLIDefinition {
	return definitionToCLI(r.Module, r.Location.File, r.Definition)
}

func definitionToCLI(module, path string, d model.Definition) CLIDefinition {
	sp := d.Position()
	out := CLIDefinition{
		Module:        module,
		QualifiedName: d.QName(),
		Kind:          string(d.EntityKind()),
		File:          path,
		StartLine:     sp.Start.Line,
		StartCol:      sp.Start.Col,
		EndLine:       sp.End.Line,
		EndCol:        sp.End.Col,
	}
	switch d := d.(type) {
	case *model.FunctionDef:
		out.Name = d.Name
		out.Modifiers = store.FunctionModifiers(d)
	case *model.ClassDef:
		out.Name = d.Name
	}
	return out
}

func definitionResultsToCLI(rs []outline.DefinitionResult) []CLIDefinition {
	out := make([]CLIDefinition, len(rs))
	for i, r := range rs {
		out[i] = definitionResultToCLI(r)
	}
	return out
}

func storedDefinitionToCLI(d outline.StoredDefinition) CLIDefinition {
	return CLIDefinition{
		ID:            d.ID,
		Module:        d.Module,
		Name:          d.Name,
		QualifiedName: d.QualifiedName,
		Kind:          d.Kind,
		Modifiers:     d.Modifiers,
		File:          d.FilePath,
		StartLine:     d.StartLine,
		StartCol:      d.StartCol,
		EndLine:       d.EndLine,
		EndCol:        d.EndCol,
	}
}

func storedDefinitionsToCLI(ds []outline.StoredDefinition) []CLIDefinition {
	out := make([]CLIDefinition, len(ds))
	for i, d := range ds {
		out[i] = storedDefinitionToCLI(d)
	}
	return out
}

func importResultToCLI(r outline.ImportResult) CLIImport {
	return CLIImport{
		Module:   r.Module,
		Path:     r.Entry.ModulePath(),
		Symbol:   r.Entry.Symbol,
		Alias:    r.Entry.Alias,
		Wildcard: r.Entry.Wildcard,
		Target:   r.Target,
		File:     r.Location.File,
		Line:     r.Location.StartLine,
	}
}

func importResultsToCLI(rs []outline.ImportResult) []CLIImport {
	out := make([]CLIImport, len(rs))
	for i, r := range rs {
		out[i] = importResultToCLI(r)
	}
	return out
}

func callResultsToCLI(rs []outline.CallResult) []CLICall {
	out := make([]CLICall, len(rs))
	for i, r := range rs {
		out[i] = CLICall{
			Module: r.Module,
			Scope:  r.Call.Scope,
			Callee: r.Call.Callee,
			Args:   r.Call.Args,
			File:   r.Location.File,
			Line:   r.Location.StartLine,
			Col:    r.Location.StartCol,
		}
	}
	return out
}

func diagnosticToCLI(d diag.Diagnostic) CLIDiagnostic {
	return CLIDiagnostic{
		Kind:    string(d.Kind),
		Message: d.Msg,
		Line:    d.Span.Start.Line,
		Col:     d.Span.Start.Col,
	}
}

// moduleToCLI converts one analysis Result. q resolves import targets, so
// the Result must have been merged into q's project.
func moduleToCLI(q *outline.QueryBuilder, r *outline.Result) CLIModule {
	out := CLIModule{
		Path:        r.Path,
		Definitions: []CLIDefinition{},
		Imports:     []CLIImport{},
		Calls:       []CLICall{},
		Diagnostics: []CLIDiagnostic{},
	}
	if fe := r.Fatal(); fe != nil {
		out.Error = &CLIDiagnostic{
			Kind:    string(fe.Kind),
			Message: fe.Msg,
			Line:    fe.Span.Start.Line,
			Col:     fe.Span.Start.Col,
		}
		return out
	}
	if r.Module == nil {
		return out
	}
	m := r.Module
	out.Module = m.Name
	out.IsPackage = m.IsPackage
	out.Docstring = m.Docstring

	m.Walk(func(d model.Definition) bool {
		out.Definitions = append(out.Definitions, definitionToCLI(m.Name, m.Path, d))
		return true
	})
	if imps, err := q.Imports(m.Name); err == nil {
		out.Imports = importResultsToCLI(imps)
	}
	for _, c := range r.Index.Calls() {
		out.Calls = append(out.Calls, CLICall{
			Module: m.Name,
			Scope:  c.Scope,
			Callee: c.Callee,
			Args:   c.Args,
			File:   m.Path,
			Line:   c.Span.Start.Line,
			Col:    c.Span.Start.Col,
		})
	}
	for _, d := range r.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticToCLI(d))
	}
	return out
}

func fileToCLI(f store.File) CLIFile {
	return CLIFile{
		ID:          f.ID,
		Path:        f.Path,
		Module:      f.Module,
		IsPackage:   f.IsPackage,
		Hash:        f.Hash,
		LastIndexed: f.LastIndexed.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func hierarchyToCLI(h *outline.ClassHierarchy) CLIHierarchy {
	out := CLIHierarchy{
		Class:      definitionResultToCLI(h.Class),
		Bases:      make([]CLIBase, len(h.Bases)),
		Ancestors:  definitionResultsToCLI(h.Ancestors),
		Subclasses: definitionResultsToCLI(h.Subclasses),
	}
	for i, b := range h.Bases {
		out.Bases[i] = CLIBase{Text: b.Text}
		if b.Class != nil {
			out.Bases[i].Resolved = b.Class.FullName()
		}
	}
	return out
}

func findingsToCLI(fs []outline.Finding) []CLIFinding {
	out := make([]CLIFinding, len(fs))
	for i, f := range fs {
		out[i] = CLIFinding{
			Rule:          f.Rule,
			Module:        f.Module,
			File:          f.Path,
			QualifiedName: f.QualifiedName,
			Line:          f.Line,
			Message:       f.Message,
		}
	}
	return out
}

func reportsToCLI(rs []outline.VerifyReport) []CLIVerifyReport {
	out := make([]CLIVerifyReport, len(rs))
	for i, r := range rs {
		out[i] = CLIVerifyReport{File: r.Path, OK: r.OK(), Skipped: r.Skipped}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
		for _, m := range r.Mismatches {
			out[i].Mismatches = append(out[i].Mismatches, CLIMismatch{
				Entity: m.Entity,
				Model:  m.Model,
				Oracle: m.Oracle,
			})
		}
	}
	return out
}
