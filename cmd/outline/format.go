package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatDefinitionsText formats CLIDefinition results as aligned columns.
func formatDefinitionsText(w io.Writer, defs []CLIDefinition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tMODIFIERS\tFILE\tLINE")
	for _, d := range defs {
		id := "-"
		if d.ID != 0 {
			id = fmt.Sprint(d.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			id, joinQualified(d.Module, d.QualifiedName), d.Kind, strings.Join(d.Modifiers, ","), d.File, d.StartLine)
	}
	tw.Flush()
}

// formatImportsText formats CLIImport results as aligned columns.
func formatImportsText(w io.Writer, imports []CLIImport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tIMPORT\tTARGET\tFILE\tLINE")
	for _, imp := range imports {
		name := imp.Path
		switch {
		case imp.Wildcard:
			name += ".*"
		case imp.Symbol != "":
			name += "/" + imp.Symbol
		}
		if imp.Alias != "" {
			name += " as " + imp.Alias
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", imp.Module, name, imp.Target, imp.File, imp.Line)
	}
	tw.Flush()
}

// formatCallsText formats CLICall results as aligned columns.
func formatCallsText(w io.Writer, calls []CLICall) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tCALLEE\tFILE\tLINE\tCOL")
	for _, c := range calls {
		caller := joinQualified(c.Module, c.Scope)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", caller, c.Callee, c.File, c.Line, c.Col)
	}
	tw.Flush()
}

// formatModulesText prints one analyzed unit per block.
func formatModulesText(w io.Writer, mods []CLIModule) {
	for i, m := range mods {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if m.Error != nil {
			fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", m.Path, m.Error.Line, m.Error.Col, m.Error.Kind, m.Error.Message)
			continue
		}
		fmt.Fprintf(w, "Module: %s (%s)\n", m.Module, m.Path)
		if len(m.Definitions) > 0 {
			fmt.Fprintln(w)
			formatDefinitionsText(w, m.Definitions)
		}
		if len(m.Imports) > 0 {
			fmt.Fprintln(w)
			formatImportsText(w, m.Imports)
		}
		for _, d := range m.Diagnostics {
			fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", m.Path, d.Line, d.Col, d.Kind, d.Message)
		}
	}
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tMODULE\tINDEXED")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.ID, f.Path, f.Module, f.LastIndexed)
	}
	tw.Flush()
}

// formatSummaryText formats CLIProjectSummary as readable text.
func formatSummaryText(w io.Writer, s CLIProjectSummary) {
	fmt.Fprintln(w, "Project Summary")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Files: %d (%d packages)\n", s.FileCount, s.PackageCount)
	fmt.Fprintf(w, "Imports: %d\n", s.ImportCount)
	fmt.Fprintf(w, "Calls: %d\n", s.CallCount)
	printCounts(w, "Definitions:", s.KindCounts)
	printCounts(w, "Diagnostics:", s.DiagnosticKinds)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}

// formatDetailText formats CLIDefinitionDetail as readable text.
func formatDetailText(w io.Writer, d CLIDefinitionDetail) {
	def := d.Definition
	fmt.Fprintf(w, "%s %s\n", def.Kind, joinQualified(def.Module, def.QualifiedName))
	fmt.Fprintf(w, "File: %s:%d:%d\n", def.File, def.StartLine, def.StartCol)
	if len(def.Modifiers) > 0 {
		fmt.Fprintf(w, "Modifiers: %s\n", strings.Join(def.Modifiers, ", "))
	}
	for _, dec := range d.Decorators {
		fmt.Fprintf(w, "Decorator: @%s\n", dec)
	}
	if len(d.Bases) > 0 {
		fmt.Fprintf(w, "Bases: %s\n", strings.Join(d.Bases, ", "))
	}
	if len(d.Parameters) > 0 {
		fmt.Fprintln(w, "Parameters:")
		for _, p := range d.Parameters {
			fmt.Fprintf(w, "  %s (%s)", p.Name, p.Kind)
			if p.Annotation != "" {
				fmt.Fprintf(w, ": %s", p.Annotation)
			}
			if p.Default != "" {
				fmt.Fprintf(w, " = %s", p.Default)
			}
			fmt.Fprintln(w)
		}
	}
	if d.Returns != "" {
		fmt.Fprintf(w, "Returns: %s\n", d.Returns)
	}
	if d.Docstring != "" {
		fmt.Fprintf(w, "\n%s\n", d.Docstring)
	}
}

// formatHierarchyText formats CLIHierarchy as an indented tree.
func formatHierarchyText(w io.Writer, h CLIHierarchy) {
	fmt.Fprintf(w, "%s (%s:%d)\n", joinQualified(h.Class.Module, h.Class.QualifiedName), h.Class.File, h.Class.StartLine)
	for _, b := range h.Bases {
		if b.Resolved != "" {
			fmt.Fprintf(w, "  base: %s -> %s\n", b.Text, b.Resolved)
		} else {
			fmt.Fprintf(w, "  base: %s (unresolved)\n", b.Text)
		}
	}
	for _, a := range h.Ancestors {
		fmt.Fprintf(w, "  ancestor: %s\n", joinQualified(a.Module, a.QualifiedName))
	}
	for _, s := range h.Subclasses {
		fmt.Fprintf(w, "  subclass: %s\n", joinQualified(s.Module, s.QualifiedName))
	}
}

// formatGraphText formats CLIDependencyGraph edges as aligned columns.
func formatGraphText(w io.Writer, g CLIDependencyGraph) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tIMPORTS")
	for _, e := range g.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.From, e.To, e.ImportCount)
	}
	tw.Flush()
}

// formatCyclesText prints one cycle per line.
func formatCyclesText(w io.Writer, cycles [][]string) {
	for _, c := range cycles {
		fmt.Fprintln(w, strings.Join(c, " -> "))
	}
}

// formatHotspotsText formats CLIHotspot results as aligned columns.
func formatHotspotsText(w io.Writer, hs []CLIHotspot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLEE\tCALLS\tFILES")
	for _, h := range hs {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", h.Callee, h.CallCount, h.FileCount)
	}
	tw.Flush()
}

// formatFindingsText prints findings in file:line order, one per line.
func formatFindingsText(w io.Writer, fs []CLIFinding) {
	for _, f := range fs {
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		if f.QualifiedName != "" {
			fmt.Fprintf(w, "%s: [%s] %s: %s\n", loc, f.Rule, f.QualifiedName, f.Message)
		} else {
			fmt.Fprintf(w, "%s: [%s] %s\n", loc, f.Rule, f.Message)
		}
	}
}

// formatReportsText prints one line per verified unit.
func formatReportsText(w io.Writer, rs []CLIVerifyReport) {
	for _, r := range rs {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "SKIP %s: %s\n", r.File, r.Error)
		case r.OK:
			fmt.Fprintf(w, "ok   %s\n", r.File)
		default:
			parts := make([]string, len(r.Mismatches))
			for i, m := range r.Mismatches {
				parts[i] = fmt.Sprintf("%s model=%d tree-sitter=%d", m.Entity, m.Model, m.Oracle)
			}
			fmt.Fprintf(w, "FAIL %s: %s\n", r.File, strings.Join(parts, "; "))
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case []CLIDefinition:
		formatDefinitionsText(w, v)
	case CLIDefinition:
		formatDefinitionsText(w, []CLIDefinition{v})
	case []CLIImport:
		formatImportsText(w, v)
	case []CLICall:
		formatCallsText(w, v)
	case []CLIModule:
		formatModulesText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case CLIProjectSummary:
		formatSummaryText(w, v)
	case CLIDefinitionDetail:
		formatDetailText(w, v)
	case CLIHierarchy:
		formatHierarchyText(w, v)
	case CLIDependencyGraph:
		formatGraphText(w, v)
	case [][]string:
		formatCyclesText(w, v)
	case []CLIHotspot:
		formatHotspotsText(w, v)
	case []CLIFinding:
		formatFindingsText(w, v)
	case []CLIVerifyReport:
		formatReportsText(w, v)
	case nil:
		// No output for nil results (e.g., definition-at with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []string:
		return len(r)
	case []CLIDefinition:
		return len(r)
	case []CLIImport:
		return len(r)
	case []CLICall:
		return len(r)
	case []CLIModule:
		return len(r)
	case []CLIFile:
		return len(r)
	case [][]string:
		return len(r)
	case []CLIHotspot:
		return len(r)
	case []CLIFinding:
		return len(r)
	case []CLIVerifyReport:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

func joinQualified(module, qname string) string {
	switch {
	case module == "":
		return qname
	case qname == "":
		return module
	}
	return module + "." + qname
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
