package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/outline"
)

// --- Discovery Commands ---

var (
	flagKind       []string
	flagModifier   []string
	flagDecorator  string
	flagModule     string
	flagPathPrefix string
)

// addDefinitionFilterFlags registers the DefinitionFilter flags on cmd.
func addDefinitionFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagKind, "kind", nil, "filter by kind: class|function (repeatable)")
	cmd.Flags().StringSliceVar(&flagModifier, "modifier", nil, "require modifier: async|method|static|classmethod|property (repeatable)")
	cmd.Flags().StringVar(&flagDecorator, "decorator", "", "require a decorator with this name")
	cmd.Flags().StringVar(&flagModule, "module", "", "restrict to a module and its submodules")
	cmd.Flags().StringVar(&flagPathPrefix, "path-prefix", "", "restrict to files under this directory")
}

func buildDefinitionFilter() outline.DefinitionFilter {
	return outline.DefinitionFilter{
		Kinds:      flagKind,
		Modifiers:  flagModifier,
		Decorator:  flagDecorator,
		Module:     flagModule,
		PathPrefix: flagPathPrefix,
	}
}

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "List stored definitions with filtering",
	Args:  cobra.NoArgs,
	RunE:  runDefinitions,
}

func init() {
	addDefinitionFilterFlags(definitionsCmd)
}

func runDefinitions(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("definitions", err)
	}
	defer engine.Close()

	page, err := engine.Query().Definitions(buildDefinitionFilter(), buildSort(), buildPagination())
	if err != nil {
		return outputError("definitions", err)
	}
	return outputResult(CLIResult{
		Command:    "definitions",
		Results:    storedDefinitionsToCLI(page.Items),
		TotalCount: &page.TotalCount,
	})
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search definitions by name or qualified name; * is a wildcard",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	addDefinitionFilterFlags(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("search", err)
	}
	defer engine.Close()

	page, err := engine.Query().SearchDefinitions(args[0], buildDefinitionFilter(), buildSort(), buildPagination())
	if err != nil {
		return outputError("search", err)
	}
	return outputResult(CLIResult{
		Command:    "search",
		Results:    storedDefinitionsToCLI(page.Items),
		TotalCount: &page.TotalCount,
	})
}

var filesCmd = &cobra.Command{
	Use:   "files [path-prefix]",
	Short: "List stored files",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("files", err)
	}
	defer engine.Close()

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	page, err := engine.Query().Files(prefix, buildSort(), buildPagination())
	if err != nil {
		return outputError("files", err)
	}
	files := make([]CLIFile, len(page.Items))
	for i, f := range page.Items {
		files[i] = fileToCLI(f)
	}
	return outputResult(CLIResult{Command: "files", Results: files, TotalCount: &page.TotalCount})
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show counts of stored files, definitions, imports and calls",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("summary", err)
	}
	defer engine.Close()

	s, err := engine.Query().ProjectSummary()
	if err != nil {
		return outputError("summary", err)
	}
	return outputResult(CLIResult{
		Command: "summary",
		Results: CLIProjectSummary{
			FileCount:       s.FileCount,
			PackageCount:    s.PackageCount,
			KindCounts:      s.KindCounts,
			ImportCount:     s.ImportCount,
			CallCount:       s.CallCount,
			DiagnosticKinds: s.DiagnosticKinds,
		},
	})
}

var detailCmd = &cobra.Command{
	Use:   "detail <id>",
	Short: "Show a stored definition with its parameters, decorators and bases",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetail,
}

func runDetail(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return outputError("detail", fmt.Errorf("invalid id %q: %w", args[0], err))
	}
	engine, err := openIndexed()
	if err != nil {
		return outputError("detail", err)
	}
	defer engine.Close()

	d, err := engine.Query().DefinitionDetail(id)
	if err != nil {
		return outputError("detail", err)
	}
	if d == nil {
		return outputError("detail", fmt.Errorf("no definition with id %d", id))
	}

	out := CLIDefinitionDetail{
		Definition: storedDefinitionToCLI(d.Definition),
		Docstring:  d.Definition.Docstring,
		Returns:    d.Definition.Returns,
		Parameters: make([]CLIParameter, len(d.Parameters)),
		Decorators: make([]string, len(d.Decorators)),
		Bases:      make([]string, len(d.Bases)),
	}
	for i, p := range d.Parameters {
		out.Parameters[i] = CLIParameter{Name: p.Name, Kind: p.Kind, Annotation: p.Annotation, Default: p.DefaultExpr}
	}
	for i, dec := range d.Decorators {
		out.Decorators[i] = dec.Text
	}
	for i, b := range d.Bases {
		if b.Keyword != "" {
			out.Bases[i] = b.Keyword + "=" + b.Text
		} else {
			out.Bases[i] = b.Text
		}
	}
	return outputResult(CLIResult{Command: "detail", Results: out})
}
