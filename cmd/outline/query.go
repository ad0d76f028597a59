package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/outline"
)

var (
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string
	flagRoot   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the analyzed project",
	Long: `Run queries against a project. Lines are 1-based and columns 0-based.

Structural queries (modules, lookup, hierarchy, deps, ...) analyze the
project in memory on every run. Listing queries (definitions, search,
files, summary, detail, hotspots, uncalled) read the database written by
'outline index'.`,
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: name|qualified_name|kind|file|line")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")
	queryCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (default: nearest directory with outline.toml or .git)")

	queryCmd.AddCommand(modulesCmd)
	queryCmd.AddCommand(lookupCmd)
	queryCmd.AddCommand(childrenCmd)
	queryCmd.AddCommand(importsCmd)
	queryCmd.AddCommand(importersCmd)
	queryCmd.AddCommand(callsInCmd)
	queryCmd.AddCommand(callsToCmd)
	queryCmd.AddCommand(decoratedByCmd)
	queryCmd.AddCommand(definitionAtCmd)
	queryCmd.AddCommand(hierarchyCmd)
	queryCmd.AddCommand(subclassesCmd)
	queryCmd.AddCommand(depsCmd)
	queryCmd.AddCommand(cyclesCmd)

	queryCmd.AddCommand(definitionsCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(summaryCmd)
	queryCmd.AddCommand(detailCmd)
	queryCmd.AddCommand(hotspotsCmd)
	queryCmd.AddCommand(uncalledCmd)
}

// --- Helpers ---

// queryRoot returns the --root flag or the discovered project root.
func queryRoot() (string, error) {
	if flagRoot != "" {
		return resolveTargetDir([]string{flagRoot})
	}
	return resolveTargetDir(nil)
}

// analyzeProject analyzes the project in memory and returns the Engine.
// Units that fail are left out of the project; the queries still run.
func analyzeProject(cmd *cobra.Command) (*outline.Engine, string, error) {
	root, err := queryRoot()
	if err != nil {
		return nil, "", err
	}
	engine, _, err := openEngine(root, false)
	if err != nil {
		return nil, "", err
	}
	if _, err := engine.AnalyzeDirectory(cmd.Context(), root); err != nil {
		engine.Close()
		return nil, "", fmt.Errorf("analyzing: %w", err)
	}
	return engine, root, nil
}

// openIndexed opens the Engine over the existing database without
// re-analyzing.
func openIndexed() (*outline.Engine, error) {
	root, err := queryRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(root, cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'outline index' first)", dbPath)
	}
	engine, _, err := openEngine(root, true)
	return engine, err
}

// relativeSource converts a file argument to the slash-separated path used
// as the module path, relative to root.
func relativeSource(root, file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return filepath.ToSlash(rel), nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// outputList writes a full, unpaged result list.
func outputList[T any](command string, items []T) error {
	count := len(items)
	return outputResult(CLIResult{Command: command, Results: items, TotalCount: &count})
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() outline.Pagination {
	return outline.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() outline.Sort {
	var field outline.SortField
	switch flagSort {
	case "qualified_name":
		field = outline.SortByQualifiedName
	case "kind":
		field = outline.SortByKind
	case "file":
		field = outline.SortByFile
	case "line":
		field = outline.SortByLine
	default:
		field = outline.SortByName
	}

	var order outline.SortOrder
	switch flagOrder {
	case "desc":
		order = outline.Desc
	default:
		order = outline.Asc
	}

	return outline.Sort{Field: field, Order: order}
}
