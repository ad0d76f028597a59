package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// --- Project Structure Commands ---

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List module labels",
	Args:  cobra.NoArgs,
	RunE:  runModules,
}

func runModules(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("modules", err)
	}
	defer engine.Close()
	return outputList("modules", engine.Query().Modules())
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Resolve a fully qualified name such as pkg.mod.Class.method",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("lookup", err)
	}
	defer engine.Close()

	r := engine.Query().Lookup(args[0])
	if r == nil {
		return outputResult(CLIResult{Command: "lookup", Results: nil})
	}
	one := 1
	return outputResult(CLIResult{Command: "lookup", Results: definitionResultToCLI(*r), TotalCount: &one})
}

var childrenCmd = &cobra.Command{
	Use:   "children <module> [qname]",
	Short: "List the definitions directly inside a module or definition",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runChildren,
}

func runChildren(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("children", err)
	}
	defer engine.Close()

	qname := ""
	if len(args) == 2 {
		qname = args[1]
	}
	defs, err := engine.Query().Children(args[0], qname)
	if err != nil {
		return outputError("children", err)
	}
	return outputList("children", definitionResultsToCLI(defs))
}

var decoratedByCmd = &cobra.Command{
	Use:   "decorated-by <name>",
	Short: "Find definitions carrying a decorator",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecoratedBy,
}

func runDecoratedBy(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("decorated-by", err)
	}
	defer engine.Close()
	return outputList("decorated-by", definitionResultsToCLI(engine.Query().DecoratedBy(args[0])))
}

var definitionAtCmd = &cobra.Command{
	Use:   "definition-at <file> <line> <col>",
	Short: "Find the innermost definition enclosing a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runDefinitionAt,
}

func runDefinitionAt(cmd *cobra.Command, args []string) error {
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return outputError("definition-at", err)
	}
	col, err := parseIntArg(args[2], "col")
	if err != nil {
		return outputError("definition-at", err)
	}

	engine, root, err := analyzeProject(cmd)
	if err != nil {
		return outputError("definition-at", err)
	}
	defer engine.Close()

	file, err := relativeSource(root, args[0])
	if err != nil {
		return outputError("definition-at", err)
	}
	r := engine.Query().DefinitionAt(file, line, col)
	if r == nil {
		return outputResult(CLIResult{Command: "definition-at", Results: nil})
	}
	one := 1
	return outputResult(CLIResult{Command: "definition-at", Results: definitionResultToCLI(*r), TotalCount: &one})
}

// --- Import and Call Commands ---

var importsCmd = &cobra.Command{
	Use:   "imports <module>",
	Short: "List the imports of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runImports,
}

func runImports(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("imports", err)
	}
	defer engine.Close()

	imps, err := engine.Query().Imports(args[0])
	if err != nil {
		return outputError("imports", err)
	}
	return outputList("imports", importResultsToCLI(imps))
}

var importersCmd = &cobra.Command{
	Use:   "importers <module>",
	Short: "Find the imports that name a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runImporters,
}

func runImporters(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("importers", err)
	}
	defer engine.Close()
	return outputList("importers", importResultsToCLI(engine.Query().Importers(args[0])))
}

var callsInCmd = &cobra.Command{
	Use:   "calls-in <module> [qname]",
	Short: "List the calls made directly in a module or definition",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCallsIn,
}

func runCallsIn(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("calls-in", err)
	}
	defer engine.Close()

	qname := ""
	if len(args) == 2 {
		qname = args[1]
	}
	calls, err := engine.Query().CallsIn(args[0], qname)
	if err != nil {
		return outputError("calls-in", err)
	}
	return outputList("calls-in", callResultsToCLI(calls))
}

var callsToCmd = &cobra.Command{
	Use:   "calls-to <name>",
	Short: "Find call sites whose callee text ends with a name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallsTo,
}

func runCallsTo(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("calls-to", err)
	}
	defer engine.Close()
	return outputList("calls-to", callResultsToCLI(engine.Query().CallsTo(args[0])))
}

// --- Hierarchy Commands ---

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy <class>",
	Short: "Show the bases, ancestors and subclasses of a class",
	Args:  cobra.ExactArgs(1),
	RunE:  runHierarchy,
}

func runHierarchy(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("hierarchy", err)
	}
	defer engine.Close()

	h, err := engine.Query().ClassHierarchy(args[0])
	if err != nil {
		return outputError("hierarchy", err)
	}
	if h == nil {
		return outputError("hierarchy", fmt.Errorf("no class named %q", args[0]))
	}
	return outputResult(CLIResult{Command: "hierarchy", Results: hierarchyToCLI(h)})
}

var subclassesCmd = &cobra.Command{
	Use:   "subclasses <class>",
	Short: "Find the direct subclasses of a class",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubclasses,
}

func runSubclasses(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("subclasses", err)
	}
	defer engine.Close()
	return outputList("subclasses", definitionResultsToCLI(engine.Query().Subclasses(args[0])))
}
