package main

import (
	"github.com/spf13/cobra"
)

// --- Graph Commands ---

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the module dependency graph",
	Args:  cobra.NoArgs,
	RunE:  runDeps,
}

func runDeps(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("deps", err)
	}
	defer engine.Close()

	g := engine.Query().ModuleDependencyGraph()
	out := CLIDependencyGraph{
		Modules: make([]CLIModuleNode, len(g.Modules)),
		Edges:   make([]CLIEdge, len(g.Edges)),
	}
	for i, m := range g.Modules {
		out.Modules[i] = CLIModuleNode{Name: m.Name, Path: m.Path, IsPackage: m.IsPackage, DefinitionCount: m.DefinitionCount}
	}
	for i, e := range g.Edges {
		out.Edges[i] = CLIEdge{From: e.FromModule, To: e.ToModule, ImportCount: e.ImportCount}
	}
	return outputResult(CLIResult{Command: "deps", Results: out})
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Find circular module dependencies",
	Args:  cobra.NoArgs,
	RunE:  runCycles,
}

func runCycles(cmd *cobra.Command, args []string) error {
	engine, _, err := analyzeProject(cmd)
	if err != nil {
		return outputError("cycles", err)
	}
	defer engine.Close()

	cycles, err := engine.Query().CircularDependencies()
	if err != nil {
		return outputError("cycles", err)
	}
	return outputList("cycles", cycles)
}

var flagTop int

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "Rank callees by stored call count",
	Args:  cobra.NoArgs,
	RunE:  runHotspots,
}

func init() {
	hotspotsCmd.Flags().IntVar(&flagTop, "top", 10, "number of callees to show")
}

func runHotspots(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("hotspots", err)
	}
	defer engine.Close()

	hs, err := engine.Query().Hotspots(flagTop)
	if err != nil {
		return outputError("hotspots", err)
	}
	out := make([]CLIHotspot, len(hs))
	for i, h := range hs {
		out[i] = CLIHotspot{Callee: h.Callee, CallCount: h.CallCount, FileCount: h.FileCount}
	}
	return outputList("hotspots", out)
}

var uncalledCmd = &cobra.Command{
	Use:   "uncalled",
	Short: "List stored functions no call site names",
	Args:  cobra.NoArgs,
	RunE:  runUncalled,
}

func init() {
	addDefinitionFilterFlags(uncalledCmd)
}

func runUncalled(cmd *cobra.Command, args []string) error {
	engine, err := openIndexed()
	if err != nil {
		return outputError("uncalled", err)
	}
	defer engine.Close()

	page, err := engine.Query().UncalledFunctions(buildDefinitionFilter(), buildSort(), buildPagination())
	if err != nil {
		return outputError("uncalled", err)
	}
	return outputResult(CLIResult{
		Command:    "uncalled",
		Results:    storedDefinitionsToCLI(page.Items),
		TotalCount: &page.TotalCount,
	})
}
