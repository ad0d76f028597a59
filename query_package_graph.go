package outline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/jward/outline/internal/model"
)

// DependencyGraph is the module-to-module import graph of the project.
// Imports that do not name a project module are left out.
type DependencyGraph struct {
	Modules []ModuleNode
	Edges   []DependencyEdge
}

// ModuleNode represents a module in the dependency graph.
type ModuleNode struct {
	Name            string
	Path            string
	IsPackage       bool
	DefinitionCount int
}

// DependencyEdge represents a dependency between two modules with the
// number of import entries that contribute to it.
type DependencyEdge struct {
	FromModule  string
	ToModule    string
	ImportCount int
}

// ModuleDependencyGraph returns the module-to-module dependency graph.
// Relative imports are resolved against the importing module first. An
// entry `from a import b` counts toward a.b when that module exists and
// toward a otherwise; `import a.b.c` falls back to the longest existing
// prefix.
func (q *QueryBuilder) ModuleDependencyGraph() *DependencyGraph {
	mods := q.project.Modules()

	type edgeKey struct {
		from, to string
	}
	edgeCounts := map[edgeKey]int{}

	nodes := make([]ModuleNode, 0, len(mods))
	for _, ix := range mods {
		count := 0
		ix.Module().Walk(func(model.Definition) bool {
			count++
			return true
		})
		nodes = append(nodes, ModuleNode{
			Name:            ix.Name(),
			Path:            ix.Module().Path,
			IsPackage:       ix.Module().IsPackage,
			DefinitionCount: count,
		})

		for _, imp := range ix.Imports() {
			target, err := ix.ResolveRelative(imp)
			if err != nil || target == "" {
				continue
			}
			to, ok := q.importedModule(target, imp.Symbol)
			if !ok {
				continue // external import
			}
			edgeCounts[edgeKey{from: ix.Name(), to: to}]++
		}
	}

	edges := make([]DependencyEdge, 0, len(edgeCounts))
	for ek, count := range edgeCounts {
		edges = append(edges, DependencyEdge{FromModule: ek.from, ToModule: ek.to, ImportCount: count})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromModule != edges[j].FromModule {
			return edges[i].FromModule < edges[j].FromModule
		}
		return edges[i].ToModule < edges[j].ToModule
	})

	return &DependencyGraph{Modules: nodes, Edges: edges}
}

func (q *QueryBuilder) importedModule(target, symbol string) (string, bool) {
	if symbol != "" {
		if _, ok := q.project.Module(target + "." + symbol); ok {
			return target + "." + symbol, true
		}
	}
	for name := target; name != ""; {
		if _, ok := q.project.Module(name); ok {
			return name, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return "", false
}

// CircularDependencies detects import cycles between project modules.
// Each cycle lists its members sorted by name with the first element
// repeated at the end. A module importing itself is a cycle of one.
// Returns empty list (not nil) for acyclic graphs.
func (q *QueryBuilder) CircularDependencies() ([][]string, error) {
	dg := q.ModuleDependencyGraph()

	g := graph.New(graph.StringHash, graph.Directed())
	for _, m := range dg.Modules {
		if err := g.AddVertex(m.Name); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("circular dependencies: add %s: %w", m.Name, err)
		}
	}

	selfLoops := map[string]bool{}
	for _, e := range dg.Edges {
		if e.FromModule == e.ToModule {
			selfLoops[e.FromModule] = true
			continue
		}
		if err := g.AddEdge(e.FromModule, e.ToModule); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("circular dependencies: edge %s -> %s: %w", e.FromModule, e.ToModule, err)
		}
	}

	sccs, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, fmt.Errorf("circular dependencies: %w", err)
	}

	result := [][]string{}
	for _, scc := range sccs {
		if len(scc) < 2 && !selfLoops[scc[0]] {
			continue
		}
		cycle := append([]string{}, scc...)
		sort.Strings(cycle)
		cycle = append(cycle, cycle[0])
		result = append(result, cycle)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result, nil
}
