package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// GraphNode is a module placed in the finalized graph.
type GraphNode struct {
	Module Module

	// Level is the topological level; modules on the same level do not depend
	// on each other.
	Level int

	// Dependencies are the names of modules feeding this one.
	Dependencies []string

	// Dependents are the names of modules this one feeds.
	Dependents []string
}

// GraphEdge is a port-level connection of the finalized graph.
type GraphEdge struct {
	From     string
	FromPort string
	To       string
	ToPort   string
}

// Graph is a fully specified graph ready for an executor: ordinary modules
// only, acyclic, with topological levels.
type Graph struct {
	Nodes   map[string]*GraphNode
	Edges   []GraphEdge
	Levels  [][]string
	Roots   []string
	Depth   int
	Outputs Outputs
}

// Order returns the modules in a topological order, level by level, sorted by
// name within a level.
func (g *Graph) Order() []Module {
	out := make([]Module, 0, len(g.Nodes))
	for _, level := range g.Levels {
		for _, name := range level {
			out = append(out, g.Nodes[name].Module)
		}
	}
	return out
}

// Finalize collects the graph reachable from outputs and orders it for
// execution. It fails with a traversal error if substitutions are pending or
// the connections form a cycle.
func Finalize(outputs Outputs) (*Graph, error) {
	b := newGraphBuilder()
	if err := b.initialize(outputs); err != nil {
		return nil, err
	}
	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	if err := b.computeLevels(); err != nil {
		return nil, err
	}
	g := b.buildGraph()
	g.Outputs = outputs
	return g, nil
}

// graphBuilder follows the DAG construction used by the executor: adjacency
// lists, DFS cycle detection, Kahn levels.
type graphBuilder struct {
	modules              map[string]Module
	adjacencyList        map[string][]string
	reverseAdjacencyList map[string][]string
	inDegree             map[string]int
	edges                []GraphEdge
	levels               [][]string
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		modules:              make(map[string]Module),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
	}
}

func (b *graphBuilder) initialize(outputs Outputs) error {
	var pending []string
	TraverseBackward(outputs, func(m Module) bool {
		if sm, ok := m.(*SubstitutionModule); ok && !sm.Done() {
			pending = append(pending, m.Name())
		}
		b.modules[m.Name()] = m
		return true
	})
	if len(pending) > 0 {
		var unassigned []string
		for _, h := range UnassignedHyperparameters(outputs) {
			unassigned = append(unassigned, h.Name())
		}
		return NewTraversalError(
			fmt.Sprintf("graph has unresolved substitution modules: %s", strings.Join(pending, ", ")), nil,
		).WithCode(ErrCodeUnresolvedSubstitution).WithDetail("unassigned", unassigned)
	}

	for name := range b.modules {
		b.adjacencyList[name] = make([]string, 0)
		b.reverseAdjacencyList[name] = make([]string, 0)
		b.inDegree[name] = 0
	}

	for _, name := range slices.Sorted(maps.Keys(b.modules)) {
		m := b.modules[name]
		ins := m.Inputs()
		for _, port := range ins.Names() {
			src, ok := ins[port].ConnectedOutput()
			if !ok {
				continue
			}
			from := src.Module().Name()
			b.edges = append(b.edges, GraphEdge{From: from, FromPort: src.Name(), To: name, ToPort: port})
			if slices.Contains(b.reverseAdjacencyList[name], from) {
				continue
			}
			b.adjacencyList[from] = append(b.adjacencyList[from], name)
			b.reverseAdjacencyList[name] = append(b.reverseAdjacencyList[name], from)
			b.inDegree[name]++
		}
	}
	for name := range b.adjacencyList {
		slices.Sort(b.adjacencyList[name])
	}
	return nil
}

func (b *graphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range slices.Sorted(maps.Keys(b.modules)) {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewTraversalError(
				fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")), nil,
			).WithCode(ErrCodeCycle)
		}
	}
	return nil
}

func (b *graphBuilder) detectCyclesUtil(
	id string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, dependent := range b.adjacencyList[id] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			start := slices.Index(path, dependent)
			return append(slices.Clone(path[start:]), dependent)
		}
	}

	recStack[id] = false
	return nil
}

// computeLevels runs Kahn's algorithm, keeping each level sorted by name.
func (b *graphBuilder) computeLevels() error {
	inDegree := maps.Clone(b.inDegree)

	current := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}
	slices.Sort(current)

	processed := 0
	for len(current) > 0 {
		b.levels = append(b.levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range b.adjacencyList[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if processed != len(b.modules) {
		return NewTraversalError("failed to order every module", nil).WithCode(ErrCodeInternal)
	}
	return nil
}

func (b *graphBuilder) buildGraph() *Graph {
	g := &Graph{
		Nodes:  make(map[string]*GraphNode, len(b.modules)),
		Edges:  b.edges,
		Levels: b.levels,
		Roots:  make([]string, 0),
		Depth:  len(b.levels),
	}
	for level, ids := range b.levels {
		for _, id := range ids {
			deps := slices.Clone(b.reverseAdjacencyList[id])
			slices.Sort(deps)
			g.Nodes[id] = &GraphNode{
				Module:       b.modules[id],
				Level:        level,
				Dependencies: deps,
				Dependents:   b.adjacencyList[id],
			}
			if level == 0 {
				g.Roots = append(g.Roots, id)
			}
		}
	}
	return g
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per level.
// Node labels show the module name and its hyperparameter values.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph SearchSpace {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, nodeLabel(g.Nodes[id].Module), moduleColor(g.Nodes[id].Module)))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s:%s\"];\n",
			e.From, e.To, e.FromPort, e.ToPort))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeLabel(m Module) string {
	var sb strings.Builder
	sb.WriteString(m.Name())
	hs := m.Hyperparameters()
	for _, name := range sortedKeys(hs) {
		v, _ := hs[name].Value()
		sb.WriteString(fmt.Sprintf("\\n%s=%v", name, v))
	}
	return strings.ReplaceAll(sb.String(), "\"", "'")
}

func moduleColor(m Module) string {
	switch {
	case strings.HasPrefix(m.Name(), "M.Identity"):
		return "lightgray"
	case len(m.Hyperparameters()) > 0:
		return "lightyellow"
	default:
		return "lightblue"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
