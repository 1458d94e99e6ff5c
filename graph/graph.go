// Package graph implements C10: builds the model dependency graph from ref
// locations, validates every edge against known models and declared
// external sources, and computes a deterministic topological execution
// order via Kahn's algorithm, per spec.md §4.10.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Model is one node: a logical name and the distinct model names it
// references (its dependencies), in first-occurrence order.
type Model struct {
	Name      string
	DependsOn []string
}

// UndefinedRefError reports dependency edges that resolve to neither a
// known model nor a declared external source.
type UndefinedRefError struct {
	// Edges is "from -> to" for every offending edge, in model-list order.
	Edges []Edge
}

// Edge is one dependency edge, model to model-name.
type Edge struct {
	From string
	To   string
}

func (e *UndefinedRefError) Error() string {
	parts := make([]string, 0, len(e.Edges))
	for _, edge := range e.Edges {
		parts = append(parts, fmt.Sprintf("%s -> %s", edge.From, edge.To))
	}
	return "undefined reference: " + strings.Join(parts, ", ")
}

// CycleError reports that the model graph contains a dependency cycle.
type CycleError struct {
	Models []string // the smallest cycle-containing strongly-connected component
}

func (e *CycleError) Error() string {
	return "dependency cycle among models: " + strings.Join(e.Models, ", ")
}

// Graph is a validated, buildable dependency graph over models.
type Graph struct {
	models    []Model
	index     map[string]int
	externals map[string]bool
}

// New constructs a graph from models (in discovery order) and an optional
// set of declared external source names in "schema.table" form. Validation
// happens eagerly: an edge that resolves to neither a known model nor an
// external source is reported via UndefinedRefError before any ordering is
// attempted.
func New(models []Model, externalSources []string) (*Graph, error) {
	g := &Graph{
		index:     make(map[string]int, len(models)),
		externals: make(map[string]bool, len(externalSources)),
	}
	g.models = append(g.models, models...)
	for i, m := range g.models {
		g.index[m.Name] = i
	}
	for _, e := range externalSources {
		g.externals[e] = true
	}

	var bad []Edge
	for _, m := range g.models {
		for _, dep := range m.DependsOn {
			if _, ok := g.index[dep]; ok {
				continue
			}
			if g.isExternal(dep) {
				continue
			}
			bad = append(bad, Edge{From: m.Name, To: dep})
		}
	}
	if len(bad) > 0 {
		return nil, &UndefinedRefError{Edges: bad}
	}
	return g, nil
}

// isExternal matches dep against declared external sources either as a
// full "schema.table" name or by its bare "table" suffix.
func (g *Graph) isExternal(dep string) bool {
	if g.externals[dep] {
		return true
	}
	for full := range g.externals {
		if idx := strings.LastIndexByte(full, '.'); idx != -1 && full[idx+1:] == dep {
			return true
		}
	}
	return false
}

// Order computes a deterministic topological order over model↔model edges
// only (external deps stay in each model's DependsOn but have no
// corresponding node, so they are skipped here). Ties among nodes of equal
// in-degree break by FIFO insertion order, for reproducible output across
// runs.
func (g *Graph) Order() ([]string, error) {
	n := len(g.models)
	inDegree := make([]int, n)
	// dependents[i] = indices of models that depend on model i.
	dependents := make([][]int, n)

	for i, m := range g.models {
		for _, dep := range m.DependsOn {
			j, ok := g.index[dep]
			if !ok {
				continue // external, not a graph edge
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	var order []string
	visited := make([]bool, n)
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		if visited[i] {
			continue
		}
		visited[i] = true
		order = append(order, g.models[i].Name)
		for _, dep := range dependents[i] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) < n {
		var remaining []int
		for i := 0; i < n; i++ {
			if !visited[i] {
				remaining = append(remaining, i)
			}
		}
		cyclic := g.smallestCycleSCC(remaining)
		sort.Strings(cyclic)
		return nil, &CycleError{Models: cyclic}
	}
	return order, nil
}

// smallestCycleSCC runs Tarjan's algorithm over the subgraph induced by
// remaining (the nodes Kahn's algorithm never dequeued) and returns the
// model names of the smallest strongly-connected component that actually
// contains a cycle (size > 1, or a single node with a self-dependency) —
// per spec.md §8 invariant 8, which names only the cycle itself and not
// every node that merely depends on one.
func (g *Graph) smallestCycleSCC(remaining []int) []string {
	inSubgraph := make(map[int]bool, len(remaining))
	for _, i := range remaining {
		inSubgraph[i] = true
	}

	t := &tarjan{
		index:   make(map[int]int),
		lowlink: make(map[int]int),
		onStack: make(map[int]bool),
	}
	for _, i := range remaining {
		if _, seen := t.index[i]; !seen {
			t.strongConnect(g, i, inSubgraph)
		}
	}

	var best []int
	for _, scc := range t.sccs {
		if !hasCycle(g, scc) {
			continue
		}
		if best == nil || len(scc) < len(best) {
			best = scc
		}
	}

	names := make([]string, 0, len(best))
	for _, i := range best {
		names = append(names, g.models[i].Name)
	}
	return names
}

// hasCycle reports whether scc is a genuine cycle: more than one node, or a
// single node with an edge to itself.
func hasCycle(g *Graph, scc []int) bool {
	if len(scc) > 1 {
		return true
	}
	i := scc[0]
	for _, dep := range g.models[i].DependsOn {
		if j, ok := g.index[dep]; ok && j == i {
			return true
		}
	}
	return false
}

// tarjan holds the running state for Tarjan's strongly-connected-components
// algorithm, restricted to a caller-supplied node subset.
type tarjan struct {
	counter int
	index   map[int]int
	lowlink map[int]int
	onStack map[int]bool
	stack   []int
	sccs    [][]int
}

func (t *tarjan) strongConnect(g *Graph, v int, inSubgraph map[int]bool) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, dep := range g.models[v].DependsOn {
		w, ok := g.index[dep]
		if !ok || !inSubgraph[w] {
			continue
		}
		if _, seen := t.index[w]; !seen {
			t.strongConnect(g, w, inSubgraph)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []int
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}
