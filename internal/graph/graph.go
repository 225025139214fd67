// Package graph implements the dependency graph used to order workflow
// steps and to detect cycles before execution starts.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a directed graph over step ids. Edges point from a dependency to
// the steps that depend on it.
type Graph struct {
	nodes []string
	index map[string]int
	succ  [][]int
	pred  [][]int
}

// CycleError reports the step ids that participate in a dependency cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving steps: %s", strings.Join(e.Members, ", "))
}

// New creates a graph containing the given node ids and no edges.
// Node ids must be unique.
func New(ids []string) (*Graph, error) {
	g := &Graph{
		nodes: make([]string, len(ids)),
		index: make(map[string]int, len(ids)),
		succ:  make([][]int, len(ids)),
		pred:  make([][]int, len(ids)),
	}
	for i, id := range ids {
		if _, exists := g.index[id]; exists {
			return nil, fmt.Errorf("duplicate node id: %s", id)
		}
		g.nodes[i] = id
		g.index[id] = i
	}
	return g, nil
}

// AddEdge records that `to` depends on `from`.
func (g *Graph) AddEdge(from, to string) error {
	fi, ok := g.index[from]
	if !ok {
		return fmt.Errorf("unknown node: %s", from)
	}
	ti, ok := g.index[to]
	if !ok {
		return fmt.Errorf("unknown node: %s", to)
	}
	for _, s := range g.succ[fi] {
		if s == ti {
			return nil
		}
	}
	g.succ[fi] = append(g.succ[fi], ti)
	g.pred[ti] = append(g.pred[ti], fi)
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Dependencies returns the ids of the direct dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.pred[i]))
	for _, p := range g.pred[i] {
		out = append(out, g.nodes[p])
	}
	return out
}

// Dependents returns the ids of the steps that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.succ[i]))
	for _, s := range g.succ[i] {
		out = append(out, g.nodes[s])
	}
	return out
}

// TransitiveDependents returns every step reachable from id along
// dependency edges, excluding id itself.
func (g *Graph) TransitiveDependents(id string) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.nodes))
	stack := []int{start}
	var out []string
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.succ[cur] {
			if !seen[next] {
				seen[next] = true
				out = append(out, g.nodes[next])
				stack = append(stack, next)
			}
		}
	}
	sort.Strings(out)
	return out
}

// TopoOrder returns the node ids in a topological order computed with
// Kahn's algorithm. Nodes with equal depth keep a deterministic order by
// sorting the ready set. A cycle yields a CycleError naming every node
// that could not be scheduled.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make([]int, len(g.nodes))
	for _, succs := range g.succ {
		for _, t := range succs {
			inDegree[t]++
		}
	}

	var ready []int
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool {
			return g.nodes[ready[a]] < g.nodes[ready[b]]
		})
		cur := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[cur])

		for _, next := range g.succ[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var members []string
		for i, d := range inDegree {
			if d > 0 {
				members = append(members, g.nodes[i])
			}
		}
		sort.Strings(members)
		return nil, &CycleError{Members: members}
	}
	return order, nil
}

// InDegrees returns the initial in-degree of every node, keyed by id.
// The scheduler seeds its ready set from the zero entries.
func (g *Graph) InDegrees() map[string]int {
	out := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		out[id] = 0
	}
	for _, succs := range g.succ {
		for _, t := range succs {
			out[g.nodes[t]]++
		}
	}
	return out
}
