// Package graph computes calculation order and dirty closures over the
// connectivity of a flowsheet. Nodes are object names; an edge a->b means
// b consumes a's results and must be calculated after it.
package graph

import (
	"fmt"
	"sort"
)

type Graph struct {
	nodes map[string]bool
	// upstream[b] lists the nodes b depends on; downstream is the reverse.
	upstream   map[string][]string
	downstream map[string][]string
}

func New() *Graph {
	return &Graph{
		nodes:      make(map[string]bool),
		upstream:   make(map[string][]string),
		downstream: make(map[string][]string),
	}
}

func (g *Graph) AddNode(name string) {
	g.nodes[name] = true
}

// AddEdge records that 'to' depends on 'from'. Both endpoints are added
// implicitly.
func (g *Graph) AddEdge(from, to string) {
	g.nodes[from] = true
	g.nodes[to] = true
	g.upstream[to] = append(g.upstream[to], from)
	g.downstream[from] = append(g.downstream[from], to)
}

// Upstream returns the direct dependencies of a node.
func (g *Graph) Upstream(name string) []string {
	return g.upstream[name]
}

// TopoOrder returns a deterministic topological order (Kahn's algorithm,
// ready nodes taken in name order). A cycle is an error naming one of its
// members.
func (g *Graph) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		indegree[name] = len(g.upstream[name])
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unlocked []string
		for _, next := range g.downstream[name] {
			indegree[next]--
			if indegree[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.nodes) {
		for name, deg := range indegree {
			if deg > 0 {
				return nil, fmt.Errorf("dependency cycle involving %s", name)
			}
		}
	}
	return order, nil
}

// Closure expands a seed set to everything downstream of it. Used to turn
// the set of dirty objects into the set an incremental pass must visit:
// anything fed by a dirty object has stale inputs even if its own flag is
// still set.
func (g *Graph) Closure(seed map[string]bool) map[string]bool {
	out := make(map[string]bool, len(seed))
	var stack []string
	for name := range seed {
		out[name] = true
		stack = append(stack, name)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.downstream[name] {
			if !out[next] {
				out[next] = true
				stack = append(stack, next)
			}
		}
	}
	return out
}
