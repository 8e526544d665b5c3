package ordering

import (
	"fmt"
	"sort"
)

// graph is a directed graph of source names. An edge from a to b means b
// depends on a.
type graph struct {
	deps       map[string]map[string]struct{}
	dependents map[string]map[string]struct{}
}

func newGraph() *graph {
	return &graph{
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

func (g *graph) addNode(id string) {
	if _, ok := g.deps[id]; ok {
		return
	}
	g.deps[id] = make(map[string]struct{})
	g.dependents[id] = make(map[string]struct{})
}

func (g *graph) addEdge(from, to string) {
	g.deps[to][from] = struct{}{}
	g.dependents[from][to] = struct{}{}
}

func (g *graph) sortedNodes() []string {
	ids := make([]string, 0, len(g.deps))
	for id := range g.deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// detectCycles runs a depth-first search with temporary and permanent marks.
func (g *graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("cycle detected involving source %q", id)
		}
		temporary[id] = true
		for next := range g.dependents[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.sortedNodes() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// levels groups nodes by depth. The graph must be acyclic.
func (g *graph) levels() [][]string {
	remaining := make(map[string]int, len(g.deps))
	for id, deps := range g.deps {
		remaining[id] = len(deps)
	}

	var out [][]string
	for len(remaining) > 0 {
		var level []string
		for id, n := range remaining {
			if n == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break
		}
		sort.Strings(level)
		for _, id := range level {
			delete(remaining, id)
			for next := range g.dependents[id] {
				remaining[next]--
			}
		}
		out = append(out, level)
	}
	return out
}
