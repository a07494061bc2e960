package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the dependency graph of a definition: an edge runs from an
// upstream activity to each activity that depends on it.
type Graph struct {
	names      []string
	upstream   map[string][]string
	downstream map[string][]string
}

// NewGraph builds the graph from the declared activities. References to
// unknown activities are ignored here; Validate reports them.
func NewGraph(d *Definition) *Graph {
	g := &Graph{
		upstream:   map[string][]string{},
		downstream: map[string][]string{},
	}
	if d == nil {
		return g
	}

	declared := map[string]struct{}{}
	for _, activity := range d.Properties.Activities {
		if activity.Name == "" {
			continue
		}
		if _, exists := declared[activity.Name]; exists {
			continue
		}
		declared[activity.Name] = struct{}{}
		g.names = append(g.names, activity.Name)
	}

	for _, activity := range d.Properties.Activities {
		seen := map[string]struct{}{}
		for _, dependency := range activity.DependsOn {
			target := dependency.Activity
			if _, ok := declared[target]; !ok {
				continue
			}
			if _, duplicate := seen[target]; duplicate {
				continue
			}
			seen[target] = struct{}{}
			g.upstream[activity.Name] = append(g.upstream[activity.Name], target)
			g.downstream[target] = append(g.downstream[target], activity.Name)
		}
	}
	for name := range g.upstream {
		sort.Strings(g.upstream[name])
	}
	for name := range g.downstream {
		sort.Strings(g.downstream[name])
	}
	return g
}

// Names returns the activity names in declaration order.
func (g *Graph) Names() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Roots returns the activities with no dependencies, sorted.
func (g *Graph) Roots() []string {
	if g == nil {
		return nil
	}
	roots := make([]string, 0, len(g.names))
	for _, name := range g.names {
		if len(g.upstream[name]) == 0 {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)
	return roots
}

// Dependencies returns the upstream activities of name, sorted.
func (g *Graph) Dependencies(name string) []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.upstream[name]))
	copy(out, g.upstream[name])
	return out
}

// Dependents returns the downstream activities of name, sorted.
func (g *Graph) Dependents(name string) []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.downstream[name]))
	copy(out, g.downstream[name])
	return out
}

// ExecutionOrder returns Kahn topological waves: every activity in a wave
// has all its dependencies in earlier waves. Waves are sorted
// lexicographically so the order is deterministic.
func (g *Graph) ExecutionOrder() ([][]string, error) {
	if g == nil || len(g.names) == 0 {
		return nil, nil
	}

	indegree := make(map[string]int, len(g.names))
	for _, name := range g.names {
		indegree[name] = len(g.upstream[name])
	}

	var waves [][]string
	placed := 0
	for placed < len(g.names) {
		wave := make([]string, 0)
		for _, name := range g.names {
			if degree, pending := indegree[name]; pending && degree == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			cycle := g.Cycle()
			return nil, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		sort.Strings(wave)
		for _, name := range wave {
			delete(indegree, name)
			for _, dependent := range g.downstream[name] {
				if _, pending := indegree[dependent]; pending {
					indegree[dependent]--
				}
			}
		}
		placed += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}

// Cycle returns one dependency cycle as a closed name path, or nil when
// the graph is acyclic. The witness is deterministic.
func (g *Graph) Cycle() []string {
	if g == nil {
		return nil
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.names))
	parent := make(map[string]string, len(g.names))

	ordered := make([]string, len(g.names))
	copy(ordered, g.names)
	sort.Strings(ordered)

	var cycle []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, next := range g.downstream[node] {
			switch color[next] {
			case white:
				parent[next] = node
				if dfs(next) {
					return true
				}
			case gray:
				// Back edge node -> next closes the cycle.
				cycle = append(cycle, next)
				current := node
				for current != "" && current != next {
					cycle = append(cycle, current)
					current = parent[current]
				}
				cycle = append(cycle, next)
				return true
			}
		}
		color[node] = black
		return false
	}

	for _, name := range ordered {
		if color[name] != white {
			continue
		}
		if dfs(name) {
			break
		}
	}
	if len(cycle) == 0 {
		return nil
	}

	// The parent walk collected the path backwards; reverse into
	// forward order, keeping the closing repeat.
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[len(cycle)-1-i]
	}
	return out
}
