package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// RelationshipGraph represents the dependency graph between document types.
// A type depends on the owners of the referenced relations pointing at it,
// since its instances carry the owner's foreign key.
type RelationshipGraph struct {
	nodes map[string]*DocumentType
	edges map[string][]string // type -> dependencies
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(types map[string]*DocumentType) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: types,
		edges: make(map[string][]string),
	}

	for _, name := range sortedNames(types) {
		t := types[name]
		for _, rel := range t.Relations {
			// Many-to-many is symmetric and embedded children share the parent's document
			if rel.Kind != HasOne && rel.Kind != HasMany {
				continue
			}
			if rel.Owner != t.Name {
				continue
			}
			graph.addEdge(rel.Target, t.Name)
		}
	}

	return graph
}

func (g *RelationshipGraph) addEdge(from, to string) {
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

func sortedNames(types map[string]*DocumentType) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectCycles detects circular dependencies in the relationship graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
				continue
			}
			if !recursionStack[neighbor] {
				continue
			}
			for i, n := range path {
				if n == neighbor {
					cycle := make([]string, len(path)-i)
					copy(cycle, path[i:])
					cycles = append(cycles, cycle)
					break
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range sortedNames(g.nodes) {
		if !visited[node] {
			dfs(node, nil)
		}
	}

	return cycles
}

// TopologicalSort returns types in dependency order (dependencies first)
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	for node := range g.nodes {
		outDegree[node] = len(g.edges[node])
	}

	reverseEdges := make(map[string][]string)
	for source, targets := range g.edges {
		for _, target := range targets {
			reverseEdges[target] = append(reverseEdges[target], source)
		}
	}
	for _, dependents := range reverseEdges {
		sort.Strings(dependents)
	}

	queue := []string{}
	for _, node := range sortedNames(g.nodes) {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := []string{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// Dependencies returns the direct dependencies of a type
func (g *RelationshipGraph) Dependencies(name string) []string {
	return append([]string{}, g.edges[name]...)
}

// Dependents returns the types whose instances reference the given type
func (g *RelationshipGraph) Dependents(name string) []string {
	dependents := []string{}
	for node, deps := range g.edges {
		for _, dep := range deps {
			if dep == name {
				dependents = append(dependents, node)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// ValidateGraph checks that every relation targets a registered type and
// that declared many-to-many inverses point back at the owner.
func (g *RelationshipGraph) ValidateGraph() error {
	var errs error

	for _, name := range sortedNames(g.nodes) {
		t := g.nodes[name]
		for _, rel := range t.Relations {
			if rel.Owner != t.Name {
				continue
			}
			target, exists := g.nodes[rel.Target]
			if !exists {
				errs = multierr.Append(errs, fmt.Errorf("type %s references unknown type %s in relation %s: %w",
					t.Name, rel.Target, rel.Name, ErrUnknownType))
				continue
			}
			if rel.Kind != HasAndBelongsToMany || rel.Inverse == "" {
				continue
			}
			inverse, ok := target.Relation(rel.Inverse)
			switch {
			case !ok:
				errs = multierr.Append(errs, &DeclarationError{
					Type:    t.Name,
					Name:    rel.Name,
					Message: fmt.Sprintf("inverse %s is not declared on %s", rel.Inverse, target.Name),
				})
			case inverse.Kind != HasAndBelongsToMany || !t.IsA(inverse.Target):
				errs = multierr.Append(errs, &DeclarationError{
					Type:    t.Name,
					Name:    rel.Name,
					Message: fmt.Sprintf("inverse %s.%s does not point back at %s", target.Name, rel.Inverse, t.Name),
					Hint:    "declare has_and_belongs_to_many on both sides",
				})
			}
		}
	}

	return errs
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
