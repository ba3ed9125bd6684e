package featurea

// IncludeGraph records artifact include edges observed while flattening.
// Edges to an already visited artifact are kept so tooling can show where an
// artifact was re-included.
type IncludeGraph struct {
	root     string
	children map[string][]string
	order    []string
}

func newIncludeGraph(root string) *IncludeGraph {
	return &IncludeGraph{
		root:     root,
		children: make(map[string][]string),
	}
}

func (g *IncludeGraph) addNode(name string) {
	if _, ok := g.children[name]; ok {
		return
	}
	g.children[name] = nil
	g.order = append(g.order, name)
}

func (g *IncludeGraph) addEdge(parent, child string) {
	g.addNode(parent)
	g.addNode(child)
	g.children[parent] = appendUnique(g.children[parent], child)
}

// Root returns the name of the root artifact
func (g *IncludeGraph) Root() string {
	return g.root
}

// Nodes returns artifact names in first-visit order
func (g *IncludeGraph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Children returns the direct includes of an artifact
func (g *IncludeGraph) Children(name string) []string {
	deps := g.children[name]
	result := make([]string, len(deps))
	copy(result, deps)
	return result
}

// Descendants returns every artifact reachable from start, excluding start.
// Uses an explicit stack so deep include chains cannot overflow.
func (g *IncludeGraph) Descendants(start string) []string {
	stack := make([]string, 0, 32)
	stack = append(stack, start)

	result := make([]string, 0, 32)
	visited := make(map[string]bool, 32)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if current != start {
			result = append(result, current)
		}

		deps := g.children[current]
		for i := len(deps) - 1; i >= 0; i-- {
			if !visited[deps[i]] {
				stack = append(stack, deps[i])
			}
		}
	}

	return result
}

// Walk visits the include tree depth first. An artifact seen earlier in the
// walk is reported again with repeated set and is not descended into.
func (g *IncludeGraph) Walk(fn func(name string, depth int, repeated bool) bool) {
	seen := make(map[string]bool)

	var walk func(name string, depth int) bool
	walk = func(name string, depth int) bool {
		if seen[name] {
			return fn(name, depth, true)
		}
		seen[name] = true
		if !fn(name, depth, false) {
			return false
		}
		for _, child := range g.children[name] {
			if !walk(child, depth+1) {
				return false
			}
		}
		return true
	}

	walk(g.root, 0)
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}
