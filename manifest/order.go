package manifest

import (
	"fmt"
	"strings"
)

// CycleError reports artifacts that include each other.
type CycleError struct {
	// Cycle lists every artifact left unordered, in declaration order.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("artifact include cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// includeOrder holds "must be built before" edges: included -> includer.
type includeOrder struct {
	adjacency map[string][]string
	nodes     []string
	nodeSet   map[string]bool
}

func newIncludeOrder() *includeOrder {
	return &includeOrder{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

func (o *includeOrder) addNode(name string) {
	if o.nodeSet[name] {
		return
	}
	o.nodeSet[name] = true
	o.nodes = append(o.nodes, name)
}

func (o *includeOrder) addEdge(from, to string) {
	o.addNode(from)
	o.addNode(to)
	o.adjacency[from] = append(o.adjacency[from], to)
}

// sort returns a build order using Kahn's algorithm. Artifacts that become
// buildable at the same time keep their declaration order.
func (o *includeOrder) sort() ([]string, error) {
	inDegree := make(map[string]int, len(o.nodes))
	for _, node := range o.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range o.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	queue := make([]string, 0, len(o.nodes))
	for _, node := range o.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(o.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, n := range o.adjacency[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	if len(result) != len(o.nodes) {
		var cycle []string
		for _, node := range o.nodes {
			if inDegree[node] > 0 {
				cycle = append(cycle, node)
			}
		}
		return nil, &CycleError{Cycle: cycle}
	}

	return result, nil
}
