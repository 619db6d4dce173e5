package engine

import "sort"

// tarjanSCC computes the strongly connected components of the graph
// (nodeSet, edges), where edges[n] lists n's out-neighbors restricted to
// nodeSet. Each returned component is sorted for determinism; the order of
// components themselves follows Tarjan's discovery order (reverse
// topological), which is not load-bearing here since callers re-derive any
// ordering they need from BFS order.
func tarjanSCC(nodeSet []string, edges map[string][]string) [][]string {
	t := &tarjan{
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
		edges:   edges,
	}
	sorted := make([]string, len(nodeSet))
	copy(sorted, nodeSet)
	sort.Strings(sorted)

	for _, n := range sorted {
		if _, visited := t.index[n]; !visited {
			t.strongconnect(n)
		}
	}
	return t.components
}

type tarjan struct {
	counter    int
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	edges      map[string][]string
	components [][]string
}

func (t *tarjan) strongconnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	neighbors := make([]string, len(t.edges[v]))
	copy(neighbors, t.edges[v])
	sort.Strings(neighbors)

	for _, w := range neighbors {
		if _, visited := t.index[w]; !visited {
			t.strongconnect(w)
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
		var component []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		sort.Strings(component)
		t.components = append(t.components, component)
	}
}
