package ruleset

import (
	"container/heap"
	"sort"
)

// graph is the compiler's working representation of rule ordering edges:
// plain adjacency list plus in-degree counts, grounded on the
// teacher-pack's Kahn's-algorithm DAG (other_examples' go-gavel
// application/dag.go) but extended with Tarjan SCC for cycle member
// reporting (spec §4.2 step 3 requires listing cycle members, not just
// detecting a cycle).
type graph struct {
	nodes    map[string]struct{}
	adj      map[string][]string
	edgeSet  map[string]struct{}
	inDegree map[string]int
}

func newGraph(names []string) *graph {
	g := &graph{
		nodes:    make(map[string]struct{}, len(names)),
		adj:      make(map[string][]string, len(names)),
		edgeSet:  make(map[string]struct{}),
		inDegree: make(map[string]int, len(names)),
	}
	for _, n := range names {
		g.nodes[n] = struct{}{}
		g.adj[n] = nil
		g.inDegree[n] = 0
	}
	return g
}

// addEdge registers a "from must run before to" edge. Duplicate edges
// are no-ops; edges referencing unknown nodes are the caller's bug and
// panic, since node names are validated before any edge is added.
func (g *graph) addEdge(from, to string) {
	key := from + "\x00" + to
	if _, exists := g.edgeSet[key]; exists {
		return
	}
	if _, ok := g.nodes[from]; !ok {
		panic("ruleset: addEdge from unknown node " + from)
	}
	if _, ok := g.nodes[to]; !ok {
		panic("ruleset: addEdge to unknown node " + to)
	}
	g.edgeSet[key] = struct{}{}
	g.adj[from] = append(g.adj[from], to)
	g.inDegree[to]++
}

// hasEdge reports whether a direct ordering edge exists between a and b
// in either direction.
func (g *graph) hasEdge(a, b string) bool {
	_, fwd := g.edgeSet[a+"\x00"+b]
	_, back := g.edgeSet[b+"\x00"+a]
	return fwd || back
}

// stronglyConnectedComponents computes Tarjan's SCCs. Any component with
// more than one member is a cycle.
func (g *graph) stronglyConnectedComponents() [][]string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic visitation order

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adj[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			sort.Strings(component)
			sccs = append(sccs, component)
		}
	}

	for _, n := range names {
		if _, seen := indices[n]; !seen {
			strongConnect(n)
		}
	}
	return sccs
}

// readyItem is a (priority, name) pair ordered by the tie-breaker spec
// §4.2 step 4 mandates: lexicographically smallest (priority, name) wins.
type readyItem struct {
	priority int
	name     string
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].name < h[j].name
}
func (h readyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)        { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kahnOrder produces the single stable topological ordering: among ready
// nodes, always pop the one minimizing (priority, name), matching spec
// §4.2 step 4 verbatim. Returns an error if not every node gets ordered
// (a cycle slipped through, should not happen once stronglyConnectedComponents
// has already been checked, but the guard stays cheap insurance for the
// caller's invariant).
func (g *graph) kahnOrder(priority map[string]int) ([]string, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	h := &readyHeap{}
	heap.Init(h)
	for n, d := range inDegree {
		if d == 0 {
			heap.Push(h, readyItem{priority: priority[n], name: n})
		}
	}

	order := make([]string, 0, len(g.nodes))
	for h.Len() > 0 {
		item := heap.Pop(h).(readyItem)
		order = append(order, item.name)
		for _, next := range g.adj[item.name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(h, readyItem{priority: priority[next], name: next})
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, errCycleDuringOrder
	}
	return order, nil
}
