package detect

import (
	"github.com/opensource-finance/harrier/internal/graph"
)

// elementaryCircuits enumerates every elementary circuit of g using
// Johnson's algorithm (Johnson 1975): for each start vertex s in index
// order, circuits whose least vertex is s are found by a DFS with blocking
// sets restricted to the strongly connected component of s within the
// subgraph induced by vertices >= s. Each circuit is emitted exactly once,
// as a slice of account ids beginning at its least-index vertex.
//
// Vertex indices follow graph insertion order, so the emission order is
// deterministic for a given batch.
func elementaryCircuits(g *graph.Graph, emit func(cycle []string)) {
	ids := g.Nodes()
	n := len(ids)
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	adj := make([][]int, n)
	for i, id := range ids {
		succ := g.Successors(id)
		adj[i] = make([]int, 0, len(succ))
		for _, t := range succ {
			adj[i] = append(adj[i], index[t])
		}
	}

	f := &circuitFinder{
		ids:      ids,
		adj:      adj,
		blocked:  make([]bool, n),
		blockMap: make([][]int, n),
		inSCC:    make([]bool, n),
		emit:     emit,
	}

	for s := 0; s < n; s++ {
		scc := f.componentOf(s)
		if scc == nil {
			// No component of size > 1 contains s; a self-loop is
			// still an elementary circuit of length 1.
			for _, w := range adj[s] {
				if w == s {
					emit([]string{ids[s]})
					break
				}
			}
			continue
		}

		for i := range f.inSCC {
			f.inSCC[i] = false
		}
		for _, v := range scc {
			f.inSCC[v] = true
			f.blocked[v] = false
			f.blockMap[v] = f.blockMap[v][:0]
		}

		f.start = s
		f.circuit(s)
	}
}

type circuitFinder struct {
	ids      []string
	adj      [][]int
	blocked  []bool
	blockMap [][]int
	inSCC    []bool
	stack    []int
	start    int
	emit     func([]string)
}

// circuit performs the blocked DFS from v, emitting every elementary
// circuit back to the start vertex. Returns true if any circuit was found
// through v.
func (f *circuitFinder) circuit(v int) bool {
	found := false
	f.stack = append(f.stack, v)
	f.blocked[v] = true

	for _, w := range f.adj[v] {
		if w < f.start || !f.inSCC[w] {
			continue
		}
		if w == f.start {
			cycle := make([]string, len(f.stack))
			for i, u := range f.stack {
				cycle[i] = f.ids[u]
			}
			f.emit(cycle)
			found = true
		} else if !f.blocked[w] {
			if f.circuit(w) {
				found = true
			}
		}
	}

	if found {
		f.unblock(v)
	} else {
		for _, w := range f.adj[v] {
			if w < f.start || !f.inSCC[w] {
				continue
			}
			f.blockMap[w] = appendUnique(f.blockMap[w], v)
		}
	}

	f.stack = f.stack[:len(f.stack)-1]
	return found
}

func (f *circuitFinder) unblock(v int) {
	f.blocked[v] = false
	pending := f.blockMap[v]
	f.blockMap[v] = f.blockMap[v][:0]
	for _, w := range pending {
		if f.blocked[w] {
			f.unblock(w)
		}
	}
}

// componentOf returns the strongly connected component containing s within
// the subgraph induced by vertices >= s, or nil if that component is
// trivial (size 1). Uses Tarjan's algorithm.
func (f *circuitFinder) componentOf(s int) []int {
	n := len(f.adj)
	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = -1
	}

	var stack []int
	var result []int
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range f.adj[v] {
			if w < s {
				continue
			}
			if indexOf[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexOf[w] < lowlink[v] {
				lowlink[v] = indexOf[w]
			}
		}

		if lowlink[v] == indexOf[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			for _, w := range comp {
				if w == s && len(comp) > 1 {
					result = comp
				}
			}
		}
	}

	strongconnect(s)
	return result
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
