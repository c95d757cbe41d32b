package graph

import "context"

// cycleFinder implements Johnson's elementary circuit enumeration. For each
// start vertex s, in insertion order, it searches only the strongly connected
// component of s within the subgraph of vertices >= s, so every cycle is
// found exactly once, rooted at its earliest-inserted vertex.
type cycleFinder struct {
	ctx   context.Context
	g     *digraph
	limit int

	start     int
	inSCC     []bool
	blocked   []bool
	blockedBy []map[int]struct{}
	stack     []int

	cycles    [][]string
	truncated bool
	err       error
}

func newCycleFinder(ctx context.Context, g *digraph, limit int) *cycleFinder {
	n := len(g.ids)
	return &cycleFinder{
		ctx:       ctx,
		g:         g,
		limit:     limit,
		inSCC:     make([]bool, n),
		blocked:   make([]bool, n),
		blockedBy: make([]map[int]struct{}, n),
		cycles:    [][]string{},
	}
}

func (f *cycleFinder) run() error {
	for s := range f.g.ids {
		if f.done() {
			break
		}
		component := f.componentOf(s)
		if len(component) == 1 && !f.hasSelfLoop(s) {
			continue
		}

		for i := range f.inSCC {
			f.inSCC[i] = false
		}
		for _, v := range component {
			f.inSCC[v] = true
			f.blocked[v] = false
			f.blockedBy[v] = nil
		}
		f.start = s
		f.stack = f.stack[:0]
		f.circuit(s)
	}
	return f.err
}

func (f *cycleFinder) done() bool {
	if f.err != nil || f.truncated {
		return true
	}
	if err := f.ctx.Err(); err != nil {
		f.err = err
		return true
	}
	return false
}

func (f *cycleFinder) hasSelfLoop(v int) bool {
	for _, w := range f.g.adj[v] {
		if w == v {
			return true
		}
	}
	return false
}

func (f *cycleFinder) circuit(v int) bool {
	found := false
	f.stack = append(f.stack, v)
	f.blocked[v] = true

	for _, w := range f.g.adj[v] {
		if f.done() {
			break
		}
		if !f.inSCC[w] {
			continue
		}
		if w == f.start {
			f.emit()
			found = true
		} else if !f.blocked[w] && f.circuit(w) {
			found = true
		}
	}

	if found {
		f.unblock(v)
	} else {
		for _, w := range f.g.adj[v] {
			if !f.inSCC[w] {
				continue
			}
			if f.blockedBy[w] == nil {
				f.blockedBy[w] = map[int]struct{}{}
			}
			f.blockedBy[w][v] = struct{}{}
		}
	}

	f.stack = f.stack[:len(f.stack)-1]
	return found
}

func (f *cycleFinder) unblock(u int) {
	f.blocked[u] = false
	for w := range f.blockedBy[u] {
		delete(f.blockedBy[u], w)
		if f.blocked[w] {
			f.unblock(w)
		}
	}
}

func (f *cycleFinder) emit() {
	if len(f.cycles) >= f.limit {
		f.truncated = true
		return
	}
	cycle := make([]string, 0, len(f.stack)+1)
	for _, v := range f.stack {
		cycle = append(cycle, f.g.ids[v])
	}
	cycle = append(cycle, f.g.ids[f.start])
	f.cycles = append(f.cycles, cycle)
}

// componentOf returns the strongly connected component containing s in the
// subgraph induced by vertices >= s (Tarjan, rooted at s).
func (f *cycleFinder) componentOf(s int) []int {
	n := len(f.g.ids)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		counter   int
		stack     []int
		component []int
	)

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range f.g.adj[v] {
			if w < s {
				continue
			}
			if index[w] == -1 {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var members []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		if v == s {
			component = members
		}
	}
	strongConnect(s)
	return component
}
