// Package network provides the static topology the contagion runs on.
// A Network is immutable once built and safe to share across goroutines.
package network

import (
	"fmt"
	"sort"
)

// Network is a fixed node/edge topology with dense node indices 0..n-1.
// Adjacency is stored in compressed sparse rows for both directions.
type Network struct {
	name     string
	directed bool
	labels   []int64
	index    map[int64]int
	edges    int

	inOffsets  []int32
	inNodes    []int32
	outOffsets []int32
	outNodes   []int32
}

// Name identifies the network in result files and run records.
func (n *Network) Name() string { return n.name }

// Directed reports whether edges act in one direction only.
func (n *Network) Directed() bool { return n.directed }

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int { return len(n.labels) }

// EdgeCount returns the number of distinct edges (each undirected edge once).
func (n *Network) EdgeCount() int { return n.edges }

// Label returns the external identifier of the node at index i.
func (n *Network) Label(i int) int64 { return n.labels[i] }

// Index returns the dense index of the node with the given label.
func (n *Network) Index(label int64) (int, bool) {
	i, ok := n.index[label]
	return i, ok
}

// Influencers returns the nodes that act as neighbor for induced transitions
// of node i. The returned slice must not be modified.
func (n *Network) Influencers(i int) []int32 {
	return n.inNodes[n.inOffsets[i]:n.inOffsets[i+1]]
}

// Influenced returns the nodes whose induced transitions depend on the state
// of node i. The returned slice must not be modified.
func (n *Network) Influenced(i int) []int32 {
	return n.outNodes[n.outOffsets[i]:n.outOffsets[i+1]]
}

// Degree returns the number of influenced nodes of i.
func (n *Network) Degree(i int) int {
	return int(n.outOffsets[i+1] - n.outOffsets[i])
}

// Builder accumulates nodes and edges before freezing them into a Network.
type Builder struct {
	name     string
	directed bool
	labels   []int64
	index    map[int64]int
	edges    map[[2]int]struct{}
}

// NewBuilder creates an empty builder.
func NewBuilder(name string, directed bool) *Builder {
	return &Builder{
		name:     name,
		directed: directed,
		index:    make(map[int64]int),
		edges:    make(map[[2]int]struct{}),
	}
}

// AddNode registers label and returns its dense index. Adding a label twice
// returns the existing index.
func (b *Builder) AddNode(label int64) int {
	if i, ok := b.index[label]; ok {
		return i
	}
	i := len(b.labels)
	b.labels = append(b.labels, label)
	b.index[label] = i
	return i
}

// AddEdge registers an edge between two labels, adding missing nodes.
// Self-loops and duplicates are ignored.
func (b *Builder) AddEdge(from, to int64) {
	u := b.AddNode(from)
	v := b.AddNode(to)
	if u == v {
		return
	}
	if !b.directed && u > v {
		u, v = v, u
	}
	b.edges[[2]int{u, v}] = struct{}{}
}

// AddNodes registers labels 0..count-1.
func (b *Builder) AddNodes(count int) {
	for i := 0; i < count; i++ {
		b.AddNode(int64(i))
	}
}

// Build freezes the builder into an immutable Network.
func (b *Builder) Build() (*Network, error) {
	n := len(b.labels)
	if n > maxNodes {
		return nil, fmt.Errorf("network %q has %d nodes, limit is %d", b.name, n, maxNodes)
	}
	arcCount := len(b.edges)
	if !b.directed {
		arcCount *= 2
	}
	if arcCount > maxArcs {
		return nil, fmt.Errorf("network %q has %d adjacency entries, limit is %d", b.name, arcCount, maxArcs)
	}

	pairs := make([][2]int, 0, len(b.edges))
	for e := range b.edges {
		pairs = append(pairs, e)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	// arcs: u influences v.
	arcs := make([][2]int, 0, 2*len(pairs))
	for _, p := range pairs {
		arcs = append(arcs, p)
		if !b.directed {
			arcs = append(arcs, [2]int{p[1], p[0]})
		}
	}

	outOffsets, outNodes := compress(n, arcs, false)
	inOffsets, inNodes := compress(n, arcs, true)

	labels := make([]int64, n)
	copy(labels, b.labels)
	index := make(map[int64]int, n)
	for label, i := range b.index {
		index[label] = i
	}

	return &Network{
		name:       b.name,
		directed:   b.directed,
		labels:     labels,
		index:      index,
		edges:      len(pairs),
		inOffsets:  inOffsets,
		inNodes:    inNodes,
		outOffsets: outOffsets,
		outNodes:   outNodes,
	}, nil
}

const maxNodes = 1<<31 - 1

// maxArcs bounds the CSR arrays, whose offsets are int32.
var maxArcs = 1<<31 - 1

// compress builds CSR rows keyed by arc source (or target when reverse).
// Rows are sorted so that iteration order is deterministic.
func compress(n int, arcs [][2]int, reverse bool) ([]int32, []int32) {
	key, val := 0, 1
	if reverse {
		key, val = 1, 0
	}

	offsets := make([]int32, n+1)
	for _, a := range arcs {
		offsets[a[key]+1]++
	}
	for i := 0; i < n; i++ {
		offsets[i+1] += offsets[i]
	}

	nodes := make([]int32, len(arcs))
	fill := make([]int32, n)
	copy(fill, offsets[:n])
	for _, a := range arcs {
		nodes[fill[a[key]]] = int32(a[val])
		fill[a[key]]++
	}
	for i := 0; i < n; i++ {
		row := nodes[offsets[i]:offsets[i+1]]
		sort.Slice(row, func(x, y int) bool { return row[x] < row[y] })
	}
	return offsets, nodes
}
