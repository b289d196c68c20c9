package gillespie

// sumTree is an array-backed complete binary tree of partial sums over
// per-node propensities. Every update recomputes the leaf-to-root path from
// the children, so internal sums always equal a fresh rebuild and an all-zero
// leaf set sums to exactly zero.
type sumTree struct {
	size  int // number of leaf slots, a power of two
	nodes []float64
}

func newSumTree(n int) *sumTree {
	size := 1
	for size < n {
		size <<= 1
	}
	return &sumTree{size: size, nodes: make([]float64, 2*size)}
}

// load sets all leaves at once and builds the internal sums in O(n).
func (t *sumTree) load(weights []float64) {
	copy(t.nodes[t.size:], weights)
	for p := t.size - 1; p >= 1; p-- {
		t.nodes[p] = t.nodes[2*p] + t.nodes[2*p+1]
	}
}

func (t *sumTree) set(i int, w float64) {
	p := i + t.size
	t.nodes[p] = w
	for p > 1 {
		p >>= 1
		t.nodes[p] = t.nodes[2*p] + t.nodes[2*p+1]
	}
}

func (t *sumTree) get(i int) float64 {
	return t.nodes[i+t.size]
}

func (t *sumTree) total() float64 {
	return t.nodes[1]
}

// find returns the leaf whose cumulative interval contains u, for u in
// [0, total). The descent only enters subtrees with a positive sum, so the
// returned leaf always has a positive weight when total > 0.
func (t *sumTree) find(u float64) int {
	p := 1
	for p < t.size {
		left, right := t.nodes[2*p], t.nodes[2*p+1]
		if u < left || right <= 0 {
			p = 2 * p
		} else {
			u -= left
			p = 2*p + 1
		}
	}
	return p - t.size
}
