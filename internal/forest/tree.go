package forest

import "math/rand"

// item is a registered vector as captured by a build snapshot. Vectors are never
// mutated after insertion, so snapshots and trees share them without copying.
type item struct {
	id  string
	vec []float32
}

// node is either a leaf holding the items routed to it or an internal split.
// Children are indices into the owning tree's node arena.
type node struct {
	leaf  bool
	items []item

	dim   int
	value float32
	left  int
	right int
}

// tree is a single randomized partition tree. The root is nodes[0].
type tree struct {
	nodes    []node
	maxDepth int
}

// buildTree constructs a tree over items. The tree takes ownership of the slice.
func buildTree(items []item, dim, maxDepth int, rng *rand.Rand) *tree {
	t := &tree{maxDepth: maxDepth}
	t.grow(items, 0, dim, rng)
	return t
}

// grow appends the subtree for items at the given depth and returns its index.
// Termination relies on the depth bound: a split whose values are all equal
// puts every item on the left and is only stopped by maxDepth.
func (t *tree) grow(items []item, depth, dim int, rng *rand.Rand) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{})
	if len(items) <= 1 || depth >= t.maxDepth {
		t.nodes[idx] = node{leaf: true, items: items}
		return idx
	}

	d := rng.Intn(dim)
	v := items[rng.Intn(len(items))].vec[d]

	left := make([]item, 0, len(items))
	var right []item
	for _, it := range items {
		if it.vec[d] <= v {
			left = append(left, it)
		} else {
			right = append(right, it)
		}
	}

	l := t.grow(left, depth+1, dim, rng)
	r := t.grow(right, depth+1, dim, rng)
	t.nodes[idx] = node{dim: d, value: v, left: l, right: r}
	return idx
}

// search descends a single path to the leaf the query falls into and returns
// its items unfiltered.
func (t *tree) search(query []float32) []item {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.items
		}
		if query[n.dim] <= n.value {
			i = n.left
		} else {
			i = n.right
		}
	}
}
