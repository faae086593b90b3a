// Package forest implements an approximate nearest-neighbor index built from a
// forest of randomized partition trees.
//
// Each tree recursively splits a shuffled snapshot of the registered vectors on
// one randomly chosen dimension, using the coordinate of a randomly sampled item
// of the current partition as the threshold. A query descends every tree along a
// single path (no backtracking) to one leaf; the union of those leaves is
// deduplicated, scored by exact Euclidean distance and truncated to k.
//
// Registration is cheap and never touches built trees. Items added after a Build
// stay invisible to queries until the next Build. Built trees are immutable and
// are swapped in atomically, so queries never observe a partially built forest.
package forest
