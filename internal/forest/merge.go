package forest

import (
	"math"
	"sort"
)

// Neighbor is a single query hit.
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// mergeCandidates unions the per-tree leaves, keeps the first occurrence of each
// id, scores every candidate by exact distance to query and returns the k
// closest along with the number of distinct candidates seen.
func mergeCandidates(query []float32, leaves [][]item, k int) ([]Neighbor, int) {
	seen := make(map[string]struct{})
	out := make([]Neighbor, 0)
	for _, leaf := range leaves {
		for _, it := range leaf {
			if _, dup := seen[it.id]; dup {
				continue
			}
			seen[it.id] = struct{}{}
			out = append(out, Neighbor{ID: it.id, Distance: Euclidean(query, it.vec)})
		}
	}
	SortNeighbors(out)
	candidates := len(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, candidates
}

// SortNeighbors orders neighbors by ascending distance, breaking ties by id.
func SortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].ID < ns[j].ID
	})
}

// Euclidean returns the L2 distance between a and b. Both must have the same length.
func Euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
