package vector

import (
	"math"

	"github.com/hyperjump/chikai/internal/forest"
)

// EuclideanDistance returns the L2 distance between a and b, or +Inf when the
// lengths differ.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	return forest.Euclidean(a, b)
}

// Recall returns the fraction of exact results that also appear in approx.
// An empty exact set has recall 1.
func Recall(approx, exact []*VectorResult) float64 {
	if len(exact) == 0 {
		return 1
	}
	seen := make(map[string]struct{}, len(approx))
	for _, r := range approx {
		seen[r.ID] = struct{}{}
	}
	hits := 0
	for _, r := range exact {
		if _, ok := seen[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(exact))
}
