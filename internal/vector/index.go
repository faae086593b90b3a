// Package vector provides vector index and nearest-neighbor search.
package vector

import "context"

// VectorIndex defines vector registration and nearest-neighbor search.
// Registrations become searchable after Build.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Build(ctx context.Context) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	SearchByID(ctx context.Context, id string, k int) ([]*VectorResult, error)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float64 // Euclidean; smaller is closer
}
