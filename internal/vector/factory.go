package vector

import (
	"fmt"

	"github.com/hyperjump/chikai/internal/forest"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeForest uses the randomized partition-tree forest (approximate).
	IndexTypeForest IndexType = "forest"
	// IndexTypeMemory uses exact brute-force search. Good for small catalogs.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "forest" (default), "memory". Forest options are ignored by
// the memory index.
func NewVectorIndex(indexType string, dimensions int, opts ...forest.Option) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeForest, "":
		return NewForestIndex(dimensions, opts...)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: forest, memory)", indexType)
	}
}
