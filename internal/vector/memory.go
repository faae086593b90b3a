package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/chikai/internal/forest"
)

// MemoryIndex is an exact in-memory index using brute-force Euclidean search.
// Suitable for tests, small catalogs and as a recall baseline for the forest.
type MemoryIndex struct {
	dimensions int
	vectors    map[string][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add inserts or replaces vectors with the given IDs.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", forest.ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.vectors[id] = vec
	}
	return nil
}

// Build is a no-op; every registration is searchable immediately.
func (m *MemoryIndex) Build(ctx context.Context) error {
	return nil
}

// Search returns the k nearest vectors by Euclidean distance, ties broken by ID.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", forest.ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return []*VectorResult{}, nil
	}
	scored := make([]forest.Neighbor, 0, len(m.vectors))
	for id, vec := range m.vectors {
		scored = append(scored, forest.Neighbor{ID: id, Distance: EuclideanDistance(query, vec)})
	}
	forest.SortNeighbors(scored)
	if k > len(scored) {
		k = len(scored)
	}
	return toResults(scored[:k]), nil
}

// SearchByID searches with the stored vector of id.
func (m *MemoryIndex) SearchByID(ctx context.Context, id string, k int) ([]*VectorResult, error) {
	m.mu.RLock()
	vec, ok := m.vectors[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", forest.ErrUnknownItem, id)
	}
	return m.Search(ctx, vec, k)
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func toResults(ns []forest.Neighbor) []*VectorResult {
	out := make([]*VectorResult, len(ns))
	for i, n := range ns {
		out[i] = &VectorResult{ID: n.ID, Distance: n.Distance}
	}
	return out
}
