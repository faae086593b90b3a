package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/chikai/internal/forest"
)

// ForestIndex adapts a forest.Forest to VectorIndex.
type ForestIndex struct {
	forest *forest.Forest
}

// NewForestIndex creates a randomized partition-tree forest index.
func NewForestIndex(dimensions int, opts ...forest.Option) (*ForestIndex, error) {
	f, err := forest.New(dimensions, opts...)
	if err != nil {
		return nil, err
	}
	return &ForestIndex{forest: f}, nil
}

// Type returns the index type identifier.
func (fi *ForestIndex) Type() string {
	return string(IndexTypeForest)
}

// Add registers vectors. They become searchable after the next Build.
// Vectors preceding a failing one stay registered.
func (fi *ForestIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i, id := range ids {
		if err := fi.forest.Add(id, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Build rebuilds every tree from the current registrations.
func (fi *ForestIndex) Build(ctx context.Context) error {
	return fi.forest.Build(ctx)
}

// Search returns up to k approximate nearest neighbors of query.
func (fi *ForestIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	ns, err := fi.forest.QueryByVector(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return toResults(ns), nil
}

// SearchByID returns up to k approximate nearest neighbors of a registered item.
func (fi *ForestIndex) SearchByID(ctx context.Context, id string, k int) ([]*VectorResult, error) {
	ns, err := fi.forest.QueryByID(ctx, id, k)
	if err != nil {
		return nil, err
	}
	return toResults(ns), nil
}

// Size returns the number of registered vectors.
func (fi *ForestIndex) Size() int {
	return fi.forest.Len()
}

// Dimensions returns the vector dimension.
func (fi *ForestIndex) Dimensions() int {
	return fi.forest.Dimension()
}

// Info exposes the forest state.
func (fi *ForestIndex) Info() forest.Info {
	return fi.forest.Info()
}

// Close is a no-op.
func (fi *ForestIndex) Close() error {
	return nil
}
