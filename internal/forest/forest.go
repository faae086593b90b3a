package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Forest is an approximate nearest-neighbor index over fixed-dimension vectors.
// It is safe for concurrent use: registrations and queries may run alongside a
// Build, and queries keep using the previous tree set until the new one is ready.
type Forest struct {
	dim       int
	treeCount int
	maxDepth  int
	workers   int
	seed      int64
	seeded    bool
	logger    *zap.Logger
	observer  Observer

	store *store

	buildMu sync.Mutex
	rng     *rand.Rand // guarded by buildMu
	built   atomic.Pointer[treeSet]
}

// treeSet is one published build result.
type treeSet struct {
	trees   []*tree
	items   int
	builtAt time.Time
}

// Info describes the configuration and current state of a Forest.
type Info struct {
	Dimension int       `json:"dimension"`
	TreeCount int       `json:"tree_count"`
	MaxDepth  int       `json:"max_depth"`
	Items     int       `json:"items"`
	Indexed   int       `json:"indexed"`
	Built     bool      `json:"built"`
	BuiltAt   time.Time `json:"built_at,omitempty"`
}

// New creates an empty forest for vectors of the given dimension.
func New(dim int, opts ...Option) (*Forest, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	f := &Forest{dim: dim}
	for _, opt := range opts {
		opt(f)
	}
	if f.treeCount < 0 {
		return nil, fmt.Errorf("tree count must be positive, got %d", f.treeCount)
	}
	if f.maxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative, got %d", f.maxDepth)
	}
	f.applyDefaults()
	if !f.seeded {
		f.seed = time.Now().UnixNano()
	}
	f.rng = rand.New(rand.NewSource(f.seed))
	f.store = newStore(dim)
	return f, nil
}

// Add registers or replaces the vector for id. Built trees are not affected
// until the next Build.
func (f *Forest) Add(id string, vec []float32) error {
	return f.store.put(id, vec)
}

// Vector returns the currently registered vector for id. The returned slice
// must not be modified.
func (f *Forest) Vector(id string) ([]float32, bool) {
	return f.store.get(id)
}

// Build discards any previously built trees and constructs a fresh tree set
// from a snapshot of the current registrations. Concurrent calls are serialized.
// With no registered items the forest is still marked built and ErrEmptyIndex
// is returned.
func (f *Forest) Build(ctx context.Context) error {
	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	start := time.Now()
	snap := f.store.snapshot()
	seeds := make([]int64, f.treeCount)
	for i := range seeds {
		seeds[i] = f.rng.Int63()
	}

	trees := make([]*tree, f.treeCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			shuffled := make([]item, len(snap))
			copy(shuffled, snap)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			trees[i] = buildTree(shuffled, f.dim, f.maxDepth, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.observer.ObserveBuild(f.treeCount, len(snap), time.Since(start), err)
		return fmt.Errorf("build forest: %w", err)
	}

	f.built.Store(&treeSet{trees: trees, items: len(snap), builtAt: time.Now()})
	elapsed := time.Since(start)

	var err error
	if len(snap) == 0 {
		err = ErrEmptyIndex
	}
	f.observer.ObserveBuild(f.treeCount, len(snap), elapsed, err)
	f.logger.Debug("forest built",
		zap.Int("trees", f.treeCount),
		zap.Int("max_depth", f.maxDepth),
		zap.Int("items", len(snap)),
		zap.Duration("elapsed", elapsed),
	)
	return err
}

// QueryByID returns up to k neighbors of the registered item id, ordered by
// ascending distance and then id. The item itself is part of the result when
// a tree routed it to the same leaf.
func (f *Forest) QueryByID(ctx context.Context, id string, k int) ([]Neighbor, error) {
	vec, ok := f.store.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return f.query(ctx, vec, k)
}

// QueryByVector returns up to k neighbors of vec, ordered by ascending distance
// and then id.
func (f *Forest) QueryByVector(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if len(vec) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d", ErrDimensionMismatch, len(vec), f.dim)
	}
	return f.query(ctx, vec, k)
}

func (f *Forest) query(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	start := time.Now()
	set := f.built.Load()
	if set == nil {
		f.observer.ObserveQuery(k, 0, time.Since(start), ErrIndexNotBuilt)
		return nil, ErrIndexNotBuilt
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	leaves := make([][]item, len(set.trees))
	for i, t := range set.trees {
		if err := ctx.Err(); err != nil {
			f.observer.ObserveQuery(k, 0, time.Since(start), err)
			return nil, err
		}
		leaves[i] = t.search(vec)
	}
	out, candidates := mergeCandidates(vec, leaves, k)
	f.observer.ObserveQuery(k, candidates, time.Since(start), nil)
	return out, nil
}

// Dimension returns the vector dimension.
func (f *Forest) Dimension() int { return f.dim }

// Len returns the number of registered items, built or not.
func (f *Forest) Len() int { return f.store.len() }

// TreeCount returns the number of trees in the current tree set, or 0 before
// the first Build.
func (f *Forest) TreeCount() int {
	if set := f.built.Load(); set != nil {
		return len(set.trees)
	}
	return 0
}

// Info returns a description of the forest.
func (f *Forest) Info() Info {
	info := Info{
		Dimension: f.dim,
		TreeCount: f.treeCount,
		MaxDepth:  f.maxDepth,
		Items:     f.store.len(),
	}
	if set := f.built.Load(); set != nil {
		info.Built = true
		info.Indexed = set.items
		info.BuiltAt = set.builtAt
	}
	return info
}

// IsEmptyIndex reports whether err is the non-fatal empty build result.
func IsEmptyIndex(err error) bool {
	return errors.Is(err, ErrEmptyIndex)
}
