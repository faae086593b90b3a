package forest

import (
	"fmt"
	"sort"
	"sync"
)

// store maps item ids to their vectors.
type store struct {
	dim   int
	mu    sync.RWMutex
	items map[string][]float32
}

func newStore(dim int) *store {
	return &store{dim: dim, items: make(map[string][]float32)}
}

// put inserts or replaces the vector for id. The vector is copied.
func (s *store) put(id string, vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: item %q has %d dimensions, index expects %d", ErrDimensionMismatch, id, len(vec), s.dim)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	s.mu.Lock()
	s.items[id] = cp
	s.mu.Unlock()
	return nil
}

func (s *store) get(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.items[id]
	return vec, ok
}

func (s *store) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// snapshot returns every item, ordered by id so that a seeded build is reproducible.
func (s *store) snapshot() []item {
	s.mu.RLock()
	out := make([]item, 0, len(s.items))
	for id, vec := range s.items {
		out = append(out, item{id: id, vec: vec})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
