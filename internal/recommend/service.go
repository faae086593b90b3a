// Package recommend wires storage, embedding, the nearest-neighbor index, and
// the catalog into event registration and neighbor lookup.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/chikai/internal/catalog"
	"github.com/hyperjump/chikai/internal/config"
	"github.com/hyperjump/chikai/internal/embedding"
	"github.com/hyperjump/chikai/internal/forest"
	"github.com/hyperjump/chikai/internal/models"
	"github.com/hyperjump/chikai/internal/storage"
	"github.com/hyperjump/chikai/internal/vector"
)

const restoreBatch = 256

// Service registers events and answers neighbor queries.
type Service struct {
	storage   storage.Storage
	embedder  embedding.Embedder
	index     vector.VectorIndex
	catalog   catalog.Catalog
	config    *config.IndexConfig
	logger    *zap.Logger
	diskPaths []string

	mu        sync.Mutex
	lastBuild time.Time
	buildErr  error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for registration and build events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDiskPaths sets the paths summed into Status disk usage.
func WithDiskPaths(paths ...string) Option {
	return func(s *Service) { s.diskPaths = paths }
}

// NewService creates a service over the given dependencies.
func NewService(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.VectorIndex,
	cat catalog.Catalog,
	cfg *config.IndexConfig,
	opts ...Option,
) *Service {
	s := &Service{
		storage:  store,
		embedder: embedder,
		index:    index,
		catalog:  cat,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Register validates and stores an event, embeds it when no vector is given,
// and registers the vector into the index. An input without an id that
// matches a stored event on title, venue, and start time updates that event.
// The event becomes a neighbor candidate after the next Rebuild. When a step
// fails, the stored rows are put back the way they were.
func (s *Service) Register(ctx context.Context, in *models.EventInput) (*models.Event, error) {
	if err := s.matchExisting(ctx, in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	event := in.Event(time.Now())
	prev, err := s.storage.GetEvent(ctx, event.ID)
	switch {
	case err == nil:
		event.CreatedAt = prev.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
		prev = nil
	default:
		return nil, fmt.Errorf("failed to load event %s: %w", event.ID, err)
	}

	vec := in.Vector
	if len(vec) == 0 {
		text := embedding.EventText(event)
		if vec, err = s.embedder.Embed(ctx, text); err != nil {
			return nil, fmt.Errorf("failed to embed event %s: %w", event.ID, err)
		}
	}
	if len(vec) != s.index.Dimensions() {
		return nil, fmt.Errorf("%w: event %s has %d dimensions, index expects %d",
			forest.ErrDimensionMismatch, event.ID, len(vec), s.index.Dimensions())
	}

	var prevVec []float32
	if prev != nil {
		prevVec, err = s.storage.GetVector(ctx, event.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load vector %s: %w", event.ID, err)
		}
	}

	if err := s.storage.UpsertEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	if err := s.storage.PutVector(ctx, event.ID, vec); err != nil {
		s.rollback(ctx, event.ID, prev, prevVec)
		return nil, fmt.Errorf("failed to store vector: %w", err)
	}
	if err := s.catalog.Index(ctx, event); err != nil {
		s.rollback(ctx, event.ID, prev, prevVec)
		return nil, fmt.Errorf("failed to index event text: %w", err)
	}
	if err := s.index.Add(ctx, []string{event.ID}, [][]float32{vec}); err != nil {
		s.rollbackCatalog(ctx, event.ID, prev)
		s.rollback(ctx, event.ID, prev, prevVec)
		return nil, fmt.Errorf("failed to register vector: %w", err)
	}
	s.logger.Debug("event registered",
		zap.String("id", event.ID),
		zap.Bool("embedded", len(in.Vector) == 0),
		zap.Bool("replaced", prev != nil))
	return event, nil
}

// matchExisting gives an input without an id the id of the stored event with
// the same title, venue, and start time.
func (s *Service) matchExisting(ctx context.Context, in *models.EventInput) error {
	if strings.TrimSpace(in.ID) != "" || strings.TrimSpace(in.Title) == "" {
		return nil
	}
	existing, err := s.storage.FindEvent(ctx, in.Title, in.Venue, in.StartsAt)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up duplicate event: %w", err)
	}
	s.logger.Debug("duplicate event matched", zap.String("id", existing.ID), zap.String("title", in.Title))
	in.ID = existing.ID
	return nil
}

// rollback restores the stored event and vector that preceded a failed
// registration, or removes them when the event was new.
func (s *Service) rollback(ctx context.Context, id string, prev *models.Event, prevVec []float32) {
	var err error
	switch {
	case prev == nil:
		err = s.storage.DeleteEvent(ctx, id)
	default:
		err = s.storage.UpsertEvent(ctx, prev)
		if err == nil && prevVec != nil {
			err = s.storage.PutVector(ctx, id, prevVec)
		}
	}
	if err != nil {
		s.logger.Error("failed to roll back event", zap.String("id", id), zap.Error(err))
	}
}

func (s *Service) rollbackCatalog(ctx context.Context, id string, prev *models.Event) {
	var err error
	if prev == nil {
		err = s.catalog.Delete(ctx, id)
	} else {
		err = s.catalog.Index(ctx, prev)
	}
	if err != nil {
		s.logger.Error("failed to roll back catalog entry", zap.String("id", id), zap.Error(err))
	}
}

// Event returns a stored event.
func (s *Service) Event(ctx context.Context, id string) (*models.Event, error) {
	return s.storage.GetEvent(ctx, id)
}

// Delete removes an event from storage and the catalog. Its vector stays in
// the running index, but neighbor results drop events that no longer exist.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteEvent(ctx, id); err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to remove event from catalog: %w", err)
	}
	s.logger.Debug("event deleted", zap.String("id", id))
	return nil
}

// Restore loads every stored vector into the index. Vectors whose dimension
// does not match the index are skipped. It returns the number registered.
func (s *Service) Restore(ctx context.Context) (int, error) {
	ids := make([]string, 0, restoreBatch)
	vecs := make([][]float32, 0, restoreBatch)
	restored, skipped := 0, 0
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if err := s.index.Add(ctx, ids, vecs); err != nil {
			return err
		}
		restored += len(ids)
		ids, vecs = ids[:0], vecs[:0]
		return nil
	}

	err := s.storage.ListVectors(ctx, func(id string, vec []float32) error {
		if len(vec) != s.index.Dimensions() {
			skipped++
			s.logger.Warn("skipping stored vector with wrong dimension",
				zap.String("id", id),
				zap.Int("dimensions", len(vec)))
			return nil
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
		if len(ids) == restoreBatch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return restored, fmt.Errorf("failed to restore vectors: %w", err)
	}
	s.logger.Info("vectors restored", zap.Int("restored", restored), zap.Int("skipped", skipped))
	return restored, nil
}

// Rebuild builds the index from the current registrations. Building an empty
// index is logged and not reported as a failure.
func (s *Service) Rebuild(ctx context.Context) error {
	start := time.Now()
	err := s.index.Build(ctx)
	if forest.IsEmptyIndex(err) {
		s.logger.Warn("index built with no events")
		err = nil
	}

	s.mu.Lock()
	s.buildErr = err
	if err == nil {
		s.lastBuild = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("index build failed", zap.Error(err))
		return err
	}
	s.logger.Info("index built",
		zap.String("type", s.index.Type()),
		zap.Int("items", s.index.Size()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Neighbors answers a neighbor query by event id, vector, or text. For an id
// query the event itself is left out of its own neighbor list.
func (s *Service) Neighbors(ctx context.Context, q *models.NeighborQuery) (*models.NeighborResponse, error) {
	start := time.Now()
	if err := q.Validate(s.config.DefaultK, s.config.MaxK); err != nil {
		return nil, err
	}

	var results []*vector.VectorResult
	var err error
	switch q.Mode() {
	case "id":
		if _, err := s.storage.GetEvent(ctx, q.ID); err != nil {
			return nil, err
		}
		results, err = s.index.SearchByID(ctx, q.ID, q.K+1)
		results = withoutID(results, q.ID)
	case "vector":
		results, err = s.index.Search(ctx, q.Vector, q.K)
	default:
		vec, embedErr := s.embedder.Embed(ctx, q.Text)
		if embedErr != nil {
			return nil, fmt.Errorf("failed to embed query: %w", embedErr)
		}
		results, err = s.index.Search(ctx, vec, q.K)
	}
	if err != nil {
		return nil, err
	}
	if len(results) > q.K {
		results = results[:q.K]
	}

	neighbors := make([]*models.Neighbor, 0, len(results))
	for _, r := range results {
		event, err := s.storage.GetEvent(ctx, r.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load event %s: %w", r.ID, err)
		}
		neighbors = append(neighbors, &models.Neighbor{
			ID:       r.ID,
			Distance: r.Distance,
			Rank:     len(neighbors) + 1,
			Event:    event,
		})
	}

	return &models.NeighborResponse{
		Query:     *q,
		Results:   neighbors,
		Total:     len(neighbors),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func withoutID(results []*vector.VectorResult, id string) []*vector.VectorResult {
	out := results[:0]
	for _, r := range results {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// SearchCatalog finds events whose text matches query. Limit is defaulted and
// capped like K.
func (s *Service) SearchCatalog(ctx context.Context, query string, limit int) ([]*models.CatalogHit, error) {
	if limit <= 0 {
		limit = s.config.DefaultK
	}
	if limit > s.config.MaxK {
		limit = s.config.MaxK
	}
	hits, err := s.catalog.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CatalogHit, 0, len(hits))
	for _, h := range hits {
		event, err := s.storage.GetEvent(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &models.CatalogHit{ID: h.ID, Score: h.Score, Event: event})
	}
	return out, nil
}

// Status summarizes storage, index, and catalog state.
func (s *Service) Status(ctx context.Context) (*models.Status, error) {
	events, err := s.storage.CountEvents(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.Status{
		Events:     int(events),
		IndexType:  s.index.Type(),
		Registered: s.index.Size(),
	}
	if info, ok := s.index.(interface{ Info() forest.Info }); ok {
		fi := info.Info()
		st.TreeCount = fi.TreeCount
		st.MaxDepth = fi.MaxDepth
		st.Built = fi.Built
		st.IndexedItems = fi.Indexed
	} else {
		st.Built = true
		st.IndexedItems = s.index.Size()
	}

	s.mu.Lock()
	if !s.lastBuild.IsZero() {
		st.LastBuild = s.lastBuild.Format(time.RFC3339)
	}
	if s.buildErr != nil {
		st.LastBuildError = s.buildErr.Error()
	}
	s.mu.Unlock()

	if n, err := s.catalog.DocCount(); err == nil {
		st.CatalogDocs = n
	}
	if len(s.diskPaths) > 0 {
		if n, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			st.DiskUsage = n
		}
	}
	return st, nil
}
