package recommend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/chikai/internal/catalog"
	"github.com/hyperjump/chikai/internal/config"
	"github.com/hyperjump/chikai/internal/embedding"
	"github.com/hyperjump/chikai/internal/forest"
	"github.com/hyperjump/chikai/internal/ingest"
	"github.com/hyperjump/chikai/internal/models"
	"github.com/hyperjump/chikai/internal/storage"
	"github.com/hyperjump/chikai/internal/vector"
)

const testDim = 16

type fixture struct {
	svc     *Service
	store   *storage.SQLiteStorage
	dbPath  string
	catalog *catalog.BleveCatalog
}

func newForestIndex(t *testing.T) vector.VectorIndex {
	t.Helper()
	idx, err := vector.NewVectorIndex("forest", testDim,
		forest.WithTreeCount(10), forest.WithMaxDepth(1), forest.WithSeed(3))
	require.NoError(t, err)
	return idx
}

func newFixture(t *testing.T, idx vector.VectorIndex) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")
	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cat, err := catalog.NewBleveCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	cfg := &config.IndexConfig{DefaultK: 3, MaxK: 5}
	svc := NewService(store, embedding.NewMockEmbedder(testDim), idx, cat, cfg)
	return &fixture{svc: svc, store: store, dbPath: dbPath, catalog: cat}
}

var feed = []models.EventInput{
	{ID: "jazz-1", Title: "Jazz Night", Venue: "The Lyric", Category: "Concerts & Music"},
	{ID: "jazz-2", Title: "Late Jazz Night", Venue: "The Lyric", Category: "Concerts & Music"},
	{ID: "jazz-3", Title: "Jazz Brunch", Venue: "Gillie's", Category: "Food & Drink"},
	{ID: "fb-1", Title: "Hokies Football", Venue: "Lane Stadium", Category: "Live Sports Events"},
	{ID: "fb-2", Title: "Football Tailgate", Venue: "Lane Stadium", Category: "Live Sports Events"},
	{ID: "art-1", Title: "Print Exhibition", Venue: "Moss Arts Center", Category: "Art & Exhibition"},
}

func register(t *testing.T, svc *Service) {
	t.Helper()
	for i := range feed {
		in := feed[i]
		_, err := svc.Register(context.Background(), &in)
		require.NoError(t, err)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	ctx := context.Background()

	ev, err := f.svc.Register(ctx, &models.EventInput{Title: "Open Mic", Venue: "Blacksburg Library"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID, "id should be generated")

	stored, err := f.store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open Mic", stored.Title)

	hits, err := f.catalog.Search(ctx, "library", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ev.ID, hits[0].ID)
	assert.Equal(t, 1, f.svc.index.Size())
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, &models.EventInput{Venue: "nowhere"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	_, err = f.svc.Register(ctx, &models.EventInput{ID: "short", Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, forest.ErrDimensionMismatch)
	_, err = f.store.GetEvent(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrNotFound, "rejected event must not be stored")
}

func TestRegister_ReimportedFeed(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "feed.jsonl")
	writeFeed := func(description string) {
		content := `{"title":"Jazz Night","venue":"The Lyric","starts_at":"2026-11-07T19:30:00-05:00","description":"` + description + `"}
{"title":"Hokies Football","venue":"Lane Stadium"}
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	importer := ingest.NewImporter(f.svc, nil)

	writeFeed("Live quartet.")
	res, err := importer.ImportFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)
	first, err := f.svc.SearchCatalog(ctx, "jazz", 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	writeFeed("Live trio.")
	res, err = importer.ImportFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)

	n, err := f.store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "re-imported records must update in place")
	assert.Equal(t, 2, f.svc.index.Size())

	ev, err := f.store.GetEvent(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Live trio.", ev.Description)
	assert.Equal(t, first[0].Event.CreatedAt.Unix(), ev.CreatedAt.Unix())

	// Same title at another time is a different event.
	_, err = f.svc.Register(ctx, &models.EventInput{Title: "Jazz Night", Venue: "The Lyric"})
	require.NoError(t, err)
	n, err = f.store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

type failingCatalog struct {
	catalog.Catalog
}

func (failingCatalog) Index(context.Context, *models.Event) error {
	return errors.New("catalog unavailable")
}

type failingIndex struct {
	vector.VectorIndex
}

func (failingIndex) Add(context.Context, []string, [][]float32) error {
	return errors.New("index unavailable")
}

func TestRegister_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("new event is not stored", func(t *testing.T) {
		f := newFixture(t, newForestIndex(t))
		f.svc.catalog = failingCatalog{f.catalog}

		_, err := f.svc.Register(ctx, &models.EventInput{ID: "jazz-1", Title: "Jazz Night"})
		require.Error(t, err)
		_, err = f.store.GetEvent(ctx, "jazz-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = f.store.GetVector(ctx, "jazz-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		n, err := f.svc.Restore(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "a failed registration must not come back on restore")
	})

	t.Run("existing event is put back", func(t *testing.T) {
		idx := newForestIndex(t)
		f := newFixture(t, idx)
		_, err := f.svc.Register(ctx, &models.EventInput{ID: "jazz-1", Title: "Jazz Night", Venue: "The Lyric"})
		require.NoError(t, err)
		before, err := f.store.GetVector(ctx, "jazz-1")
		require.NoError(t, err)

		f.svc.index = failingIndex{idx}
		_, err = f.svc.Register(ctx, &models.EventInput{ID: "jazz-1", Title: "Football Tailgate", Venue: "Lane Stadium"})
		require.Error(t, err)

		ev, err := f.store.GetEvent(ctx, "jazz-1")
		require.NoError(t, err)
		assert.Equal(t, "Jazz Night", ev.Title)
		assert.Equal(t, "The Lyric", ev.Venue)
		after, err := f.store.GetVector(ctx, "jazz-1")
		require.NoError(t, err)
		assert.Equal(t, before, after)

		hits, err := f.catalog.Search(ctx, "tailgate", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
		hits, err = f.catalog.Search(ctx, "jazz", 5)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestNeighbors_NotBuilt(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	register(t, f.svc)

	_, err := f.svc.Neighbors(context.Background(), &models.NeighborQuery{ID: "jazz-1"})
	assert.ErrorIs(t, err, forest.ErrIndexNotBuilt)
}

func TestNeighbors_ByID(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	register(t, f.svc)
	ctx := context.Background()
	require.NoError(t, f.svc.Rebuild(ctx))

	resp, err := f.svc.Neighbors(ctx, &models.NeighborQuery{ID: "jazz-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Query.K, "default k applied")
	require.NotEmpty(t, resp.Results)
	assert.LessOrEqual(t, len(resp.Results), 3)
	assert.Equal(t, len(resp.Results), resp.Total)
	for i, n := range resp.Results {
		assert.NotEqual(t, "jazz-1", n.ID, "event must not be its own neighbor")
		assert.Equal(t, i+1, n.Rank)
		require.NotNil(t, n.Event)
		assert.Equal(t, n.ID, n.Event.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, n.Distance, resp.Results[i-1].Distance)
		}
	}

	_, err = f.svc.Neighbors(ctx, &models.NeighborQuery{ID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNeighbors_ExactIndex(t *testing.T) {
	idx, err := vector.NewVectorIndex("memory", testDim)
	require.NoError(t, err)
	f := newFixture(t, idx)
	register(t, f.svc)
	ctx := context.Background()
	require.NoError(t, f.svc.Rebuild(ctx))

	resp, err := f.svc.Neighbors(ctx, &models.NeighborQuery{ID: "jazz-1", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "jazz-2", resp.Results[0].ID)

	resp, err = f.svc.Neighbors(ctx, &models.NeighborQuery{Text: "stadium football", K: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	ids := []string{resp.Results[0].ID, resp.Results[1].ID}
	assert.ElementsMatch(t, []string{"fb-1", "fb-2"}, ids)

	vec, err := embedding.NewMockEmbedder(testDim).Embed(ctx, "Print Exhibition. Moss Arts Center. Art & Exhibition.")
	require.NoError(t, err)
	resp, err = f.svc.Neighbors(ctx, &models.NeighborQuery{Vector: vec, K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "art-1", resp.Results[0].ID)
	assert.InDelta(t, 0, resp.Results[0].Distance, 1e-6)
}

func TestNeighbors_InvalidQuery(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	_, err := f.svc.Neighbors(context.Background(), &models.NeighborQuery{ID: "a", Text: "b"})
	assert.ErrorIs(t, err, models.ErrInvalidQuery)

	_, err = f.svc.Neighbors(context.Background(), &models.NeighborQuery{Vector: []float32{1}})
	assert.True(t, errors.Is(err, forest.ErrDimensionMismatch) || errors.Is(err, forest.ErrIndexNotBuilt))
}

func TestRebuild_Empty(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	ctx := context.Background()
	require.NoError(t, f.svc.Rebuild(ctx), "empty build is not a failure")

	resp, err := f.svc.Neighbors(ctx, &models.NeighborQuery{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Built)
	assert.NotEmpty(t, st.LastBuild)
	assert.Equal(t, 10, st.TreeCount)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	register(t, f.svc)
	ctx := context.Background()

	// A second service over the same storage starts with an empty index.
	fresh := newForestIndex(t)
	cat, err := catalog.NewBleveCatalog("")
	require.NoError(t, err)
	defer cat.Close()
	svc := NewService(f.store, embedding.NewMockEmbedder(testDim), fresh, cat, &config.IndexConfig{DefaultK: 3, MaxK: 5})

	n, err := svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(feed), n)
	assert.Equal(t, len(feed), fresh.Size())
	require.NoError(t, svc.Rebuild(ctx))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(feed), st.Events)
	assert.Equal(t, len(feed), st.IndexedItems)
}

func TestDelete(t *testing.T) {
	idx, err := vector.NewVectorIndex("memory", testDim)
	require.NoError(t, err)
	f := newFixture(t, idx)
	register(t, f.svc)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, "jazz-2"))
	assert.ErrorIs(t, f.svc.Delete(ctx, "jazz-2"), storage.ErrNotFound)

	resp, err := f.svc.Neighbors(ctx, &models.NeighborQuery{ID: "jazz-1", K: 5})
	require.NoError(t, err)
	for _, n := range resp.Results {
		assert.NotEqual(t, "jazz-2", n.ID)
	}
	_, err = f.svc.Neighbors(ctx, &models.NeighborQuery{ID: "jazz-2"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	hits, err := f.svc.SearchCatalog(ctx, "late", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchCatalog(t *testing.T) {
	f := newFixture(t, newForestIndex(t))
	register(t, f.svc)

	hits, err := f.svc.SearchCatalog(context.Background(), "jazz", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3, "default limit applies")
	for _, h := range hits {
		require.NotNil(t, h.Event)
		assert.Contains(t, h.Event.Title, "Jazz")
	}
}
