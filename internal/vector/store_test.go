package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/types"
)

func record(text string, embedding []float64) Record {
	return NewRecord(types.NewID(), types.NewID(), text, embedding)
}

// storeUnderTest lets the same behavioral suite run against both backends.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"), MetricCosine)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(MetricCosine),
		"sqlite": sqlite,
	}
}

func TestStoreSearchRanksByCosine(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			east := record("east", []float64{1, 0, 0})
			northeast := record("northeast", []float64{1, 1, 0})
			north := record("north", []float64{0, 1, 0})
			require.NoError(t, store.UpsertBatch(ctx, []Record{east, northeast, north}))

			hits, err := store.Search(ctx, []float64{1, 0.1, 0}, SearchOptions{TopK: 2})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "east", hits[0].Record.Text)
			assert.Equal(t, "northeast", hits[1].Record.Text)
			assert.Greater(t, hits[0].Score, hits[1].Score)
		})
	}
}

func TestStoreDimensionMismatchIsFatal(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.UpsertBatch(ctx, []Record{record("a", []float64{1, 2, 3})}))
			assert.Equal(t, 3, store.Dimension())

			err := store.UpsertBatch(ctx, []Record{record("b", []float64{1, 2})})
			require.Error(t, err)
			assert.Equal(t, types.CONFIG_DIMENSION_MISMATCH, types.CodeOf(err))
			assert.False(t, types.IsRetryable(err))

			_, err = store.Search(ctx, []float64{1, 2}, SearchOptions{TopK: 5})
			require.Error(t, err)
			assert.Equal(t, types.CONFIG_DIMENSION_MISMATCH, types.CodeOf(err))
		})
	}
}

func TestStoreUpsertReplacesByChunkID(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := record("before", []float64{1, 0})
			require.NoError(t, store.UpsertBatch(ctx, []Record{rec}))

			rec.Text = "after"
			rec.Embedding = []float64{0, 1}
			rec.Norm = Norm(rec.Embedding)
			require.NoError(t, store.UpsertBatch(ctx, []Record{rec}))

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			hits, err := store.Search(ctx, []float64{0, 1}, SearchOptions{TopK: 1})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "after", hits[0].Record.Text)
		})
	}
}

func TestStoreDeleteByDocument(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			docA := types.NewID()
			docB := types.NewID()
			records := []Record{
				NewRecord(types.NewID(), docA, "a1", []float64{1, 0}),
				NewRecord(types.NewID(), docA, "a2", []float64{0, 1}),
				NewRecord(types.NewID(), docB, "b1", []float64{1, 1}),
			}
			require.NoError(t, store.UpsertBatch(ctx, records))

			removed, err := store.DeleteByDocument(ctx, docA)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			has, err := store.Has(ctx, records[2].ChunkID)
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

func TestStoreDeleteMissingIDsIsNoop(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Delete(ctx, []types.ID{types.NewID()}))
		})
	}
}

func TestStoreChunkIDs(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := record("a", []float64{1, 0})
			b := record("b", []float64{0, 1})
			require.NoError(t, store.UpsertBatch(ctx, []Record{a, b}))

			ids, err := store.ChunkIDs(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []types.ID{a.ChunkID, b.ChunkID}, ids)
		})
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteStore(path, MetricCosine)
	require.NoError(t, err)
	rec := record("durable", []float64{0.5, 0.5, 0.5})
	require.NoError(t, store.UpsertBatch(ctx, []Record{rec}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, MetricCosine)
	require.NoError(t, err)
	defer reopened.Close()

	// Dimension is recovered from existing rows.
	assert.Equal(t, 3, reopened.Dimension())

	hits, err := reopened.Search(ctx, []float64{0.5, 0.5, 0.5}, SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.ChunkID, hits[0].Record.ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestSQLiteStoreRejectsMetricChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")

	store, err := NewSQLiteStore(path, MetricCosine)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewSQLiteStore(path, MetricDot)
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))

	// Reopening with the original metric still works.
	store, err = NewSQLiteStore(path, MetricCosine)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestStoreGet(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := record("findable", []float64{1, 2})
			require.NoError(t, store.Upsert(ctx, rec))

			got, err := store.Get(ctx, rec.ChunkID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, rec.ChunkID, got.ChunkID)
			assert.Equal(t, "findable", got.Text)
			assert.Equal(t, rec.Embedding, got.Embedding)

			missing, err := store.Get(ctx, types.NewID())
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStoreSearchMinScoreAndDocumentFilter(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			docA := types.NewID()
			docB := types.NewID()
			near := NewRecord(types.NewID(), docA, "close", []float64{1, 0})
			far := NewRecord(types.NewID(), docB, "far", []float64{0, 1})
			require.NoError(t, store.UpsertBatch(ctx, []Record{near, far}))

			// The orthogonal record scores 0 and falls below the floor.
			hits, err := store.Search(ctx, []float64{1, 0}, SearchOptions{TopK: 10, MinScore: 0.5})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "close", hits[0].Record.Text)

			// Filtering to docB hides the better match in docA.
			hits, err = store.Search(ctx, []float64{1, 0}, SearchOptions{
				TopK: 10, DocumentIDs: []types.ID{docB},
			})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "far", hits[0].Record.Text)
		})
	}
}

func TestDotMetric(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricDot)
	long := record("long", []float64{2, 0})
	short := record("short", []float64{1, 0})
	require.NoError(t, store.UpsertBatch(ctx, []Record{long, short}))

	// Dot product favors magnitude; cosine would tie these.
	hits, err := store.Search(ctx, []float64{1, 0}, SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "long", hits[0].Record.Text)
}

func TestVectorConfigValidation(t *testing.T) {
	config := Config{}
	config.ApplyDefaults()
	assert.Equal(t, BackendMemory, config.Backend)
	assert.Equal(t, MetricCosine, config.Metric)
	assert.NoError(t, config.Validate())

	config.Backend = "pinecone"
	err := config.Validate()
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_LOAD_FAILED, types.CodeOf(err))

	config = Config{Backend: BackendMemory, Metric: "euclidean"}
	err = config.Validate()
	require.Error(t, err)
}

func TestOpenSQLiteBackend(t *testing.T) {
	store, err := Open(Config{
		Backend: BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "v.db"),
	})
	require.NoError(t, err)
	defer store.Close()
	assert.True(t, store.Health(context.Background()).IsHealthy())
}
