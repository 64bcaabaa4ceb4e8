package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/embed"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

type fixture struct {
	repo      graph.Repository
	store     vector.Store
	extractor *extract.MockExtractor
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, graph.NewMemoryRepository())
}

func newFixtureWithRepo(t *testing.T, repo graph.Repository) *fixture {
	t.Helper()
	f := &fixture{
		repo:      repo,
		store:     vector.NewMemoryStore(vector.MetricCosine),
		extractor: extract.NewMockExtractor(nil),
	}
	f.service = NewService(f.repo, f.store, embed.NewMockEmbedder(32), f.extractor,
		Config{Chunking: document.ChunkConfig{Size: 40, Strategy: document.SplitFixed}}, nil)
	return f
}

const sampleText = "Rosalind Franklin imaged DNA at Kings College. " +
	"Rosalind Franklin later moved to Birkbeck College to study viruses. " +
	"Her work reshaped molecular biology for good."

func TestIngestCreatesDocumentGraphAndVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	receipt, err := f.service.Ingest(ctx, "notes/franklin.md", sampleText, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, receipt.Status)
	assert.Greater(t, receipt.ChunksCreated, 1)
	assert.Greater(t, receipt.EntitiesCreated, 0)

	chunkIDs, err := f.repo.DocumentChunkIDs(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Len(t, chunkIDs, receipt.ChunksCreated)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt.ChunksCreated, count)

	// Graph commit watermark covers every chunk.
	assert.Equal(t, receipt.ChunksCreated, f.service.Watermark(receipt.DocumentID))
}

func TestIngestEmptyDocumentIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	receipt, err := f.service.Ingest(ctx, "empty.md", "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, receipt.Status)
	assert.Zero(t, receipt.ChunksCreated)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestIsIdempotentUnderReingestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	meta := map[string]string{"id": "note-42"}

	first, err := f.service.Ingest(ctx, "note.md", sampleText, meta)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, first.Status)

	second, err := f.service.Ingest(ctx, "note.md", sampleText, meta)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)

	// Same content, same chunk set, same store size.
	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, count)
}

func TestIngestVectorTimestampsFollowGraphDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	meta := map[string]string{"id": "tiebreak"}

	// A document node already in the graph keeps its creation time when the
	// pipeline upserts over it.
	docID, _ := document.Resolve(meta, sampleText)
	original := document.NewDocument(docID, "note.md", document.HashContent("old"), nil)
	original.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.repo.UpsertDocument(ctx, original))

	receipt, err := f.service.Ingest(ctx, "note.md", sampleText, meta)
	require.NoError(t, err)

	chunkIDs, err := f.repo.DocumentChunkIDs(ctx, receipt.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, chunkIDs)

	// Vector records carry the graph's timestamp, so both retrieval legs
	// agree on document recency when breaking score ties.
	for _, id := range chunkIDs {
		rec, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.CreatedAt.Equal(original.CreatedAt),
			"record %s stamped %s, graph document created %s", id, rec.CreatedAt, original.CreatedAt)
	}
}

func TestIngestReplacesShrinkingChunkSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	meta := map[string]string{"id": "shrinker"}

	long, err := f.service.Ingest(ctx, "doc.md", sampleText, meta)
	require.NoError(t, err)

	short, err := f.service.Ingest(ctx, "doc.md", "One tiny note.", meta)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, short.Status)
	assert.Less(t, short.ChunksCreated, long.ChunksCreated)

	chunkIDs, err := f.repo.DocumentChunkIDs(ctx, short.DocumentID)
	require.NoError(t, err)
	assert.Len(t, chunkIDs, short.ChunksCreated)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, short.ChunksCreated, count)
}

func TestIngestWithRuleExtractorLinksTypedEntities(t *testing.T) {
	ctx := context.Background()
	repo := graph.NewMemoryRepository()
	store := vector.NewMemoryStore(vector.MetricCosine)
	service := NewService(repo, store, embed.NewMockEmbedder(32),
		extract.NewRuleExtractor(), Config{}, nil)

	text := "Barack Obama gave a speech in Washington. " +
		"Microsoft announced a new research partnership."
	receipt, err := service.Ingest(ctx, "news/today.md", text, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, receipt.EntitiesCreated, 2)

	person, err := repo.EntityByCanonicalKey(ctx,
		document.CanonicalKey("Barack Obama", document.EntityPerson))
	require.NoError(t, err)
	require.NotNil(t, person)
	org, err := repo.EntityByCanonicalKey(ctx,
		document.CanonicalKey("Microsoft", document.EntityOrg))
	require.NoError(t, err)
	require.NotNil(t, org)

	// Both entities reach their mentioning chunk through the graph.
	for _, id := range []types.ID{person.ID, org.ID} {
		hits, err := repo.ChunksNear(ctx, []types.ID{id}, 1)
		require.NoError(t, err)
		assert.NotEmpty(t, hits)
	}
}

func TestIngestDeduplicatesEntitiesAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Ingest(ctx, "a.md", "Tetsuya spoke first.", map[string]string{"id": "a"})
	require.NoError(t, err)
	second, err := f.service.Ingest(ctx, "b.md", "Tetsuya spoke again.", map[string]string{"id": "b"})
	require.NoError(t, err)

	// The shared name merged instead of creating a second node.
	assert.Zero(t, second.EntitiesCreated)
	assert.Greater(t, second.EntitiesMerged, 0)

	entity, err := f.repo.EntityByCanonicalKey(ctx,
		document.CanonicalKey("Tetsuya", document.EntityOther))
	require.NoError(t, err)
	require.NotNil(t, entity)
}

func TestIngestContinuesWhenExtractionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.extractor.Fail(types.NewError(types.EXTRACT_FAILED, "model melted"))

	receipt, err := f.service.Ingest(ctx, "doc.md", sampleText, nil)
	require.NoError(t, err)
	assert.Greater(t, receipt.ChunksCreated, 0)
	assert.Zero(t, receipt.EntitiesCreated)

	// Vectors were still written; the document stays searchable.
	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt.ChunksCreated, count)
}

// failingEmbedder always errors.
type failingEmbedder struct{ embed.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, types.NewRetryableError(types.EMBED_FAILED, "provider down")
}

func TestIngestAbortsWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	repo := graph.NewMemoryRepository()
	store := vector.NewMemoryStore(vector.MetricCosine)
	service := NewService(repo, store, failingEmbedder{embed.NewMockEmbedder(8)},
		extract.NewMockExtractor(nil), Config{}, nil)

	_, err := service.Ingest(ctx, "doc.md", sampleText, nil)
	require.Error(t, err)
	assert.Equal(t, types.INGEST_FAILED, types.CodeOf(err))

	// Nothing was written anywhere.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// flakyRepo fails the nth chunk upsert to exercise rollback.
type flakyRepo struct {
	graph.Repository
	mu        sync.Mutex
	failAfter int
}

func (r *flakyRepo) UpsertChunk(ctx context.Context, chunk document.Chunk) error {
	r.mu.Lock()
	r.failAfter--
	fail := r.failAfter < 0
	r.mu.Unlock()
	if fail {
		return types.NewError(types.GRAPH_QUERY_FAILED, "disk full")
	}
	return r.Repository.UpsertChunk(ctx, chunk)
}

func TestIngestRollsBackPartialGraphWrites(t *testing.T) {
	ctx := context.Background()
	inner := graph.NewMemoryRepository()
	f := newFixtureWithRepo(t, &flakyRepo{Repository: inner, failAfter: 1})

	receipt, err := f.service.Ingest(ctx, "doc.md", sampleText, nil)
	require.Error(t, err)

	// The partial document was cascaded away.
	chunkIDs, err := inner.DocumentChunkIDs(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, chunkIDs)
	assert.Zero(t, f.service.Watermark(receipt.DocumentID))

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteCascadesGraphAndVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	receipt, err := f.service.Ingest(ctx, "doc.md", sampleText, nil)
	require.NoError(t, err)

	result, err := f.service.Delete(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ChunksCreated, result.ChunksDeleted)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestBatchRunsAllJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	jobs := make([]Job, 8)
	for i := range jobs {
		jobs[i] = Job{
			Source:   "doc.md",
			Content:  strings.Repeat("Document body text. ", i+1),
			Metadata: map[string]string{"id": string(rune('a' + i))},
		}
	}
	results := f.service.IngestBatch(ctx, jobs)
	require.Len(t, results, len(jobs))
	for i, result := range results {
		require.NoError(t, result.Err, "job %d", i)
		assert.Equal(t, StatusCreated, result.Receipt.Status)
	}
}

func TestReconcilerReportsOrphanedVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	receipt, err := f.service.Ingest(ctx, "doc.md", sampleText, nil)
	require.NoError(t, err)

	reconciler := NewReconciler(f.repo, f.store, nil)
	report, err := reconciler.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, receipt.ChunksCreated, report.VectorsChecked)

	// Simulate a crash between graph delete and vector delete.
	_, err = f.repo.DeleteDocumentCascade(ctx, receipt.DocumentID)
	require.NoError(t, err)

	report, err = reconciler.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Len(t, report.OrphanedChunkIDs, receipt.ChunksCreated)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	locks := newKeyedMutex()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("shared")
			counter++
			locks.Unlock("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestIngestConfigDefaults(t *testing.T) {
	config := Config{}
	config.ApplyDefaults()
	assert.Equal(t, 4, config.ChunkConcurrency)
	assert.Equal(t, 4, config.Workers)
	assert.NoError(t, config.Validate())
}
