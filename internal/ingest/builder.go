package ingest

import (
	"context"
	"log/slog"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/types"
)

// Builder turns one document's extraction output into ordered graph writes:
// document node first, then chunks, then entity merges with MENTIONS edges,
// then relationship edges. Callers serialize Build per document; entity
// merges are additionally guarded by a per-canonical-key lock so concurrent
// documents sharing an entity cannot race its creation.
type Builder struct {
	repo        graph.Repository
	entityLocks *keyedMutex
	logger      *slog.Logger
}

// BuildStats reports what one Build call wrote.
type BuildStats struct {
	ChunksWritten   int
	EntitiesCreated int
	EntitiesMerged  int
	RelationsAdded  int
	// Watermark is the number of chunks fully committed, counting a chunk
	// as committed once the chunk node and all its entity edges are in the
	// graph. On error it marks how far the document got.
	Watermark int
}

// NewBuilder creates a builder over the repository. A nil logger defaults to
// slog.Default().
func NewBuilder(repo graph.Repository, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		repo:        repo,
		entityLocks: newKeyedMutex(),
		logger:      logger,
	}
}

// Build writes the document, its chunks, and per-chunk extraction results.
// results must be parallel to chunks; a nil entry means no extraction output
// for that chunk. Returns stats including the commit watermark reached.
func (b *Builder) Build(ctx context.Context, doc *document.Document, chunks []document.Chunk, results []extract.Result) (BuildStats, error) {
	var stats BuildStats

	if err := b.repo.UpsertDocument(ctx, doc); err != nil {
		return stats, err
	}

	topicCount := make(map[string]int)
	entityByKey := make(map[string]document.Entity)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return stats, types.WrapError(types.INGEST_CANCELLED, "ingestion cancelled", err)
		}
		if err := b.repo.UpsertChunk(ctx, chunk); err != nil {
			return stats, err
		}
		stats.ChunksWritten++

		if i < len(results) {
			if err := b.writeChunkEntities(ctx, chunk, results[i], &stats, topicCount, entityByKey); err != nil {
				return stats, err
			}
		}
		stats.Watermark = i + 1
	}

	// An entity mentioned across multiple chunks is a topic of the document.
	for key, count := range topicCount {
		if count < 2 {
			continue
		}
		entity := entityByKey[key]
		err := b.repo.AddRelationship(ctx, doc.ID, entity.ID, document.RelationHasTopic, nil)
		if err != nil {
			return stats, err
		}
		stats.RelationsAdded++
	}
	return stats, nil
}

func (b *Builder) writeChunkEntities(ctx context.Context, chunk document.Chunk, result extract.Result, stats *BuildStats, topicCount map[string]int, entityByKey map[string]document.Entity) error {
	seenInChunk := make(map[string]bool)
	for _, mention := range result.Mentions {
		entity := mention.Entity()
		if err := b.mergeEntity(ctx, entity, chunk.ID, stats); err != nil {
			return err
		}
		if !seenInChunk[entity.CanonicalKey] {
			seenInChunk[entity.CanonicalKey] = true
			topicCount[entity.CanonicalKey]++
			entityByKey[entity.CanonicalKey] = entity
		}
	}

	for _, rel := range result.Relations {
		from := document.NewEntity(rel.FromName, rel.FromType)
		to := document.NewEntity(rel.ToName, rel.ToType)
		// Endpoints may not have been mentions themselves; merge them so
		// the edge has nodes to land on.
		if err := b.mergeEntity(ctx, from, chunk.ID, stats); err != nil {
			return err
		}
		if err := b.mergeEntity(ctx, to, chunk.ID, stats); err != nil {
			return err
		}
		err := b.repo.AddRelationship(ctx, from.ID, to.ID, document.RelationRelatedTo,
			map[string]any{"source_chunk_id": chunk.ID.String()})
		if err != nil {
			return err
		}
		stats.RelationsAdded++
	}
	return nil
}

// mergeEntity upserts the entity under its canonical-key lock and counts
// whether the merge created a new node or folded into an existing one.
func (b *Builder) mergeEntity(ctx context.Context, entity document.Entity, chunkID types.ID, stats *BuildStats) error {
	b.entityLocks.Lock(entity.CanonicalKey)
	defer b.entityLocks.Unlock(entity.CanonicalKey)

	existing, err := b.repo.EntityByCanonicalKey(ctx, entity.CanonicalKey)
	if err != nil {
		return err
	}
	if err := b.repo.UpsertEntityMention(ctx, entity, chunkID); err != nil {
		return err
	}
	if existing == nil {
		stats.EntitiesCreated++
	} else {
		stats.EntitiesMerged++
	}
	return nil
}
