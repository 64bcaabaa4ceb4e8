// Package ingest drives documents through the pipeline: identity
// resolution, chunking, entity extraction and embedding, graph writes, and
// vector writes. Writes within one document are serialized; distinct
// documents ingest in parallel.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/embed"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

// Status values on a Receipt.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusEmpty   = "empty"
)

// Receipt summarizes one completed ingestion.
type Receipt struct {
	DocumentID      types.ID      `json:"document_id"`
	Source          string        `json:"source"`
	ContentHash     string        `json:"content_hash"`
	Status          string        `json:"status"`
	ChunksCreated   int           `json:"chunks_created"`
	EntitiesCreated int           `json:"entities_created"`
	EntitiesMerged  int           `json:"entities_merged"`
	RelationsAdded  int           `json:"relations_added"`
	Duration        time.Duration `json:"duration"`
}

// Config tunes the ingestion pipeline.
type Config struct {
	Chunking document.ChunkConfig `yaml:"chunking" json:"chunking" mapstructure:"chunking"`
	// ChunkConcurrency bounds parallel extract/embed work within one
	// document.
	ChunkConcurrency int `yaml:"chunk_concurrency" json:"chunk_concurrency" mapstructure:"chunk_concurrency"`
	// Workers sizes the pool for multi-document ingestion.
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	c.Chunking.ApplyDefaults()
	if c.ChunkConcurrency == 0 {
		c.ChunkConcurrency = 4
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
}

// Validate checks pipeline settings.
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.ChunkConcurrency < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "chunk_concurrency must be positive")
	}
	if c.Workers < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "workers must be positive")
	}
	return nil
}

// Service orchestrates the ingestion pipeline.
type Service struct {
	repo      graph.Repository
	store     vector.Store
	embedder  embed.Embedder
	extractor extract.Extractor
	builder   *Builder
	config    Config
	docLocks  *keyedMutex
	logger    *slog.Logger

	mu         sync.Mutex
	watermarks map[types.ID]int
}

// NewService wires the pipeline. A nil logger defaults to slog.Default().
func NewService(repo graph.Repository, store vector.Store, embedder embed.Embedder, extractor extract.Extractor, config Config, logger *slog.Logger) *Service {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		store:      store,
		embedder:   embedder,
		extractor:  extractor,
		builder:    NewBuilder(repo, logger),
		config:     config,
		docLocks:   newKeyedMutex(),
		logger:     logger,
		watermarks: make(map[types.ID]int),
	}
}

// Ingest runs one document through the pipeline. Re-ingesting a document
// with the same resolved identity replaces its chunk set and re-merges its
// entities; an empty document is a successful no-op that writes nothing.
//
// Cancellation policy: if the context is cancelled before the graph has
// committed every chunk, the document's partial writes are rolled back with
// a cascade delete. If cancellation lands after the graph committed fully,
// the vector writes are completed on a detached context so the document
// never ends up half-written.
func (s *Service) Ingest(ctx context.Context, source, content string, metadata map[string]string) (Receipt, error) {
	start := time.Now()

	docID, hash := document.Resolve(metadata, content)
	receipt := Receipt{DocumentID: docID, Source: source, ContentHash: hash}

	chunks, err := document.SplitChunks(docID, content, s.config.Chunking)
	if err != nil {
		return receipt, types.WrapError(types.INGEST_FAILED, "chunking failed", err)
	}
	if len(chunks) == 0 {
		receipt.Status = StatusEmpty
		receipt.Duration = time.Since(start)
		return receipt, nil
	}

	// Serialize all writes for one document; other documents proceed.
	s.docLocks.Lock(docID.String())
	defer s.docLocks.Unlock(docID.String())

	existing, err := s.repo.DocumentChunkIDs(ctx, docID)
	if err != nil {
		return receipt, err
	}
	receipt.Status = StatusCreated
	if len(existing) > 0 {
		receipt.Status = StatusUpdated
		// Replace semantics: clear the previous chunk set so stale chunks
		// and entity edges cannot survive a shrinking document. Entities
		// shared with other documents are reference-counted and survive.
		if _, err := s.repo.DeleteDocumentCascade(ctx, docID); err != nil {
			return receipt, err
		}
		if _, err := s.store.DeleteByDocument(ctx, docID); err != nil {
			return receipt, err
		}
	}

	results, embeddings, err := s.analyzeChunks(ctx, chunks)
	if err != nil {
		return receipt, err
	}

	doc := document.NewDocument(docID, source, hash, metadata)
	stats, err := s.builder.Build(ctx, doc, chunks, results)
	s.setWatermark(docID, stats.Watermark)
	if err != nil {
		s.rollback(docID)
		return receipt, err
	}

	// Graph is fully committed; finish vectors even if the caller gave up.
	vectorCtx := ctx
	if ctx.Err() != nil {
		vectorCtx = context.WithoutCancel(ctx)
	}
	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vector.NewRecord(chunk.ID, docID, chunk.Text, embeddings[i])
		records[i].CreatedAt = doc.CreatedAt
	}
	if err := s.store.UpsertBatch(vectorCtx, records); err != nil {
		s.rollback(docID)
		return receipt, err
	}

	receipt.ChunksCreated = stats.ChunksWritten
	receipt.EntitiesCreated = stats.EntitiesCreated
	receipt.EntitiesMerged = stats.EntitiesMerged
	receipt.RelationsAdded = stats.RelationsAdded
	receipt.Duration = time.Since(start)
	s.logger.Info("document ingested",
		"document_id", docID,
		"source", source,
		"status", receipt.Status,
		"chunks", receipt.ChunksCreated,
		"entities_created", receipt.EntitiesCreated,
		"duration", receipt.Duration)
	return receipt, nil
}

// analyzeChunks runs extraction and embedding per chunk with bounded
// concurrency. Extraction failures degrade to an empty mention set and are
// logged; embedding failures abort the ingestion since a chunk without a
// vector would be invisible to search.
func (s *Service) analyzeChunks(ctx context.Context, chunks []document.Chunk) ([]extract.Result, [][]float64, error) {
	results := make([]extract.Result, len(chunks))
	embeddings := make([][]float64, len(chunks))
	errs := make([]error, len(chunks))

	sem := make(chan struct{}, s.config.ChunkConcurrency)
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			chunk := chunks[i]
			result, err := s.extractor.Extract(ctx, chunk.Text)
			if err != nil {
				s.logger.Warn("entity extraction failed, continuing without entities",
					"chunk_id", chunk.ID, "error", err)
				result = extract.Result{}
			}
			results[i] = result

			embedding, err := s.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				errs[i] = types.WrapError(types.INGEST_FAILED,
					fmt.Sprintf("embedding chunk %d failed", chunk.Seq), err)
				return
			}
			embeddings[i] = embedding
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, types.WrapError(types.INGEST_CANCELLED, "ingestion cancelled", err)
	}
	return results, embeddings, nil
}

// rollback removes all traces of a partially written document. It runs on a
// detached context because it is most needed exactly when the caller's
// context is already dead.
func (s *Service) rollback(docID types.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.repo.DeleteDocumentCascade(ctx, docID); err != nil {
		s.logger.Error("rollback: graph cascade delete failed", "document_id", docID, "error", err)
	}
	if _, err := s.store.DeleteByDocument(ctx, docID); err != nil {
		s.logger.Error("rollback: vector delete failed", "document_id", docID, "error", err)
	}
	s.setWatermark(docID, 0)
}

// Delete removes a document and everything derived from it.
func (s *Service) Delete(ctx context.Context, docID types.ID) (graph.CascadeResult, error) {
	s.docLocks.Lock(docID.String())
	defer s.docLocks.Unlock(docID.String())

	result, err := s.repo.DeleteDocumentCascade(ctx, docID)
	if err != nil {
		return result, err
	}
	if _, err := s.store.DeleteByDocument(ctx, docID); err != nil {
		return result, err
	}
	s.setWatermark(docID, 0)
	s.logger.Info("document deleted",
		"document_id", docID,
		"chunks_deleted", result.ChunksDeleted,
		"entities_deleted", result.EntitiesDeleted)
	return result, nil
}

// Job is one document for batch ingestion.
type Job struct {
	Source   string
	Content  string
	Metadata map[string]string
}

// BatchResult pairs a job with its outcome. Order matches the input jobs.
type BatchResult struct {
	Receipt Receipt
	Err     error
}

// IngestBatch runs jobs through a worker pool. Documents ingest in
// parallel with no cross-document ordering; each result lands at its job's
// index.
func (s *Service) IngestBatch(ctx context.Context, jobs []Job) []BatchResult {
	results := make([]BatchResult, len(jobs))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				job := jobs[i]
				receipt, err := s.Ingest(ctx, job.Source, job.Content, job.Metadata)
				results[i] = BatchResult{Receipt: receipt, Err: err}
			}
		}()
	}

	for i := range jobs {
		select {
		case work <- i:
		case <-ctx.Done():
			results[i] = BatchResult{Err: types.WrapError(types.INGEST_CANCELLED,
				"batch cancelled before job started", ctx.Err())}
		}
	}
	close(work)
	wg.Wait()
	return results
}

// Watermark reports the last fully committed chunk count for a document, 0
// if unknown.
func (s *Service) Watermark(docID types.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermarks[docID]
}

func (s *Service) setWatermark(docID types.ID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		delete(s.watermarks, docID)
		return
	}
	s.watermarks[docID] = n
}
