// Package core wires the storage backends and pipeline services into a
// single facade. It is the only package callers outside internal/ interact
// with through cmd/anansi.
package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anansi-ai/anansi/internal/answer"
	"github.com/anansi-ai/anansi/internal/config"
	"github.com/anansi-ai/anansi/internal/embed"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/ingest"
	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

// Anansi is the top-level facade over ingestion, retrieval and answering.
// Construct it with New; all methods are safe for concurrent use.
type Anansi struct {
	config *config.Config
	logger *slog.Logger

	repo      graph.Repository
	store     vector.Store
	embedder  embed.Embedder
	extractor extract.Extractor

	ingester   *ingest.Service
	searcher   *search.Service
	engine     *answer.Engine
	reconciler *ingest.Reconciler
}

// New opens every configured backend and assembles the pipeline. A dead
// graph backend does not fail construction: the instance comes up degraded
// with vector-only retrieval and Ready reports false until the graph
// returns. Any other backend failure is fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Anansi, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = cfg.Logging.Logger()
	}

	repo, err := graph.Open(ctx, cfg.Graph, logger)
	if err != nil {
		logger.Warn("graph backend unavailable, running degraded", "error", err)
	}

	store, err := vector.Open(cfg.Vector)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.Open(cfg.Embed)
	if err != nil {
		store.Close()
		return nil, err
	}

	extractor, err := extract.Open(cfg.Extract)
	if err != nil {
		store.Close()
		return nil, err
	}

	synthesizer, err := answer.Open(cfg.Answer)
	if err != nil {
		store.Close()
		return nil, err
	}

	ingester := ingest.NewService(repo, store, embedder, extractor, cfg.Ingest, logger)
	searcher := search.NewService(repo, store, embedder, extractor, cfg.Search, logger)
	engine := answer.NewEngine(searcher, synthesizer, cfg.Answer, logger)

	return &Anansi{
		config:     cfg,
		logger:     logger,
		repo:       repo,
		store:      store,
		embedder:   embedder,
		extractor:  extractor,
		ingester:   ingester,
		searcher:   searcher,
		engine:     engine,
		reconciler: ingest.NewReconciler(repo, store, logger),
	}, nil
}

// Ingest processes one document through chunking, extraction, embedding and
// the dual graph/vector write.
func (a *Anansi) Ingest(ctx context.Context, source, content string, metadata map[string]string) (ingest.Receipt, error) {
	return a.ingester.Ingest(ctx, source, content, metadata)
}

// IngestBatch processes documents concurrently with the configured worker
// pool, one result per job in job order.
func (a *Anansi) IngestBatch(ctx context.Context, jobs []ingest.Job) []ingest.BatchResult {
	return a.ingester.IngestBatch(ctx, jobs)
}

// Delete removes a document and everything derived from it.
func (a *Anansi) Delete(ctx context.Context, documentID types.ID) (graph.CascadeResult, error) {
	return a.ingester.Delete(ctx, documentID)
}

// Search runs retrieval in the requested mode.
func (a *Anansi) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return a.searcher.Search(ctx, req)
}

// Ask retrieves context for the question and synthesizes a cited answer.
func (a *Anansi) Ask(ctx context.Context, question string) (*answer.Answer, error) {
	return a.engine.Ask(ctx, question)
}

// Reconcile compares the vector store against the graph and reports
// vector records whose chunk node no longer exists.
func (a *Anansi) Reconcile(ctx context.Context) (ingest.Report, error) {
	return a.reconciler.Check(ctx)
}

// Ready reports whether both stores are reachable. Degraded components
// (an unreachable synthesizer, a mock provider) do not affect readiness.
func (a *Anansi) Ready(ctx context.Context) bool {
	if !a.repo.Available() {
		return false
	}
	if a.repo.Health(ctx).IsUnhealthy() {
		return false
	}
	return !a.store.Health(ctx).IsUnhealthy()
}

// Health reports per-component status keyed by component name.
func (a *Anansi) Health(ctx context.Context) map[string]types.HealthStatus {
	return map[string]types.HealthStatus{
		"graph":     a.repo.Health(ctx),
		"vector":    a.store.Health(ctx),
		"embedder":  a.embedder.Health(ctx),
		"extractor": a.extractor.Health(ctx),
		"answer":    a.engine.Health(ctx),
	}
}

// Close releases both stores. Errors are joined so one failing backend
// does not hide the other.
func (a *Anansi) Close(ctx context.Context) error {
	return errors.Join(
		a.repo.Close(ctx),
		a.store.Close(),
	)
}
