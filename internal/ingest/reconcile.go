package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

// Reconciler sweeps the vector store for records whose chunk no longer
// exists in the graph. Orphans arise if a crash lands between a graph
// cascade delete and the matching vector delete. The reconciler only
// reports; deciding what to do with orphans is an operator call.
type Reconciler struct {
	repo   graph.Repository
	store  vector.Store
	logger *slog.Logger
}

// Report is the outcome of one consistency sweep.
type Report struct {
	VectorsChecked   int           `json:"vectors_checked"`
	OrphanedChunkIDs []types.ID    `json:"orphaned_chunk_ids,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Consistent reports whether the sweep found no orphans.
func (r Report) Consistent() bool {
	return len(r.OrphanedChunkIDs) == 0
}

// NewReconciler creates a reconciler. A nil logger defaults to
// slog.Default().
func NewReconciler(repo graph.Repository, store vector.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, store: store, logger: logger}
}

// Check compares every stored vector against the graph.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	chunkIDs, err := r.store.ChunkIDs(ctx)
	if err != nil {
		return report, err
	}
	for _, chunkID := range chunkIDs {
		if err := ctx.Err(); err != nil {
			return report, types.WrapError(types.CONSISTENCY_VIOLATED,
				"consistency check cancelled", err)
		}
		exists, err := r.repo.ChunkExists(ctx, chunkID)
		if err != nil {
			return report, err
		}
		report.VectorsChecked++
		if !exists {
			report.OrphanedChunkIDs = append(report.OrphanedChunkIDs, chunkID)
		}
	}

	report.Duration = time.Since(start)
	if !report.Consistent() {
		r.logger.Warn("orphaned vector records found",
			"orphans", len(report.OrphanedChunkIDs),
			"checked", report.VectorsChecked)
	}
	return report, nil
}
