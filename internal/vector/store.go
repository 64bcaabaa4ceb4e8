// Package vector provides chunk embedding storage and nearest-neighbor
// search. Two backends are available: an in-memory store for tests and a
// SQLite-backed store for durable single-node deployments. Both do exact
// brute-force scoring; corpora here are small enough that an ANN index
// would add dependencies without measurable benefit.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/anansi-ai/anansi/internal/types"
)

// Metric selects the similarity function used for search.
type Metric string

const (
	// MetricCosine scores by cosine similarity, using precomputed norms.
	MetricCosine Metric = "cosine"
	// MetricDot scores by raw dot product. Only meaningful when the
	// embedder emits normalized vectors.
	MetricDot Metric = "dot"
)

// IsValid reports whether the metric is a known value.
func (m Metric) IsValid() bool {
	return m == MetricCosine || m == MetricDot
}

// Record is one stored chunk embedding. Norm is precomputed at write time so
// cosine scoring avoids recomputing magnitudes on every query.
type Record struct {
	ChunkID    types.ID  `json:"chunk_id"`
	DocumentID types.ID  `json:"document_id"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding"`
	Norm       float64   `json:"norm"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRecord builds a record with its norm precomputed.
func NewRecord(chunkID, documentID types.ID, text string, embedding []float64) Record {
	return Record{
		ChunkID:    chunkID,
		DocumentID: documentID,
		Text:       text,
		Embedding:  embedding,
		Norm:       Norm(embedding),
		CreatedAt:  time.Now(),
	}
}

// Hit is one search result.
type Hit struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// SearchOptions narrow a similarity query.
type SearchOptions struct {
	// TopK caps the number of results. Zero or negative yields none.
	TopK int
	// MinScore drops results scoring below the floor. Zero keeps all.
	MinScore float64
	// DocumentIDs, when non-empty, restricts results to those documents.
	DocumentIDs []types.ID
}

// Store persists chunk embeddings and answers nearest-neighbor queries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert stores or replaces a single record.
	Upsert(ctx context.Context, record Record) error

	// UpsertBatch stores or replaces records keyed by chunk ID. All records
	// in one call must share the store's dimension; a mismatch is rejected
	// before any write happens.
	UpsertBatch(ctx context.Context, records []Record) error

	// Search returns the most similar records, highest score first.
	Search(ctx context.Context, query []float64, opts SearchOptions) ([]Hit, error)

	// Get fetches a record by chunk ID, nil if absent.
	Get(ctx context.Context, chunkID types.ID) (*Record, error)

	// Delete removes records by chunk ID. Missing IDs are not an error.
	Delete(ctx context.Context, chunkIDs []types.ID) error

	// DeleteByDocument removes all records belonging to a document and
	// returns how many were removed.
	DeleteByDocument(ctx context.Context, documentID types.ID) (int, error)

	// Has reports whether a record exists for the chunk.
	Has(ctx context.Context, chunkID types.ID) (bool, error)

	// ChunkIDs lists every stored chunk ID; used by the reconciler to
	// sweep for orphaned vectors.
	ChunkIDs(ctx context.Context) ([]types.ID, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the store's vector dimension, 0 until the first
	// write fixes it.
	Dimension() int

	// Health reports backend status.
	Health(ctx context.Context) types.HealthStatus

	// Close releases backend resources.
	Close() error
}

// Norm returns the Euclidean magnitude of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// score applies the metric. queryNorm is precomputed by the caller; a zero
// norm on either side scores 0 rather than dividing by zero.
func score(metric Metric, query []float64, queryNorm float64, rec Record) float64 {
	dot := Dot(query, rec.Embedding)
	if metric == MetricDot {
		return dot
	}
	if queryNorm == 0 || rec.Norm == 0 {
		return 0
	}
	return dot / (queryNorm * rec.Norm)
}

// sortHits orders by score descending, breaking ties by chunk ID so equal
// scores return in a stable order.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ChunkID < hits[j].Record.ChunkID
	})
}

// checkDimension validates a vector against the established dimension.
// Dimension mismatches are configuration errors and never retryable.
func checkDimension(established, got int) error {
	if established != 0 && got != established {
		return types.NewError(types.CONFIG_DIMENSION_MISMATCH,
			fmt.Sprintf("embedding dimension mismatch: store has %d, got %d", established, got))
	}
	if got == 0 {
		return types.NewError(types.VECTOR_STORE_FAILED, "empty embedding")
	}
	return nil
}
