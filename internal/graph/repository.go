package graph

import (
	"context"
	"time"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// Repository is the domain-level view of the knowledge graph. It guarantees
// merge semantics: upserting the same document, chunk, or entity twice never
// creates duplicate nodes. Entity nodes merge on canonical_key, which is the
// central correctness property of the graph layer.
//
// Implementations must be safe for concurrent use across documents; writes
// within one document are serialized by the caller.
type Repository interface {
	// Available reports whether the backing graph store is usable. Callers
	// branch on this instead of receiving panics from a dead backend.
	Available() bool

	// UpsertDocument creates or updates the document node. When the node
	// already exists its stored creation time wins and is written back into
	// doc, so callers copying doc.CreatedAt elsewhere stay consistent with
	// the graph's view of document recency.
	UpsertDocument(ctx context.Context, doc *document.Document) error

	// UpsertChunk creates or updates a chunk node and its CONTAINS edge from
	// the owning document.
	UpsertChunk(ctx context.Context, chunk document.Chunk) error

	// UpsertEntityMention merges the entity node by canonical key, bumps its
	// mention bookkeeping, and records a MENTIONS edge from the chunk.
	UpsertEntityMention(ctx context.Context, entity document.Entity, chunkID types.ID) error

	// AddRelationship records a typed edge between two existing nodes.
	AddRelationship(ctx context.Context, from, to types.ID, rel document.RelationType, props map[string]any) error

	// EntityByCanonicalKey looks up a merged entity node, nil if absent.
	EntityByCanonicalKey(ctx context.Context, key string) (*document.Entity, error)

	// GetChunk fetches a chunk node by ID, nil if absent.
	GetChunk(ctx context.Context, chunkID types.ID) (*document.Chunk, error)

	// ChunkExists reports whether a chunk node exists; used by the
	// reconciler to detect orphaned vector records.
	ChunkExists(ctx context.Context, chunkID types.ID) (bool, error)

	// DocumentChunkIDs lists the chunk IDs a document currently contains.
	DocumentChunkIDs(ctx context.Context, documentID types.ID) ([]types.ID, error)

	// ChunksNear returns chunks reachable within maxHops of any of the given
	// entity nodes via MENTIONS edges, with the hop distance per chunk.
	ChunksNear(ctx context.Context, entityIDs []types.ID, maxHops int) ([]ChunkHit, error)

	// GetNeighbors returns nodes reachable from nodeID over the given
	// relationship types within maxDepth hops.
	GetNeighbors(ctx context.Context, nodeID types.ID, relTypes []document.RelationType, maxDepth int) ([]Node, error)

	// DeleteDocumentCascade removes the document, its chunks, and any
	// entities left with no remaining mentions (reference-counted).
	DeleteDocumentCascade(ctx context.Context, documentID types.ID) (CascadeResult, error)

	// Health reports backend connectivity.
	Health(ctx context.Context) types.HealthStatus

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Node is a generic graph node as returned by traversal queries.
type Node struct {
	ID       types.ID       `json:"id"`
	Labels   []string       `json:"labels"`
	Props    map[string]any `json:"props,omitempty"`
	Distance int            `json:"distance"`
}

// ChunkHit is a chunk found by graph expansion, with provenance for scoring:
// hop distance from the seed entity and the owning document's creation time
// for recency tie-breaking.
type ChunkHit struct {
	Chunk        document.Chunk `json:"chunk"`
	Hops         int            `json:"hops"`
	DocCreatedAt time.Time      `json:"doc_created_at"`
}

// CascadeResult summarizes a document cascade deletion.
type CascadeResult struct {
	ChunksDeleted   int `json:"chunks_deleted"`
	EntitiesDeleted int `json:"entities_deleted"`
}

// Node labels used in the property graph.
const (
	LabelDocument = "Document"
	LabelChunk    = "Chunk"
	LabelEntity   = "Entity"
)
