package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// CypherRepository implements Repository over a Cypher-speaking Client.
// All upserts use MERGE so repeated writes converge on a single node, and
// transient failures are retried with the client's configured backoff curve.
type CypherRepository struct {
	client Client
	config ClientConfig
	logger *slog.Logger
}

// NewCypherRepository wraps an already-connected client. A nil logger
// defaults to slog.Default().
func NewCypherRepository(client Client, config ClientConfig, logger *slog.Logger) *CypherRepository {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &CypherRepository{client: client, config: config, logger: logger}
}

// Available always reports true; an unreachable backend surfaces as errors
// on individual operations, retried per config.
func (r *CypherRepository) Available() bool { return true }

// write executes a write statement, retrying transient errors within the
// configured budget. Permanent errors surface immediately.
func (r *CypherRepository) write(ctx context.Context, cypher string, params map[string]any) (QueryResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result, err := r.client.Write(ctx, cypher, params)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !types.IsRetryable(err) || ctx.Err() != nil {
			return QueryResult{}, err
		}
		delay := r.config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		r.logger.Warn("graph write failed, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return QueryResult{}, types.WrapError(types.GRAPH_QUERY_FAILED,
				"write cancelled during retry backoff", ctx.Err())
		}
	}
	return QueryResult{}, types.WrapError(types.GRAPH_QUERY_FAILED,
		fmt.Sprintf("write failed after %d attempts", r.config.MaxRetries+1), lastErr)
}

// UpsertDocument merges the document node on its ID. When the node already
// exists its creation time wins and is written back into doc, keeping every
// store that copies doc.CreatedAt consistent with the graph.
func (r *CypherRepository) UpsertDocument(ctx context.Context, doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid document", err)
	}
	result, err := r.write(ctx, `
		MERGE (d:Document {id: $id})
		ON CREATE SET d.created_at = $created_at
		SET d.source = $source,
		    d.content_hash = $content_hash,
		    d.updated_at = timestamp()
		RETURN d.created_at AS created_at
	`, map[string]any{
		"id":           doc.ID.String(),
		"source":       doc.Source,
		"content_hash": doc.ContentHash,
		"created_at":   doc.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}
	if len(result.Records) > 0 {
		doc.CreatedAt = time.Unix(int64(asInt(result.Records[0]["created_at"])), 0)
	}
	return nil
}

// UpsertChunk merges the chunk node and its CONTAINS edge.
func (r *CypherRepository) UpsertChunk(ctx context.Context, chunk document.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid chunk", err)
	}
	_, err := r.write(ctx, `
		MATCH (d:Document {id: $doc_id})
		MERGE (c:Chunk {id: $id})
		SET c.document_id = $doc_id,
		    c.seq = $seq,
		    c.text = $text,
		    c.span_start = $start,
		    c.span_end = $end
		MERGE (d)-[:CONTAINS]->(c)
	`, map[string]any{
		"id":     chunk.ID.String(),
		"doc_id": chunk.DocumentID.String(),
		"seq":    chunk.Seq,
		"text":   chunk.Text,
		"start":  chunk.Start,
		"end":    chunk.End,
	})
	return err
}

// UpsertEntityMention merges the entity on canonical_key and records the
// MENTIONS edge from the chunk. The MERGE key makes repeated writes of the
// same entity converge on one node no matter how many documents mention it.
func (r *CypherRepository) UpsertEntityMention(ctx context.Context, entity document.Entity, chunkID types.ID) error {
	if err := entity.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid entity", err)
	}
	_, err := r.write(ctx, `
		MATCH (c:Chunk {id: $chunk_id})
		MERGE (e:Entity {canonical_key: $key})
		ON CREATE SET e.id = $id,
		              e.name = $name,
		              e.type = $type,
		              e.mention_count = 0
		SET e.mention_count = e.mention_count + 1,
		    e.last_seen = timestamp()
		MERGE (c)-[:MENTIONS]->(e)
	`, map[string]any{
		"chunk_id": chunkID.String(),
		"key":      entity.CanonicalKey,
		"id":       entity.ID.String(),
		"name":     entity.Name,
		"type":     entity.Type.String(),
	})
	return err
}

// AddRelationship merges a typed edge between two existing nodes.
func (r *CypherRepository) AddRelationship(ctx context.Context, from, to types.ID, rel document.RelationType, props map[string]any) error {
	if !rel.IsValid() {
		return types.NewError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("invalid relationship type: %s", rel))
	}
	if props == nil {
		props = map[string]any{}
	}
	// Relationship type cannot be parameterized in Cypher; rel is validated
	// against the closed RelationType set above.
	cypher := fmt.Sprintf(`
		MATCH (a {id: $from}), (b {id: $to})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`, rel.String())
	_, err := r.write(ctx, cypher, map[string]any{
		"from":  from.String(),
		"to":    to.String(),
		"props": props,
	})
	return err
}

// EntityByCanonicalKey looks up a merged entity node.
func (r *CypherRepository) EntityByCanonicalKey(ctx context.Context, key string) (*document.Entity, error) {
	result, err := r.client.Query(ctx, `
		MATCH (e:Entity {canonical_key: $key})
		RETURN e.id AS id, e.name AS name, e.type AS type, e.canonical_key AS key
	`, map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return entityFromRecord(result.Records[0]), nil
}

// GetChunk fetches a chunk node by ID.
func (r *CypherRepository) GetChunk(ctx context.Context, chunkID types.ID) (*document.Chunk, error) {
	result, err := r.client.Query(ctx, `
		MATCH (c:Chunk {id: $id})
		RETURN c.id AS id, c.document_id AS document_id, c.seq AS seq,
		       c.text AS text, c.span_start AS start, c.span_end AS end
	`, map[string]any{"id": chunkID.String()})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	chunk := chunkFromRecord(result.Records[0])
	return &chunk, nil
}

// ChunkExists reports chunk node existence.
func (r *CypherRepository) ChunkExists(ctx context.Context, chunkID types.ID) (bool, error) {
	result, err := r.client.Query(ctx,
		`MATCH (c:Chunk {id: $id}) RETURN count(c) AS n`,
		map[string]any{"id": chunkID.String()})
	if err != nil {
		return false, err
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	return asInt(result.Records[0]["n"]) > 0, nil
}

// DocumentChunkIDs lists the chunk IDs currently contained by a document.
func (r *CypherRepository) DocumentChunkIDs(ctx context.Context, documentID types.ID) ([]types.ID, error) {
	result, err := r.client.Query(ctx, `
		MATCH (:Document {id: $id})-[:CONTAINS]->(c:Chunk)
		RETURN c.id AS id ORDER BY c.seq
	`, map[string]any{"id": documentID.String()})
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(result.Records))
	for _, rec := range result.Records {
		if s, ok := rec["id"].(string); ok {
			if id, err := types.ParseID(s); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ChunksNear finds chunks within maxHops of any seed entity. A hop here is
// one entity-to-chunk transition over MENTIONS edges: hop 1 is a chunk that
// mentions a seed entity directly, hop 2 a chunk sharing an entity with such
// a chunk, and so on.
func (r *CypherRepository) ChunksNear(ctx context.Context, entityIDs []types.ID, maxHops int) ([]ChunkHit, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	if maxHops < 1 {
		maxHops = 1
	}
	ids := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		ids[i] = id.String()
	}
	// Each MENTIONS round-trip (chunk->entity->chunk) is two edges; hop N
	// chunks are at path length 2N-1 from the seed entity.
	cypher := fmt.Sprintf(`
		MATCH path = (e:Entity)-[:MENTIONS*1..%d]-(c:Chunk)
		WHERE e.id IN $ids
		WITH c, min(length(path)) AS plen
		MATCH (d:Document)-[:CONTAINS]->(c)
		RETURN c.id AS id, c.document_id AS document_id, c.seq AS seq,
		       c.text AS text, c.span_start AS start, c.span_end AS end,
		       d.created_at AS doc_created_at, plen
	`, 2*maxHops-1)
	result, err := r.client.Query(ctx, cypher, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	hits := make([]ChunkHit, 0, len(result.Records))
	for _, rec := range result.Records {
		hit := ChunkHit{
			Chunk:        chunkFromRecord(rec),
			Hops:         (asInt(rec["plen"]) + 1) / 2,
			DocCreatedAt: time.Unix(int64(asInt(rec["doc_created_at"])), 0),
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// GetNeighbors returns nodes reachable over the given relationship types
// within maxDepth hops.
func (r *CypherRepository) GetNeighbors(ctx context.Context, nodeID types.ID, relTypes []document.RelationType, maxDepth int) ([]Node, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	relFilter := ""
	if len(relTypes) > 0 {
		names := make([]string, len(relTypes))
		for i, rt := range relTypes {
			if !rt.IsValid() {
				return nil, types.NewError(types.GRAPH_QUERY_FAILED,
					fmt.Sprintf("invalid relationship type: %s", rt))
			}
			names[i] = rt.String()
		}
		relFilter = ":" + strings.Join(names, "|")
	}
	cypher := fmt.Sprintf(`
		MATCH path = (start {id: $id})-[%s*1..%d]-(n)
		WHERE n.id IS NOT NULL AND n.id <> $id
		RETURN DISTINCT n.id AS id, labels(n) AS labels,
		       properties(n) AS props, min(length(path)) AS distance
	`, relFilter, maxDepth)
	result, err := r.client.Query(ctx, cypher, map[string]any{"id": nodeID.String()})
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(result.Records))
	for _, rec := range result.Records {
		idStr, _ := rec["id"].(string)
		id, err := types.ParseID(idStr)
		if err != nil {
			continue
		}
		node := Node{ID: id, Distance: asInt(rec["distance"])}
		if labels, ok := rec["labels"].([]any); ok {
			for _, l := range labels {
				if s, ok := l.(string); ok {
					node.Labels = append(node.Labels, s)
				}
			}
		}
		if props, ok := rec["props"].(map[string]any); ok {
			node.Props = props
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// DeleteDocumentCascade removes the document, its chunks, and entities whose
// last mention came from this document. Entities still mentioned elsewhere
// are left in place.
func (r *CypherRepository) DeleteDocumentCascade(ctx context.Context, documentID types.ID) (CascadeResult, error) {
	// Delete orphan candidates first, while the chunk edges still identify
	// them; an entity survives if any chunk of another document mentions it.
	orphans, err := r.write(ctx, `
		MATCH (:Document {id: $id})-[:CONTAINS]->(:Chunk)-[:MENTIONS]->(e:Entity)
		WHERE NOT EXISTS {
			MATCH (other:Chunk)-[:MENTIONS]->(e)
			WHERE other.document_id <> $id
		}
		DETACH DELETE e
	`, map[string]any{"id": documentID.String()})
	if err != nil {
		return CascadeResult{}, err
	}

	rest, err := r.write(ctx, `
		MATCH (d:Document {id: $id})
		OPTIONAL MATCH (d)-[:CONTAINS]->(c:Chunk)
		DETACH DELETE d, c
	`, map[string]any{"id": documentID.String()})
	if err != nil {
		return CascadeResult{}, err
	}

	chunksDeleted := rest.Summary.NodesDeleted - 1
	if chunksDeleted < 0 {
		chunksDeleted = 0
	}
	return CascadeResult{
		ChunksDeleted:   chunksDeleted,
		EntitiesDeleted: orphans.Summary.NodesDeleted,
	}, nil
}

// Health reports client connectivity.
func (r *CypherRepository) Health(ctx context.Context) types.HealthStatus {
	return r.client.Health(ctx)
}

// Close closes the underlying client.
func (r *CypherRepository) Close(ctx context.Context) error {
	return r.client.Close(ctx)
}

// chunkFromRecord rebuilds a Chunk from a query row.
func chunkFromRecord(rec map[string]any) document.Chunk {
	idStr, _ := rec["id"].(string)
	docStr, _ := rec["document_id"].(string)
	id, _ := types.ParseID(idStr)
	docID, _ := types.ParseID(docStr)
	text, _ := rec["text"].(string)
	return document.Chunk{
		ID:         id,
		DocumentID: docID,
		Seq:        asInt(rec["seq"]),
		Text:       text,
		Start:      asInt(rec["start"]),
		End:        asInt(rec["end"]),
	}
}

// entityFromRecord rebuilds an Entity from a query row.
func entityFromRecord(rec map[string]any) *document.Entity {
	idStr, _ := rec["id"].(string)
	id, _ := types.ParseID(idStr)
	name, _ := rec["name"].(string)
	typeStr, _ := rec["type"].(string)
	key, _ := rec["key"].(string)
	return &document.Entity{
		ID:           id,
		Name:         name,
		Type:         document.NormalizeEntityType(typeStr),
		CanonicalKey: key,
	}
}

// asInt coerces the numeric types the driver may return.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
