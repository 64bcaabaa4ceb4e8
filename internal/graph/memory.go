package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// edgeKey identifies one typed edge. Storing edges as (from, to, type)
// triples in a set gives MERGE semantics for free: re-adding an edge is a
// no-op.
type edgeKey struct {
	From types.ID
	To   types.ID
	Type document.RelationType
}

// MemoryRepository is an in-memory Repository used in tests and in
// environments without a graph backend. Nodes live in flat maps keyed by ID,
// edges in a set of (from, to, type) triples. It honors the same merge
// semantics as the Cypher-backed implementation.
type MemoryRepository struct {
	mu        sync.RWMutex
	documents map[types.ID]*document.Document
	chunks    map[types.ID]document.Chunk
	entities  map[types.ID]document.Entity
	byKey     map[string]types.ID // canonical_key -> entity ID
	edges     map[edgeKey]map[string]any
	closed    bool
}

// NewMemoryRepository creates an empty in-memory graph.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		documents: make(map[types.ID]*document.Document),
		chunks:    make(map[types.ID]document.Chunk),
		entities:  make(map[types.ID]document.Entity),
		byKey:     make(map[string]types.ID),
		edges:     make(map[edgeKey]map[string]any),
	}
}

func (m *MemoryRepository) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

func (m *MemoryRepository) checkOpen() error {
	if m.closed {
		return types.NewError(types.GRAPH_UNAVAILABLE, "memory graph is closed")
	}
	return nil
}

func (m *MemoryRepository) UpsertDocument(_ context.Context, doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid document", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if existing, ok := m.documents[doc.ID]; ok {
		// Merge: keep original creation time, update mutable fields. The
		// caller's document is normalized to the stored creation time so
		// downstream writes agree with the graph about recency.
		updated := *doc
		updated.CreatedAt = existing.CreatedAt
		m.documents[doc.ID] = &updated
		doc.CreatedAt = existing.CreatedAt
		return nil
	}
	copied := *doc
	m.documents[doc.ID] = &copied
	return nil
}

func (m *MemoryRepository) UpsertChunk(_ context.Context, chunk document.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid chunk", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.documents[chunk.DocumentID]; !ok {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND,
			fmt.Sprintf("document %s not found for chunk %s", chunk.DocumentID, chunk.ID))
	}
	m.chunks[chunk.ID] = chunk
	m.addEdge(chunk.DocumentID, chunk.ID, document.RelationContains, nil)
	return nil
}

func (m *MemoryRepository) UpsertEntityMention(_ context.Context, entity document.Entity, chunkID types.ID) error {
	if err := entity.Validate(); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED, "invalid entity", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.chunks[chunkID]; !ok {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND,
			fmt.Sprintf("chunk %s not found for entity %s", chunkID, entity.Name))
	}
	// Merge on canonical key: first writer wins the node, later mentions
	// only add edges.
	id, ok := m.byKey[entity.CanonicalKey]
	if !ok {
		id = entity.ID
		m.byKey[entity.CanonicalKey] = id
		m.entities[id] = entity
	}
	m.addEdge(chunkID, id, document.RelationMentions, nil)
	return nil
}

func (m *MemoryRepository) AddRelationship(_ context.Context, from, to types.ID, rel document.RelationType, props map[string]any) error {
	if !rel.IsValid() {
		return types.NewError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("invalid relationship type: %s", rel))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !m.nodeExists(from) {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, fmt.Sprintf("node %s not found", from))
	}
	if !m.nodeExists(to) {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, fmt.Sprintf("node %s not found", to))
	}
	m.addEdge(from, to, rel, props)
	return nil
}

// addEdge merges an edge, overlaying props onto any existing ones. Caller
// holds the write lock.
func (m *MemoryRepository) addEdge(from, to types.ID, rel document.RelationType, props map[string]any) {
	key := edgeKey{From: from, To: to, Type: rel}
	existing, ok := m.edges[key]
	if !ok {
		existing = make(map[string]any)
		m.edges[key] = existing
	}
	for k, v := range props {
		existing[k] = v
	}
}

func (m *MemoryRepository) nodeExists(id types.ID) bool {
	if _, ok := m.documents[id]; ok {
		return true
	}
	if _, ok := m.chunks[id]; ok {
		return true
	}
	_, ok := m.entities[id]
	return ok
}

func (m *MemoryRepository) EntityByCanonicalKey(_ context.Context, key string) (*document.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	id, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	entity := m.entities[id]
	return &entity, nil
}

func (m *MemoryRepository) GetChunk(_ context.Context, chunkID types.ID) (*document.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	chunk, ok := m.chunks[chunkID]
	if !ok {
		return nil, nil
	}
	return &chunk, nil
}

func (m *MemoryRepository) ChunkExists(_ context.Context, chunkID types.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	_, ok := m.chunks[chunkID]
	return ok, nil
}

func (m *MemoryRepository) DocumentChunkIDs(_ context.Context, documentID types.ID) ([]types.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	type seqID struct {
		seq int
		id  types.ID
	}
	var found []seqID
	for key := range m.edges {
		if key.From == documentID && key.Type == document.RelationContains {
			if chunk, ok := m.chunks[key.To]; ok {
				found = append(found, seqID{seq: chunk.Seq, id: chunk.ID})
			}
		}
	}
	// Return in document order.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].seq < found[j-1].seq; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	ids := make([]types.ID, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids, nil
}

func (m *MemoryRepository) ChunksNear(_ context.Context, entityIDs []types.ID, maxHops int) ([]ChunkHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if maxHops < 1 {
		maxHops = 1
	}

	// Alternating BFS over MENTIONS edges: hop N chunks mention a hop N-1
	// entity; hop N entities are mentioned by a hop N chunk.
	chunkHops := make(map[types.ID]int)
	entityFrontier := make(map[types.ID]bool, len(entityIDs))
	for _, id := range entityIDs {
		if _, ok := m.entities[id]; ok {
			entityFrontier[id] = true
		}
	}

	for hop := 1; hop <= maxHops && len(entityFrontier) > 0; hop++ {
		chunkFrontier := make(map[types.ID]bool)
		for key := range m.edges {
			if key.Type != document.RelationMentions || !entityFrontier[key.To] {
				continue
			}
			if _, seen := chunkHops[key.From]; !seen {
				chunkHops[key.From] = hop
				chunkFrontier[key.From] = true
			}
		}
		entityFrontier = make(map[types.ID]bool)
		for key := range m.edges {
			if key.Type == document.RelationMentions && chunkFrontier[key.From] {
				entityFrontier[key.To] = true
			}
		}
	}

	hits := make([]ChunkHit, 0, len(chunkHops))
	for chunkID, hops := range chunkHops {
		chunk, ok := m.chunks[chunkID]
		if !ok {
			continue
		}
		hit := ChunkHit{Chunk: chunk, Hops: hops}
		if doc, ok := m.documents[chunk.DocumentID]; ok {
			hit.DocCreatedAt = doc.CreatedAt
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (m *MemoryRepository) GetNeighbors(_ context.Context, nodeID types.ID, relTypes []document.RelationType, maxDepth int) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	allowed := make(map[document.RelationType]bool, len(relTypes))
	for _, rt := range relTypes {
		if !rt.IsValid() {
			return nil, types.NewError(types.GRAPH_QUERY_FAILED,
				fmt.Sprintf("invalid relationship type: %s", rt))
		}
		allowed[rt] = true
	}

	// Undirected BFS over the edge set.
	distance := map[types.ID]int{nodeID: 0}
	frontier := []types.ID{nodeID}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []types.ID
		for key := range m.edges {
			if len(allowed) > 0 && !allowed[key.Type] {
				continue
			}
			for _, cur := range frontier {
				var other types.ID
				switch cur {
				case key.From:
					other = key.To
				case key.To:
					other = key.From
				default:
					continue
				}
				if _, seen := distance[other]; !seen {
					distance[other] = depth
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	nodes := make([]Node, 0, len(distance)-1)
	for id, dist := range distance {
		if id == nodeID {
			continue
		}
		nodes = append(nodes, m.toNode(id, dist))
	}
	return nodes, nil
}

// toNode materializes a Node view of any stored node. Caller holds a lock.
func (m *MemoryRepository) toNode(id types.ID, distance int) Node {
	if doc, ok := m.documents[id]; ok {
		return Node{
			ID:     id,
			Labels: []string{LabelDocument},
			Props: map[string]any{
				"source":       doc.Source,
				"content_hash": doc.ContentHash,
			},
			Distance: distance,
		}
	}
	if chunk, ok := m.chunks[id]; ok {
		return Node{
			ID:     id,
			Labels: []string{LabelChunk},
			Props: map[string]any{
				"document_id": chunk.DocumentID.String(),
				"seq":         chunk.Seq,
				"text":        chunk.Text,
			},
			Distance: distance,
		}
	}
	if entity, ok := m.entities[id]; ok {
		return Node{
			ID:     id,
			Labels: []string{LabelEntity},
			Props: map[string]any{
				"name":          entity.Name,
				"type":          entity.Type.String(),
				"canonical_key": entity.CanonicalKey,
			},
			Distance: distance,
		}
	}
	return Node{ID: id, Distance: distance}
}

func (m *MemoryRepository) DeleteDocumentCascade(_ context.Context, documentID types.ID) (CascadeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return CascadeResult{}, err
	}
	if _, ok := m.documents[documentID]; !ok {
		return CascadeResult{}, nil
	}

	// Collect this document's chunks and the entities they mention.
	doomedChunks := make(map[types.ID]bool)
	for id, chunk := range m.chunks {
		if chunk.DocumentID == documentID {
			doomedChunks[id] = true
		}
	}
	candidates := make(map[types.ID]bool)
	for key := range m.edges {
		if key.Type == document.RelationMentions && doomedChunks[key.From] {
			candidates[key.To] = true
		}
	}

	// An entity survives if a chunk of another document still mentions it.
	var result CascadeResult
	for entityID := range candidates {
		referenced := false
		for key := range m.edges {
			if key.Type == document.RelationMentions && key.To == entityID && !doomedChunks[key.From] {
				referenced = true
				break
			}
		}
		if !referenced {
			entity := m.entities[entityID]
			delete(m.byKey, entity.CanonicalKey)
			delete(m.entities, entityID)
			result.EntitiesDeleted++
		}
	}

	delete(m.documents, documentID)
	for id := range doomedChunks {
		delete(m.chunks, id)
		result.ChunksDeleted++
	}
	for key := range m.edges {
		if !m.nodeExists(key.From) || !m.nodeExists(key.To) {
			delete(m.edges, key)
		}
	}
	return result, nil
}

func (m *MemoryRepository) Health(_ context.Context) types.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.Unhealthy("memory graph is closed")
	}
	return types.Healthy(fmt.Sprintf("%d documents, %d chunks, %d entities",
		len(m.documents), len(m.chunks), len(m.entities)))
}

func (m *MemoryRepository) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
