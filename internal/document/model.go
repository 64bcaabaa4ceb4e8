// Package document defines the core data model for the ingestion pipeline:
// documents, the chunks they are split into, the entities recognized in those
// chunks, and the typed relationships that connect all three in the knowledge
// graph. It also owns document identity resolution and chunking, both of
// which are pure, deterministic CPU work.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/anansi-ai/anansi/internal/types"
)

// EntityType classifies a recognized named entity.
type EntityType string

const (
	EntityPerson  EntityType = "PERSON"
	EntityOrg     EntityType = "ORG"
	EntityGPE     EntityType = "GPE"
	EntityDate    EntityType = "DATE"
	EntityMoney   EntityType = "MONEY"
	EntityProduct EntityType = "PRODUCT"
	EntityEvent   EntityType = "EVENT"
	EntityOther   EntityType = "OTHER"
)

// String returns the string representation of the entity type.
func (t EntityType) String() string {
	return string(t)
}

// IsValid reports whether the type is one of the known values.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityPerson, EntityOrg, EntityGPE, EntityDate,
		EntityMoney, EntityProduct, EntityEvent, EntityOther:
		return true
	default:
		return false
	}
}

// NormalizeEntityType maps arbitrary extractor output to a known type,
// falling back to OTHER for anything unrecognized.
func NormalizeEntityType(s string) EntityType {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	if t.IsValid() {
		return t
	}
	return EntityOther
}

// RelationType is the label of a typed edge in the knowledge graph.
type RelationType string

const (
	// RelationContains links a document to each of its chunks.
	RelationContains RelationType = "CONTAINS"
	// RelationMentions links a chunk to an entity recognized in its text.
	RelationMentions RelationType = "MENTIONS"
	// RelationHasTopic links a document to an entity prominent across it.
	RelationHasTopic RelationType = "HAS_TOPIC"
	// RelationRelatedTo links two entities via an extracted semantic
	// relationship; the edge carries the source chunk as provenance.
	RelationRelatedTo RelationType = "RELATED_TO"
)

// String returns the string representation of the relation type.
func (t RelationType) String() string {
	return string(t)
}

// IsValid reports whether the type is one of the known values.
func (t RelationType) IsValid() bool {
	switch t {
	case RelationContains, RelationMentions, RelationHasTopic, RelationRelatedTo:
		return true
	default:
		return false
	}
}

// Document is the unit of ingestion. ID is derived deterministically by
// Resolve so that re-ingesting the same logical source updates rather than
// duplicates.
type Document struct {
	ID          types.ID          `json:"id"`
	Source      string            `json:"source"`
	ContentHash string            `json:"content_hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewDocument creates a Document with the given resolved identity.
func NewDocument(id types.ID, source, contentHash string, metadata map[string]string) *Document {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Document{
		ID:          id,
		Source:      source,
		ContentHash: contentHash,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
}

// Validate checks the document's required fields.
func (d *Document) Validate() error {
	if err := d.ID.Validate(); err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}
	if d.ContentHash == "" {
		return fmt.Errorf("document content hash cannot be empty")
	}
	return nil
}

// Chunk is a contiguous span of a document's text, the atomic unit of
// embedding and citation. [Start, End) is the half-open character span in
// the original text.
type Chunk struct {
	ID         types.ID `json:"id"`
	DocumentID types.ID `json:"document_id"`
	Seq        int      `json:"seq"`
	Text       string   `json:"text"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
}

// NewChunk creates a chunk owned by the given document. The chunk ID is
// derived from the document ID and sequence index so that re-chunking the
// same document yields the same chunk IDs.
func NewChunk(documentID types.ID, seq int, text string, start, end int) Chunk {
	return Chunk{
		ID:         types.DeterministicID(fmt.Sprintf("chunk:%s:%d", documentID, seq)),
		DocumentID: documentID,
		Seq:        seq,
		Text:       text,
		Start:      start,
		End:        end,
	}
}

// Validate checks the chunk's required fields and span.
func (c *Chunk) Validate() error {
	if err := c.ID.Validate(); err != nil {
		return fmt.Errorf("invalid chunk ID: %w", err)
	}
	if err := c.DocumentID.Validate(); err != nil {
		return fmt.Errorf("chunk %s: invalid document ID: %w", c.ID, err)
	}
	if c.Seq < 0 {
		return fmt.Errorf("chunk %s: negative sequence index %d", c.ID, c.Seq)
	}
	if c.End < c.Start {
		return fmt.Errorf("chunk %s: invalid span [%d, %d)", c.ID, c.Start, c.End)
	}
	return nil
}

// Entity is a named real-world object shared across documents. Entities are
// deduplicated by CanonicalKey: two mentions of the same name and type, in
// any document, resolve to one node.
type Entity struct {
	ID           types.ID   `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	CanonicalKey string     `json:"canonical_key"`
}

// CanonicalKey normalizes a name and type into the merge key used for entity
// deduplication: lowercased, whitespace-collapsed name joined with the type.
func CanonicalKey(name string, entityType EntityType) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(name), " "))
	return normalized + "|" + string(entityType)
}

// NewEntity creates an entity with its ID derived from the canonical key, so
// the same (name, type) pair always maps to the same node.
func NewEntity(name string, entityType EntityType) Entity {
	key := CanonicalKey(name, entityType)
	return Entity{
		ID:           types.DeterministicID("entity:" + key),
		Name:         strings.Join(strings.Fields(name), " "),
		Type:         entityType,
		CanonicalKey: key,
	}
}

// Validate checks the entity's required fields.
func (e *Entity) Validate() error {
	if err := e.ID.Validate(); err != nil {
		return fmt.Errorf("invalid entity ID: %w", err)
	}
	if e.Name == "" {
		return fmt.Errorf("entity name cannot be empty")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid entity type: %s", e.Type)
	}
	if e.CanonicalKey == "" {
		return fmt.Errorf("entity canonical key cannot be empty")
	}
	return nil
}

// Mention is a single occurrence of an entity in chunk text, as reported by
// an extractor. [Start, End) is the character span within the chunk.
type Mention struct {
	Name  string     `json:"name"`
	Type  EntityType `json:"type"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

// Entity materializes the deduplicated entity this mention refers to.
func (m Mention) Entity() Entity {
	return NewEntity(m.Name, m.Type)
}
