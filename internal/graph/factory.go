package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// Backend names accepted by Open.
const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config selects and configures the graph backend.
type Config struct {
	Backend string       `yaml:"backend" json:"backend" mapstructure:"backend"`
	Neo4j   ClientConfig `yaml:"neo4j" json:"neo4j" mapstructure:"neo4j"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	c.Neo4j.ApplyDefaults()
}

// Validate checks backend selection and backend-specific settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendNeo4j:
		return c.Neo4j.Validate()
	default:
		return types.NewError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("unknown graph backend: %s", c.Backend))
	}
}

// Open constructs the configured Repository. When the neo4j backend cannot
// be reached, Open returns an unavailable Repository and the connection
// error rather than failing outright; callers that can run degraded check
// Available() and proceed without graph expansion.
func Open(ctx context.Context, config Config, logger *slog.Logger) (Repository, error) {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return &UnavailableRepository{Reason: err}, err
	}

	switch config.Backend {
	case BackendMemory:
		return NewMemoryRepository(), nil
	case BackendNeo4j:
		client, err := NewNeo4jClient(config.Neo4j)
		if err != nil {
			return &UnavailableRepository{Reason: err}, err
		}
		if err := client.Connect(ctx); err != nil {
			logger.Error("graph backend unreachable", "backend", config.Backend, "error", err)
			return &UnavailableRepository{Reason: err}, err
		}
		return NewCypherRepository(client, config.Neo4j, logger), nil
	default:
		err := types.NewError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("unknown graph backend: %s", config.Backend))
		return &UnavailableRepository{Reason: err}, err
	}
}

// UnavailableRepository is the Repository returned when the configured
// backend cannot be opened. Every operation fails with GRAPH_UNAVAILABLE
// wrapping the original cause, so callers get a diagnosable error instead
// of a nil dereference.
type UnavailableRepository struct {
	Reason error
}

func (u *UnavailableRepository) err() error {
	return types.WrapError(types.GRAPH_UNAVAILABLE, "graph backend unavailable", u.Reason)
}

func (u *UnavailableRepository) Available() bool { return false }

func (u *UnavailableRepository) UpsertDocument(context.Context, *document.Document) error {
	return u.err()
}

func (u *UnavailableRepository) UpsertChunk(context.Context, document.Chunk) error {
	return u.err()
}

func (u *UnavailableRepository) UpsertEntityMention(context.Context, document.Entity, types.ID) error {
	return u.err()
}

func (u *UnavailableRepository) AddRelationship(context.Context, types.ID, types.ID, document.RelationType, map[string]any) error {
	return u.err()
}

func (u *UnavailableRepository) EntityByCanonicalKey(context.Context, string) (*document.Entity, error) {
	return nil, u.err()
}

func (u *UnavailableRepository) GetChunk(context.Context, types.ID) (*document.Chunk, error) {
	return nil, u.err()
}

func (u *UnavailableRepository) ChunkExists(context.Context, types.ID) (bool, error) {
	return false, u.err()
}

func (u *UnavailableRepository) DocumentChunkIDs(context.Context, types.ID) ([]types.ID, error) {
	return nil, u.err()
}

func (u *UnavailableRepository) ChunksNear(context.Context, []types.ID, int) ([]ChunkHit, error) {
	return nil, u.err()
}

func (u *UnavailableRepository) GetNeighbors(context.Context, types.ID, []document.RelationType, int) ([]Node, error) {
	return nil, u.err()
}

func (u *UnavailableRepository) DeleteDocumentCascade(context.Context, types.ID) (CascadeResult, error) {
	return CascadeResult{}, u.err()
}

func (u *UnavailableRepository) Health(context.Context) types.HealthStatus {
	return types.Unhealthy(u.err().Error())
}

func (u *UnavailableRepository) Close(context.Context) error { return nil }
