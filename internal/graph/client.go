// Package graph abstracts the property-graph backend that stores documents,
// chunks, entities, and their typed relationships. A Neo4j-backed client is
// the production implementation; an in-memory client backs tests and
// environments where the graph database is unreachable.
package graph

import (
	"context"
	"time"

	"github.com/anansi-ai/anansi/internal/types"
)

// Client is the low-level graph database interface. Implementations must be
// safe for concurrent use.
type Client interface {
	// Connect establishes the connection, retrying transient failures with
	// bounded backoff per the client configuration.
	Connect(ctx context.Context) error

	// Close releases all resources.
	Close(ctx context.Context) error

	// Health reports current connectivity.
	Health(ctx context.Context) types.HealthStatus

	// Query runs a Cypher query and returns the collected records.
	Query(ctx context.Context, cypher string, params map[string]any) (QueryResult, error)

	// Write runs a Cypher statement in a write transaction.
	Write(ctx context.Context, cypher string, params map[string]any) (QueryResult, error)
}

// QueryResult is the collected output of a Cypher execution.
type QueryResult struct {
	// Records holds result rows keyed by column name.
	Records []map[string]any

	// Columns lists the column names of the result set.
	Columns []string

	// Summary carries write counters and timing.
	Summary QuerySummary
}

// QuerySummary carries execution metadata.
type QuerySummary struct {
	ExecutionTime        time.Duration
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	PropertiesSet        int
}

// ClientConfig configures a graph client. The retry budget and backoff curve
// are configuration, not constants: operators tune them per deployment.
type ClientConfig struct {
	// URI is the bolt/neo4j connection URI, e.g. "bolt://localhost:7687".
	URI string `yaml:"uri" json:"uri" mapstructure:"uri"`

	Username string `yaml:"username" json:"username" mapstructure:"username"`
	Password string `yaml:"password" json:"password" mapstructure:"password"`

	// Database selects the target database; empty uses the server default.
	Database string `yaml:"database" json:"database" mapstructure:"database"`

	// PoolSize caps the driver connection pool.
	PoolSize int `yaml:"pool_size" json:"pool_size" mapstructure:"pool_size"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout"`

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries" mapstructure:"max_retries"`

	// RetryBaseDelay is the starting delay of the exponential backoff curve.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" mapstructure:"retry_base_delay"`
}

// ApplyDefaults fills zero values with working defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.URI == "" {
		c.URI = "bolt://localhost:7687"
	}
	if c.Database == "" {
		c.Database = "neo4j"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 50
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
}

// Validate checks required fields and ranges.
func (c ClientConfig) Validate() error {
	if c.URI == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph URI cannot be empty")
	}
	if c.Username == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph username cannot be empty")
	}
	if c.Password == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph password cannot be empty")
	}
	if c.ConnectTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph connect_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph max_retries must be non-negative")
	}
	if c.RetryBaseDelay <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph retry_base_delay must be positive")
	}
	return nil
}
