package graph

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/anansi-ai/anansi/internal/types"
)

// Neo4jClient implements Client against a Neo4j server. The driver pools
// connections internally; one client is shared per process.
type Neo4jClient struct {
	config ClientConfig
	driver neo4j.DriverWithContext
}

// NewNeo4jClient creates a client from config. The client must be connected
// via Connect before use.
func NewNeo4jClient(config ClientConfig) (*Neo4jClient, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Neo4jClient{config: config}, nil
}

// Connect establishes connectivity, retrying with exponential backoff up to
// the configured budget. Exhausting the budget is a fatal error for the
// caller: an unreachable graph backend at startup is a configuration problem.
func (c *Neo4jClient) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(c.config.Username, c.config.Password, "")
	driverConfig := func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = c.config.PoolSize
		cfg.ConnectionAcquisitionTimeout = c.config.ConnectTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(c.config.URI, auth, driverConfig)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				c.driver = driver
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}

		delay := c.config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.config.ConnectTimeout {
			delay = c.config.ConnectTimeout
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}
	}

	return types.WrapRetryableError(types.GRAPH_CONNECTION_FAILED,
		fmt.Sprintf("failed to connect after %d attempts", c.config.MaxRetries+1), lastErr)
}

// Close releases the driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	if err := c.driver.Close(ctx); err != nil {
		return types.WrapError(types.GRAPH_CONNECTION_FAILED, "failed to close driver", err)
	}
	c.driver = nil
	return nil
}

// Health verifies connectivity with a short timeout.
func (c *Neo4jClient) Health(ctx context.Context) types.HealthStatus {
	if c.driver == nil {
		return types.Unhealthy("driver not initialized")
	}
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}
	return types.Healthy("connected to neo4j")
}

// Query runs the Cypher in a read transaction and collects all records.
func (c *Neo4jClient) Query(ctx context.Context, cypher string, params map[string]any) (QueryResult, error) {
	return c.run(ctx, cypher, params, false)
}

// Write runs the Cypher in a write transaction and collects all records.
func (c *Neo4jClient) Write(ctx context.Context, cypher string, params map[string]any) (QueryResult, error) {
	return c.run(ctx, cypher, params, true)
}

func (c *Neo4jClient) run(ctx context.Context, cypher string, params map[string]any, write bool) (QueryResult, error) {
	if c.driver == nil {
		return QueryResult{}, types.NewError(types.GRAPH_UNAVAILABLE, "driver not connected")
	}

	start := time.Now()
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.config.Database,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return collectResult(records, summary), nil
	}

	var result any
	var err error
	if write {
		result, err = session.ExecuteWrite(ctx, work)
	} else {
		result, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return QueryResult{}, types.WrapRetryableError(types.GRAPH_QUERY_FAILED,
			"query execution failed", err)
	}

	qr := result.(QueryResult)
	qr.Summary.ExecutionTime = time.Since(start)
	return qr, nil
}

// collectResult converts driver records and summary into a QueryResult.
func collectResult(records []*neo4j.Record, summary neo4j.ResultSummary) QueryResult {
	result := QueryResult{
		Records: make([]map[string]any, 0, len(records)),
		Columns: []string{},
	}
	if len(records) > 0 {
		result.Columns = records[0].Keys
	}
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		result.Records = append(result.Records, row)
	}
	if summary != nil && summary.Counters() != nil {
		counters := summary.Counters()
		result.Summary = QuerySummary{
			NodesCreated:         counters.NodesCreated(),
			NodesDeleted:         counters.NodesDeleted(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			PropertiesSet:        counters.PropertiesSet(),
		}
	}
	return result
}
