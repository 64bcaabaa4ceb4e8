package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anansi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, graph.BackendMemory, cfg.Graph.Backend)
	assert.Equal(t, vector.BackendMemory, cfg.Vector.Backend)
	assert.Equal(t, "mock", cfg.Embed.Provider)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 12000, cfg.Answer.ContextBudget)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "anansi", cfg.Tracing.ServiceName)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
tracing:
  enabled: true
  service_name: anansi-staging
graph:
  backend: neo4j
  neo4j:
    uri: bolt://graph.internal:7687
    username: neo4j
    password: secret
vector:
  backend: sqlite
  path: /tmp/vectors.db
embed:
  provider: mock
  dimension: 128
search:
  top_k: 5
  leg_timeout: 2s
  vector_weight: 0.6
  graph_weight: 0.4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "anansi-staging", cfg.Tracing.ServiceName)
	assert.Equal(t, graph.BackendNeo4j, cfg.Graph.Backend)
	assert.Equal(t, "bolt://graph.internal:7687", cfg.Graph.Neo4j.URI)
	assert.Equal(t, vector.BackendSQLite, cfg.Vector.Backend)
	assert.Equal(t, 128, cfg.Embed.Dimension)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, 2*time.Second, cfg.Search.LegTimeout)
	assert.InDelta(t, 0.6, cfg.Search.VectorWeight, 1e-9)

	// Unset sections still get defaults.
	assert.Equal(t, 2, cfg.Search.MaxHops)
	assert.Equal(t, "mock", cfg.Answer.Provider)
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("ANANSI_TEST_GRAPH_PASSWORD", "hunter2")
	path := writeConfig(t, `
graph:
  backend: neo4j
  neo4j:
    uri: bolt://localhost:7687
    username: neo4j
    password: ${ANANSI_TEST_GRAPH_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Graph.Neo4j.Password)
}

func TestLoadLeavesUnsetEnvAlone(t *testing.T) {
	path := writeConfig(t, `
answer:
  api_key: ${ANANSI_TEST_DEFINITELY_UNSET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${ANANSI_TEST_DEFINITELY_UNSET}", cfg.Answer.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_LOAD_FAILED, types.CodeOf(err))
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg, err = LoadWithDefaults("")
	require.NoError(t, err)
	assert.Equal(t, graph.BackendMemory, cfg.Graph.Backend)
}

func TestLoadRejectsInvalidSection(t *testing.T) {
	path := writeConfig(t, `
search:
  vector_weight: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}

func TestValidateRejectsBadLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestLoggerLevels(t *testing.T) {
	logger := LoggingConfig{Level: "debug", Format: "json"}.Logger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = LoggingConfig{Level: "error", Format: "text"}.Logger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestSearchSectionDefaultsPreserved(t *testing.T) {
	var sc search.Config
	sc.ApplyDefaults()
	cfg := DefaultConfig()
	assert.Equal(t, sc, cfg.Search)
}
