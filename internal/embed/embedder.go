// Package embed turns chunk text into fixed-dimension vectors. Real
// providers (OpenAI, Ollama) are reached through langchaingo; the mock
// embedder produces deterministic vectors for tests and offline runs.
package embed

import (
	"context"

	"github.com/anansi-ai/anansi/internal/types"
)

// Embedder converts text into vectors. Implementations must return vectors
// of a single fixed dimension for the lifetime of the process; the vector
// store enforces this downstream.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the width of the vectors this embedder produces.
	Dimensions() int

	// Model names the underlying embedding model.
	Model() string

	// Health reports provider reachability.
	Health(ctx context.Context) types.HealthStatus
}

// Provider names accepted by Open.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures the embedding provider.
type Config struct {
	Provider  string `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" json:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey    string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	Dimension int    `yaml:"dimension" json:"dimension" mapstructure:"dimension"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMock
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.Model = "text-embedding-3-small"
		case ProviderOllama:
			c.Model = "nomic-embed-text"
		}
	}
	if c.BaseURL == "" && c.Provider == ProviderOllama {
		c.BaseURL = "http://localhost:11434"
	}
}

// Validate checks provider selection and settings.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderMock, ProviderOpenAI, ProviderOllama:
	default:
		return types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown embedding provider: "+c.Provider)
	}
	if c.Dimension <= 0 {
		return types.NewError(types.CONFIG_LOAD_FAILED,
			"embedding dimension must be positive")
	}
	return nil
}
