// Package extract recognizes named entities and entity relationships in
// chunk text. Three extractors are provided: an LLM-backed one for quality,
// a rule-based one for deterministic offline operation, and a scripted mock
// for tests. Extraction failures never fail ingestion; callers treat an
// error as "no entities for this chunk" and log it.
package extract

import (
	"context"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// Result is what an extractor found in one piece of text.
type Result struct {
	// Mentions are entity occurrences with character spans into the input.
	Mentions []document.Mention `json:"mentions"`
	// Relations are pairwise entity relationships asserted by the text.
	Relations []Relation `json:"relations,omitempty"`
}

// Relation is a directed relationship between two entities named in the
// same text. Both endpoints are identified by (name, type) and resolve to
// merged entity nodes downstream.
type Relation struct {
	FromName string              `json:"from_name"`
	FromType document.EntityType `json:"from_type"`
	ToName   string              `json:"to_name"`
	ToType   document.EntityType `json:"to_type"`
}

// Extractor finds entities and relations in text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)

	// Health reports whether the extractor's backing service is usable.
	Health(ctx context.Context) types.HealthStatus
}

// Variant names accepted by Open.
const (
	VariantLLM  = "llm"
	VariantRule = "rule"
	VariantMock = "mock"
)

// Config selects and configures the extractor.
type Config struct {
	Variant  string `yaml:"variant" json:"variant" mapstructure:"variant"`
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" json:"model" mapstructure:"model"`
	BaseURL  string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey   string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	// MaxTextChars truncates extractor input; LLM context windows are the
	// constraint, not chunk sizes, so the default is generous.
	MaxTextChars int `yaml:"max_text_chars" json:"max_text_chars" mapstructure:"max_text_chars"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Variant == "" {
		c.Variant = VariantRule
	}
	if c.MaxTextChars == 0 {
		c.MaxTextChars = 8000
	}
	if c.Variant == VariantLLM {
		if c.Provider == "" {
			c.Provider = "ollama"
		}
		if c.Model == "" {
			switch c.Provider {
			case "openai":
				c.Model = "gpt-4o-mini"
			default:
				c.Model = "llama3.1"
			}
		}
		if c.BaseURL == "" && c.Provider == "ollama" {
			c.BaseURL = "http://localhost:11434"
		}
	}
}

// Validate checks variant selection.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantLLM, VariantRule, VariantMock:
		return nil
	default:
		return types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown extractor variant: "+c.Variant)
	}
}

// Open constructs the configured Extractor.
func Open(config Config) (Extractor, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Variant {
	case VariantRule:
		return NewRuleExtractor(), nil
	case VariantMock:
		return NewMockExtractor(nil), nil
	case VariantLLM:
		return NewLLMExtractor(config)
	default:
		return nil, types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown extractor variant: "+config.Variant)
	}
}
