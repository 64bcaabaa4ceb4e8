// Package answer turns search results into cited answers. Ranked chunks are
// assembled into a bounded context, a synthesizer generates the answer text,
// and every claim is traceable through (document, chunk) citations. When no
// synthesizer is reachable the engine returns the retrieved chunks untouched
// instead of fabricating prose.
package answer

import (
	"fmt"
	"strings"

	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
)

// Citation points at the exact chunk a piece of context came from.
type Citation struct {
	DocumentID types.ID `json:"document_id"`
	ChunkID    types.ID `json:"chunk_id"`
}

// Answer is the engine's response to a question.
type Answer struct {
	Question  string             `json:"question"`
	Text      string             `json:"text,omitempty"`
	Citations []Citation         `json:"citations"`
	Chunks    []search.Candidate `json:"chunks"`
	// Degraded marks an answer assembled without synthesis: the chunks are
	// real retrieval output, Text is empty, and nothing was generated.
	Degraded bool `json:"degraded"`
}

// Config tunes answer generation.
type Config struct {
	// ContextBudget caps assembled context length in characters.
	ContextBudget int `yaml:"context_budget" json:"context_budget" mapstructure:"context_budget"`
	// Provider selects the synthesizer backend: openai, ollama, anthropic,
	// or mock.
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" json:"model" mapstructure:"model"`
	BaseURL  string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey   string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.ContextBudget == 0 {
		c.ContextBudget = 12000
	}
	if c.Provider == "" {
		c.Provider = "mock"
	}
	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "gpt-4o-mini"
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "ollama":
			c.Model = "llama3.1"
		}
	}
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}
}

// Validate checks synthesis settings.
func (c *Config) Validate() error {
	if c.ContextBudget < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "context_budget must be positive")
	}
	switch c.Provider {
	case "mock", "openai", "ollama", "anthropic":
		return nil
	default:
		return types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown synthesis provider: "+c.Provider)
	}
}

// assembleContext concatenates ranked chunks under the character budget.
// Chunks are taken in rank order, so when the budget truncates it is always
// the lowest-ranked chunks that fall off. Returns the context text, the
// citations for every included chunk, and the included candidates.
func assembleContext(candidates []search.Candidate, budget int) (string, []Citation, []search.Candidate) {
	var b strings.Builder
	var citations []Citation
	var included []search.Candidate

	for i, c := range candidates {
		entry := fmt.Sprintf("[%d] %s\n\n", i+1, strings.TrimSpace(c.Text))
		if b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
		citations = append(citations, Citation{DocumentID: c.DocumentID, ChunkID: c.ChunkID})
		included = append(included, c)
	}
	return strings.TrimRight(b.String(), "\n"), citations, included
}
