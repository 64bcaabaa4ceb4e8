package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

const extractionPrompt = `Extract named entities and relationships from the text below.

Return ONLY a JSON object with this shape, no prose:
{
  "entities": [{"name": "...", "type": "PERSON|ORG|GPE|DATE|MONEY|PRODUCT|EVENT|OTHER"}],
  "relations": [{"from": "...", "from_type": "...", "to": "...", "to_type": "..."}]
}

Rules:
- Only include entities that appear verbatim in the text.
- Use the most specific type that applies; OTHER as last resort.
- Relations must connect two extracted entities.

Text:
%s`

// LLMExtractor asks a chat model for entities and relations as JSON. Model
// output is untrusted: entities that do not appear in the source text are
// dropped rather than written to the graph.
type LLMExtractor struct {
	model    llms.Model
	provider string
	name     string
	maxChars int
}

// NewLLMExtractor creates an extractor over the configured provider.
func NewLLMExtractor(config Config) (*LLMExtractor, error) {
	config.ApplyDefaults()
	var model llms.Model
	var err error
	switch config.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	default:
		return nil, types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown llm provider: "+config.Provider)
	}
	if err != nil {
		return nil, types.WrapError(types.EXTRACT_UNAVAILABLE,
			"failed to initialize llm extractor", err)
	}
	return &LLMExtractor{
		model:    model,
		provider: config.Provider,
		name:     config.Model,
		maxChars: config.MaxTextChars,
	}, nil
}

// llmEntity and llmRelation mirror the JSON shape requested in the prompt.
type llmEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type llmRelation struct {
	From     string `json:"from"`
	FromType string `json:"from_type"`
	To       string `json:"to"`
	ToType   string `json:"to_type"`
}

type llmResponse struct {
	Entities  []llmEntity   `json:"entities"`
	Relations []llmRelation `json:"relations"`
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (Result, error) {
	if e.maxChars > 0 && len(text) > e.maxChars {
		text = text[:e.maxChars]
	}
	completion, err := llms.GenerateFromSinglePrompt(ctx, e.model,
		fmt.Sprintf(extractionPrompt, text),
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return Result{}, types.WrapRetryableError(types.EXTRACT_FAILED,
			fmt.Sprintf("%s extraction request failed", e.provider), err)
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(ExtractJSON(completion)), &parsed); err != nil {
		return Result{}, types.WrapError(types.EXTRACT_FAILED,
			"model returned unparseable extraction output", err)
	}
	return e.validate(text, parsed), nil
}

// validate grounds model output in the source text, resolving spans and
// dropping hallucinated entities.
func (e *LLMExtractor) validate(text string, parsed llmResponse) Result {
	var result Result
	accepted := make(map[string]document.EntityType)
	for _, ent := range parsed.Entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		idx := strings.Index(text, name)
		if idx < 0 {
			// Retry case-insensitively; models love to re-case names.
			idx = strings.Index(strings.ToLower(text), strings.ToLower(name))
			if idx < 0 {
				continue
			}
			name = text[idx : idx+len(name)]
		}
		entityType := document.NormalizeEntityType(ent.Type)
		result.Mentions = append(result.Mentions, document.Mention{
			Name:  name,
			Type:  entityType,
			Start: idx,
			End:   idx + len(name),
		})
		accepted[strings.ToLower(name)] = entityType
	}

	for _, rel := range parsed.Relations {
		fromType, okFrom := accepted[strings.ToLower(strings.TrimSpace(rel.From))]
		toType, okTo := accepted[strings.ToLower(strings.TrimSpace(rel.To))]
		if !okFrom || !okTo {
			continue
		}
		result.Relations = append(result.Relations, Relation{
			FromName: strings.TrimSpace(rel.From), FromType: fromType,
			ToName: strings.TrimSpace(rel.To), ToType: toType,
		})
	}
	return result
}

// Health runs a trivial generation with a short timeout.
func (e *LLMExtractor) Health(ctx context.Context) types.HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err := llms.GenerateFromSinglePrompt(probeCtx, e.model, "Reply with OK.")
	if err != nil {
		return types.Unhealthy(fmt.Sprintf("%s extractor unreachable: %v", e.provider, err))
	}
	return types.Healthy(fmt.Sprintf("%s extractor, model %s", e.provider, e.name))
}

// ExtractJSON pulls the first JSON object out of model output, tolerating
// markdown code fences and surrounding prose.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		} else {
			s = strings.TrimSpace(rest)
		}
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
