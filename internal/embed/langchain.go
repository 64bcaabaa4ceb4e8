package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/anansi-ai/anansi/internal/types"
)

// embeddingClient is the slice of langchaingo's LLM surface the embedders
// need; both openai.LLM and ollama.LLM satisfy it.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// LangchainEmbedder adapts a langchaingo model to the Embedder interface.
type LangchainEmbedder struct {
	client    embeddingClient
	provider  string
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(config Config) (*LangchainEmbedder, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(config.Model),
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.EMBED_UNAVAILABLE,
			"failed to initialize openai embedder", err)
	}
	return &LangchainEmbedder{
		client:    client,
		provider:  ProviderOpenAI,
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server.
func NewOllamaEmbedder(config Config) (*LangchainEmbedder, error) {
	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, types.WrapError(types.EMBED_UNAVAILABLE,
			"failed to initialize ollama embedder", err)
	}
	return &LangchainEmbedder{
		client:    client,
		provider:  ProviderOllama,
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	raw, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, types.WrapRetryableError(types.EMBED_FAILED,
			fmt.Sprintf("%s embedding request failed", e.provider), err)
	}
	if len(raw) != len(texts) {
		return nil, types.NewError(types.EMBED_FAILED,
			fmt.Sprintf("provider returned %d vectors for %d texts", len(raw), len(texts)))
	}

	vectors := make([][]float64, len(raw))
	for i, vec32 := range raw {
		if e.dimension != 0 && len(vec32) != e.dimension {
			return nil, types.NewError(types.CONFIG_DIMENSION_MISMATCH,
				fmt.Sprintf("provider returned dimension %d, configured %d", len(vec32), e.dimension))
		}
		vec := make([]float64, len(vec32))
		for j, x := range vec32 {
			vec[j] = float64(x)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *LangchainEmbedder) Dimensions() int { return e.dimension }

func (e *LangchainEmbedder) Model() string { return e.model }

// Health embeds a probe string with a short timeout.
func (e *LangchainEmbedder) Health(ctx context.Context) types.HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := e.client.CreateEmbedding(probeCtx, []string{"ping"}); err != nil {
		return types.Unhealthy(fmt.Sprintf("%s embedder unreachable: %v", e.provider, err))
	}
	return types.Healthy(fmt.Sprintf("%s embedder, model %s", e.provider, e.model))
}

// Open constructs the configured Embedder.
func Open(config Config) (Embedder, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Provider {
	case ProviderMock:
		return NewMockEmbedder(config.Dimension), nil
	case ProviderOpenAI:
		return NewOpenAIEmbedder(config)
	case ProviderOllama:
		return NewOllamaEmbedder(config)
	default:
		return nil, types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown embedding provider: "+config.Provider)
	}
}
