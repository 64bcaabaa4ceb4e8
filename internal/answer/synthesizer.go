package answer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/anansi-ai/anansi/internal/types"
)

const synthesisPrompt = `Answer the question using ONLY the numbered context passages below.
Cite passages inline as [1], [2] and so on. If the context does not contain
the answer, say so plainly instead of guessing.

Context:
%s

Question: %s

Answer:`

// Synthesizer generates answer text from assembled context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question, contextText string) (string, error)
	Health(ctx context.Context) types.HealthStatus
}

// LLMSynthesizer generates answers through a langchaingo chat model.
type LLMSynthesizer struct {
	model    llms.Model
	provider string
	name     string
}

// NewLLMSynthesizer constructs the configured chat backend.
func NewLLMSynthesizer(config Config) (*LLMSynthesizer, error) {
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
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, anthropic.WithToken(config.APIKey))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, types.NewError(types.CONFIG_LOAD_FAILED,
			"unknown synthesis provider: "+config.Provider)
	}
	if err != nil {
		return nil, types.WrapError(types.SYNTH_UNAVAILABLE,
			"failed to initialize synthesizer", err)
	}
	return &LLMSynthesizer{model: model, provider: config.Provider, name: config.Model}, nil
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, question, contextText string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, s.model,
		fmt.Sprintf(synthesisPrompt, contextText, question),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return "", types.WrapRetryableError(types.SYNTH_UNAVAILABLE,
			fmt.Sprintf("%s synthesis failed", s.provider), err)
	}
	return completion, nil
}

func (s *LLMSynthesizer) Health(ctx context.Context) types.HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := llms.GenerateFromSinglePrompt(probeCtx, s.model, "Reply with OK."); err != nil {
		return types.Unhealthy(fmt.Sprintf("%s synthesizer unreachable: %v", s.provider, err))
	}
	return types.Healthy(fmt.Sprintf("%s synthesizer, model %s", s.provider, s.name))
}

// Open constructs the configured Synthesizer. The mock provider answers
// every question with a fixed string and exists so the full pipeline runs
// without any LLM backend.
func Open(config Config) (Synthesizer, error) {
	config.ApplyDefaults()
	if config.Provider == "mock" {
		return NewMockSynthesizer("mock answer, see cited passages"), nil
	}
	return NewLLMSynthesizer(config)
}

// MockSynthesizer returns a canned answer, or a scripted error, for tests.
type MockSynthesizer struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	lastQ  string
	lastCt string
}

// NewMockSynthesizer creates a mock that echoes a fixed reply.
func NewMockSynthesizer(reply string) *MockSynthesizer {
	return &MockSynthesizer{reply: reply}
}

// Fail makes subsequent calls return err.
func (m *MockSynthesizer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LastInput returns the question and context of the most recent call.
func (m *MockSynthesizer) LastInput() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQ, m.lastCt
}

// Calls reports how many times Synthesize ran.
func (m *MockSynthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSynthesizer) Synthesize(_ context.Context, question, contextText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastQ, m.lastCt = question, contextText
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *MockSynthesizer) Health(context.Context) types.HealthStatus {
	return types.Healthy("mock synthesizer")
}
