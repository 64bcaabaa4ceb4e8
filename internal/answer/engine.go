package answer

import (
	"context"
	"log/slog"

	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
)

// Searcher is the slice of the search service the engine needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Engine answers questions: hybrid retrieval, context assembly, synthesis.
type Engine struct {
	searcher    Searcher
	synthesizer Synthesizer
	config      Config
	logger      *slog.Logger
}

// NewEngine wires the answer pipeline. A nil synthesizer means every answer
// is degraded (retrieval-only). A nil logger defaults to slog.Default().
func NewEngine(searcher Searcher, synthesizer Synthesizer, config Config, logger *slog.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		searcher:    searcher,
		synthesizer: synthesizer,
		config:      config,
		logger:      logger,
	}
}

// Ask retrieves context for the question and synthesizes a cited answer.
// Retrieval errors propagate; synthesis failure degrades the answer to raw
// chunks rather than failing or inventing text. Citations cover exactly the
// chunks that made it into the assembled context.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	resp, err := e.searcher.Search(ctx, search.Request{
		Query: question,
		Mode:  search.ModeHybrid,
	})
	if err != nil {
		return nil, err
	}

	contextText, citations, included := assembleContext(resp.Results, e.config.ContextBudget)
	answer := &Answer{
		Question:  question,
		Citations: citations,
		Chunks:    included,
		Degraded:  resp.Degraded,
	}

	if e.synthesizer == nil {
		answer.Degraded = true
		return answer, nil
	}

	text, err := e.synthesizer.Synthesize(ctx, question, contextText)
	if err != nil {
		e.logger.Warn("synthesis failed, returning retrieval-only answer",
			"error", err, "chunks", len(included))
		answer.Degraded = true
		return answer, nil
	}
	answer.Text = text
	return answer, nil
}

// Health reports the synthesizer's reachability; a missing synthesizer is
// degraded rather than unhealthy because retrieval still works.
func (e *Engine) Health(ctx context.Context) types.HealthStatus {
	if e.synthesizer == nil {
		return types.Degraded("no synthesizer configured, retrieval-only answers")
	}
	return e.synthesizer.Health(ctx)
}
