package answer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
)

type stubSearcher struct {
	resp *search.Response
	err  error
	last search.Request
}

func (s *stubSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func candidate(i int, text string) search.Candidate {
	return search.Candidate{
		ChunkID:      types.ID(fmt.Sprintf("chunk-%d", i)),
		DocumentID:   types.ID(fmt.Sprintf("doc-%d", i)),
		Text:         text,
		Score:        1.0 / float64(i+1),
		DocCreatedAt: time.Now(),
	}
}

func TestAssembleContextNumbersAndCites(t *testing.T) {
	candidates := []search.Candidate{
		candidate(0, "Kraftwerk formed in Dusseldorf."),
		candidate(1, "Autobahn was released in 1974."),
	}

	text, citations, included := assembleContext(candidates, 1000)

	assert.Contains(t, text, "[1] Kraftwerk formed in Dusseldorf.")
	assert.Contains(t, text, "[2] Autobahn was released in 1974.")
	require.Len(t, citations, 2)
	assert.Equal(t, candidates[0].DocumentID, citations[0].DocumentID)
	assert.Equal(t, candidates[0].ChunkID, citations[0].ChunkID)
	assert.Equal(t, candidates, included)
}

func TestAssembleContextTruncatesLowestRanked(t *testing.T) {
	candidates := []search.Candidate{
		candidate(0, strings.Repeat("a", 50)),
		candidate(1, strings.Repeat("b", 50)),
		candidate(2, strings.Repeat("c", 50)),
	}

	// Budget fits two entries but not three.
	text, citations, included := assembleContext(candidates, 120)

	require.Len(t, included, 2)
	assert.Equal(t, candidates[0].ChunkID, included[0].ChunkID)
	assert.Equal(t, candidates[1].ChunkID, included[1].ChunkID)
	assert.Len(t, citations, 2)
	assert.NotContains(t, text, "ccc")
}

func TestAssembleContextEmpty(t *testing.T) {
	text, citations, included := assembleContext(nil, 1000)
	assert.Empty(t, text)
	assert.Empty(t, citations)
	assert.Empty(t, included)
}

func TestEngineAsk(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results: []search.Candidate{
			candidate(0, "Rosalind Franklin imaged DNA at King's College London."),
		},
		Mode: search.ModeHybrid,
	}}
	synth := NewMockSynthesizer("Rosalind Franklin imaged DNA [1].")
	engine := NewEngine(searcher, synth, Config{}, nil)

	answer, err := engine.Ask(context.Background(), "Who imaged DNA?")
	require.NoError(t, err)

	assert.Equal(t, "Who imaged DNA?", answer.Question)
	assert.Equal(t, "Rosalind Franklin imaged DNA [1].", answer.Text)
	assert.False(t, answer.Degraded)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, answer.Chunks[0].ChunkID, answer.Citations[0].ChunkID)
	assert.Equal(t, search.ModeHybrid, searcher.last.Mode)

	question, contextText := synth.LastInput()
	assert.Equal(t, "Who imaged DNA?", question)
	assert.Contains(t, contextText, "[1] Rosalind Franklin")
}

func TestEngineAskSynthesisFailureDegrades(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results: []search.Candidate{candidate(0, "Some retrieved text.")},
	}}
	synth := NewMockSynthesizer("unused")
	synth.Fail(types.NewRetryableError(types.SYNTH_UNAVAILABLE, "model offline"))
	engine := NewEngine(searcher, synth, Config{}, nil)

	answer, err := engine.Ask(context.Background(), "anything?")
	require.NoError(t, err)

	assert.True(t, answer.Degraded)
	assert.Empty(t, answer.Text)
	require.Len(t, answer.Chunks, 1)
	assert.Len(t, answer.Citations, 1)
}

func TestEngineAskNoSynthesizer(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results: []search.Candidate{candidate(0, "Some retrieved text.")},
	}}
	engine := NewEngine(searcher, nil, Config{}, nil)

	answer, err := engine.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Empty(t, answer.Text)
	assert.Len(t, answer.Chunks, 1)
}

func TestEngineAskDegradedRetrievalPropagates(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results:  []search.Candidate{candidate(0, "Vector-only hit.")},
		Degraded: true,
	}}
	engine := NewEngine(searcher, NewMockSynthesizer("answer [1]"), Config{}, nil)

	answer, err := engine.Ask(context.Background(), "q?")
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Equal(t, "answer [1]", answer.Text)
}

func TestEngineAskSearchError(t *testing.T) {
	searcher := &stubSearcher{err: types.NewError(types.EMBED_FAILED, "embedder down")}
	engine := NewEngine(searcher, NewMockSynthesizer("x"), Config{}, nil)

	_, err := engine.Ask(context.Background(), "q?")
	require.Error(t, err)
	assert.Equal(t, types.EMBED_FAILED, types.CodeOf(err))
}

func TestEngineCitationsMatchContextBudget(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results: []search.Candidate{
			candidate(0, strings.Repeat("x", 80)),
			candidate(1, strings.Repeat("y", 80)),
			candidate(2, strings.Repeat("z", 80)),
		},
	}}
	engine := NewEngine(searcher, NewMockSynthesizer("ok"), Config{ContextBudget: 180}, nil)

	answer, err := engine.Ask(context.Background(), "q?")
	require.NoError(t, err)

	// Only the chunks that fit the budget are cited.
	require.Len(t, answer.Chunks, 2)
	assert.Len(t, answer.Citations, 2)
	for i, c := range answer.Chunks {
		assert.Equal(t, c.ChunkID, answer.Citations[i].ChunkID)
	}
}

func TestEngineHealth(t *testing.T) {
	engine := NewEngine(&stubSearcher{}, nil, Config{}, nil)
	assert.True(t, engine.Health(context.Background()).IsDegraded())

	engine = NewEngine(&stubSearcher{}, NewMockSynthesizer("x"), Config{}, nil)
	assert.True(t, engine.Health(context.Background()).IsHealthy())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	assert.Equal(t, 12000, c.ContextBudget)
	assert.Equal(t, "mock", c.Provider)
	require.NoError(t, c.Validate())
}
