package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/embed"
	"github.com/anansi-ai/anansi/internal/extract"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/types"
	"github.com/anansi-ai/anansi/internal/vector"
)

// Service runs queries against the vector store and the knowledge graph.
type Service struct {
	repo      graph.Repository
	store     vector.Store
	embedder  embed.Embedder
	extractor extract.Extractor
	config    Config
	logger    *slog.Logger
}

// NewService wires the retrieval legs. A nil logger defaults to
// slog.Default().
func NewService(repo graph.Repository, store vector.Store, embedder embed.Embedder, extractor extract.Extractor, config Config, logger *slog.Logger) *Service {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// legResult carries one leg's candidates and the pipeline states it
// reached back to the merger. Legs never touch the response directly; in
// hybrid mode they run on separate goroutines.
type legResult struct {
	candidates map[types.ID]*Candidate
	states     []State
	err        error
}

// Search executes the request. Zero surviving candidates is a typed
// SEARCH_NO_RESULTS error, not an empty slice, so callers cannot mistake
// "nothing matched" for a quiet success.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if !req.Mode.IsValid() {
		return nil, types.NewError(types.SEARCH_FAILED, "unknown search mode: "+string(req.Mode))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.config.TopK
	}

	resp := &Response{Mode: req.Mode, States: []State{StateReceived}}

	var vectorLeg, graphLeg map[types.ID]*Candidate
	switch req.Mode {
	case ModeVector:
		leg := s.vectorLeg(ctx, req.Query, topK)
		if leg.err != nil {
			return nil, leg.err
		}
		vectorLeg = leg.candidates
		appendStates(resp, leg.states)
	case ModeGraph:
		leg := s.graphLeg(ctx, req.Query)
		if leg.err != nil {
			return nil, leg.err
		}
		graphLeg = leg.candidates
		appendStates(resp, leg.states)
	case ModeHybrid:
		vectorLeg, graphLeg = s.hybridLegs(ctx, req.Query, topK, resp)
	}

	merged := s.fuse(vectorLeg, graphLeg)
	resp.States = append(resp.States, StateMerged)

	rank(merged)
	resp.States = append(resp.States, StateRanked)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	if len(merged) == 0 {
		return nil, types.NewError(types.SEARCH_NO_RESULTS, "no chunks matched the query")
	}

	resp.Results = merged
	resp.States = append(resp.States, StateReturned)
	resp.Took = time.Since(start)
	s.logger.Debug("search completed",
		"mode", req.Mode,
		"results", len(merged),
		"degraded", resp.Degraded,
		"took", resp.Took)
	return resp, nil
}

// vectorLeg embeds the query and pulls similar chunks.
func (s *Service) vectorLeg(ctx context.Context, query string, topK int) legResult {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return legResult{err: types.WrapError(types.SEARCH_FAILED, "query embedding failed", err)}
	}
	states := []State{StateEmbedded}

	hits, err := s.store.Search(ctx, embedding, vector.SearchOptions{
		TopK:     topK * s.config.CandidateMultiple,
		MinScore: s.config.MinScore,
	})
	if err != nil {
		return legResult{err: types.WrapError(types.SEARCH_FAILED, "vector search failed", err)}
	}
	states = append(states, StateVectorSearched)

	candidates := make(map[types.ID]*Candidate, len(hits))
	for _, hit := range hits {
		candidates[hit.Record.ChunkID] = &Candidate{
			ChunkID:      hit.Record.ChunkID,
			DocumentID:   hit.Record.DocumentID,
			Text:         hit.Record.Text,
			VectorScore:  hit.Score,
			Sources:      []string{SourceVector},
			DocCreatedAt: hit.Record.CreatedAt,
		}
	}
	return legResult{candidates: candidates, states: states}
}

// graphLeg recognizes entities in the query, resolves them to graph nodes,
// and collects chunks near them with a hop-decay score of 1/(1+hops).
func (s *Service) graphLeg(ctx context.Context, query string) legResult {
	if !s.repo.Available() {
		return legResult{err: types.NewError(types.GRAPH_UNAVAILABLE, "graph backend unavailable")}
	}

	extracted, err := s.extractor.Extract(ctx, query)
	if err != nil {
		return legResult{err: types.WrapError(types.SEARCH_FAILED, "query entity extraction failed", err)}
	}

	var entityIDs []types.ID
	seen := make(map[string]bool)
	for _, mention := range extracted.Mentions {
		key := document.CanonicalKey(mention.Name, mention.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		entity, err := s.repo.EntityByCanonicalKey(ctx, key)
		if err != nil {
			return legResult{err: err}
		}
		if entity != nil {
			entityIDs = append(entityIDs, entity.ID)
		}
	}
	if len(entityIDs) == 0 {
		return legResult{err: types.NewError(types.SEARCH_NO_ENTITIES,
			"no entities recognized in query")}
	}

	hits, err := s.repo.ChunksNear(ctx, entityIDs, s.config.MaxHops)
	if err != nil {
		return legResult{err: err}
	}

	candidates := make(map[types.ID]*Candidate, len(hits))
	for _, hit := range hits {
		// Proximity decays with hop distance from the seed entities.
		graphScore := 1.0 / float64(1+hit.Hops)
		existing, ok := candidates[hit.Chunk.ID]
		if ok && existing.GraphScore >= graphScore {
			continue
		}
		candidates[hit.Chunk.ID] = &Candidate{
			ChunkID:      hit.Chunk.ID,
			DocumentID:   hit.Chunk.DocumentID,
			Text:         hit.Chunk.Text,
			GraphScore:   graphScore,
			Hops:         hit.Hops,
			Sources:      []string{SourceGraph},
			DocCreatedAt: hit.DocCreatedAt,
		}
	}
	return legResult{candidates: candidates, states: []State{StateGraphExpanded}}
}

// hybridLegs runs both legs concurrently, each under the leg timeout. A leg
// that errors or misses its deadline contributes nothing and marks the
// response degraded; the query fails only if both legs come back empty.
func (s *Service) hybridLegs(ctx context.Context, query string, topK int, resp *Response) (map[types.ID]*Candidate, map[types.ID]*Candidate) {
	vectorCh := make(chan legResult, 1)
	graphCh := make(chan legResult, 1)

	legCtx, cancel := context.WithTimeout(ctx, s.config.LegTimeout)
	defer cancel()

	go func() { vectorCh <- s.vectorLeg(legCtx, query, topK) }()
	go func() { graphCh <- s.graphLeg(legCtx, query) }()

	collect := func(ch chan legResult, name string) map[types.ID]*Candidate {
		select {
		case leg := <-ch:
			if leg.err != nil {
				// A graph leg with no recognized entities is normal for
				// entity-free queries, not a degradation.
				if types.CodeOf(leg.err) != types.SEARCH_NO_ENTITIES {
					resp.Degraded = true
				}
				s.logger.Warn("hybrid leg failed", "leg", name, "error", leg.err)
				return nil
			}
			appendStates(resp, leg.states)
			return leg.candidates
		case <-legCtx.Done():
			resp.Degraded = true
			s.logger.Warn("hybrid leg timed out", "leg", name, "timeout", s.config.LegTimeout)
			return nil
		}
	}
	return collect(vectorCh, "vector"), collect(graphCh, "graph")
}

// fuse merges the legs. Every candidate from either leg survives to
// ranking; a candidate present in both legs carries both scores and both
// source tags.
func (s *Service) fuse(vectorLeg, graphLeg map[types.ID]*Candidate) []Candidate {
	merged := make(map[types.ID]*Candidate, len(vectorLeg)+len(graphLeg))
	for id, c := range vectorLeg {
		copied := *c
		merged[id] = &copied
	}
	for id, c := range graphLeg {
		if existing, ok := merged[id]; ok {
			existing.GraphScore = c.GraphScore
			existing.Hops = c.Hops
			existing.Sources = append(existing.Sources, SourceGraph)
			continue
		}
		copied := *c
		merged[id] = &copied
	}

	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		c.Score = s.config.VectorWeight*c.VectorScore + s.config.GraphWeight*c.GraphScore
		if c.FromBothLegs() && s.config.BoostBothSources > 1 {
			c.Score *= s.config.BoostBothSources
		}
		out = append(out, *c)
	}
	return out
}

// rank orders by fused score descending; ties go to the newer document,
// then ascending chunk ID, so equal-scoring runs return deterministically.
func rank(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DocCreatedAt.Equal(b.DocCreatedAt) {
			return a.DocCreatedAt.After(b.DocCreatedAt)
		}
		return a.ChunkID < b.ChunkID
	})
}

// appendStates merges leg states into the response, keeping first
// occurrence order and dropping duplicates.
func appendStates(resp *Response, states []State) {
	for _, state := range states {
		present := false
		for _, existing := range resp.States {
			if existing == state {
				present = true
				break
			}
		}
		if !present {
			resp.States = append(resp.States, state)
		}
	}
}
