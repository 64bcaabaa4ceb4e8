// Package search answers queries over the knowledge graph and vector index.
// Three modes are supported: pure vector similarity, pure graph expansion
// from entities recognized in the query, and a hybrid that runs both legs
// concurrently and fuses their scores.
package search

import (
	"time"

	"github.com/anansi-ai/anansi/internal/types"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// IsValid reports whether the mode is known.
func (m Mode) IsValid() bool {
	return m == ModeVector || m == ModeGraph || m == ModeHybrid
}

// State is one stage a query passed through; the sequence is recorded on
// the response so operators can see where a degraded query stopped.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateEmbedded       State = "EMBEDDED"
	StateVectorSearched State = "VECTOR_SEARCHED"
	StateGraphExpanded  State = "GRAPH_EXPANDED"
	StateMerged         State = "MERGED"
	StateRanked         State = "RANKED"
	StateReturned       State = "RETURNED"
)

// Candidate source flags.
const (
	SourceVector = "vector"
	SourceGraph  = "graph"
)

// Request is one search query.
type Request struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
	// TopK caps results; zero uses the configured default.
	TopK int `json:"top_k"`
}

// Candidate is one scored chunk in a response.
type Candidate struct {
	ChunkID      types.ID  `json:"chunk_id"`
	DocumentID   types.ID  `json:"document_id"`
	Text         string    `json:"text"`
	Score        float64   `json:"score"`
	VectorScore  float64   `json:"vector_score"`
	GraphScore   float64   `json:"graph_score"`
	Hops         int       `json:"hops,omitempty"`
	Sources      []string  `json:"sources"`
	DocCreatedAt time.Time `json:"doc_created_at"`
}

// FromBothLegs reports whether both retrieval legs produced this candidate.
func (c Candidate) FromBothLegs() bool {
	return len(c.Sources) == 2
}

// Response is a completed search.
type Response struct {
	Results []Candidate `json:"results"`
	Mode    Mode        `json:"mode"`
	// States is the pipeline trajectory of this query.
	States []State `json:"states"`
	// Degraded is set when a leg timed out or a backend was unavailable
	// and the response was assembled from what remained.
	Degraded bool          `json:"degraded"`
	Took     time.Duration `json:"took"`
}

// Config tunes retrieval and fusion.
type Config struct {
	TopK     int     `yaml:"top_k" json:"top_k" mapstructure:"top_k"`
	MinScore float64 `yaml:"min_score" json:"min_score" mapstructure:"min_score"`
	MaxHops  int     `yaml:"max_hops" json:"max_hops" mapstructure:"max_hops"`
	// VectorWeight and GraphWeight blend the two leg scores additively.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight" mapstructure:"vector_weight"`
	GraphWeight  float64 `yaml:"graph_weight" json:"graph_weight" mapstructure:"graph_weight"`
	// BoostBothSources multiplies the fused score of candidates found by
	// both legs. 1 disables the boost.
	BoostBothSources float64 `yaml:"boost_both_sources" json:"boost_both_sources" mapstructure:"boost_both_sources"`
	// LegTimeout bounds each hybrid leg; a leg missing the deadline
	// degrades the response instead of failing it.
	LegTimeout time.Duration `yaml:"leg_timeout" json:"leg_timeout" mapstructure:"leg_timeout"`
	// CandidateMultiple oversizes per-leg candidate pulls relative to TopK
	// so fusion has room to rerank.
	CandidateMultiple int `yaml:"candidate_multiple" json:"candidate_multiple" mapstructure:"candidate_multiple"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.MaxHops == 0 {
		c.MaxHops = 2
	}
	if c.VectorWeight == 0 && c.GraphWeight == 0 {
		c.VectorWeight = 0.7
		c.GraphWeight = 0.3
	}
	if c.BoostBothSources == 0 {
		c.BoostBothSources = 1
	}
	if c.LegTimeout == 0 {
		c.LegTimeout = 5 * time.Second
	}
	if c.CandidateMultiple == 0 {
		c.CandidateMultiple = 3
	}
}

// Validate checks fusion settings.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "top_k must be positive")
	}
	if c.VectorWeight < 0 || c.GraphWeight < 0 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "fusion weights must be non-negative")
	}
	if c.VectorWeight == 0 && c.GraphWeight == 0 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "at least one fusion weight must be positive")
	}
	if c.BoostBothSources < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "boost_both_sources must be >= 1")
	}
	if c.MaxHops < 1 {
		return types.NewError(types.CONFIG_LOAD_FAILED, "max_hops must be positive")
	}
	return nil
}
