package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/anansi-ai/anansi/internal/types"
)

// MockEmbedder produces deterministic unit vectors seeded from a SHA-256 of
// the input text. The same text always embeds to the same vector, so tests
// and offline pipelines can make rank assertions without a model.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock producing vectors of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockEmbedder{dimension: dimension}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.EMBED_FAILED, "embedding cancelled", err)
	}
	return m.embedOne(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.EMBED_FAILED, "embedding cancelled", err)
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = m.embedOne(text)
	}
	return vectors, nil
}

func (m *MockEmbedder) embedOne(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	v := make([]float64, m.dimension)
	var norm float64
	for i := range v {
		v[i] = rng.NormFloat64()
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (m *MockEmbedder) Dimensions() int { return m.dimension }

func (m *MockEmbedder) Model() string { return "mock-deterministic" }

func (m *MockEmbedder) Health(context.Context) types.HealthStatus {
	return types.Healthy("mock embedder")
}
