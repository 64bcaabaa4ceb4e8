package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// MockExtractor returns scripted results for tests. With a nil script it
// emits one OTHER mention per capitalized word, enough to drive graph
// writes without any heuristics in the way.
type MockExtractor struct {
	mu     sync.Mutex
	script map[string]Result
	err    error
	calls  int
}

// NewMockExtractor creates a mock. script maps exact input text to its
// result; inputs not in the script use the fallback behavior.
func NewMockExtractor(script map[string]Result) *MockExtractor {
	return &MockExtractor{script: script}
}

// Fail makes every subsequent Extract call return err.
func (m *MockExtractor) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Extract ran.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockExtractor) Extract(_ context.Context, text string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Result{}, m.err
	}
	if result, ok := m.script[text]; ok {
		return result, nil
	}

	var result Result
	offset := 0
	for _, word := range strings.Fields(text) {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			continue
		}
		start := offset + idx
		offset = start + len(word)
		trimmed := strings.Trim(word, ".,;:!?")
		if trimmed == "" || !startsUpper(trimmed) {
			continue
		}
		result.Mentions = append(result.Mentions, document.Mention{
			Name:  trimmed,
			Type:  document.EntityOther,
			Start: start,
			End:   start + len(trimmed),
		})
	}
	return result, nil
}

func (m *MockExtractor) Health(context.Context) types.HealthStatus {
	return types.Healthy("mock extractor")
}
