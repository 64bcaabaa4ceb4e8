package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/config"
	"github.com/anansi-ai/anansi/internal/ingest"
	"github.com/anansi-ai/anansi/internal/search"
)

const franklinText = `Rosalind Franklin joined King's College London in 1951.
Her X-ray diffraction images of DNA were critical evidence for the double
helix. Franklin later moved to Birkbeck College to study virus structure.`

func newTestInstance(t *testing.T) *Anansi {
	t.Helper()
	a, err := New(context.Background(), config.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewWithDefaults(t *testing.T) {
	a := newTestInstance(t)
	assert.True(t, a.Ready(context.Background()))
}

func TestIngestSearchAskRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestInstance(t)

	receipt, err := a.Ingest(ctx, "docs/franklin.txt", franklinText, nil)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCreated, receipt.Status)
	assert.Greater(t, receipt.ChunksCreated, 0)

	resp, err := a.Search(ctx, search.Request{Query: "Rosalind Franklin DNA", Mode: search.ModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	answer, err := a.Ask(ctx, "Where did Rosalind Franklin work?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Citations)
	assert.NotEmpty(t, answer.Text)
}

func TestDeleteAndReconcile(t *testing.T) {
	ctx := context.Background()
	a := newTestInstance(t)

	receipt, err := a.Ingest(ctx, "docs/franklin.txt", franklinText, nil)
	require.NoError(t, err)

	result, err := a.Delete(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ChunksCreated, result.ChunksDeleted)

	report, err := a.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestHealthComponents(t *testing.T) {
	a := newTestInstance(t)
	health := a.Health(context.Background())

	for _, component := range []string{"graph", "vector", "embedder", "extractor", "answer"} {
		status, ok := health[component]
		require.True(t, ok, "missing component %s", component)
		assert.False(t, status.IsUnhealthy(), "component %s unhealthy: %s", component, status.Message)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.TopK = -1
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestTracedPassThrough(t *testing.T) {
	ctx := context.Background()
	a := newTestInstance(t)
	traced := NewTraced(a, config.TracingConfig{Enabled: true})

	receipt, err := traced.Ingest(ctx, "docs/franklin.txt", franklinText, nil)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCreated, receipt.Status)

	resp, err := traced.Search(ctx, search.Request{Query: "Franklin", Mode: search.ModeVector})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)

	answer, err := traced.Ask(ctx, "Who imaged DNA?")
	require.NoError(t, err)
	assert.NotNil(t, answer)

	report, err := traced.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	assert.True(t, traced.Ready(ctx))

	results := traced.IngestBatch(ctx, []ingest.Job{
		{Source: "docs/a.txt", Content: "Alice Cooper visited Berlin."},
	})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestTracedDisabledUsesNoopTracer(t *testing.T) {
	ctx := context.Background()
	a := newTestInstance(t)
	traced := NewTraced(a, config.TracingConfig{})

	// Disabled tracing binds a span-dropping tracer up front; operations
	// behave identically.
	_, span := traced.tracer.Start(ctx, SpanIngest)
	assert.False(t, span.IsRecording())
	span.End()

	receipt, err := traced.Ingest(ctx, "docs/franklin.txt", franklinText, nil)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCreated, receipt.Status)
}
