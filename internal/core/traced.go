package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/anansi-ai/anansi/internal/answer"
	"github.com/anansi-ai/anansi/internal/config"
	"github.com/anansi-ai/anansi/internal/graph"
	"github.com/anansi-ai/anansi/internal/ingest"
	"github.com/anansi-ai/anansi/internal/search"
	"github.com/anansi-ai/anansi/internal/types"
)

// Span names for the traced facade.
const (
	SpanIngest    = "anansi.ingest"
	SpanDelete    = "anansi.delete"
	SpanSearch    = "anansi.search"
	SpanAsk       = "anansi.ask"
	SpanReconcile = "anansi.reconcile"
)

// Traced wraps an Anansi instance with OpenTelemetry spans around each
// pipeline operation. With no SDK installed the spans are no-ops, so the
// wrapper is safe to use unconditionally.
type Traced struct {
	inner  *Anansi
	tracer trace.Tracer
}

// NewTraced wraps inner per the tracing config. Disabled tracing pins a
// no-op tracer so spans never reach the global provider; enabled tracing
// emits through the provider the embedding application installed.
func NewTraced(inner *Anansi, cfg config.TracingConfig) *Traced {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "anansi"
	}
	tracer := otel.Tracer(cfg.ServiceName)
	if !cfg.Enabled {
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
	}
	return &Traced{inner: inner, tracer: tracer}
}

func (t *Traced) Ingest(ctx context.Context, source, content string, metadata map[string]string) (ingest.Receipt, error) {
	ctx, span := t.tracer.Start(ctx, SpanIngest)
	defer span.End()
	span.SetAttributes(
		attribute.String("anansi.document.source", source),
		attribute.Int("anansi.document.bytes", len(content)),
	)

	start := time.Now()
	receipt, err := t.inner.Ingest(ctx, source, content, metadata)
	span.SetAttributes(attribute.Float64("anansi.duration_ms", float64(time.Since(start).Milliseconds())))
	if err != nil {
		return receipt, recordError(span, err)
	}

	span.SetAttributes(
		attribute.String("anansi.document.id", receipt.DocumentID.String()),
		attribute.String("anansi.ingest.status", receipt.Status),
		attribute.Int("anansi.ingest.chunks", receipt.ChunksCreated),
		attribute.Int("anansi.ingest.entities_created", receipt.EntitiesCreated),
		attribute.Int("anansi.ingest.entities_merged", receipt.EntitiesMerged),
	)
	span.SetStatus(codes.Ok, fmt.Sprintf("ingested %d chunks", receipt.ChunksCreated))
	return receipt, nil
}

func (t *Traced) IngestBatch(ctx context.Context, jobs []ingest.Job) []ingest.BatchResult {
	ctx, span := t.tracer.Start(ctx, SpanIngest)
	defer span.End()
	span.SetAttributes(attribute.Int("anansi.batch.jobs", len(jobs)))

	results := t.inner.IngestBatch(ctx, jobs)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("anansi.batch.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d jobs failed", failed, len(jobs)))
	} else {
		span.SetStatus(codes.Ok, "batch complete")
	}
	return results
}

func (t *Traced) Delete(ctx context.Context, documentID types.ID) (graph.CascadeResult, error) {
	ctx, span := t.tracer.Start(ctx, SpanDelete)
	defer span.End()
	span.SetAttributes(attribute.String("anansi.document.id", documentID.String()))

	result, err := t.inner.Delete(ctx, documentID)
	if err != nil {
		return result, recordError(span, err)
	}
	span.SetAttributes(
		attribute.Int("anansi.delete.chunks", result.ChunksDeleted),
		attribute.Int("anansi.delete.entities", result.EntitiesDeleted),
	)
	span.SetStatus(codes.Ok, "document deleted")
	return result, nil
}

func (t *Traced) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	ctx, span := t.tracer.Start(ctx, SpanSearch)
	defer span.End()
	span.SetAttributes(
		attribute.String("anansi.search.mode", string(req.Mode)),
		attribute.Int("anansi.search.top_k", req.TopK),
	)

	resp, err := t.inner.Search(ctx, req)
	if err != nil {
		return nil, recordError(span, err)
	}
	span.SetAttributes(
		attribute.Int("anansi.search.results", len(resp.Results)),
		attribute.Bool("anansi.search.degraded", resp.Degraded),
	)
	span.SetStatus(codes.Ok, fmt.Sprintf("found %d results", len(resp.Results)))
	return resp, nil
}

func (t *Traced) Ask(ctx context.Context, question string) (*answer.Answer, error) {
	ctx, span := t.tracer.Start(ctx, SpanAsk)
	defer span.End()

	resp, err := t.inner.Ask(ctx, question)
	if err != nil {
		return nil, recordError(span, err)
	}
	span.SetAttributes(
		attribute.Int("anansi.answer.citations", len(resp.Citations)),
		attribute.Bool("anansi.answer.degraded", resp.Degraded),
	)
	span.SetStatus(codes.Ok, fmt.Sprintf("answered with %d citations", len(resp.Citations)))
	return resp, nil
}

func (t *Traced) Reconcile(ctx context.Context) (ingest.Report, error) {
	ctx, span := t.tracer.Start(ctx, SpanReconcile)
	defer span.End()

	report, err := t.inner.Reconcile(ctx)
	if err != nil {
		return report, recordError(span, err)
	}
	span.SetAttributes(
		attribute.Int("anansi.reconcile.checked", report.VectorsChecked),
		attribute.Int("anansi.reconcile.orphans", len(report.OrphanedChunkIDs)),
	)
	if report.Consistent() {
		span.SetStatus(codes.Ok, "stores consistent")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d orphaned vectors", len(report.OrphanedChunkIDs)))
	}
	return report, nil
}

// Ready and Health pass through untraced, health probes are not worth spans.
func (t *Traced) Ready(ctx context.Context) bool { return t.inner.Ready(ctx) }

func (t *Traced) Health(ctx context.Context) map[string]types.HealthStatus {
	return t.inner.Health(ctx)
}

func (t *Traced) Close(ctx context.Context) error { return t.inner.Close(ctx) }

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
