package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
)

func newTracingCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func attributeOf(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_SuccessfulSpan(t *testing.T) {
	// setup
	collector, exporter := newTracingCollector()

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), "circulation.borrow", map[string]string{
		"operation": "borrow",
		"target":    "book:123",
	})
	spanCtx.AddAttribute("copy_id", "c-1")
	collector.FinishSpan(spanCtx, "success", map[string]string{"loan_id": "l-1"})

	// assert
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "circulation.borrow", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)

	for key, want := range map[string]string{
		"operation": "borrow",
		"target":    "book:123",
		"copy_id":   "c-1",
		"loan_id":   "l-1",
	} {
		got, found := attributeOf(span, key)
		assert.True(t, found, key)
		assert.Equal(t, want, got, key)
	}
}

func Test_TracingCollector_ErrorSpan_UsesErrorTypeAsDescription(t *testing.T) {
	// setup
	collector, exporter := newTracingCollector()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "circulation.return", nil)
	spanCtx.SetStatus("error")
	collector.FinishSpan(spanCtx, "error", map[string]string{"error_type": "already_returned"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "already_returned", spans[0].Status.Description)
}

func Test_TracingCollector_UnknownStatus_BecomesAttribute(t *testing.T) {
	// setup
	collector, exporter := newTracingCollector()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "circulation.inventory", nil)
	collector.FinishSpan(spanCtx, "skipped", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	status, found := attributeOf(spans[0], "status")
	assert.True(t, found)
	assert.Equal(t, "skipped", status)
}

func Test_TracingCollector_StartSpan_NestsUnderParent(t *testing.T) {
	// setup
	collector, exporter := newTracingCollector()

	// act
	parentCtx, parent := collector.StartSpan(context.Background(), "parent", nil)
	_, child := collector.StartSpan(parentCtx, "circulation.borrow", nil)
	collector.FinishSpan(child, "success", nil)
	collector.FinishSpan(parent, "success", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
}
