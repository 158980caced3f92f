package oteladapters_test

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/trace"
)

type emittedRecord struct {
	record      log.Record
	spanContext trace.SpanContext
}

// recordingLoggerProvider hands out loggers that keep every emitted record.
type recordingLoggerProvider struct {
	embedded.LoggerProvider

	mu      sync.Mutex
	records []emittedRecord
}

func (p *recordingLoggerProvider) Logger(_ string, _ ...log.LoggerOption) log.Logger {
	return &recordingLogger{provider: p}
}

func (p *recordingLoggerProvider) emitted() []emittedRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]emittedRecord(nil), p.records...)
}

type recordingLogger struct {
	embedded.Logger

	provider *recordingLoggerProvider
}

func (l *recordingLogger) Emit(ctx context.Context, record log.Record) {
	l.provider.mu.Lock()
	defer l.provider.mu.Unlock()

	l.provider.records = append(l.provider.records, emittedRecord{
		record:      record,
		spanContext: trace.SpanContextFromContext(ctx),
	})
}

func (l *recordingLogger) Enabled(_ context.Context, _ log.Record) bool {
	return true
}

func attributesOf(record log.Record) map[string]log.Value {
	attrs := make(map[string]log.Value)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	return attrs
}
