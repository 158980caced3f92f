package helper

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// SpySpanContext is the circulation.SpanContext handed out by TracingCollectorSpy.
type SpySpanContext struct {
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}
	c.attributes[key] = value
}

// GetAttributes returns a copy of the attributes set on the span after it was started.
func (c *SpySpanContext) GetAttributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.attributes)
}

// SpySpanRecord is one started span. Status and EndAttributes stay empty until it is finished.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	SpanContext     *SpySpanContext
}

// TracingCollectorSpy captures spans. Created with recordCalls=false it only satisfies the interface.
type TracingCollectorSpy struct {
	mu          sync.Mutex
	records     []SpySpanRecord
	recordCalls bool
}

func NewTracingCollectorSpy(recordCalls bool) *TracingCollectorSpy {
	return &TracingCollectorSpy{recordCalls: recordCalls}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	if !s.recordCalls {
		return ctx, nil
	}

	spanCtx := &SpySpanContext{}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpySpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		SpanContext:     spanCtx,
	})

	return ctx, spanCtx
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	spySpanCtx, ok := spanCtx.(*SpySpanContext)
	if !s.recordCalls || !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].SpanContext == spySpanCtx {
			s.records[i].Status = status
			s.records[i].EndAttributes = maps.Clone(attrs)

			return
		}
	}
}

// GetSpanRecords returns the spans in the order they were started.
func (s *TracingCollectorSpy) GetSpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpySpanRecord(nil), s.records...)
}

func (s *TracingCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}

func (s *TracingCollectorSpy) CountSpanRecordsForName(name string) int {
	return len(s.HasSpanRecordForName(name).candidates)
}

// HasSpanRecordForName starts a chain over all spans with this name.
// The chain matches while at least one of them satisfies every condition.
func (s *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	m := &SpanRecordMatcher{}
	for _, record := range s.GetSpanRecords() {
		if record.Name == name {
			m.candidates = append(m.candidates, record)
		}
	}

	return m
}

type SpanRecordMatcher struct {
	candidates []SpySpanRecord
}

func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	return m.keep(func(record SpySpanRecord) bool { return record.Status == status })
}

func (m *SpanRecordMatcher) WithStartAttribute(key, value string) *SpanRecordMatcher {
	return m.keep(func(record SpySpanRecord) bool { return hasEntry(record.StartAttributes, key, value) })
}

func (m *SpanRecordMatcher) WithEndAttribute(key, value string) *SpanRecordMatcher {
	return m.keep(func(record SpySpanRecord) bool { return hasEntry(record.EndAttributes, key, value) })
}

func (m *SpanRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

func (m *SpanRecordMatcher) keep(matches func(SpySpanRecord) bool) *SpanRecordMatcher {
	var kept []SpySpanRecord
	for _, record := range m.candidates {
		if matches(record) {
			kept = append(kept, record)
		}
	}
	m.candidates = kept

	return m
}

func hasEntry(attrs map[string]string, key, value string) bool {
	got, ok := attrs[key]
	return ok && got == value
}

var _ circulation.TracingCollector = (*TracingCollectorSpy)(nil)
