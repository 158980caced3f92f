package helper

import (
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

type metricKind int

const (
	durationMetric metricKind = iota
	counterMetric
	valueMetric
)

// SpyMetricRecord is one captured call of a circulation.MetricsCollector method.
// Duration is set for RecordDuration calls, Value for RecordValue calls.
type SpyMetricRecord struct {
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
	kind     metricKind
}

// MetricsCollectorSpy captures metrics calls. Created with recordCalls=false it only satisfies the interface.
type MetricsCollectorSpy struct {
	mu          sync.Mutex
	records     []SpyMetricRecord
	recordCalls bool
}

func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{recordCalls: recordCalls}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.capture(SpyMetricRecord{kind: durationMetric, Metric: metric, Duration: duration, Labels: labels})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.capture(SpyMetricRecord{kind: counterMetric, Metric: metric, Labels: labels})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.capture(SpyMetricRecord{kind: valueMetric, Metric: metric, Value: value, Labels: labels})
}

func (s *MetricsCollectorSpy) capture(record SpyMetricRecord) {
	if !s.recordCalls {
		return
	}

	record.Labels = maps.Clone(record.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
}

// GetValueRecords returns the captured RecordValue calls.
func (s *MetricsCollectorSpy) GetValueRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var values []SpyMetricRecord
	for _, record := range s.records {
		if record.kind == valueMetric {
			values = append(values, record)
		}
	}

	return values
}

func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}

func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcherFor(durationMetric, metric)
}

func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcherFor(counterMetric, metric)
}

func (s *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcherFor(valueMetric, metric)
}

func (s *MetricsCollectorSpy) matcherFor(kind metricKind, metric string) *MetricRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &MetricRecordMatcher{}
	for _, record := range s.records {
		if record.kind == kind && record.Metric == metric {
			m.labelSets = append(m.labelSets, record.Labels)
		}
	}

	return m
}

// MetricRecordMatcher narrows the records of one metric down, label by label.
// It matches while at least one record is left.
type MetricRecordMatcher struct {
	labelSets []map[string]string
}

func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel("operation", operation)
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.WithLabel("error_type", errorType)
}

func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	var kept []map[string]string
	for _, labels := range m.labelSets {
		if got, ok := labels[key]; ok && got == value {
			kept = append(kept, labels)
		}
	}
	m.labelSets = kept

	return m
}

func (m *MetricRecordMatcher) Assert() bool {
	return len(m.labelSets) > 0
}

func (m *MetricRecordMatcher) Count() int {
	return len(m.labelSets)
}

var _ circulation.MetricsCollector = (*MetricsCollectorSpy)(nil)
