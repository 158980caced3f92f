package promadapters

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// MetricsCollector implements circulation.MetricsCollector on a prometheus.Registerer:
//   - RecordDuration -> HistogramVec in seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
//
// Vectors are registered lazily. The label names of a metric are fixed by its first use,
// later calls fill missing labels with an empty value and drop unknown ones.
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	labelNames map[string][]string
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithBuckets overrides the histogram buckets (default: prometheus.DefBuckets).
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

// NewMetricsCollector creates a collector registering its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, opts ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		labelNames: make(map[string][]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, exists := m.histograms[metric]
	if !exists {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metric,
			Help:    help(metric),
			Buckets: m.buckets,
		}, m.fixLabelNames(metric, labels))

		if !m.register(vec) {
			return
		}
		m.histograms[metric] = vec
	}

	vec.With(m.labelsFor(metric, labels)).Observe(duration.Seconds())
}

func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, exists := m.counters[metric]
	if !exists {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metric,
			Help: help(metric),
		}, m.fixLabelNames(metric, labels))

		if !m.register(vec) {
			return
		}
		m.counters[metric] = vec
	}

	vec.With(m.labelsFor(metric, labels)).Inc()
}

func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, exists := m.gauges[metric]
	if !exists {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metric,
			Help: help(metric),
		}, m.fixLabelNames(metric, labels))

		if !m.register(vec) {
			return
		}
		m.gauges[metric] = vec
	}

	vec.With(m.labelsFor(metric, labels)).Set(value)
}

// register returns false if the registerer refused the collector (e.g. a name clash), the sample is dropped then.
func (m *MetricsCollector) register(collector prometheus.Collector) bool {
	return m.registerer.Register(collector) == nil
}

func (m *MetricsCollector) fixLabelNames(metric string, labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	slices.Sort(names)

	m.labelNames[metric] = names

	return names
}

func (m *MetricsCollector) labelsFor(metric string, labels map[string]string) prometheus.Labels {
	names := m.labelNames[metric]
	promLabels := make(prometheus.Labels, len(names))
	for _, name := range names {
		promLabels[name] = labels[name]
	}

	return promLabels
}

func help(metric string) string {
	return strings.ReplaceAll(metric, "_", " ")
}

var _ circulation.MetricsCollector = (*MetricsCollector)(nil)
