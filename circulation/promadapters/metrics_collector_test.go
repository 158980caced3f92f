package promadapters_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation/promadapters"
)

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	// setup
	registry := prometheus.NewPedanticRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("circulation_errors_total", map[string]string{"operation": "borrow", "error_type": "conflict"})
	collector.IncrementCounter("circulation_errors_total", map[string]string{"operation": "borrow", "error_type": "conflict"})
	collector.IncrementCounter("circulation_errors_total", map[string]string{"operation": "return", "error_type": "not_found"})

	// assert
	expected := `
# HELP circulation_errors_total circulation errors total
# TYPE circulation_errors_total counter
circulation_errors_total{error_type="conflict",operation="borrow"} 2
circulation_errors_total{error_type="not_found",operation="return"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_errors_total"))
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithBuckets([]float64{0.1, 1}))

	// act
	collector.RecordDuration("circulation_operation_duration_seconds", 50*time.Millisecond, map[string]string{
		"operation": "borrow",
		"status":    "success",
	})
	collector.RecordDuration("circulation_operation_duration_seconds", 500*time.Millisecond, map[string]string{
		"operation": "borrow",
		"status":    "success",
	})

	// assert
	expected := `
# HELP circulation_operation_duration_seconds circulation operation duration seconds
# TYPE circulation_operation_duration_seconds histogram
circulation_operation_duration_seconds_bucket{operation="borrow",status="success",le="0.1"} 1
circulation_operation_duration_seconds_bucket{operation="borrow",status="success",le="1"} 2
circulation_operation_duration_seconds_bucket{operation="borrow",status="success",le="+Inf"} 2
circulation_operation_duration_seconds_sum{operation="borrow",status="success"} 0.55
circulation_operation_duration_seconds_count{operation="borrow",status="success"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_operation_duration_seconds"))
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.RecordValue("circulation_copies_added", 3, map[string]string{"operation": "add_copies"})
	collector.RecordValue("circulation_copies_added", 5, map[string]string{"operation": "add_copies"})

	// assert
	count, err := testutil.GatherAndCount(registry, "circulation_copies_added")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP circulation_copies_added circulation copies added
# TYPE circulation_copies_added gauge
circulation_copies_added{operation="add_copies"} 5
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_copies_added"))
}

func Test_MetricsCollector_LabelNamesAreFixedByFirstUse(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("circulation_loans_closed_total", map[string]string{"operation": "return", "was_overdue": "true"})
	collector.IncrementCounter("circulation_loans_closed_total", map[string]string{"operation": "return", "was_overdue": "false", "extra": "dropped"})

	// assert
	expected := `
# HELP circulation_loans_closed_total circulation loans closed total
# TYPE circulation_loans_closed_total counter
circulation_loans_closed_total{operation="return",was_overdue="false"} 1
circulation_loans_closed_total{operation="return",was_overdue="true"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_loans_closed_total"))
}

func Test_MetricsCollector_DropsSamplesOnNameClash(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "circulation_conflicts_total", Help: "taken"}))
	collector := promadapters.NewMetricsCollector(registry)

	// act + assert
	assert.NotPanics(t, func() {
		collector.IncrementCounter("circulation_conflicts_total", map[string]string{"operation": "borrow"})
	})
}
