// Package promadapters provides a Prometheus implementation of circulation.MetricsCollector.
package promadapters
