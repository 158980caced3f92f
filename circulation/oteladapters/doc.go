// Package oteladapters provides OpenTelemetry implementations of the circulation observability interfaces.
//
// Pass them to the postgresengine constructors:
//
//	engine, err := postgresengine.NewEngineFromPGXPool(pool,
//		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("circulation")),
//		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("circulation"))),
//		postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("circulation"))),
//	)
package oteladapters
