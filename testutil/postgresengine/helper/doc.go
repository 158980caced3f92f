// Package helper provides testing utilities for the PostgreSQL circulation engine.
//
// It contains spies for logs, metrics and traces, which capture what the engine reports
// so tests can assert on it, plus fixtures that arrange books, copies and members
// and a controllable clock for due-date scenarios.
package helper
