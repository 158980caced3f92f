package postgresengine

import (
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Option defines a functional option for configuring Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Completed and rejected operations with durations (production-safe)
// Warn level: Non-critical issues like failed rollbacks
// Error level: Database failures that cause operation failures.
func WithLogger(logger circulation.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// It receives the same messages as the Logger, with the context for trace correlation.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// It receives operation durations, returned row counts, conflicts and errors.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
// Every public operation runs inside one span.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}

// WithLoanPeriod overrides the default 14-day loan period.
func WithLoanPeriod(period time.Duration) Option {
	return func(e *Engine) error {
		if period <= 0 {
			return circulation.ErrInvalidLoanPeriod
		}

		e.policy = circulation.LoanPolicy{Period: period}

		return nil
	}
}

// WithClock replaces time.Now as the source of borrow and return dates.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return circulation.ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithLockTimeout bounds how long a transaction waits for a row lock.
// Zero disables the bound; the context deadline still applies.
func WithLockTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		if timeout < 0 {
			return circulation.ErrInvalidLockTimeout
		}

		e.lockTimeout = timeout

		return nil
	}
}

// WithMemberDirectory makes Borrow ask the directory whether a member exists
// instead of looking into the members table. Members the directory knows but the
// members table does not get a nameless row there when they first borrow.
func WithMemberDirectory(directory circulation.MemberDirectory) Option {
	return func(e *Engine) error {
		e.memberDirectory = directory
		return nil
	}
}
