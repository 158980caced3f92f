package shell

import "time"

// HandlerResult carries the execution metadata of a handler call next to its business result.
type HandlerResult struct {
	// Attempts is the total number of attempts made (1 for no retries).
	Attempts int

	// TotalRetryDelay is the cumulative time spent in backoff delays, execution time excluded.
	TotalRetryDelay time.Duration

	// LastErrorType describes the final error encountered, "none" on success.
	LastErrorType string

	// RetriesExhausted is true when all attempts failed with a retryable error.
	RetriesExhausted bool
}

// NewHandlerResult creates a HandlerResult from RetryMetrics.
func NewHandlerResult(retryMetrics RetryMetrics) HandlerResult {
	return HandlerResult{
		Attempts:         retryMetrics.Attempts,
		TotalRetryDelay:  retryMetrics.TotalDelay,
		LastErrorType:    retryMetrics.LastErrorType,
		RetriesExhausted: retryMetrics.RetriesExhausted,
	}
}

// Retried reports whether more than one attempt was needed.
func (r HandlerResult) Retried() bool {
	return r.Attempts > 1
}
