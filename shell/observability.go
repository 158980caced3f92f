package shell

import (
	"strconv"
)

const (
	// RetriesMetric tracks retry attempts.
	//
	// Labels:
	//   - operation: circulation operation being retried (e.g., "borrow")
	//   - attempt_number: which retry attempt (1, 2, 3, ...)
	//   - error_type: category of error causing the retry
	RetriesMetric = "circulation_retries_total"

	// RetryDelayMetric tracks the backoff delay before each retry attempt.
	//
	// Labels:
	//   - operation
	//   - attempt_number
	RetryDelayMetric = "circulation_retry_delay_seconds"

	// MaxRetriesReachedMetric tracks when max retries are exhausted.
	//
	// Labels:
	//   - operation
	//   - final_error_type: error type that caused the final failure
	MaxRetriesReachedMetric = "circulation_max_retries_reached_total"
)

const (
	LabelOperation      = "operation"
	LabelAttemptNumber  = "attempt_number"
	LabelErrorType      = "error_type"
	LabelFinalErrorType = "final_error_type"
)

// Error type values used in metric labels and in RetryMetrics.LastErrorType.
const (
	ErrorTypeNone            = "none"
	ErrorTypeConflict        = "conflict"
	ErrorTypeBusy            = "busy"
	ErrorTypeContextCanceled = "context_canceled"
	ErrorTypeContextDeadline = "context_deadline_exceeded"
	ErrorTypeOther           = "other"
)

// BuildRetryLabels creates labels for retry attempt metrics.
func BuildRetryLabels(operation string, attemptNumber int, errorType string) map[string]string {
	return map[string]string{
		LabelOperation:     operation,
		LabelAttemptNumber: strconv.Itoa(attemptNumber),
		LabelErrorType:     errorType,
	}
}
