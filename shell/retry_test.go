package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper"
)

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	meta, err := RetryWithExponentialBackoff(ctx, fn)

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, ErrorTypeNone, meta.LastErrorType)
	assert.False(t, meta.RetriesExhausted)
}

func Test_RetryWithExponentialBackoff_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.Join(circulation.ErrConflict, errors.New("unique_violation"))
		}
		return nil
	}

	meta, err := RetryWithExponentialBackoff(ctx, fn,
		WithBaseDelay(time.Millisecond),
		WithJitterFactor(0),
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Equal(t, 3*time.Millisecond, meta.TotalDelay) // 1 ms + 2 ms
	assert.Equal(t, ErrorTypeNone, meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_FailsFast_OnNonRetryableErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		wantErrorType string
	}{
		{name: "not available", err: circulation.ErrNotAvailable, wantErrorType: ErrorTypeOther},
		{name: "not found", err: errors.Join(circulation.ErrNotFound, circulation.ErrBookNotFound), wantErrorType: ErrorTypeOther},
		{name: "busy", err: circulation.ErrBusy, wantErrorType: ErrorTypeBusy},
		{name: "deadline", err: errors.Join(circulation.ErrBusy, context.DeadlineExceeded), wantErrorType: ErrorTypeContextDeadline},
		{name: "canceled", err: context.Canceled, wantErrorType: ErrorTypeContextCanceled},
		{
			name:          "counter out of bounds",
			err:           errors.Join(circulation.ErrConflict, circulation.ErrInventoryOutOfBounds),
			wantErrorType: ErrorTypeConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			callCount := 0
			fn := func(_ context.Context) error {
				callCount++
				return tc.err
			}

			meta, err := RetryWithExponentialBackoff(context.Background(), fn)

			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, callCount)
			assert.Equal(t, 1, meta.Attempts)
			assert.Equal(t, tc.wantErrorType, meta.LastErrorType)
			assert.False(t, meta.RetriesExhausted)
		})
	}
}

func Test_RetryWithExponentialBackoff_ExhaustsRetries(t *testing.T) {
	// setup
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return circulation.ErrConflict
	}

	// act
	meta, err := RetryWithExponentialBackoff(context.Background(), fn,
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
		WithJitterFactor(0),
		WithMetrics(metricsSpy, "borrow"),
	)

	// assert
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.True(t, meta.RetriesExhausted)
	assert.Equal(t, ErrorTypeConflict, meta.LastErrorType)

	assert.Equal(t, 2, metricsSpy.HasCounterRecordForMetric(RetriesMetric).
		WithOperation("borrow").
		WithErrorType(ErrorTypeConflict).
		Count())
	assert.True(t, metricsSpy.HasCounterRecordForMetric(RetriesMetric).WithLabel(LabelAttemptNumber, "2").Assert())
	assert.Equal(t, 2, metricsSpy.HasDurationRecordForMetric(RetryDelayMetric).WithOperation("borrow").Count())
	assert.True(t, metricsSpy.HasCounterRecordForMetric(MaxRetriesReachedMetric).
		WithOperation("borrow").
		WithLabel(LabelFinalErrorType, ErrorTypeConflict).
		Assert())
}

func Test_RetryWithExponentialBackoff_StopsWhenContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		cancel()
		return circulation.ErrConflict
	}

	meta, err := RetryWithExponentialBackoff(ctx, fn, WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, ErrorTypeContextCanceled, meta.LastErrorType)
	assert.False(t, meta.RetriesExhausted)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	fn := func(_ context.Context) error { return nil }

	_, err := RetryWithExponentialBackoff(ctx, fn, WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = RetryWithExponentialBackoff(ctx, fn, WithBaseDelay(-1*time.Second))
	assert.ErrorIs(t, err, ErrNegativeBaseDelay)

	_, err = RetryWithExponentialBackoff(ctx, fn, WithJitterFactor(1.5))
	assert.ErrorIs(t, err, ErrInvalidJitterFactor)

	_, err = RetryWithExponentialBackoff(ctx, fn, WithMetrics(nil, "borrow"))
	assert.ErrorIs(t, err, ErrNilMetricsCollector)

	_, err = RetryWithExponentialBackoff(ctx, fn, WithMetrics(helper.NewMetricsCollectorSpy(false), ""))
	require.ErrorIs(t, err, ErrEmptyOperation)
}
