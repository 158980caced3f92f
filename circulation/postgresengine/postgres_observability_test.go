package postgresengine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper/postgreswrapper" //nolint:revive
)

func Test_Observability_WithLogger_LogsStatementsAndCompletedBorrow(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logHandlerSpy := NewLogHandlerSpy(false)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithLogger(slog.New(logHandlerSpy)))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	logHandlerSpy.Reset()

	// act
	loan, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))

	// assert
	require.NoError(t, err)
	assert.True(t, logHandlerSpy.HasDebugLogWithMessage("executed sql for: find_available_copy").WithDurationMS().WithQuery().Assert())
	assert.True(t, logHandlerSpy.HasDebugLogWithMessage("executed sql for: open_loan").WithDurationMS().Assert())
	assert.True(t, logHandlerSpy.HasDebugLogWithMessage("executed sql for: append_journal").Assert())
	assert.True(t,
		logHandlerSpy.HasInfoLogWithMessage("circulation operation: borrow completed").
			WithDurationMS().
			WithAttribute("loan_id", loan.LoanID.String()).
			Assert(),
		"should log the completed borrow with its loan id",
	)
}

func Test_Observability_WithLogger_LogsRejectionAtInfoLevel(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logHandlerSpy := NewLogHandlerSpy(false)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithLogger(slog.New(logHandlerSpy)))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	_, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	require.NoError(t, err, "error in arranging test data")
	logHandlerSpy.Reset()

	// act
	_, err = engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotAvailable)
	assert.True(t,
		logHandlerSpy.HasInfoLogWithMessage("circulation operation: borrow rejected").
			WithAttribute("error_type", "not_available").
			WithDurationMS().
			Assert(),
	)
	assert.False(t, logHandlerSpy.HasErrorLogWithMessage("circulation operation: borrow failed").Assert())
}

func Test_Observability_WithContextualLogger_ReceivesTheSameMessages(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logHandlerSpy := NewLogHandlerSpy(false)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithContextualLogger(slog.New(logHandlerSpy)))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)

	// act
	_, err := engine.AddCopies(ctxWithTimeout, book.BookID, 2)

	// assert
	require.NoError(t, err)
	assert.True(t, logHandlerSpy.HasInfoLogWithMessage("circulation operation: add_copies completed").WithDurationMS().Assert())
	assert.True(t, logHandlerSpy.HasDebugLogWithMessage("executed sql for: lock_book").Assert())
}

func Test_Observability_WithMetrics_RecordsDurationsCountersAndRows(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := NewMetricsCollectorSpy(true)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithMetrics(metricsSpy))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	metricsSpy.Reset()

	// act
	loan, borrowErr := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	_, rejectedErr := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	_, returnErr := engine.ReturnLoan(ctxWithTimeout, loan.LoanID)
	_, listErr := engine.ListHistory(ctxWithTimeout)
	_, addErr := engine.AddCopies(ctxWithTimeout, book.BookID, 4)

	// assert
	require.NoError(t, borrowErr)
	require.ErrorIs(t, rejectedErr, circulation.ErrNotAvailable)
	require.NoError(t, returnErr)
	require.NoError(t, listErr)
	require.NoError(t, addErr)

	assert.True(t, metricsSpy.HasDurationRecordForMetric("circulation_operation_duration_seconds").
		WithOperation("borrow").WithStatus("success").Assert())
	assert.True(t, metricsSpy.HasDurationRecordForMetric("circulation_operation_duration_seconds").
		WithOperation("borrow").WithStatus("error").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("circulation_errors_total").
		WithOperation("borrow").WithErrorType("not_available").Assert())
	assert.Equal(t, 1, metricsSpy.HasCounterRecordForMetric("circulation_loans_opened_total").Count())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("circulation_loans_closed_total").
		WithLabel("was_overdue", "false").Assert())
	assert.True(t, metricsSpy.HasValueRecordForMetric("circulation_query_rows_returned").
		WithOperation("list_history").Assert())
	assert.True(t, metricsSpy.HasValueRecordForMetric("circulation_copies_added").
		WithOperation("add_copies").Assert())
	assert.False(t, metricsSpy.HasCounterRecordForMetric("circulation_conflicts_total").Assert())

	for _, record := range metricsSpy.GetValueRecords() {
		if record.Metric == "circulation_copies_added" {
			assert.Equal(t, float64(4), record.Value)
		}
	}
}

func Test_Observability_WithTracing_RecordsOneSpanPerOperation(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tracingSpy := NewTracingCollectorSpy(true)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithTracing(tracingSpy))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	tracingSpy.Reset()

	// act
	loan, borrowErr := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	_, returnErr := engine.ReturnLoan(ctxWithTimeout, loan.LoanID)
	_, secondReturnErr := engine.ReturnLoan(ctxWithTimeout, loan.LoanID)

	// assert
	require.NoError(t, borrowErr)
	require.NoError(t, returnErr)
	require.ErrorIs(t, secondReturnErr, circulation.ErrAlreadyReturned)

	assert.True(t, tracingSpy.HasSpanRecordForName("circulation.borrow").
		WithStatus("success").
		WithStartAttribute("member_id", member.MemberID.String()).
		WithStartAttribute("target", circulation.BookTarget(book.BookID).String()).
		WithEndAttribute("loan_id", loan.LoanID.String()).
		Assert())
	assert.Equal(t, 2, tracingSpy.CountSpanRecordsForName("circulation.return"))

	var statuses []string
	for _, record := range tracingSpy.GetSpanRecords() {
		if record.Name == "circulation.return" {
			statuses = append(statuses, record.Status)
		}
	}
	assert.Equal(t, []string{"success", "error"}, statuses)

	var rejected SpySpanRecord
	for _, record := range tracingSpy.GetSpanRecords() {
		if record.Name == "circulation.return" && record.Status == "error" {
			rejected = record
		}
	}
	assert.Equal(t, "already_returned", rejected.EndAttributes["error_type"])
	assert.Equal(t, "already_returned", rejected.SpanContext.GetAttributes()["error_type"])
}

func Test_Observability_WithOTelTracing_CorrelatesContextualLogsWithSpans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	loggerSpy := NewContextualLoggerSpy()
	wrapper := CreateWrapperWithTestConfig(
		t,
		postgresengine.WithTracing(oteladapters.NewTracingCollector(provider.Tracer("circulation-test"))),
		postgresengine.WithContextualLogger(loggerSpy),
	)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	exporter.Reset()
	loggerSpy.Reset()

	// act
	_, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))

	// assert
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "circulation.borrow", spans[0].Name)

	completed := loggerSpy.FindRecords("info", "circulation operation: borrow completed")
	require.Len(t, completed, 1)
	assert.Equal(t, spans[0].SpanContext.SpanID(), trace.SpanContextFromContext(completed[0].Context).SpanID())

	statements := loggerSpy.FindRecords("debug", "executed sql for: find_available_copy")
	require.NotEmpty(t, statements)
	assert.Equal(t, spans[0].SpanContext.TraceID(), trace.SpanContextFromContext(statements[0].Context).TraceID())
}
