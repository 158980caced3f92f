package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	logMsgBuildQueryFailed   = "failed to build sql statement"
	logMsgBeginTxFailed      = "failed to begin transaction"
	logMsgCommitFailed       = "failed to commit transaction"
	logMsgRollbackFailed     = "failed to roll back transaction"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database statement execution failed"
	logMsgRowsAffectedFailed = "failed to get rows affected count"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgMemberLookupFailed = "member directory lookup failed"
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "circulation operation: "
	logMsgCompleted          = " completed"
	logMsgRejected           = " rejected"
	logMsgFailed             = " failed"

	logAttrError      = "error"
	logAttrErrorType  = "error_type"
	logAttrQuery      = "query"
	logAttrAction     = "action"
	logAttrOperation  = "operation"
	logAttrDurationMS = "duration_ms"

	actionSetLockTimeout  = "set_lock_timeout"
	actionMemberExists    = "member_exists"
	actionEnsureMember    = "ensure_member"
	actionLoadMember      = "load_member"
	actionLoadBook        = "load_book"
	actionLockBook        = "lock_book"
	actionLockCopy        = "lock_copy"
	actionFindCopy        = "find_available_copy"
	actionMarkCopy        = "mark_copy"
	actionAdjustAvailable = "adjust_available"
	actionInsertCopies    = "insert_copies"
	actionInsertBook      = "insert_book"
	actionInsertMember    = "insert_member"
	actionOpenLoan        = "open_loan"
	actionCloseLoan       = "close_loan"
	actionLoanExists      = "loan_exists"
	actionListLoans       = "list_loans"
	actionInventory       = "inventory"
	actionAppendJournal   = "append_journal"
	actionReadJournal     = "read_journal"
	actionApplySchema     = "apply_schema"

	operationBorrow          = "borrow"
	operationReturn          = "return"
	operationAddCopies       = "add_copies"
	operationAddBook         = "add_book"
	operationRegisterMember  = "register_member"
	operationListOpenLoans   = "list_open_loans"
	operationListOverdue     = "list_overdue_loans"
	operationListHistory     = "list_history"
	operationInventory       = "inventory"
	operationReadJournal     = "read_journal"
	operationFindBook        = "find_book"
	operationApplySchema     = "apply_schema"
	operationMemberExistence = "member_exists"

	spanNamePrefix = "circulation."

	spanAttrOperation    = "operation"
	spanAttrErrorType    = "error_type"
	spanAttrDurationMS   = "duration_ms"
	spanAttrMemberID     = "member_id"
	spanAttrBookID       = "book_id"
	spanAttrCopyID       = "copy_id"
	spanAttrLoanID       = "loan_id"
	spanAttrTarget       = "target"
	spanAttrRowCount     = "row_count"
	spanAttrCopyCount    = "copy_count"
	spanAttrWasOverdue   = "was_overdue"
	spanAttrConsistency  = "consistency"
	metricLabelStatus    = "status"
	metricLabelErrorType = "error_type"

	statusSuccess = "success"
	statusError   = "error"

	metricOperationDuration = "circulation_operation_duration_seconds"
	metricRowsReturned      = "circulation_query_rows_returned"
	metricConflicts         = "circulation_conflicts_total"
	metricErrors            = "circulation_errors_total"
	metricLoansOpened       = "circulation_loans_opened_total"
	metricLoansClosed       = "circulation_loans_closed_total"
	metricCopiesAdded       = "circulation_copies_added"
)

// === Logging ===
// Every message goes to the plain logger and to the contextual logger, whichever are configured.

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (e *Engine) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery}

	if e.logger != nil {
		e.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (e *Engine) logOperation(ctx context.Context, message string, args ...any) {
	if e.logger != nil {
		e.logger.Info(logMsgOperation+message, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, logMsgOperation+message, args...)
	}
}

// logWarn logs non-critical issues at warn level.
func (e *Engine) logWarn(ctx context.Context, message string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(message, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at the error level.
func (e *Engine) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if e.logger != nil {
		e.logger.Error(message, allArgs...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (e *Engine) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (e *Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metric, duration, labels)
}

func (e *Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metric, labels)
}

func (e *Engine) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	e.metricsCollector.RecordValue(metric, value, labels)
}

// operationObserver encapsulates span lifecycle, metrics and operation logging of one public operation.
type operationObserver struct {
	e         *Engine
	ctx       context.Context
	span      circulation.SpanContext
	operation string
	start     time.Time
}

// observe starts the span for operation and returns the observer and the span's context.
func (e *Engine) observe(ctx context.Context, operation string, attrs map[string]string) (*operationObserver, context.Context) {
	spanAttrs := map[string]string{spanAttrOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	var span circulation.SpanContext
	if e.tracingCollector != nil {
		ctx, span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	return &operationObserver{
		e:         e,
		ctx:       ctx,
		span:      span,
		operation: operation,
		start:     time.Now(),
	}, ctx
}

// succeed finishes the operation successfully. attrs go to the span and to the info log.
func (o *operationObserver) succeed(attrs map[string]string) {
	duration := time.Since(o.start)

	o.e.recordDuration(o.ctx, metricOperationDuration, duration, map[string]string{
		spanAttrOperation: o.operation,
		metricLabelStatus: statusSuccess,
	})

	if o.span != nil {
		o.span.SetStatus(statusSuccess)
		o.span.AddAttribute(spanAttrDurationMS, o.formatDuration(duration))
		for key, value := range attrs {
			o.span.AddAttribute(key, value)
		}
		o.e.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
	}

	args := []any{logAttrDurationMS, o.e.toMilliseconds(duration)}
	for key, value := range attrs {
		args = append(args, key, value)
	}
	o.e.logOperation(o.ctx, o.operation+logMsgCompleted, args...)
}

// succeedWithRows finishes a list operation and records the number of returned rows.
func (o *operationObserver) succeedWithRows(rowCount int) {
	o.e.recordValue(o.ctx, metricRowsReturned, float64(rowCount), map[string]string{
		spanAttrOperation: o.operation,
		metricLabelStatus: statusSuccess,
	})

	o.succeed(map[string]string{
		spanAttrRowCount:    fmt.Sprintf("%d", rowCount),
		spanAttrConsistency: circulation.GetConsistencyLevel(o.ctx).String(),
	})
}

// fail finishes the operation with err and returns err unchanged.
func (o *operationObserver) fail(err error) error {
	duration := time.Since(o.start)
	errorType := errorTypeOf(err)

	o.e.recordDuration(o.ctx, metricOperationDuration, duration, map[string]string{
		spanAttrOperation: o.operation,
		metricLabelStatus: statusError,
	})

	o.e.incrementCounter(o.ctx, metricErrors, map[string]string{
		spanAttrOperation:    o.operation,
		metricLabelErrorType: errorType,
	})

	if errorType == errorTypeConflict {
		o.e.incrementCounter(o.ctx, metricConflicts, map[string]string{spanAttrOperation: o.operation})
	}

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.span.AddAttribute(spanAttrErrorType, errorType)
		o.span.AddAttribute(spanAttrDurationMS, o.formatDuration(duration))
		o.e.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
	}

	if isRejection(err) {
		o.e.logOperation(
			o.ctx,
			o.operation+logMsgRejected,
			logAttrErrorType, errorType,
			logAttrError, err.Error(),
			logAttrDurationMS, o.e.toMilliseconds(duration),
		)
	} else {
		o.e.logError(o.ctx, logMsgOperation+o.operation+logMsgFailed, err, logAttrErrorType, errorType)
	}

	return err
}

func (o *operationObserver) formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.2f", o.e.toMilliseconds(duration))
}
