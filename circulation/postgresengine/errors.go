package postgresengine

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// PostgreSQL error codes the engine reacts to.
const (
	pgCodeUniqueViolation      = "23505"
	pgCodeForeignKeyViolation  = "23503"
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
	pgCodeQueryCanceled        = "57014"
)

// Error types used as metric labels and span attributes.
const (
	errorTypeNotFound        = "not_found"
	errorTypeNotAvailable    = "not_available"
	errorTypeAlreadyReturned = "already_returned"
	errorTypeConflict        = "conflict"
	errorTypeInvalidQuantity = "invalid_quantity"
	errorTypeInvalidInput    = "invalid_input"
	errorTypeBusy            = "busy"
	errorTypeCanceled        = "canceled"
	errorTypeDatabase        = "database"
)

// pgErrorCode extracts the SQLSTATE from pgx or lib/pq errors.
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// classifyDBError joins a driver error with the circulation error kind it stands for.
// Errors without a matching kind are returned unchanged.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}

	switch pgErrorCode(err) {
	case pgCodeUniqueViolation, pgCodeSerializationFailure, pgCodeDeadlockDetected:
		return errors.Join(circulation.ErrConflict, err)
	case pgCodeForeignKeyViolation:
		return errors.Join(circulation.ErrNotFound, err)
	case pgCodeLockNotAvailable, pgCodeQueryCanceled:
		return errors.Join(circulation.ErrBusy, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(circulation.ErrBusy, err)
	}

	return err
}

// errorTypeOf maps an operation error to its metric label.
func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, circulation.ErrConflict):
		return errorTypeConflict
	case errors.Is(err, circulation.ErrBusy):
		return errorTypeBusy
	case errors.Is(err, circulation.ErrNotFound):
		return errorTypeNotFound
	case errors.Is(err, circulation.ErrNotAvailable):
		return errorTypeNotAvailable
	case errors.Is(err, circulation.ErrAlreadyReturned):
		return errorTypeAlreadyReturned
	case errors.Is(err, circulation.ErrInvalidQuantity):
		return errorTypeInvalidQuantity
	case errors.Is(err, circulation.ErrInvalidTarget),
		errors.Is(err, circulation.ErrEmptyTitle),
		errors.Is(err, circulation.ErrEmptyISBN),
		errors.Is(err, circulation.ErrEmptyMemberName):
		return errorTypeInvalidInput
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	default:
		return errorTypeDatabase
	}
}

// isRejection reports whether err is an expected business outcome rather than a failure of the database.
func isRejection(err error) bool {
	switch errorTypeOf(err) {
	case errorTypeDatabase, errorTypeCanceled:
		return false
	default:
		return true
	}
}
