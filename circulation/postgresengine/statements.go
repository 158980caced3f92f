package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

type sqlQueryString = string

// sqlBuilder is satisfied by goqu's select, insert, update and delete datasets.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

// executor is satisfied by the adapter itself and by an open transaction.
type executor interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// txFunc runs the statements of one unit of work.
type txFunc func(ctx context.Context, tx adapters.DBTx) error

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// toSQL renders a goqu dataset with interpolated values.
func (e *Engine) toSQL(ctx context.Context, ds sqlBuilder, action string) (sqlQueryString, error) {
	sqlQuery, _, err := ds.ToSQL()
	if err != nil {
		e.logError(ctx, logMsgBuildQueryFailed, err, logAttrAction, action)
		return "", errors.Join(circulation.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

// inTransaction runs fn inside one READ COMMITTED transaction with the configured lock timeout.
// The transaction is committed if fn succeeds and rolled back on every other path.
func (e *Engine) inTransaction(ctx context.Context, operation string, fn txFunc) error {
	tx, beginErr := e.db.BeginTx(ctx)
	if beginErr != nil {
		e.logError(ctx, logMsgBeginTxFailed, beginErr, logAttrOperation, operation)
		return errors.Join(circulation.ErrBeginTxFailed, classifyDBError(beginErr))
	}

	committed := false
	defer func() {
		if !committed {
			e.rollback(ctx, tx, operation)
		}
	}()

	if err := e.setLockTimeout(ctx, tx); err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		e.logError(ctx, logMsgCommitFailed, commitErr, logAttrOperation, operation)
		return errors.Join(circulation.ErrCommitFailed, classifyDBError(commitErr))
	}

	committed = true

	return nil
}

func (e *Engine) rollback(ctx context.Context, tx adapters.DBTx, operation string) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		e.logWarn(ctx, logMsgRollbackFailed, logAttrError, err.Error(), logAttrOperation, operation)
	}
}

func (e *Engine) setLockTimeout(ctx context.Context, tx adapters.DBTx) error {
	if e.lockTimeout <= 0 {
		return nil
	}

	statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", e.lockTimeout.Milliseconds())
	_, err := e.exec(ctx, tx, actionSetLockTimeout, statement)

	return err
}

// queryRows executes sqlQuery and calls scan once per row. The rows are closed before it returns.
func (e *Engine) queryRows(
	ctx context.Context,
	db executor,
	action string,
	sqlQuery sqlQueryString,
	scan func(rows adapters.DBRows) error,
) (int, error) {

	start := time.Now()
	rows, queryErr := db.Query(ctx, sqlQuery)
	e.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrAction, action, logAttrQuery, sqlQuery)
		return 0, errors.Join(circulation.ErrQueryFailed, classifyDBError(queryErr))
	}
	defer e.closeRows(ctx, rows)

	count := 0
	for rows.Next() {
		if scanErr := scan(rows); scanErr != nil {
			e.logError(ctx, logMsgScanRowFailed, scanErr, logAttrAction, action)
			return count, errors.Join(circulation.ErrScanningDBRowFailed, scanErr)
		}
		count++
	}

	if iterErr := rows.Err(); iterErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, iterErr, logAttrAction, action, logAttrQuery, sqlQuery)
		return count, errors.Join(circulation.ErrQueryFailed, classifyDBError(iterErr))
	}

	return count, nil
}

// exec executes a statement and returns the number of affected rows.
func (e *Engine) exec(ctx context.Context, db executor, action string, sqlQuery sqlQueryString) (int64, error) {
	start := time.Now()
	result, execErr := db.Exec(ctx, sqlQuery)
	e.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		e.logError(ctx, logMsgDBExecFailed, execErr, logAttrAction, action, logAttrQuery, sqlQuery)
		return 0, errors.Join(circulation.ErrQueryFailed, classifyDBError(execErr))
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		e.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr, logAttrAction, action)
		return 0, errors.Join(circulation.ErrQueryFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		e.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}
