package postgresengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// The inventory ledger: per-book counters and per-copy status.

type bookRow struct {
	bookID    uuid.UUID
	title     string
	isbn      string
	genre     string
	total     int64
	available int64
}

func (r bookRow) toBook() circulation.Book {
	return circulation.Book{
		BookID:          r.bookID,
		Title:           r.title,
		ISBN:            r.isbn,
		Genre:           r.genre,
		TotalCopies:     circulation.CopyCount(r.total),
		AvailableCopies: circulation.CopyCount(r.available),
	}
}

type copyRow struct {
	copyID uuid.UUID
	bookID uuid.UUID
	status string
}

// AddCopies adds count new copies to a book. Total and available copies both grow by count.
//
// Returns circulation.ErrInvalidQuantity if count is not positive and circulation.ErrNotFound
// (joined with circulation.ErrBookNotFound) if the book does not exist.
func (e *Engine) AddCopies(ctx context.Context, bookID circulation.BookID, count circulation.CopyCount) (circulation.AddCopiesResult, error) {
	observer, ctx := e.observe(ctx, operationAddCopies, map[string]string{
		spanAttrBookID:    bookID.String(),
		spanAttrCopyCount: fmt.Sprintf("%d", count),
	})

	if err := circulation.ValidateCopyCount(count); err != nil {
		return circulation.AddCopiesResult{}, observer.fail(err)
	}

	var result circulation.AddCopiesResult
	err := e.inTransaction(ctx, operationAddCopies, func(ctx context.Context, tx adapters.DBTx) error {
		book, found, lockErr := e.loadBook(ctx, tx, bookID, true)
		if lockErr != nil {
			return lockErr
		}

		if !found {
			return errors.Join(circulation.ErrNotFound, circulation.ErrBookNotFound)
		}

		var addErr error
		result, addErr = e.addCopiesInTx(ctx, tx, book.bookID, count)

		return addErr
	})
	if err != nil {
		return circulation.AddCopiesResult{}, observer.fail(err)
	}

	e.recordValue(ctx, metricCopiesAdded, float64(count), map[string]string{spanAttrOperation: operationAddCopies})
	observer.succeed(map[string]string{
		spanAttrBookID:    bookID.String(),
		spanAttrCopyCount: fmt.Sprintf("%d", result.NewTotal),
	})

	return result, nil
}

// addCopiesInTx inserts the copies and grows both counters. The book row must already be locked or freshly inserted.
func (e *Engine) addCopiesInTx(
	ctx context.Context,
	tx adapters.DBTx,
	bookID circulation.BookID,
	count circulation.CopyCount,
) (circulation.AddCopiesResult, error) {

	copyIDs, insertErr := e.insertCopies(ctx, tx, bookID, count)
	if insertErr != nil {
		return circulation.AddCopiesResult{}, insertErr
	}

	total, available, growErr := e.growInventory(ctx, tx, bookID, count)
	if growErr != nil {
		return circulation.AddCopiesResult{}, growErr
	}

	result := circulation.AddCopiesResult{
		BookID:       bookID,
		AddedCount:   count,
		NewTotal:     total,
		NewAvailable: available,
		CopyIDs:      copyIDs,
	}

	entry, entryErr := circulation.CopiesAddedEntry(result, e.now(), circulation.BuildEntryMetadata(bookID))
	if entryErr != nil {
		return circulation.AddCopiesResult{}, entryErr
	}

	if journalErr := e.appendJournalEntry(ctx, tx, entry); journalErr != nil {
		return circulation.AddCopiesResult{}, journalErr
	}

	return result, nil
}

// Inventory returns the counters of a book together with the number of its copies that have no open loan.
func (e *Engine) Inventory(ctx context.Context, bookID circulation.BookID) (circulation.Inventory, error) {
	observer, ctx := e.observe(ctx, operationInventory, map[string]string{spanAttrBookID: bookID.String()})

	withoutOpenLoan := goqu.L(
		`(SELECT count(*) FROM book_copies c WHERE c.book_id = b.book_id ` +
			`AND NOT EXISTS (SELECT 1 FROM loans l WHERE l.copy_id = c.copy_id AND l.return_date IS NULL))`,
	)

	selectStmt := builder().
		From(goqu.T(tableBooks).As(aliasBook)).
		Select(goqu.I("b."+colTotalCopies), goqu.I("b."+colAvailableCopies), withoutOpenLoan).
		Where(goqu.I("b." + colBookID).Eq(bookID.String()))

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionInventory)
	if buildErr != nil {
		return circulation.Inventory{}, observer.fail(buildErr)
	}

	var total, available, free int64
	found, queryErr := e.queryRows(ctx, e.db, actionInventory, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&total, &available, &free)
	})
	if queryErr != nil {
		return circulation.Inventory{}, observer.fail(queryErr)
	}

	if found == 0 {
		return circulation.Inventory{}, observer.fail(errors.Join(circulation.ErrNotFound, circulation.ErrBookNotFound))
	}

	inventory := circulation.Inventory{
		BookID:                bookID,
		Total:                 circulation.CopyCount(total),
		Available:             circulation.CopyCount(available),
		CopiesWithoutOpenLoan: circulation.CopyCount(free),
	}

	observer.succeed(map[string]string{spanAttrBookID: bookID.String()})

	return inventory, nil
}

// loadBook reads a book row, optionally locking it FOR UPDATE.
func (e *Engine) loadBook(ctx context.Context, db executor, bookID circulation.BookID, lock bool) (bookRow, bool, error) {
	action := actionLoadBook

	selectStmt := builder().
		From(tableBooks).
		Select(colBookID, colTitle, colISBN, colGenre, colTotalCopies, colAvailableCopies).
		Where(goqu.C(colBookID).Eq(bookID.String()))

	if lock {
		action = actionLockBook
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, action)
	if buildErr != nil {
		return bookRow{}, false, buildErr
	}

	row := bookRow{}
	found, queryErr := e.queryRows(ctx, db, action, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&row.bookID, &row.title, &row.isbn, &row.genre, &row.total, &row.available)
	})
	if queryErr != nil {
		return bookRow{}, false, queryErr
	}

	return row, found > 0, nil
}

// lockCopy reads a copy row and locks it FOR UPDATE.
// A transaction waiting for the lock sees the status written by the holder once it commits.
func (e *Engine) lockCopy(ctx context.Context, tx adapters.DBTx, copyID circulation.CopyID) (copyRow, bool, error) {
	selectStmt := builder().
		From(tableCopies).
		Select(colCopyID, colBookID, colStatus).
		Where(goqu.C(colCopyID).Eq(copyID.String())).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionLockCopy)
	if buildErr != nil {
		return copyRow{}, false, buildErr
	}

	row := copyRow{}
	found, queryErr := e.queryRows(ctx, tx, actionLockCopy, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&row.copyID, &row.bookID, &row.status)
	})
	if queryErr != nil {
		return copyRow{}, false, queryErr
	}

	return row, found > 0, nil
}

// findAvailableCopy picks and locks the free copy of a book with the lowest id.
// Copies locked by concurrent borrowers are skipped instead of waited for.
func (e *Engine) findAvailableCopy(ctx context.Context, tx adapters.DBTx, bookID circulation.BookID) (circulation.CopyID, bool, error) {
	selectStmt := builder().
		From(tableCopies).
		Select(colCopyID).
		Where(
			goqu.C(colBookID).Eq(bookID.String()),
			goqu.C(colStatus).Eq(copyStatusAvailable),
		).
		Order(goqu.C(colCopyID).Asc()).
		Limit(1).
		ForUpdate(exp.SkipLocked)

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionFindCopy)
	if buildErr != nil {
		return uuid.Nil, false, buildErr
	}

	var copyID uuid.UUID
	found, queryErr := e.queryRows(ctx, tx, actionFindCopy, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&copyID)
	})
	if queryErr != nil {
		return uuid.Nil, false, queryErr
	}

	return copyID, found > 0, nil
}

// markCopy moves a copy from one status to another and returns its book id.
// ok is false if the copy was not in the from status.
func (e *Engine) markCopy(
	ctx context.Context,
	tx adapters.DBTx,
	copyID circulation.CopyID,
	from string,
	to string,
) (bookID circulation.BookID, ok bool, err error) {

	updateStmt := builder().
		Update(tableCopies).
		Set(goqu.Record{colStatus: to}).
		Where(
			goqu.C(colCopyID).Eq(copyID.String()),
			goqu.C(colStatus).Eq(from),
		).
		Returning(colBookID)

	sqlQuery, buildErr := e.toSQL(ctx, updateStmt, actionMarkCopy)
	if buildErr != nil {
		return uuid.Nil, false, buildErr
	}

	found, queryErr := e.queryRows(ctx, tx, actionMarkCopy, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&bookID)
	})
	if queryErr != nil {
		return uuid.Nil, false, queryErr
	}

	return bookID, found > 0, nil
}

// adjustAvailable adds delta to available_copies. The update only applies if the result stays
// within [0, total_copies]; otherwise nothing changes and an out-of-bounds conflict is returned.
func (e *Engine) adjustAvailable(ctx context.Context, tx adapters.DBTx, bookID circulation.BookID, delta int) (bookRow, error) {
	updateStmt := builder().
		Update(tableBooks).
		Set(goqu.Record{colAvailableCopies: goqu.L(colAvailableCopies+" + ?", delta)}).
		Where(
			goqu.C(colBookID).Eq(bookID.String()),
			goqu.L(colAvailableCopies+" + ? BETWEEN 0 AND "+colTotalCopies, delta),
		).
		Returning(colBookID, colTitle, colISBN, colGenre, colTotalCopies, colAvailableCopies)

	return e.updateBookCounters(ctx, tx, updateStmt)
}

// restoreAvailable gives one copy back to a book, capped at total_copies.
func (e *Engine) restoreAvailable(ctx context.Context, tx adapters.DBTx, bookID circulation.BookID) (bookRow, error) {
	updateStmt := builder().
		Update(tableBooks).
		Set(goqu.Record{colAvailableCopies: goqu.L("LEAST(" + colAvailableCopies + " + 1, " + colTotalCopies + ")")}).
		Where(goqu.C(colBookID).Eq(bookID.String())).
		Returning(colBookID, colTitle, colISBN, colGenre, colTotalCopies, colAvailableCopies)

	return e.updateBookCounters(ctx, tx, updateStmt)
}

func (e *Engine) updateBookCounters(ctx context.Context, tx adapters.DBTx, updateStmt *goqu.UpdateDataset) (bookRow, error) {
	sqlQuery, buildErr := e.toSQL(ctx, updateStmt, actionAdjustAvailable)
	if buildErr != nil {
		return bookRow{}, buildErr
	}

	row := bookRow{}
	found, queryErr := e.queryRows(ctx, tx, actionAdjustAvailable, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&row.bookID, &row.title, &row.isbn, &row.genre, &row.total, &row.available)
	})
	if queryErr != nil {
		return bookRow{}, queryErr
	}

	if found == 0 {
		return bookRow{}, errors.Join(circulation.ErrConflict, circulation.ErrInventoryOutOfBounds)
	}

	return row, nil
}

// insertCopies creates count available copies of a book.
func (e *Engine) insertCopies(
	ctx context.Context,
	tx adapters.DBTx,
	bookID circulation.BookID,
	count circulation.CopyCount,
) ([]circulation.CopyID, error) {

	copyIDs := make([]circulation.CopyID, 0, count)
	records := make([]any, 0, count)

	for i := 0; i < count; i++ {
		copyID := circulation.NewID()
		copyIDs = append(copyIDs, copyID)
		records = append(records, goqu.Record{
			colCopyID: copyID.String(),
			colBookID: bookID.String(),
			colStatus: copyStatusAvailable,
		})
	}

	insertStmt := builder().Insert(tableCopies).Rows(records...)

	sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionInsertCopies)
	if buildErr != nil {
		return nil, buildErr
	}

	if _, execErr := e.exec(ctx, tx, actionInsertCopies, sqlQuery); execErr != nil {
		return nil, execErr
	}

	return copyIDs, nil
}

// growInventory adds count to both counters of a book.
func (e *Engine) growInventory(
	ctx context.Context,
	tx adapters.DBTx,
	bookID circulation.BookID,
	count circulation.CopyCount,
) (total circulation.CopyCount, available circulation.CopyCount, err error) {

	updateStmt := builder().
		Update(tableBooks).
		Set(goqu.Record{
			colTotalCopies:     goqu.L(colTotalCopies+" + ?", count),
			colAvailableCopies: goqu.L(colAvailableCopies+" + ?", count),
		}).
		Where(goqu.C(colBookID).Eq(bookID.String())).
		Returning(colBookID, colTitle, colISBN, colGenre, colTotalCopies, colAvailableCopies)

	row, updateErr := e.updateBookCounters(ctx, tx, updateStmt)
	if updateErr != nil {
		return 0, 0, updateErr
	}

	return circulation.CopyCount(row.total), circulation.CopyCount(row.available), nil
}
