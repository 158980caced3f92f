package postgresengine

import (
	"context"
	"errors"
	"strconv"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// Borrow lends a copy to a member. The target names either one specific copy or a book,
// in which case the free copy with the lowest id is chosen.
//
// In one transaction it verifies the member, resolves and locks the copy, inserts the open loan
// with due date now + loan period, marks the copy checked out, decrements available_copies
// and appends a LoanOpened journal entry.
//
// Errors, all matchable with errors.Is:
//   - circulation.ErrNotFound: member, book or copy does not exist
//   - circulation.ErrNotAvailable: the copy is lent out, or the book has no free copy
//   - circulation.ErrConflict: a concurrent borrower won the race; retrying a book target may succeed
//   - circulation.ErrBusy: a lock or the context deadline was not met
func (e *Engine) Borrow(ctx context.Context, memberID circulation.MemberID, target circulation.Target) (circulation.Loan, error) {
	observer, ctx := e.observe(ctx, operationBorrow, map[string]string{
		spanAttrMemberID: memberID.String(),
		spanAttrTarget:   target.String(),
	})

	if !target.IsValid() {
		return circulation.Loan{}, observer.fail(circulation.ErrInvalidTarget)
	}

	if err := e.checkMemberInDirectory(ctx, memberID); err != nil {
		return circulation.Loan{}, observer.fail(err)
	}

	var loan circulation.Loan
	err := e.inTransaction(ctx, operationBorrow, func(ctx context.Context, tx adapters.DBTx) error {
		var borrowErr error
		loan, borrowErr = e.borrowInTx(ctx, tx, memberID, target)

		return borrowErr
	})
	if err != nil {
		return circulation.Loan{}, observer.fail(err)
	}

	e.incrementCounter(ctx, metricLoansOpened, map[string]string{spanAttrOperation: operationBorrow})
	observer.succeed(map[string]string{
		spanAttrLoanID: loan.LoanID.String(),
		spanAttrCopyID: loan.CopyID.String(),
		spanAttrBookID: loan.BookID.String(),
	})

	return loan, nil
}

func (e *Engine) borrowInTx(
	ctx context.Context,
	tx adapters.DBTx,
	memberID circulation.MemberID,
	target circulation.Target,
) (circulation.Loan, error) {

	if e.memberDirectory != nil {
		if ensureErr := e.ensureMemberRecord(ctx, tx, memberID); ensureErr != nil {
			return circulation.Loan{}, ensureErr
		}
	}

	memberName, memberFound, lookupErr := e.loadMemberName(ctx, tx, memberID)
	if lookupErr != nil {
		return circulation.Loan{}, lookupErr
	}

	if !memberFound {
		return circulation.Loan{}, errors.Join(circulation.ErrNotFound, circulation.ErrMemberNotFound)
	}

	copyID, book, resolveErr := e.resolveCopy(ctx, tx, target)
	if resolveErr != nil {
		return circulation.Loan{}, resolveErr
	}

	now := e.now()
	loan := circulation.Loan{
		LoanID:     circulation.NewID(),
		CopyID:     copyID,
		BookID:     book.bookID,
		MemberID:   memberID,
		MemberName: memberName,
		Title:      book.title,
		ISBN:       book.isbn,
		BorrowDate: now,
		DueDate:    e.policy.DueDate(now),
	}

	if openErr := e.openLoan(ctx, tx, loan); openErr != nil {
		return circulation.Loan{}, openErr
	}

	if _, marked, markErr := e.markCopy(ctx, tx, copyID, copyStatusAvailable, copyStatusCheckedOut); markErr != nil {
		return circulation.Loan{}, markErr
	} else if !marked {
		return circulation.Loan{}, circulation.ErrConflict
	}

	if _, adjustErr := e.adjustAvailable(ctx, tx, book.bookID, -1); adjustErr != nil {
		return circulation.Loan{}, adjustErr
	}

	entry, entryErr := circulation.LoanOpenedEntry(loan, circulation.BuildEntryMetadata(loan.LoanID))
	if entryErr != nil {
		return circulation.Loan{}, entryErr
	}

	if journalErr := e.appendJournalEntry(ctx, tx, entry); journalErr != nil {
		return circulation.Loan{}, journalErr
	}

	return loan, nil
}

// resolveCopy finds and locks the copy a borrow will lend.
func (e *Engine) resolveCopy(ctx context.Context, tx adapters.DBTx, target circulation.Target) (circulation.CopyID, bookRow, error) {
	if target.IsCopy() {
		copyRow, found, lockErr := e.lockCopy(ctx, tx, target.ID())
		if lockErr != nil {
			return circulation.CopyID{}, bookRow{}, lockErr
		}

		if !found {
			return circulation.CopyID{}, bookRow{}, errors.Join(circulation.ErrNotFound, circulation.ErrCopyNotFound)
		}

		if copyRow.status != copyStatusAvailable {
			return circulation.CopyID{}, bookRow{}, circulation.ErrNotAvailable
		}

		book, _, loadErr := e.loadBook(ctx, tx, copyRow.bookID, false)
		if loadErr != nil {
			return circulation.CopyID{}, bookRow{}, loadErr
		}

		return copyRow.copyID, book, nil
	}

	book, found, loadErr := e.loadBook(ctx, tx, target.ID(), false)
	if loadErr != nil {
		return circulation.CopyID{}, bookRow{}, loadErr
	}

	if !found {
		return circulation.CopyID{}, bookRow{}, errors.Join(circulation.ErrNotFound, circulation.ErrBookNotFound)
	}

	copyID, found, findErr := e.findAvailableCopy(ctx, tx, book.bookID)
	if findErr != nil {
		return circulation.CopyID{}, bookRow{}, findErr
	}

	if !found {
		return circulation.CopyID{}, bookRow{}, circulation.ErrNotAvailable
	}

	return copyID, book, nil
}

func (e *Engine) checkMemberInDirectory(ctx context.Context, memberID circulation.MemberID) error {
	if e.memberDirectory == nil {
		return nil
	}

	exists, err := e.memberDirectory.MemberExists(ctx, memberID)
	if err != nil {
		e.logError(ctx, logMsgMemberLookupFailed, err, spanAttrMemberID, memberID.String())
		return err
	}

	if !exists {
		return errors.Join(circulation.ErrNotFound, circulation.ErrMemberNotFound)
	}

	return nil
}

// ReturnLoan closes an open loan. In one transaction it sets the return date, records whether
// the loan was overdue, marks the copy available, increments available_copies (capped at
// total_copies) and appends a LoanClosed journal entry.
//
// Of two concurrent returns of the same loan exactly one succeeds; the other gets
// circulation.ErrAlreadyReturned. An unknown loan id yields circulation.ErrNotFound.
func (e *Engine) ReturnLoan(ctx context.Context, loanID circulation.LoanID) (circulation.ClosedLoan, error) {
	observer, ctx := e.observe(ctx, operationReturn, map[string]string{spanAttrLoanID: loanID.String()})

	var closed circulation.ClosedLoan
	err := e.inTransaction(ctx, operationReturn, func(ctx context.Context, tx adapters.DBTx) error {
		var returnErr error
		closed, returnErr = e.returnInTx(ctx, tx, loanID)

		return returnErr
	})
	if err != nil {
		return circulation.ClosedLoan{}, observer.fail(err)
	}

	e.incrementCounter(ctx, metricLoansClosed, map[string]string{
		spanAttrOperation:  operationReturn,
		spanAttrWasOverdue: strconv.FormatBool(closed.WasOverdue),
	})
	observer.succeed(map[string]string{
		spanAttrLoanID:     closed.LoanID.String(),
		spanAttrCopyID:     closed.CopyID.String(),
		spanAttrBookID:     closed.BookID.String(),
		spanAttrWasOverdue: strconv.FormatBool(closed.WasOverdue),
	})

	return closed, nil
}

func (e *Engine) returnInTx(ctx context.Context, tx adapters.DBTx, loanID circulation.LoanID) (circulation.ClosedLoan, error) {
	loan, returnDate, found, closeErr := e.closeLoan(ctx, tx, loanID, e.now())
	if closeErr != nil {
		return circulation.ClosedLoan{}, closeErr
	}

	if !found {
		exists, lookupErr := e.loanExists(ctx, tx, loanID)
		if lookupErr != nil {
			return circulation.ClosedLoan{}, lookupErr
		}

		if exists {
			return circulation.ClosedLoan{}, circulation.ErrAlreadyReturned
		}

		return circulation.ClosedLoan{}, errors.Join(circulation.ErrNotFound, circulation.ErrLoanNotFound)
	}

	memberName, _, lookupErr := e.loadMemberName(ctx, tx, loan.MemberID)
	if lookupErr != nil {
		return circulation.ClosedLoan{}, lookupErr
	}

	loan.MemberName = memberName
	closed := loan.Close(returnDate)

	bookID, marked, markErr := e.markCopy(ctx, tx, closed.CopyID, copyStatusCheckedOut, copyStatusAvailable)
	if markErr != nil {
		return circulation.ClosedLoan{}, markErr
	}

	if !marked {
		return circulation.ClosedLoan{}, circulation.ErrConflict
	}

	book, restoreErr := e.restoreAvailable(ctx, tx, bookID)
	if restoreErr != nil {
		return circulation.ClosedLoan{}, restoreErr
	}

	closed.BookID = book.bookID
	closed.Title = book.title
	closed.ISBN = book.isbn

	entry, entryErr := circulation.LoanClosedEntry(closed, circulation.BuildEntryMetadata(closed.LoanID))
	if entryErr != nil {
		return circulation.ClosedLoan{}, entryErr
	}

	if journalErr := e.appendJournalEntry(ctx, tx, entry); journalErr != nil {
		return circulation.ClosedLoan{}, journalErr
	}

	return closed, nil
}
