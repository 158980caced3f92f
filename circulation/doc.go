// Package circulation provides the core types of a library circulation system:
// books, copies, members, loans and the inventory counters that must stay
// consistent while copies are lent and returned concurrently.
//
// This package is storage-agnostic. It defines identities, the borrow target
// selector, the loan policy, the error taxonomy, the circulation journal and the
// observability interfaces. The transactional implementation lives in the
// postgresengine subpackage.
//
// Key types:
//   - Target: selects what to borrow, either a specific copy or any free copy of a book
//   - Loan / ClosedLoan: open and returned loans
//   - Inventory: total and available copies of a book
//   - JournalEntry / JournalFilter: the append-only record of circulation transitions
//
// Common usage pattern:
//
//	loan, err := engine.Borrow(ctx, memberID, circulation.BookTarget(bookID))
//	switch {
//	case errors.Is(err, circulation.ErrNotAvailable):
//		// no free copy
//	case errors.Is(err, circulation.ErrConflict):
//		// lost a race, safe to retry for book targets
//	}
//
//	closed, err := engine.ReturnLoan(ctx, loan.LoanID)
package circulation
